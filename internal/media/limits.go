package media

import (
	"fmt"
	"io"
)

// ReadAllWithLimit reads r fully but fails with ErrTooLarge as soon as
// more than max bytes arrive, instead of buffering an unbounded body.
func ReadAllWithLimit(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w: body larger than %d bytes", ErrTooLarge, max)
	}
	return data, nil
}

// Budget tracks a cumulative byte allowance across several attachments.
// Items are admitted in order; once an item would push the total over
// the cap it is rejected, but smaller later items may still fit.
type Budget struct {
	max  int64
	used int64
}

func NewBudget(max int64) *Budget {
	return &Budget{max: max}
}

// Admit reserves n bytes, or reports ErrTooLarge without consuming any.
func (b *Budget) Admit(n int64) error {
	if b.used+n > b.max {
		return fmt.Errorf("%w: %d bytes would exceed budget of %d", ErrTooLarge, b.used+n, b.max)
	}
	b.used += n
	return nil
}

// Remaining reports how many bytes the budget still allows.
func (b *Budget) Remaining() int64 {
	return b.max - b.used
}
