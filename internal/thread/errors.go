package thread

import "errors"

var (
	// ErrNotFound indicates no thread record exists for the address.
	ErrNotFound = errors.New("thread record not found")
	// ErrStoreUnavailable indicates the persistence backend failed. Callers
	// treat the thread state as unknown and fall back to helpdesk discovery.
	ErrStoreUnavailable = errors.New("thread store unavailable")
)
