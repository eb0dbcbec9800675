package thread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the Postgres-backed Store. A single-statement upsert keeps the
// merge atomic; durability is the database's commit guarantee.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPGStore creates a Postgres thread store.
func NewPGStore(log *slog.Logger, pool *pgxpool.Pool) *PGStore {
	if log == nil {
		log = slog.Default()
	}
	return &PGStore{
		pool:   pool,
		logger: log.With(slog.String("service", "thread_store")),
	}
}

func (s *PGStore) Get(ctx context.Context, chatAddress string) (Record, error) {
	var (
		caseID     pgtype.Text
		lastAnchor pgtype.Text
		updatedAt  time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT case_id, last_anchor, updated_at FROM threads WHERE chat_address = $1`,
		chatAddress,
	).Scan(&caseID, &lastAnchor, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: get %s: %v", ErrStoreUnavailable, chatAddress, err)
	}
	return Record{
		ChatAddress: chatAddress,
		CaseID:      caseID.String,
		LastAnchor:  lastAnchor.String,
		UpdatedAt:   updatedAt,
	}, nil
}

func (s *PGStore) Upsert(ctx context.Context, chatAddress string, patch Patch) (Record, error) {
	var (
		caseID     pgtype.Text
		lastAnchor pgtype.Text
		updatedAt  time.Time
	)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO threads (chat_address, case_id, last_anchor, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (chat_address) DO UPDATE SET
		   case_id     = COALESCE($2, threads.case_id),
		   last_anchor = COALESCE($3, threads.last_anchor),
		   updated_at  = now()
		 RETURNING case_id, last_anchor, updated_at`,
		chatAddress, patch.CaseID, patch.LastAnchor,
	).Scan(&caseID, &lastAnchor, &updatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("%w: upsert %s: %v", ErrStoreUnavailable, chatAddress, err)
	}
	return Record{
		ChatAddress: chatAddress,
		CaseID:      caseID.String,
		LastAnchor:  lastAnchor.String,
		UpdatedAt:   updatedAt,
	}, nil
}

func (s *PGStore) PruneStale(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM threads WHERE updated_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("%w: prune: %v", ErrStoreUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

var _ Store = (*PGStore)(nil)
