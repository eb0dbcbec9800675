// Package thread owns the durable association between a chat participant
// and a helpdesk case. The store is the system's only real state; both relay
// directions consult it, keyed by the normalized chat address.
package thread

import (
	"context"
	"time"
)

// Record is the persisted per-address thread state.
type Record struct {
	// ChatAddress is the normalized chat address the record is keyed by.
	ChatAddress string
	// CaseID is the helpdesk case this conversation threads into. Empty
	// until a case has been discovered or created.
	CaseID string
	// LastAnchor is the most recent threading token (an email Message-ID)
	// used to chain follow-up emails via reply headers.
	LastAnchor string
	UpdatedAt  time.Time
}

// Patch carries the fields of a partial update. Nil fields are left as-is.
type Patch struct {
	CaseID     *string
	LastAnchor *string
}

// Store persists thread records. Writes for the same chat address must be
// serialized by the caller; see Resolver.
type Store interface {
	// Get returns the record for the address, or ErrNotFound.
	Get(ctx context.Context, chatAddress string) (Record, error)
	// Upsert merges the patch into the existing record (creating one if
	// absent), stamps UpdatedAt, and persists durably before returning.
	Upsert(ctx context.Context, chatAddress string, patch Patch) (Record, error)
	// PruneStale removes records untouched since the cutoff and reports how
	// many were deleted. Case closure itself is a helpdesk-side concern.
	PruneStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// String returns a pointer patch field for the given value.
func String(v string) *string { return &v }
