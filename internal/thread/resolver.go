package thread

import (
	"context"
	"errors"
	"log/slog"
)

// NoCase is the sentinel returned when no helpdesk case exists yet and the
// direct-creation strategy is unavailable. The inbound handler then lets the
// helpdesk create the case as a side effect of the first email, and a later
// notification completes the loop via RecordCaseAnchor.
const NoCase = ""

// CaseSearcher finds the most recently updated non-closed helpdesk case for
// a pseudo identity. Returns "" when none match.
type CaseSearcher interface {
	MostRecentOpenCase(ctx context.Context, identityAddress string) (string, error)
}

// CaseCreator creates a helpdesk case synchronously and returns its id.
type CaseCreator interface {
	CreateCase(ctx context.Context, subject, requesterAddress, requesterName, body string) (string, error)
}

// Resolver decides which helpdesk case an event belongs to: reuse via the
// store, else discover via helpdesk search, else create (when a creator is
// configured). It exclusively owns thread record mutation.
type Resolver struct {
	store    Store
	searcher CaseSearcher
	creator  CaseCreator
	locks    *keyLocks
	logger   *slog.Logger
}

// NewResolver creates a Resolver. creator may be nil, in which case
// resolution falls back to the NoCase sentinel and email-implied creation.
func NewResolver(log *slog.Logger, store Store, searcher CaseSearcher, creator CaseCreator) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		store:    store,
		searcher: searcher,
		creator:  creator,
		locks:    newKeyLocks(),
		logger:   log.With(slog.String("service", "case_resolver")),
	}
}

// CaseRequest describes the inbound message a case is resolved for. The
// subject and body are only used when a new case has to be created.
type CaseRequest struct {
	ChatAddress  string
	ProxyAddress string
	DisplayName  string
	Subject      string
	InitialBody  string
}

// ResolveCaseForInbound returns the case id for the sender, or NoCase.
// Store failures degrade to helpdesk discovery; discovery failures degrade
// to the sentinel. The whole sequence is serialized per chat address.
func (r *Resolver) ResolveCaseForInbound(ctx context.Context, req CaseRequest) (string, error) {
	mu := r.locks.lock(req.ChatAddress)
	defer mu.Unlock()

	rec, err := r.store.Get(ctx, req.ChatAddress)
	if err == nil && rec.CaseID != "" {
		return rec.CaseID, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		r.logger.Warn("thread store read failed, falling back to discovery",
			slog.String("chat_address", req.ChatAddress),
			slog.Any("error", err))
	}

	caseID, err := r.searcher.MostRecentOpenCase(ctx, req.ProxyAddress)
	if err != nil {
		// Discovery is an enrichment step: a failed search must not block
		// delivery, and creating blind here could duplicate an open case.
		r.logger.Warn("helpdesk case search failed",
			slog.String("identity", req.ProxyAddress),
			slog.Any("error", err))
		return NoCase, nil
	}
	if caseID != "" {
		r.persist(ctx, req.ChatAddress, Patch{CaseID: String(caseID)})
		return caseID, nil
	}

	if r.creator == nil {
		return NoCase, nil
	}
	caseID, err = r.creator.CreateCase(ctx, req.Subject, req.ProxyAddress, req.DisplayName, req.InitialBody)
	if err != nil {
		// The email leg still reaches the helpdesk inbox, which converts it
		// into a case; the next notification completes the mapping.
		r.logger.Warn("direct case creation failed, deferring to email intake",
			slog.String("identity", req.ProxyAddress),
			slog.Any("error", err))
		return NoCase, nil
	}
	r.persist(ctx, req.ChatAddress, Patch{CaseID: String(caseID)})
	return caseID, nil
}

// RecordCaseAnchor stores the case id and/or threading anchor observed on an
// outbound-direction event. Empty fields are left untouched.
func (r *Resolver) RecordCaseAnchor(ctx context.Context, chatAddress, caseID, anchorToken string) error {
	mu := r.locks.lock(chatAddress)
	defer mu.Unlock()

	patch := Patch{}
	if caseID != "" {
		patch.CaseID = String(caseID)
	}
	if anchorToken != "" {
		patch.LastAnchor = String(anchorToken)
	}
	if patch.CaseID == nil && patch.LastAnchor == nil {
		return nil
	}
	_, err := r.store.Upsert(ctx, chatAddress, patch)
	return err
}

// Lookup returns the current record without mutating anything.
func (r *Resolver) Lookup(ctx context.Context, chatAddress string) (Record, error) {
	return r.store.Get(ctx, chatAddress)
}

// persist upserts and logs on failure. A lost write means the thread is
// simply rediscovered on the next message, so it never fails resolution.
func (r *Resolver) persist(ctx context.Context, chatAddress string, patch Patch) {
	if _, err := r.store.Upsert(ctx, chatAddress, patch); err != nil {
		r.logger.Warn("thread store write failed",
			slog.String("chat_address", chatAddress),
			slog.Any("error", err))
	}
}
