// Package media holds attachment bytes in transit between the chat and
// mail sides. Blobs live in an in-memory TTL cache and are addressed by
// opaque ids, so the public download URL leaks nothing about the sender.
package media

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// Blob is a single piece of media held for temporary relay.
type Blob struct {
	ID          string
	Filename    string
	ContentType string
	Data        []byte
	StoredAt    time.Time
}

// TempStore keeps blobs for a fixed TTL and evicts them automatically.
type TempStore struct {
	cache  *gocache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewTempStore creates a store whose entries expire after ttl. The
// janitor sweep runs at half the TTL.
func NewTempStore(log *slog.Logger, ttl time.Duration) *TempStore {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &TempStore{
		cache:  gocache.New(ttl, ttl/2),
		ttl:    ttl,
		logger: log.With(slog.String("service", "media_store")),
	}
}

// Put stores the blob under a fresh id and returns it.
func (s *TempStore) Put(filename, contentType string, data []byte) *Blob {
	blob := &Blob{
		ID:          uuid.NewString(),
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
		StoredAt:    time.Now(),
	}
	s.cache.Set(blob.ID, blob, gocache.DefaultExpiration)
	s.logger.Debug("stored blob",
		slog.String("id", blob.ID),
		slog.String("filename", filename),
		slog.Int("bytes", len(data)))
	return blob
}

// Get returns the blob for id, or ErrNotFound once it has expired.
func (s *TempStore) Get(id string) (*Blob, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return v.(*Blob), nil
}

// TTL reports the configured retention window.
func (s *TempStore) TTL() time.Duration {
	return s.ttl
}
