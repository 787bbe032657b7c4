// Package ledger records ids of content the system itself has posted, so
// the webhook parsers can drop echo events and never process our own
// comments back into tasks.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jordanhubbard/relay/pkg/models"
)

// PostedContentLedger stores write-once, provider-scoped content ids with a
// bounded lifetime. Entries exist only to break webhook feedback loops; the
// TTL keeps the set small because any echo event arrives well within it.
type PostedContentLedger interface {
	// Record marks contentID as posted by us. Recording the same id again
	// refreshes its expiry; there is no delete.
	Record(ctx context.Context, provider models.Provider, contentID string) error

	// Contains reports whether contentID was recorded and has not expired.
	Contains(ctx context.Context, provider models.Provider, contentID string) (bool, error)

	// Close releases backend resources.
	Close() error
}

// entryKey builds the scoped key shared by both backends, e.g.
// "github:posted_comment:123456".
func entryKey(provider models.Provider, contentID string) string {
	return fmt.Sprintf("%s:posted_comment:%s", provider, contentID)
}

// MemoryLedger is the in-process backend. Expiry is checked lazily on read;
// a janitor sweep is unnecessary because the set stays tiny.
type MemoryLedger struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]time.Time // key -> expiry
}

// NewMemoryLedger returns an in-process ledger with the given entry TTL.
func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]time.Time),
	}
}

func (l *MemoryLedger) Record(ctx context.Context, provider models.Provider, contentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[entryKey(provider, contentID)] = l.now().Add(l.ttl)
	return nil
}

func (l *MemoryLedger) Contains(ctx context.Context, provider models.Provider, contentID string) (bool, error) {
	key := entryKey(provider, contentID)

	l.mu.RLock()
	expiry, ok := l.entries[key]
	l.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if l.now().After(expiry) {
		l.mu.Lock()
		delete(l.entries, key)
		l.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (l *MemoryLedger) Close() error { return nil }
