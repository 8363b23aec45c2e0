// Package dedup decides whether an extracted candidate is a new change
// or one already seen. Identity is content-derived: the same document
// announced twice produces the same change ID regardless of when it
// was fetched.
//
// The in-memory LRU answers the common case without touching the
// database; the fingerprint table stays authoritative, so a cache miss
// (including after eviction or restart) falls through to it.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the LRU fast path.
const DefaultCacheSize = 4096

// FingerprintStore is the authoritative record of seen change IDs.
type FingerprintStore interface {
	RecordFingerprint(ctx context.Context, changeID, sourceID string) (inserted bool, err error)
	ExistsFingerprint(ctx context.Context, changeID string) (bool, error)
}

// Deduplicator tracks which changes have been seen.
type Deduplicator struct {
	store FingerprintStore
	cache *lru.Cache[string, struct{}]
}

// New creates a Deduplicator backed by the given store. cacheSize <= 0
// selects DefaultCacheSize.
func New(store FingerprintStore, cacheSize int) (*Deduplicator, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, struct{}](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Deduplicator{store: store, cache: cache}, nil
}

// ChangeID derives the deterministic identity of a change from its
// source, title, and content URL. The title is case- and
// whitespace-normalized so cosmetic edits do not mint a new identity.
func ChangeID(sourceID, title, contentURL string) string {
	h := sha256.New()
	h.Write([]byte(sourceID))
	h.Write([]byte{0})
	h.Write([]byte(normalizeTitle(title)))
	h.Write([]byte{0})
	h.Write([]byte(contentURL))
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// IsDuplicate reports whether a change ID has been seen, without
// recording it.
func (d *Deduplicator) IsDuplicate(ctx context.Context, changeID string) (bool, error) {
	if d.cache.Contains(changeID) {
		return true, nil
	}
	exists, err := d.store.ExistsFingerprint(ctx, changeID)
	if err != nil {
		return false, err
	}
	if exists {
		d.cache.Add(changeID, struct{}{})
	}
	return exists, nil
}

// Admit records a change ID and reports whether this caller was first.
// Concurrent admits of the same ID resolve in the store: the primary
// key insert succeeds for exactly one of them.
func (d *Deduplicator) Admit(ctx context.Context, changeID, sourceID string) (bool, error) {
	if d.cache.Contains(changeID) {
		return false, nil
	}
	inserted, err := d.store.RecordFingerprint(ctx, changeID, sourceID)
	if err != nil {
		return false, err
	}
	d.cache.Add(changeID, struct{}{})
	return inserted, nil
}

// CacheLen returns the number of change IDs in the fast path.
func (d *Deduplicator) CacheLen() int {
	return d.cache.Len()
}
