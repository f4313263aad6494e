package identity

import (
	"context"
	"sync"
	"time"
)

// DefaultNonceTTL is how long an accepted nonce stays reserved.
const DefaultNonceTTL = 120 * time.Second

// NonceStore records accepted (identity key, nonce) pairs. Claim must check
// and insert atomically: of two concurrent claims for the same live pair,
// exactly one succeeds.
type NonceStore interface {
	// Claim reserves the pair until now+TTL. It returns ErrReplayDetected if
	// the pair is already reserved and has not expired.
	Claim(ctx context.Context, identityKey, nonce string) error
}

type nonceKey struct {
	identityKey string
	nonce       string
}

// MemoryNonceStore is a process-local NonceStore. Expired entries are
// replaced on access; Sweep bounds memory for long-running processes.
type MemoryNonceStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[nonceKey]time.Time
}

// NewMemoryNonceStore creates an in-memory store. A non-positive ttl selects
// DefaultNonceTTL.
func NewMemoryNonceStore(ttl time.Duration) *MemoryNonceStore {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	return &MemoryNonceStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[nonceKey]time.Time),
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *MemoryNonceStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Claim implements NonceStore.
func (s *MemoryNonceStore) Claim(_ context.Context, identityKey, nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	k := nonceKey{identityKey: identityKey, nonce: nonce}
	if exp, ok := s.entries[k]; ok && !now.After(exp) {
		return ErrReplayDetected
	}
	s.entries[k] = now.Add(s.ttl)
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (s *MemoryNonceStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, exp := range s.entries {
		if now.After(exp) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of recorded pairs, expired or not.
func (s *MemoryNonceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RunSweeper calls Sweep every interval until ctx is done.
func RunSweeper(ctx context.Context, s interface{ Sweep() int }, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

var _ NonceStore = (*MemoryNonceStore)(nil)
