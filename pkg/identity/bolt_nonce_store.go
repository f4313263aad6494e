package identity

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketNonces = []byte("nonces_by_identity")

var errNoPath = errors.New("nonce store path required")

// BoltNonceStore is a NonceStore persisted in a bbolt file, so reservations
// survive restarts. Each Claim runs in one write transaction, which bbolt
// serializes.
type BoltNonceStore struct {
	db     *bolt.DB
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// OpenBoltNonceStore opens or creates the store at path. A non-positive ttl
// selects DefaultNonceTTL; a nil logger uses slog.Default().
func OpenBoltNonceStore(path string, ttl time.Duration, logger *slog.Logger) (*BoltNonceStore, error) {
	if path == "" {
		return nil, errNoPath
	}
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketNonces); err != nil {
			return fmt.Errorf("create bucket %s: %w", string(bucketNonces), err)
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltNonceStore{db: db, ttl: ttl, now: time.Now, logger: logger}, nil
}

// SetClock replaces the time source. Intended for tests.
func (s *BoltNonceStore) SetClock(now func() time.Time) {
	s.now = now
}

// Close closes the underlying database.
func (s *BoltNonceStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func boltNonceKey(identityKey, nonce string) []byte {
	k := make([]byte, 0, len(identityKey)+1+len(nonce))
	k = append(k, identityKey...)
	k = append(k, 0)
	return append(k, nonce...)
}

// Claim implements NonceStore.
func (s *BoltNonceStore) Claim(ctx context.Context, identityKey, nonce string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := s.now()
	k := boltNonceKey(identityKey, nonce)

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNonces)
		if v := b.Get(k); len(v) == 8 {
			exp := time.Unix(0, int64(binary.BigEndian.Uint64(v))) //nolint:gosec // stored from UnixNano
			if !now.After(exp) {
				return ErrReplayDetected
			}
		}
		var v [8]byte
		binary.BigEndian.PutUint64(v[:], uint64(now.Add(s.ttl).UnixNano())) //nolint:gosec // positive wall-clock time
		return b.Put(k, v[:])
	})
}

// Sweep deletes expired reservations and returns how many were removed.
// Errors are logged; a failed sweep leaves entries to be replaced on access.
func (s *BoltNonceStore) Sweep() int {
	now := s.now()
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNonces)
		var expired [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			if len(v) == 8 && now.After(time.Unix(0, int64(binary.BigEndian.Uint64(v)))) { //nolint:gosec // stored from UnixNano
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(expired)
		return nil
	})
	if err != nil {
		s.logger.Warn("Nonce sweep failed", "error", err)
		return 0
	}
	return removed
}

var _ NonceStore = (*BoltNonceStore)(nil)
