// Package headers keeps a contiguous chain of block headers loaded from a
// JSON file and answers merkle root and chain tip queries against it.
//
// The file is an array of {"height": n, "raw": "<80-byte header hex>"} in
// ascending height order. Each header must link to the previous one.
package headers

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/bsv-blockchain/go-sdk/chainhash"
)

// HeaderSize is the length of a serialized block header.
const HeaderSize = 80

// Static error variables for err113 compliance
var (
	ErrEmptyChain   = errors.New("header chain is empty")
	ErrInvalidChain = errors.New("invalid header chain")
	errHeaderSize   = errors.New("header must be 80 bytes")
)

// Entry is one header as stored in the headers file.
type Entry struct {
	Height uint32 `json:"height"`
	Raw    string `json:"raw"`
}

// Header is a parsed block header.
type Header struct {
	Height     uint32
	Version    uint32
	PrevHash   chainhash.Hash
	MerkleRoot chainhash.Hash
	Time       uint32
	Bits       uint32
	Nonce      uint32
	Hash       chainhash.Hash
}

// ParseHeader decodes an 80-byte header.
func ParseHeader(raw []byte, height uint32) (*Header, error) {
	if len(raw) != HeaderSize {
		return nil, fmt.Errorf("%w: got %d", errHeaderSize, len(raw))
	}
	h := &Header{
		Height:  height,
		Version: binary.LittleEndian.Uint32(raw[0:4]),
		Time:    binary.LittleEndian.Uint32(raw[68:72]),
		Bits:    binary.LittleEndian.Uint32(raw[72:76]),
		Nonce:   binary.LittleEndian.Uint32(raw[76:80]),
		Hash:    chainhash.DoubleHashH(raw),
	}
	copy(h.PrevHash[:], raw[4:36])
	copy(h.MerkleRoot[:], raw[36:68])
	return h, nil
}

// Store is an in-memory header chain. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	byHeight map[uint32]*Header
	byHash   map[chainhash.Hash]*Header
	tip      *Header
}

// NewStore validates entries and builds a store from them.
func NewStore(entries []Entry) (*Store, error) {
	s := &Store{}
	if err := s.Replace(entries); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadFile reads a headers file and builds a store from it.
func LoadFile(path string) (*Store, error) {
	entries, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return NewStore(entries)
}

// Reload replaces the chain with the contents of path. The store keeps its
// previous chain when the file does not validate.
func (s *Store) Reload(path string) error {
	entries, err := readFile(path)
	if err != nil {
		return err
	}
	return s.Replace(entries)
}

func readFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read headers: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode headers: %w", err)
	}
	return entries, nil
}

// Replace validates entries and swaps them in as the chain.
func (s *Store) Replace(entries []Entry) error {
	if len(entries) == 0 {
		return ErrEmptyChain
	}

	byHeight := make(map[uint32]*Header, len(entries))
	byHash := make(map[chainhash.Hash]*Header, len(entries))
	var prev *Header
	for i, e := range entries {
		raw, err := hex.DecodeString(e.Raw)
		if err != nil {
			return fmt.Errorf("%w: header %d: %w", ErrInvalidChain, i, err)
		}
		h, err := ParseHeader(raw, e.Height)
		if err != nil {
			return fmt.Errorf("%w: header %d: %w", ErrInvalidChain, i, err)
		}
		if prev != nil {
			if h.Height != prev.Height+1 {
				return fmt.Errorf("%w: height %d follows %d", ErrInvalidChain, h.Height, prev.Height)
			}
			if !h.PrevHash.IsEqual(&prev.Hash) {
				return fmt.Errorf("%w: chain break at height %d", ErrInvalidChain, h.Height)
			}
		}
		byHeight[h.Height] = h
		byHash[h.Hash] = h
		prev = h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byHeight = byHeight
	s.byHash = byHash
	s.tip = prev
	return nil
}

// IsValidRootForHeight reports whether root is the merkle root of the header
// at height.
func (s *Store) IsValidRootForHeight(_ context.Context, root *chainhash.Hash, height uint32) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.byHeight[height]
	if !ok {
		return false, nil
	}
	return h.MerkleRoot.IsEqual(root), nil
}

// CurrentHeight returns the height of the chain tip.
func (s *Store) CurrentHeight(_ context.Context) (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tip == nil {
		return 0, ErrEmptyChain
	}
	return s.tip.Height, nil
}

// HeaderByHash returns the header with the given block hash.
func (s *Store) HeaderByHash(hash *chainhash.Hash) (*Header, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.byHash[*hash]
	return h, ok
}

// Confirmations returns the depth of the block with the given hash, or 0
// when it is not in the chain.
func (s *Store) Confirmations(hash *chainhash.Hash) uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.byHash[*hash]
	if !ok || s.tip == nil {
		return 0
	}
	return s.tip.Height - h.Height + 1
}
