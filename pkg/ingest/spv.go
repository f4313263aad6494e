package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/transaction"

	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/utils"
)

// ErrSPVVerification is returned when a supplied merkle proof does not tie
// the transaction to a trusted block header.
var ErrSPVVerification = errors.New("spv verification failed")

var errNoHeaderSource = errors.New("no header source configured")

// Envelope is an optional proof that the submitted transaction was mined.
type Envelope struct {
	// MerklePath is a BRC-74 merkle path (BUMP) in hex.
	MerklePath string `json:"merklePath"`
}

// HeaderSource answers questions about the block headers the service trusts.
// It has the method set of a go-sdk chain tracker.
type HeaderSource interface {
	IsValidRootForHeight(ctx context.Context, root *chainhash.Hash, height uint32) (bool, error)
	CurrentHeight(ctx context.Context) (uint32, error)
}

// proof is a verified envelope.
type proof struct {
	blockHeight   uint32
	confirmations uint32
}

// verifyEnvelope checks that env proves txid is included in a block whose
// header the header source knows, at least minConfirmations deep.
func (s *Service) verifyEnvelope(ctx context.Context, env *Envelope, txid string) (*proof, error) {
	if s.headers == nil {
		return nil, spvError("envelope supplied but headers are unavailable", errNoHeaderSource)
	}

	mp, err := transaction.NewMerklePathFromHex(utils.NormalizeHex(env.MerklePath))
	if err != nil {
		return nil, spvError("merkle path does not decode", err)
	}
	hash, err := chainhash.NewHashFromHex(txid)
	if err != nil {
		return nil, spvError("", err)
	}
	if !pathHasLeaf(mp, hash) {
		return nil, spvError("merkle path does not contain the transaction", fmt.Errorf("txid %s", txid))
	}
	root, err := mp.ComputeRoot(hash)
	if err != nil {
		return nil, spvError("merkle root cannot be computed", err)
	}

	ok, err := s.headers.IsValidRootForHeight(ctx, root, mp.BlockHeight)
	if err != nil {
		return nil, spvError("header lookup failed", err)
	}
	if !ok {
		return nil, spvError("merkle root is not in the header chain",
			fmt.Errorf("root %s at height %d", root, mp.BlockHeight))
	}

	tip, err := s.headers.CurrentHeight(ctx)
	if err != nil {
		return nil, spvError("header lookup failed", err)
	}
	var confs uint32
	if tip >= mp.BlockHeight {
		confs = tip - mp.BlockHeight + 1
	}
	if confs < s.minConfirmations {
		return nil, spvError("not enough confirmations",
			fmt.Errorf("%d confirmations, %d required", confs, s.minConfirmations))
	}
	return &proof{blockHeight: mp.BlockHeight, confirmations: confs}, nil
}

func pathHasLeaf(mp *transaction.MerklePath, txid *chainhash.Hash) bool {
	if len(mp.Path) == 0 {
		return false
	}
	for _, leaf := range mp.Path[0] {
		if leaf.Hash != nil && leaf.Hash.IsEqual(txid) {
			return true
		}
	}
	return false
}

func spvError(hint string, err error) *Error {
	return newError(KindSPVVerificationFailed, hint, fmt.Errorf("%w: %w", ErrSPVVerification, err))
}
