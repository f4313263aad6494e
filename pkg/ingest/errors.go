package ingest

import (
	"errors"
	"fmt"

	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/canonical"
	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/dlm1"
	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/opreturn"
)

// ErrOnchainHashMismatch is returned when the anchor decoded from a
// transaction names a different manifest hash than the submitted manifest.
var ErrOnchainHashMismatch = errors.New("on-chain manifest hash does not match submitted manifest")

// ErrInvalidInput is returned for submissions missing required fields or
// carrying malformed transaction data.
var ErrInvalidInput = errors.New("invalid submission")

// Kind is the machine-readable class of a submission failure.
type Kind string

// Failure kinds reported in Error.Kind.
const (
	KindIDMismatch             Kind = "id-mismatch"
	KindOnchainHashMismatch    Kind = "onchain-hash-mismatch"
	KindCanonicalizationFailed Kind = "canonicalization-failed"
	KindAnchorDecodeFailed     Kind = "anchor-decode-failed"
	KindInvalidInput           Kind = "invalid-input"
	KindPayloadTooLarge        Kind = "payload-too-large"
	KindStorageFailed          Kind = "storage-failed"
	KindSPVVerificationFailed  Kind = "spv-verification-failed"
)

// Error is a failed submission or ingestion. Kind is stable for callers to
// switch on; Hint is a short human-readable explanation.
type Error struct {
	Kind Kind
	Hint string
	Err  error
}

func (e *Error) Error() string {
	if e.Hint == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Hint, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, hint string, err error) *Error {
	return &Error{Kind: kind, Hint: hint, Err: err}
}

// classify maps errors from derivation and script building to a Kind.
func classify(err error) *Error {
	switch {
	case errors.Is(err, dlm1.ErrIDMismatch):
		return newError(KindIDMismatch, "versionId must equal the hash of the canonical manifest", err)
	case errors.Is(err, canonical.ErrCanonicalization):
		return newError(KindCanonicalizationFailed, "manifest contains values that cannot be canonicalized", err)
	case errors.Is(err, dlm1.ErrAnchorDecode):
		return newError(KindAnchorDecodeFailed, "", err)
	case errors.Is(err, opreturn.ErrPayloadTooLarge):
		return newError(KindPayloadTooLarge, "anchor exceeds the OP_RETURN size cap", err)
	default:
		return newError(KindInvalidInput, "", err)
	}
}
