package identity

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/utils"
)

// Static error variables for err113 compliance
var (
	errInvalidIdentityKey = errors.New("missing/invalid X-Identity-Key (compressed pubkey hex)")
	errInvalidNonce       = errors.New("missing/invalid X-Nonce")
	errInvalidSignature   = errors.New("missing/invalid X-Signature")
)

// hintRejected is shared by signature and replay failures so a caller cannot
// tell which check failed.
const hintRejected = "signature-invalid-or-nonce-reused"

// Request is the identity material of one signed request.
type Request struct {
	IdentityKey string
	Nonce       string
	Signature   string
	Body        []byte
}

// AuthError is returned by Gate.Check. It matches both ErrUnauthorized and
// the specific failure under errors.Is.
type AuthError struct {
	Hint string
	Err  error
}

func (e *AuthError) Error() string {
	return "unauthorized: " + e.Hint
}

// Unwrap exposes ErrUnauthorized and the underlying cause.
func (e *AuthError) Unwrap() []error {
	return []error{ErrUnauthorized, e.Err}
}

func unauthorized(hint string, err error) *AuthError {
	return &AuthError{Hint: hint, Err: err}
}

// Gate applies the identity policy to incoming requests.
type Gate struct {
	required bool
	store    NonceStore
	logger   *slog.Logger
}

// RequireIdentity creates a Gate. With required=false a request carrying no
// identity headers passes unauthenticated; any request that carries them is
// verified in full.
//
// Parameters:
//   - required: whether every request must be signed
//   - store: replay cache, shared by all requests of the process
//   - logger: destination for rejection logs; nil uses slog.Default()
func RequireIdentity(required bool, store NonceStore, logger *slog.Logger) *Gate {
	if store == nil {
		store = NewMemoryNonceStore(DefaultNonceTTL)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{required: required, store: store, logger: logger}
}

// Required reports whether the gate rejects unsigned requests.
func (g *Gate) Required() bool {
	return g.required
}

// Check verifies r and returns the lowercase identity key. It returns an
// empty key and no error when identity is optional and r carries no identity
// material. The nonce is only reserved after the signature verifies.
func (g *Gate) Check(ctx context.Context, r Request) (string, error) {
	identityKey := utils.NormalizeHex(r.IdentityKey)
	signature := utils.NormalizeHex(r.Signature)
	nonce := r.Nonce

	if !g.required && identityKey == "" && nonce == "" && signature == "" {
		return "", nil
	}

	if !utils.IsCompressedPubKeyHex(identityKey) {
		return "", unauthorized(errInvalidIdentityKey.Error(), errInvalidIdentityKey)
	}
	if len(nonce) < MinNonceLength {
		return "", unauthorized(errInvalidNonce.Error(), errInvalidNonce)
	}
	if !utils.IsHex(signature) || len(signature) < minSignatureHexLen {
		return "", unauthorized(errInvalidSignature.Error(), errInvalidSignature)
	}

	if !Verify(identityKey, nonce, signature, r.Body) {
		g.logger.Info("Rejected signed request", "identityKey", identityKey, "reason", "signature")
		return "", unauthorized(hintRejected, ErrSignatureInvalid)
	}

	if err := g.store.Claim(ctx, identityKey, nonce); err != nil {
		if errors.Is(err, ErrReplayDetected) {
			g.logger.Info("Rejected signed request", "identityKey", identityKey, "reason", "replay")
			return "", unauthorized(hintRejected, ErrReplayDetected)
		}
		g.logger.Error("Nonce store failure", "identityKey", identityKey, "error", err)
		return "", unauthorized("nonce-store-unavailable", err)
	}

	return identityKey, nil
}
