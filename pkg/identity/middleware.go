package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// Request headers carrying identity material.
const (
	HeaderIdentityKey = "X-Identity-Key"
	HeaderNonce       = "X-Nonce"
	HeaderSignature   = "X-Signature"
)

// DefaultMaxBodyBytes bounds the body read for signature verification.
const DefaultMaxBodyBytes = 1 << 20

// emptyBody is signed in place of an absent body.
var emptyBody = []byte("{}")

type contextKey struct{}

// ContextWithIdentityKey returns ctx carrying a verified identity key.
func ContextWithIdentityKey(ctx context.Context, identityKey string) context.Context {
	return context.WithValue(ctx, contextKey{}, identityKey)
}

// IdentityKeyFromContext returns the identity key verified by the middleware.
func IdentityKeyFromContext(ctx context.Context) (string, bool) {
	k, ok := ctx.Value(contextKey{}).(string)
	return k, ok && k != ""
}

type errorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

// Middleware wraps next with the gate. The exact body bytes are verified and
// then handed on to next unchanged. Rejections are answered with 401 and
// {"error":"unauthorized","hint":...}.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			var err error
			body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, DefaultMaxBodyBytes))
			if err != nil {
				writeUnauthorized(w, "unreadable request body")
				return
			}
			_ = r.Body.Close()
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		signed := body
		if len(signed) == 0 {
			signed = emptyBody
		}

		identityKey, err := g.Check(r.Context(), Request{
			IdentityKey: r.Header.Get(HeaderIdentityKey),
			Nonce:       r.Header.Get(HeaderNonce),
			Signature:   r.Header.Get(HeaderSignature),
			Body:        signed,
		})
		if err != nil {
			var authErr *AuthError
			hint := ""
			if errors.As(err, &authErr) {
				hint = authErr.Hint
			}
			writeUnauthorized(w, hint)
			return
		}

		if identityKey != "" {
			r = r.WithContext(ContextWithIdentityKey(r.Context(), identityKey))
		}
		next.ServeHTTP(w, r)
	})
}

func writeUnauthorized(w http.ResponseWriter, hint string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: "unauthorized", Hint: hint})
}
