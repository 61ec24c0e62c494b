package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"clubing-chat/internal/domain"
	"clubing-chat/internal/observability"
)

type contextKey string

const IdentityKey contextKey = "identity"

// AccessTokenCookie is the cookie the platform's auth service sets.
const AccessTokenCookie = "accessToken"

// TokenVerifier resolves an access token to the caller's identity.
type TokenVerifier interface {
	Verify(token string) (*domain.Identity, error)
}

// Auth rejects requests without a valid access token. The token is read
// from the accessToken cookie, a Bearer Authorization header, or the
// token query parameter (browsers cannot set headers on websocket
// upgrades), in that order.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "Not authenticated")
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), *identity)))
		})
	}
}

// TokenFromRequest extracts the access token, or "" when none is present.
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

func GetIdentity(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(domain.Identity)
	return identity, ok
}

func GetMemberID(ctx context.Context) (domain.MemberID, bool) {
	identity, ok := GetIdentity(ctx)
	if !ok || identity.MemberID == "" {
		return "", false
	}
	return identity.MemberID, true
}

// WithIdentity stores identity in ctx and tags the context logger with it.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	ctx = context.WithValue(ctx, IdentityKey, identity)
	return observability.WithMemberID(ctx, string(identity.MemberID))
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
