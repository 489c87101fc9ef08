package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/plantops/pkg/auth"
	"github.com/platinummonkey/plantops/pkg/contextkeys"
	"github.com/platinummonkey/plantops/pkg/httputil"
	"github.com/platinummonkey/plantops/pkg/observability"
)

// ClaimsResolver enriches a verified principal with its application identity
type ClaimsResolver interface {
	Resolve(ctx context.Context, principal *auth.Principal) (*auth.Principal, *auth.Identity, error)
}

// Authenticator validates bearer tokens and runs claims resolution
type Authenticator struct {
	verifier  auth.TokenVerifier
	resolver  ClaimsResolver
	anonymous bool
}

// NewAuthenticator creates the authentication middleware. In anonymous mode
// requests without a token pass through; verifier may then be nil.
func NewAuthenticator(verifier auth.TokenVerifier, resolver ClaimsResolver, anonymous bool) *Authenticator {
	return &Authenticator{
		verifier:  verifier,
		resolver:  resolver,
		anonymous: anonymous,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := observability.FromContext(r.Context())

		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" || m.verifier == nil {
			if m.anonymous {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		token, ok := bearerToken(authHeader)
		if !ok {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		principal, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			logger.WithError(err).Debug("Token rejected")
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		principal, identity, err := m.resolver.Resolve(r.Context(), principal)
		if err != nil {
			if errors.Is(err, auth.ErrUserNotFound) {
				logger.WithError(err).Warn("Authenticated caller is not an authorized user")
				httputil.WriteUnauthorized(w, "user not found")
				return
			}
			httputil.WriteInternalError(w, r, err)
			return
		}

		ctx := contextkeys.WithPrincipal(r.Context(), principal)
		if identity != nil {
			ctx = contextkeys.WithIdentity(ctx, identity)
		}
		r = r.WithContext(ctx)
		if identity != nil {
			r = httputil.SetUserID(r, strconv.FormatInt(identity.UserID, 10))
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireIdentity rejects requests that carry no resolved identity
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.IdentityFromContext(r.Context()) == nil {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
