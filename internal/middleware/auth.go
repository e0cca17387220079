// Package middleware contains HTTP middleware for the EletroGest engine.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/eletrogest/eletrogest/internal/auth"
	"github.com/eletrogest/eletrogest/internal/handler"
)

// =============================================================================
// Auth Middleware Configuration
// =============================================================================

// AuthMiddleware provides authentication middleware functionality.
//
// The engine owns no user accounts. The platform front door authenticates the
// user and forwards the identity as a signed bearer token; admin tooling
// authenticates with an API key checked against bcrypt hashes from config.
type AuthMiddleware struct {
	identitySecret string
	adminKeyHashes []string
	logger         *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
func NewAuthMiddleware(identitySecret string, adminKeyHashes []string, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		identitySecret: identitySecret,
		adminKeyHashes: adminKeyHashes,
		logger:         logger,
	}
}

// =============================================================================
// RequireUser Middleware
// =============================================================================

// RequireUser verifies the identity token and puts the user id on the
// request context. Requests without a valid token get 401.
//
// The token comes in the Authorization header:
//
//	Authorization: Bearer <user-id>.<signature>
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		userID, err := auth.VerifyIdentity(m.identitySecret, token)
		if err != nil {
			m.logger.Info("identity token rejected", "path", r.URL.Path, "error", err)
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
	})
}

// =============================================================================
// RequireAdmin Middleware
// =============================================================================

// RequireAdmin checks the X-Admin-Key header against the configured bcrypt
// hashes. When no hashes are configured the whole admin surface is
// effectively disabled: every request gets 401.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Admin-Key")
		if key == "" || !m.adminKeyValid(key) {
			m.logger.Warn("admin request rejected", "path", r.URL.Path, "ip", getClientIP(r))
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), "admin-key")))
	})
}

func (m *AuthMiddleware) adminKeyValid(key string) bool {
	for _, hash := range m.adminKeyHashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil {
			return true
		}
	}
	return false
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// =============================================================================
// Metrics Basic Auth
// =============================================================================

// MetricsAuth protects the metrics endpoint with HTTP basic auth.
// When no credentials are configured the endpoint is open; don't do that in
// production.
func MetricsAuth(username, password string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if username == "" && password == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1
		if !ok || !userMatch || !passMatch {
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
