package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"

	"github.com/markdave123-py/Cadence/internal/models"
)

type authKey struct{}

// TenantResolver looks up the tenant of a user whose token carries none.
type TenantResolver interface {
	ResolveTenant(ctx context.Context, userID string) (string, error)
}

// WithAuth attaches the caller identity to ctx.
func WithAuth(ctx context.Context, auth models.AuthContext) context.Context {
	return context.WithValue(ctx, authKey{}, auth)
}

// AuthFromContext returns the identity JWTMiddleware attached.
func AuthFromContext(ctx context.Context) (models.AuthContext, bool) {
	auth, ok := ctx.Value(authKey{}).(models.AuthContext)
	return auth, ok && auth.UserID != "" && auth.TenantID != ""
}

// JWTMiddleware validates the HS256 bearer token and attaches the caller's
// user and tenant to the request context.
func JWTMiddleware(secret string, tenants TenantResolver) func(http.Handler) http.Handler {
	keyFunc := func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "missing or invalid token")
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, keyFunc, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				unauthorized(w, "invalid token")
				return
			}

			userID, _ := claims["user_id"].(string)
			if userID == "" {
				unauthorized(w, "invalid token claims")
				return
			}

			tenantID, _ := claims["tenant_id"].(string)
			if tenantID == "" {
				tenantID, err = tenants.ResolveTenant(r.Context(), userID)
				if err != nil || tenantID == "" {
					log.WithError(err).WithField("user_id", userID).Warn("could not resolve tenant")
					unauthorized(w, "user has no tenant")
					return
				}
			}

			ctx := WithAuth(r.Context(), models.AuthContext{UserID: userID, TenantID: tenantID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WorkerToken guards the function endpoints with a shared bearer token. An
// empty token disables the check.
func WorkerToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				got, ok := bearerToken(r)
				if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
					unauthorized(w, "invalid worker token")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return tok, tok != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": msg})
}
