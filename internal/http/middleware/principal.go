package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/finsight/riskdash-back/internal/domain"
)

const principalContextKey contextKey = "principal"

type principalClaims struct {
	Role           string `json:"role"`
	TenantID       string `json:"tenant_id"`
	OrganizationID string `json:"organization_id"`
	jwt.RegisteredClaims
}

// Principal verifies the HS256 bearer token and stores the caller's
// identity in the request context. An empty secret disables
// verification entirely; that mode exists for local development behind a
// trusted proxy and must never ship.
func Principal(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(authorization, prefix) {
				writeUnauthorized(w, r, "authentication required")
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(authorization, prefix))
			if token == "" {
				writeUnauthorized(w, r, "authentication required")
				return
			}

			principal, err := parsePrincipal(token, secret)
			if err != nil {
				writeUnauthorized(w, r, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parsePrincipal(token, secret string) (domain.Principal, error) {
	claims := &principalClaims{}

	var err error
	if secret == "" {
		parser := jwt.NewParser()
		_, _, err = parser.ParseUnverified(token, claims)
	} else {
		_, err = jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
			}
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
	}
	if err != nil {
		return domain.Principal{}, fmt.Errorf("parse token: %w", err)
	}

	if claims.Subject == "" {
		return domain.Principal{}, fmt.Errorf("token has no subject")
	}

	return domain.Principal{
		UserID:         claims.Subject,
		Role:           domain.Role(claims.Role),
		TenantID:       claims.TenantID,
		OrganizationID: claims.OrganizationID,
	}, nil
}

// GetPrincipal returns the authenticated caller stored by Principal. The
// second return is false on routes mounted outside the auth chain.
func GetPrincipal(ctx context.Context) (domain.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(domain.Principal)
	return principal, ok
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"unauthorized","message":"` + message + `"},"request_id":"` + GetRequestID(r.Context()) + `"}`))
}
