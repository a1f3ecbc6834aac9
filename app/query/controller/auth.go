package controller

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionCookie = "hb_session"
	adminRole     = "admin"
)

// bearer returns the bearer token from the Authorization header.
func bearer(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// ValidateToken checks if the Authorization header carries the AdminToken.
func (c *Controller) ValidateToken(r *http.Request) bool {
	token := bearer(r)
	if c.AdminToken == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(c.AdminToken)) == 1
}

// sessionClaims returns the claims of a valid HS256 session token, taken from the session
// cookie or, failing that, the bearer header.
func (c *Controller) sessionClaims(r *http.Request) (jwt.MapClaims, bool) {
	if len(c.JWTSecret) == 0 {
		return nil, false
	}

	raw := bearer(r)
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		raw = cookie.Value
	}
	if raw == "" {
		return nil, false
	}

	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) { return c.JWTSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return nil, false
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	return claims, ok
}

// RequireAdmin middleware
func (c *Controller) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.ValidateToken(r) {
			next.ServeHTTP(w, r)
			return
		}

		claims, ok := c.sessionClaims(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if role, _ := claims["role"].(string); role != adminRole {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
