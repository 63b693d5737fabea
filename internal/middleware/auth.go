package middleware

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AdminToken returns middleware that requires "Authorization: Bearer <token>"
// matching the bcrypt hash. An empty hash disables the check.
func AdminToken(hash string) func(http.Handler) http.Handler {
	return AdminTokenFunc(func() string { return hash })
}

// AdminTokenFunc is AdminToken with the hash read on every request, so a
// rotated hash applies without a restart. A nil func disables the check.
func AdminTokenFunc(hash func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if hash == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hash := hash()
			if hash == "" {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
				writeAuthError(w, http.StatusForbidden, "invalid admin token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `","kind":"PermissionDenied"}`))
}
