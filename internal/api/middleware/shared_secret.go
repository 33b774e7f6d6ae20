package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"switchboard/internal/pkg/errors"
)

// SharedSecret requires "Authorization: Bearer <secret>". An empty secret
// disables the check.
func SharedSecret(secret string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		if secret == "" {
			return next
		}
		return func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				errors.Write(w, errors.New(errors.KindUnauthorized, "invalid or missing shared secret"))
				return
			}
			next(w, r)
		}
	}
}

// MaxBytes caps request bodies at n bytes.
func MaxBytes(n int64) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if n > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next(w, r)
		}
	}
}
