package middleware

import (
	"crypto/subtle"
	"net/http"
)

const DemoKeyHeader = "x-demo-key"

// DemoKeyMiddleware rejects requests whose x-demo-key header does not match
// secret. An empty secret rejects everything.
func DemoKeyMiddleware(secret string) func(http.Handler) http.Handler {
	want := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(DemoKeyHeader))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				WriteError(w, http.StatusUnauthorized, "unauthorized - missing or invalid demo key", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
