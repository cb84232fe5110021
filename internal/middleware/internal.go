package middleware

import (
	"crypto/subtle"
	"net/http"
)

// InternalTokenHeader carries the shared secret of service-to-service calls
const InternalTokenHeader = "X-Internal-Token"

// InternalToken admits requests presenting the shared token. An empty token
// rejects every request.
func InternalToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(InternalTokenHeader)
			if token == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				respondError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
