package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInternalToken(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		name      string
		token     string
		presented string
		status    int
	}{
		{"matching token", "svc-token", "svc-token", http.StatusNoContent},
		{"wrong token", "svc-token", "other", http.StatusUnauthorized},
		{"missing header", "svc-token", "", http.StatusUnauthorized},
		{"unconfigured", "", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/internal/activity-feed", nil)
			if tc.presented != "" {
				req.Header.Set(InternalTokenHeader, tc.presented)
			}
			rec := httptest.NewRecorder()
			InternalToken(tc.token)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}
