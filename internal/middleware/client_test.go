package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/staykit/pms/internal/middleware"
)

func TestRequireClientID(t *testing.T) {
	valid := uuid.NewString()
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusBadRequest},
		{"not a uuid", "browser-1", http.StatusBadRequest},
		{"valid", valid, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := middleware.RequireClientID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := middleware.ClientIDFromContext(r.Context()); got != valid {
					t.Errorf("client ID: got %q, want %q", got, valid)
				}
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest("GET", "/console/cart", nil)
			if tt.header != "" {
				req.Header.Set(middleware.ClientIDHeader, tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Errorf("status: got %d, want %d", rr.Code, tt.want)
			}
		})
	}
}
