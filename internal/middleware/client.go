package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// ClientIDHeader identifies the console client whose workspace a request uses.
const ClientIDHeader = "X-Client-ID"

// RequireClientID rejects requests without a UUID console client ID.
func RequireClientID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(ClientIDHeader)
		if raw == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing " + ClientIDHeader + " header"})
			return
		}

		id, err := uuid.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + ClientIDHeader + " header"})
			return
		}

		ctx := context.WithValue(r.Context(), clientIDKey, id.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ClientIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(clientIDKey).(string)
	return id
}
