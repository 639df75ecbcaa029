// Package middleware provides HTTP middleware for FlowForge.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/Strob0t/FlowForge/internal/logger"
)

// HeaderRequestID carries the request correlation id on requests and
// responses.
const HeaderRequestID = "X-Request-ID"

// RequestID propagates the caller's X-Request-ID, or mints one, into the
// request context and the response header so log lines and WebSocket events
// for one request can be correlated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}
