package middleware

import (
	"net/http"

	"clubing-chat/internal/observability"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RequestContext copies chi's request id into the logging context. It must
// run after chimiddleware.RequestID.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimiddleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(observability.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
