package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/mohitagrawal/finsight/internal/api/response"
)

// Recovery converts handler panics into 500 responses. A panic while reading
// the request body can leave the connection unwritable, so the response write
// is best effort.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				slog.Error("handler panic",
					"panic", v,
					"method", r.Method,
					"path", r.URL.Path,
					"client_ip", ClientIP(r),
					"stack", string(debug.Stack()),
				)
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "An unexpected error occurred", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
