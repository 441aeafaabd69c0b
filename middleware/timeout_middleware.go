package middleware

import (
	"net/http"
	"time"
)

// Timeout answers 503 when the wrapped handler takes longer than timeout.
// The handler's request context is cancelled at the same moment.
func Timeout(timeout time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, `{"status":"error","message":"request timed out"}`)
	}
}
