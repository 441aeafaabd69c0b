package middleware

import (
	"net/http"

	"golang.org/x/time/rate"

	"channels/message"
)

// RateLimit admits r requests per second with the given burst (token bucket)
// and answers the rest with 429 and a "rejected" reply.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !limiter.Allow() {
				writeReply(w, http.StatusTooManyRequests, message.Reply{
					Status:  message.StatusRejected,
					Message: "rate limit exceeded",
				})
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
