package middleware

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"channels/message"
)

// Recover turns a panicking handler into a 500 "error" reply.
func Recover(log *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					log.Error("handler panicked", zap.String("method", r.Method), zap.Any("panic", v), zap.Stack("stack"))
					writeReply(w, http.StatusInternalServerError, message.Reply{
						Status:  message.StatusError,
						Message: fmt.Sprint(v),
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
