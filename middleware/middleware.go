// Package middleware wraps the channel service's HTTP handler.
package middleware

import (
	"encoding/json"
	"net/http"

	"channels/message"
)

type Middleware func(next http.Handler) http.Handler

// Chain composes middlewares into one; Chain(A, B)(h) runs A, then B, then h.
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// writeReply answers with a JSON Reply so clients always get the same body shape.
func writeReply(w http.ResponseWriter, code int, reply message.Reply) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(reply)
}
