// Package router dispatches drained requests by their "action" field.
//
// A Router is a controller.Handler. Actions are registered one by one with
// Handle or all at once from a receiver's methods with Register:
//
//	type Importer struct{ ... }
//	func (i *Importer) ImportFile(req message.Request) error { ... }
//
//	r := router.New()
//	r.Register(&Importer{})   // handles {"action": "import_file", ...}
package router

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"channels/logger"
	"channels/message"
)

// HandlerFunc handles one action.
type HandlerFunc func(req message.Request) error

type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	log      *zap.Logger
}

type Option func(*Router)

func WithLogger(l *zap.Logger) Option {
	return func(r *Router) { r.log = l }
}

func New(opts ...Option) *Router {
	r := &Router{
		handlers: make(map[string]HandlerFunc),
		log:      logger.Logger("router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle registers fn for action, replacing any previous handler.
func (r *Router) Handle(action string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[action] = fn
}

// Actions lists the registered action names.
func (r *Router) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for a := range r.handlers {
		out = append(out, a)
	}
	return out
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	requestType = reflect.TypeOf(message.Request{})
)

// Register scans rcvr's exported methods and registers every method of the
// form
//
//	func (T) Name(message.Request) error
//
// under the snake_case form of its name. It returns the number registered.
func (r *Router) Register(rcvr any) (int, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil {
		return 0, fmt.Errorf("router: nil receiver")
	}
	val := reflect.ValueOf(rcvr)

	n := 0
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		mt := method.Type
		// In(0) is the receiver.
		if mt.NumIn() != 2 || mt.In(1) != requestType || mt.NumOut() != 1 || mt.Out(0) != errorType {
			continue
		}
		fn := val.Method(i)
		r.Handle(SnakeCase(method.Name), func(req message.Request) error {
			results := fn.Call([]reflect.Value{reflect.ValueOf(req)})
			if err, _ := results[0].Interface().(error); err != nil {
				return err
			}
			return nil
		})
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("router: %s has no methods of the form func(message.Request) error", typ)
	}
	return n, nil
}

// Serve dispatches req to the handler for its action. Requests without a
// known action and handler errors are logged and dropped.
func (r *Router) Serve(req message.Request) {
	action, ok := req.Action()
	if !ok {
		r.log.Warn("request without action", zap.String("sender", req.Name), zap.Any("data", req.Data))
		return
	}

	r.mu.RLock()
	fn, ok := r.handlers[action]
	r.mu.RUnlock()
	if !ok {
		r.log.Warn("unknown action", zap.String("sender", req.Name), zap.String("action", action))
		return
	}

	if err := fn(req); err != nil {
		r.log.Error("action failed", zap.String("sender", req.Name), zap.String("action", action), zap.Error(err))
	}
}

// SnakeCase converts a Go method name to an action name:
// ImportFile → import_file, OpenURL → open_url.
func SnakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, c := range runes {
		if unicode.IsUpper(c) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(c))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
