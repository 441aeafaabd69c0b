// Package message defines the payloads exchanged between a client and a channel service.
//
// Request is the unit of work a client submits with POST; Reply is what the
// service answers to both the status probe (GET) and a submission (POST).
package message

// Reply statuses.
const (
	StatusOK       = "ok"       // probe: service has room; submit: request queued
	StatusFull     = "full"     // probe only: queue at capacity
	StatusRejected = "rejected" // submit: dropped without queueing
	StatusError    = "error"    // submit: malformed body
)

// Request carries one fire-and-forget action.
//
//   - Name identifies the sender (e.g. "FreeCAD"), not the receiving channel.
//   - ReplyTo is transmitted but never consulted by a receiver; it is reserved
//     for response correlation.
//   - Data is the action payload, conventionally {"action": ..., ...}.
type Request struct {
	Name    string         `json:"name"`
	ReplyTo *int           `json:"reply_to"`
	Data    map[string]any `json:"data"`
}

// NewRequest builds a Request with a non-nil Data map.
func NewRequest(name string, data map[string]any) Request {
	if data == nil {
		data = map[string]any{}
	}
	return Request{Name: name, Data: data}
}

// Action returns Data["action"] when it is a string.
func (r Request) Action() (string, bool) {
	action, ok := r.Data["action"].(string)
	return action, ok
}

// Reply is the JSON body of every service response.
type Reply struct {
	Status  string `json:"status"`
	Service string `json:"service,omitempty"` // Address token, probe replies only
	Message string `json:"message,omitempty"` // Human readable reason for rejected/error
}

// Accepted reports whether the reply status is "ok".
func (r Reply) Accepted() bool {
	return r.Status == StatusOK
}
