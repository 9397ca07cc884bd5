// Package messaging carries action-keyed messages between page components and
// the coordinator.
//
// A message is a JSON object {"action": name, ...payload}. The Dispatcher
// routes it to the handler registered for the action and always produces a
// reply: handler errors and panics become {"success": false, "error": msg},
// unregistered actions become {"error": "Unknown action"}.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrBadPayload is returned by Request.Bind for payloads that do not decode.
var ErrBadPayload = errors.New("invalid message payload")

// Request is one decoded message.
type Request struct {
	// ID correlates the message in logs. Generated when the sender gave none.
	ID     string
	Action string
	// Body is the full message object, action included.
	Body json.RawMessage
}

// Bind decodes the message payload into dst.
func (r Request) Bind(dst any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

// Handler serves one action. The returned value is encoded as the reply.
type Handler func(ctx context.Context, req Request) (any, error)

// Observer is notified of every dispatched message.
type Observer interface {
	ObserveMessage(action string, ok bool, d time.Duration)
}

// Reply is the outcome of a dispatch.
type Reply struct {
	ID     string
	Action string
	// Body is the value to encode for the sender.
	Body any
	// OK is false when the handler failed, panicked or was not found.
	OK bool
}

// envelope is the routing header of every message.
type envelope struct {
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
}

// Dispatcher routes messages to registered handlers.
//
// Thread-safe for concurrent use.
type Dispatcher struct {
	logger   *slog.Logger
	observer Observer

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewDispatcher creates an empty dispatcher. logger and observer may be nil.
func NewDispatcher(logger *slog.Logger, observer Observer) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:   logger,
		observer: observer,
		handlers: make(map[string]Handler),
	}
}

// Handle registers h for action, replacing any previous handler.
func (d *Dispatcher) Handle(action string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[action] = h
}

// Actions returns the registered action names, sorted.
func (d *Dispatcher) Actions() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for a := range d.handlers {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Dispatch decodes raw and runs the matching handler.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) Reply {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Reply{ID: uuid.NewString(), Body: failure(fmt.Errorf("%w: %v", ErrBadPayload, err))}
	}
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	return d.dispatch(ctx, Request{ID: env.ID, Action: env.Action, Body: raw})
}

// Send encodes payload under action and dispatches it.
func (d *Dispatcher) Send(ctx context.Context, action string, payload any) Reply {
	raw, err := Encode(action, payload)
	if err != nil {
		return Reply{ID: uuid.NewString(), Action: action, Body: failure(err)}
	}
	return d.Dispatch(ctx, raw)
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) Reply {
	d.mu.RLock()
	h, ok := d.handlers[req.Action]
	d.mu.RUnlock()

	if !ok {
		d.logger.Debug("Unknown action", "action", req.Action, "id", req.ID)
		return Reply{ID: req.ID, Action: req.Action, Body: ErrorResponse{Error: UnknownActionError}}
	}

	start := time.Now()
	body, err := d.call(ctx, h, req)
	ok = err == nil
	if d.observer != nil {
		d.observer.ObserveMessage(req.Action, ok, time.Since(start))
	}
	if err != nil {
		d.logger.Warn("Message handler failed", "action", req.Action, "id", req.ID, "error", err)
		return Reply{ID: req.ID, Action: req.Action, Body: failure(err)}
	}
	return Reply{ID: req.ID, Action: req.Action, Body: body, OK: true}
}

func (d *Dispatcher) call(ctx context.Context, h Handler, req Request) (body any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Message handler panicked", "action", req.Action, "id", req.ID, "panic", r)
			body, err = nil, fmt.Errorf("internal error handling %q", req.Action)
		}
	}()
	return h(ctx, req)
}

func failure(err error) ErrorResponse {
	f := false
	return ErrorResponse{Success: &f, Error: err.Error()}
}

// Encode builds the wire form of a message: payload's fields flattened next
// to "action". payload must encode to a JSON object or null.
func Encode(action string, payload any) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %q payload: %w", action, err)
		}
		if string(raw) != "null" {
			if err := json.Unmarshal(raw, &fields); err != nil {
				return nil, fmt.Errorf("%q payload is not an object: %w", action, err)
			}
		}
	}
	name, _ := json.Marshal(action)
	fields["action"] = name
	return json.Marshal(fields)
}
