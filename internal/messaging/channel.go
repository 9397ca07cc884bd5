package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MessagesPath is the HTTP route that accepts messages.
const MessagesPath = "/api/v1/messages"

// Channel sends one message and decodes its reply into out (which may be
// nil). Delivery is at most once: a failed send is never retried.
type Channel interface {
	Send(ctx context.Context, action string, payload any, out any) error
}

// ChannelError reports that a message could not be delivered or its reply
// could not be read.
type ChannelError struct {
	Action string
	Err    error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("message channel: %s: %v", e.Action, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// ResponseError carries the error text of a failed reply.
type ResponseError struct {
	Action  string
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

// decodeReply turns an encoded reply into out or a *ResponseError.
func decodeReply(action string, data []byte, out any) error {
	var head struct {
		Error string `json:"error"`
	}
	// Non-object replies carry no error field.
	_ = json.Unmarshal(data, &head)
	if head.Error != "" {
		return &ResponseError{Action: action, Message: head.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ChannelError{Action: action, Err: fmt.Errorf("failed to decode reply: %w", err)}
	}
	return nil
}

// =============================================================================
// In-process channel
// =============================================================================

// Local delivers messages to a Dispatcher in the same process.
type Local struct {
	Dispatcher *Dispatcher
}

// Send implements Channel.
func (l Local) Send(ctx context.Context, action string, payload any, out any) error {
	if l.Dispatcher == nil {
		return &ChannelError{Action: action, Err: fmt.Errorf("no dispatcher")}
	}
	raw, err := Encode(action, payload)
	if err != nil {
		return &ChannelError{Action: action, Err: err}
	}
	reply := l.Dispatcher.Dispatch(ctx, raw)
	data, err := json.Marshal(reply.Body)
	if err != nil {
		return &ChannelError{Action: action, Err: fmt.Errorf("failed to encode reply: %w", err)}
	}
	return decodeReply(action, data, out)
}

// =============================================================================
// HTTP channel
// =============================================================================

// Client sends messages to a running agent over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the X-API-Key header on every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a client for the agent at baseURL (e.g. http://127.0.0.1:8080).
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send implements Channel.
func (c *Client) Send(ctx context.Context, action string, payload any, out any) error {
	raw, err := Encode(action, payload)
	if err != nil {
		return &ChannelError{Action: action, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+MessagesPath, bytes.NewReader(raw))
	if err != nil {
		return &ChannelError{Action: action, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &ChannelError{Action: action, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return &ChannelError{Action: action, Err: fmt.Errorf("failed to read reply: %w", err)}
	}

	if resp.StatusCode >= 300 {
		if rerr := decodeReply(action, data, nil); rerr != nil {
			return rerr
		}
		return &ChannelError{Action: action, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	return decodeReply(action, data, out)
}
