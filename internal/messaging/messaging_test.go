package messaging_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/hydrablock/internal/messaging"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls map[string][]bool
}

func (o *recordingObserver) ObserveMessage(action string, ok bool, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = make(map[string][]bool)
	}
	o.calls[action] = append(o.calls[action], ok)
}

func newDispatcher(obs messaging.Observer) *messaging.Dispatcher {
	d := messaging.NewDispatcher(nil, obs)
	d.Handle("echo", func(_ context.Context, req messaging.Request) (any, error) {
		var in messaging.DomainRequest
		if err := req.Bind(&in); err != nil {
			return nil, err
		}
		return messaging.WhitelistResponse{Whitelist: []string{in.Domain}}, nil
	})
	d.Handle("fail", func(context.Context, messaging.Request) (any, error) {
		return nil, errors.New("boom")
	})
	d.Handle("panic", func(context.Context, messaging.Request) (any, error) {
		panic("handler bug")
	})
	return d
}

func encodeBody(t *testing.T, v any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

// =============================================================================
// Encode
// =============================================================================

func TestEncode_FlattensPayload(t *testing.T) {
	raw, err := messaging.Encode("addToWhitelist", messaging.DomainRequest{Domain: "example.com"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"addToWhitelist","domain":"example.com"}`, string(raw))
}

func TestEncode_NilPayload(t *testing.T) {
	raw, err := messaging.Encode("getStats", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"getStats"}`, string(raw))
}

func TestEncode_RejectsNonObject(t *testing.T) {
	_, err := messaging.Encode("x", []string{"a"})
	assert.Error(t, err)
}

// =============================================================================
// Dispatcher
// =============================================================================

func TestDispatcher_RoutesAndBinds(t *testing.T) {
	obs := &recordingObserver{}
	d := newDispatcher(obs)

	reply := d.Send(context.Background(), "echo", messaging.DomainRequest{Domain: "a.com"})
	assert.True(t, reply.OK)
	assert.NotEmpty(t, reply.ID)
	assert.Equal(t, messaging.WhitelistResponse{Whitelist: []string{"a.com"}}, reply.Body)
	assert.Equal(t, []bool{true}, obs.calls["echo"])
}

func TestDispatcher_UnknownAction(t *testing.T) {
	d := newDispatcher(nil)

	reply := d.Dispatch(context.Background(), []byte(`{"action":"nope"}`))
	assert.False(t, reply.OK)
	assert.Equal(t, map[string]any{"error": "Unknown action"}, encodeBody(t, reply.Body))
}

func TestDispatcher_MissingAction(t *testing.T) {
	d := newDispatcher(nil)
	reply := d.Dispatch(context.Background(), []byte(`{"domain":"x"}`))
	assert.Equal(t, map[string]any{"error": "Unknown action"}, encodeBody(t, reply.Body))
}

func TestDispatcher_HandlerErrorBecomesFailure(t *testing.T) {
	obs := &recordingObserver{}
	d := newDispatcher(obs)

	reply := d.Send(context.Background(), "fail", nil)
	assert.False(t, reply.OK)
	assert.Equal(t, map[string]any{"success": false, "error": "boom"}, encodeBody(t, reply.Body))
	assert.Equal(t, []bool{false}, obs.calls["fail"])
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	d := newDispatcher(nil)

	var reply messaging.Reply
	require.NotPanics(t, func() {
		reply = d.Send(context.Background(), "panic", nil)
	})
	assert.False(t, reply.OK)
	body := encodeBody(t, reply.Body)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "internal error")
}

func TestDispatcher_MalformedJSON(t *testing.T) {
	d := newDispatcher(nil)
	reply := d.Dispatch(context.Background(), []byte(`{not json`))
	assert.False(t, reply.OK)
	assert.Equal(t, false, encodeBody(t, reply.Body)["success"])
}

func TestDispatcher_BadPayloadType(t *testing.T) {
	d := newDispatcher(nil)
	reply := d.Dispatch(context.Background(), []byte(`{"action":"echo","domain":42}`))
	assert.False(t, reply.OK)
	assert.Contains(t, encodeBody(t, reply.Body)["error"], "invalid message payload")
}

func TestDispatcher_KeepsSenderID(t *testing.T) {
	d := newDispatcher(nil)
	reply := d.Dispatch(context.Background(), []byte(`{"action":"echo","id":"abc","domain":"x"}`))
	assert.Equal(t, "abc", reply.ID)
}

func TestDispatcher_Actions(t *testing.T) {
	d := newDispatcher(nil)
	assert.Equal(t, []string{"echo", "fail", "panic"}, d.Actions())
}

// =============================================================================
// Channels
// =============================================================================

func TestLocal_Send(t *testing.T) {
	ch := messaging.Local{Dispatcher: newDispatcher(nil)}

	var out messaging.WhitelistResponse
	require.NoError(t, ch.Send(context.Background(), "echo", messaging.DomainRequest{Domain: "b.com"}, &out))
	assert.Equal(t, []string{"b.com"}, out.Whitelist)
}

func TestLocal_SendErrors(t *testing.T) {
	ch := messaging.Local{Dispatcher: newDispatcher(nil)}

	err := ch.Send(context.Background(), "fail", nil, nil)
	var rerr *messaging.ResponseError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "boom", rerr.Message)

	err = ch.Send(context.Background(), "missing", nil, nil)
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, messaging.UnknownActionError, rerr.Message)

	var cerr *messaging.ChannelError
	err = messaging.Local{}.Send(context.Background(), "echo", nil, nil)
	assert.ErrorAs(t, err, &cerr)
}

func TestClient_Send(t *testing.T) {
	d := newDispatcher(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, messaging.MessagesPath, r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		raw, _ := io.ReadAll(r.Body)
		reply := d.Dispatch(r.Context(), raw)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply.Body)
	}))
	defer srv.Close()

	c := messaging.NewClient(srv.URL+"/", messaging.WithAPIKey("secret"))

	var out messaging.WhitelistResponse
	require.NoError(t, c.Send(context.Background(), "echo", messaging.DomainRequest{Domain: "c.com"}, &out))
	assert.Equal(t, []string{"c.com"}, out.Whitelist)

	var rerr *messaging.ResponseError
	assert.ErrorAs(t, c.Send(context.Background(), "fail", nil, nil), &rerr)
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := messaging.NewClient(url)
	err := c.Send(context.Background(), "getStats", nil, nil)

	var cerr *messaging.ChannelError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "getStats", cerr.Action)
}

func TestClient_StatusWithoutErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := messaging.NewClient(srv.URL).Send(context.Background(), "getStats", nil, nil)
	var cerr *messaging.ChannelError
	assert.ErrorAs(t, err, &cerr)
}

// =============================================================================
// Blocked domain entries
// =============================================================================

func TestBlockedDomainEntry_EncodesAsPair(t *testing.T) {
	added := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	entry := messaging.BlockedDomainEntry{
		Domain:        "shop.co.uk",
		BlockedDomain: messaging.BlockedDomain{RuleID: 1000001, AddedAt: added, SourceURL: "https://cdn.shop.co.uk/x"},
	}

	raw, err := json.Marshal([]messaging.BlockedDomainEntry{entry})
	require.NoError(t, err)
	assert.JSONEq(t, `[["shop.co.uk",{"ruleId":1000001,"addedAt":"2024-05-01T12:00:00Z","sourceUrl":"https://cdn.shop.co.uk/x"}]]`, string(raw))

	var back []messaging.BlockedDomainEntry
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Len(t, back, 1)
	assert.Equal(t, "shop.co.uk", back[0].Domain)
	assert.Equal(t, 1000001, back[0].RuleID)
	assert.True(t, added.Equal(back[0].AddedAt))
}

func TestBlockedDomainEntry_DecodesObjectForm(t *testing.T) {
	var e messaging.BlockedDomainEntry
	require.NoError(t, json.Unmarshal([]byte(`{"domain":"bad.com","ruleId":7}`), &e))
	assert.Equal(t, "bad.com", e.Domain)
	assert.Equal(t, 7, e.RuleID)
}

func TestBlockedDomainEntry_RejectsMalformedPairs(t *testing.T) {
	for _, in := range []string{`["only-domain"]`, `[1,{}]`, `"bad.com"`} {
		var e messaging.BlockedDomainEntry
		assert.Error(t, json.Unmarshal([]byte(in), &e), in)
	}
}
