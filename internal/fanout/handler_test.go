package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsbridge/internal/delivery"
	"whatsbridge/internal/domain"
)

type fakeSender struct {
	mu    sync.Mutex
	calls []SendRequest
	err   error
}

func (f *fakeSender) Send(_ context.Context, to, text string) (delivery.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, SendRequest{To: to, Text: text})
	if f.err != nil {
		return delivery.Result{To: to + "@c.us", Attempts: 3}, f.err
	}
	return delivery.Result{To: to + "@c.us", Attempts: 1}, nil
}

func startServer(t *testing.T, hub *Hub, sender Sender) string {
	t.Helper()
	srv := httptest.NewServer(NewHandler(HandlerConfig{Hub: hub, Sender: sender, Logger: quietLogger()}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestHandler_HistoryThenLive(t *testing.T) {
	hub := NewHub(HubConfig{State: fakeState{state: domain.StateReady}, Logger: quietLogger()})
	hub.PublishMessage(msg("before"))
	conn := dial(t, startServer(t, hub, &fakeSender{}))

	env := readEnvelope(t, conn)
	require.Equal(t, EventHistory, env.Type)
	assert.Contains(t, string(env.Data), `"text":"before"`)
	assert.Equal(t, EventState, readEnvelope(t, conn).Type)

	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)
	hub.PublishMessage(msg("after"))

	env = readEnvelope(t, conn)
	require.Equal(t, EventMessage, env.Type)
	assert.Contains(t, string(env.Data), `"text":"after"`)
}

func TestHandler_SendMessageRoundTrip(t *testing.T) {
	hub := NewHub(HubConfig{Logger: quietLogger()})
	sender := &fakeSender{}
	conn := dial(t, startServer(t, hub, sender))
	readEnvelope(t, conn) // history

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": EventSendMessage,
		"data": map[string]string{"to": "30123456", "text": "hello"},
	}))

	env := readEnvelope(t, conn)
	require.Equal(t, EventSendResult, env.Type)
	assert.JSONEq(t, `{"to":"30123456@c.us","ok":true,"attempts":1}`, string(env.Data))

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Equal(t, []SendRequest{{To: "30123456", Text: "hello"}}, sender.calls)
}

func TestHandler_SendFailureReported(t *testing.T) {
	hub := NewHub(HubConfig{Logger: quietLogger()})
	conn := dial(t, startServer(t, hub, &fakeSender{err: errors.New("boom")}))
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": EventSendMessage,
		"data": map[string]string{"to": "1", "text": "x"},
	}))

	env := readEnvelope(t, conn)
	require.Equal(t, EventSendResult, env.Type)
	assert.JSONEq(t, `{"to":"1@c.us","ok":false,"attempts":3,"error":"boom"}`, string(env.Data))
}

func TestHandler_RateLimitsSends(t *testing.T) {
	hub := NewHub(HubConfig{Logger: quietLogger()})
	sender := &fakeSender{}
	srv := httptest.NewServer(NewHandler(HandlerConfig{
		Hub: hub, Sender: sender, RatePerMinute: 1, RateBurst: 1, Logger: quietLogger(),
	}))
	t.Cleanup(srv.Close)
	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	readEnvelope(t, conn)

	for i := 0; i < 2; i++ {
		require.NoError(t, conn.WriteJSON(map[string]any{
			"type": EventSendMessage,
			"data": map[string]string{"to": "1", "text": "x"},
		}))
	}

	var limited, ok int
	for i := 0; i < 2; i++ {
		var res SendResult
		env := readEnvelope(t, conn)
		require.Equal(t, EventSendResult, env.Type)
		require.NoError(t, json.Unmarshal(env.Data, &res))
		if res.OK {
			ok++
		} else if res.Error == "rate limited" {
			limited++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, limited)
}

func TestHandler_RejectsBeyondMaxClients(t *testing.T) {
	hub := NewHub(HubConfig{MaxClients: 1, Logger: quietLogger()})
	url := startServer(t, hub, &fakeSender{})
	first := dial(t, url)
	readEnvelope(t, first)

	second := dial(t, url)
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := second.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
}

func TestHandler_DetachOnClientClose(t *testing.T) {
	hub := NewHub(HubConfig{Logger: quietLogger()})
	conn := dial(t, startServer(t, hub, &fakeSender{}))
	readEnvelope(t, conn)
	require.Equal(t, 1, hub.Len())

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
