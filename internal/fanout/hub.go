// Package fanout pushes inbox history, live messages and session events to
// browser clients over WebSocket, and accepts their send requests.
package fanout

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"whatsbridge/internal/bus"
	"whatsbridge/internal/domain"
	"whatsbridge/internal/inbox"
	"whatsbridge/internal/metrics"
)

const (
	defaultMaxClients = 100
	defaultSendBuffer = 256
)

// ErrTooManyClients is returned by Attach when the hub is full.
var ErrTooManyClients = errors.New("too many clients")

// StateView is the read side of the session state.
type StateView interface {
	Get() domain.ConnectionState
	LastQR() string
}

type HubConfig struct {
	Inbox      *inbox.Store
	State      StateView
	MaxClients int
	SendBuffer int // queued frames per client before it is dropped
	Logger     *slog.Logger
}

// Hub tracks subscribed clients. Appending to the inbox and registering a
// client both happen under mu, so every message reaches a client exactly
// once: either in its history or as a live event.
type Hub struct {
	mu         sync.Mutex
	clients    map[string]*Client
	inbox      *inbox.Store
	state      StateView
	maxClients int
	sendBuffer int
	logger     *slog.Logger
}

// Client is one attached browser connection.
type Client struct {
	id     string
	send   chan []byte
	closed bool // guarded by Hub.mu
}

func (c *Client) ID() string { return c.id }

func NewHub(cfg HubConfig) *Hub {
	if cfg.Inbox == nil {
		cfg.Inbox = inbox.New()
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = defaultMaxClients
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		inbox:      cfg.Inbox,
		state:      cfg.State,
		maxClients: cfg.MaxClients,
		sendBuffer: cfg.SendBuffer,
		logger:     cfg.Logger,
	}
}

// Attach registers a client and queues its initial frames: the inbox
// history, the current state and, while awaiting a scan, the last code.
func (h *Hub) Attach(id string) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) >= h.maxClients {
		return nil, fmt.Errorf("%w (max %d)", ErrTooManyClients, h.maxClients)
	}

	history := h.inbox.Snapshot()
	c := &Client{id: id, send: make(chan []byte, h.sendBuffer+len(history)+2)}

	if err := h.enqueueLocked(c, EventHistory, history); err != nil {
		return nil, err
	}
	if h.state != nil {
		st := h.state.Get()
		if err := h.enqueueLocked(c, EventState, StatePayload{State: st}); err != nil {
			return nil, err
		}
		if code := h.state.LastQR(); st == domain.StateAwaitingScan && code != "" {
			if err := h.enqueueLocked(c, EventQR, code); err != nil {
				return nil, err
			}
		}
	}

	h.clients[id] = c
	metrics.ConnectedClients.Set(float64(len(h.clients)))
	h.logger.Info("client attached", "client_id", id, "history", len(history), "clients", len(h.clients))
	return c, nil
}

// Detach unregisters the client and closes its send channel. Safe to call twice.
func (h *Hub) Detach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.removeLocked(c) {
		h.logger.Info("client detached", "client_id", c.id, "clients", len(h.clients))
	}
}

// PublishMessage appends msg to the inbox and broadcasts it.
func (h *Hub) PublishMessage(msg domain.NormalizedMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inbox.Append(msg)
	h.broadcastLocked(EventMessage, msg)
}

// Broadcast sends an event to every client connected now.
func (h *Hub) Broadcast(eventType string, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(eventType, data)
}

// SendTo queues an event for one client. Returns false if the client is gone
// or could not take the frame.
func (h *Hub) SendTo(c *Client, eventType string, data any) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return false
	}
	if err := h.enqueueLocked(c, eventType, data); err != nil {
		h.logger.Warn("dropping slow client", "client_id", c.id, "event", eventType, "err", err)
		h.removeLocked(c)
		return false
	}
	return true
}

// Subscribe forwards session lifecycle events to all clients. Every event
// except a scan-code refresh is followed by a state frame.
func (h *Hub) Subscribe(events *bus.EventBus) {
	events.On(bus.EventQR, func(ev bus.Event) { h.Broadcast(EventQR, ev.Code) })
	events.On(bus.EventReady, func(bus.Event) { h.Broadcast(EventReady, nil) })
	events.On(bus.EventAuthFailure, func(ev bus.Event) {
		h.Broadcast(EventAuthFailure, ReasonPayload{Reason: ev.Reason})
	})
	events.On(bus.EventDisconnected, func(ev bus.Event) {
		h.Broadcast(EventDisconnected, ReasonPayload{Reason: ev.Reason})
	})
	events.On("*", func(ev bus.Event) {
		if ev.Type == bus.EventQR {
			return
		}
		h.Broadcast(EventState, StatePayload{State: ev.State, Since: ev.Timestamp.UnixMilli()})
	})
}

// Len returns the number of attached clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close detaches every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) broadcastLocked(eventType string, data any) {
	if len(h.clients) == 0 {
		return
	}
	frame, err := encode(eventType, data)
	if err != nil {
		h.logger.Error("encode event", "event", eventType, "err", err)
		return
	}
	for _, c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("dropping slow client", "client_id", c.id, "event", eventType)
			h.removeLocked(c)
		}
	}
}

func (h *Hub) enqueueLocked(c *Client, eventType string, data any) error {
	frame, err := encode(eventType, data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

func (h *Hub) removeLocked(c *Client) bool {
	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)
	delete(h.clients, c.id)
	metrics.ConnectedClients.Set(float64(len(h.clients)))
	return true
}
