package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"whatsbridge/internal/bus"
	"whatsbridge/internal/domain"
	"whatsbridge/internal/metrics"
)

// Initializer is the part of domain.Connection the controller drives.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// InboundSink receives raw message events in arrival order.
type InboundSink interface {
	Publish(ev domain.RawEvent)
}

type Config struct {
	Conn    Initializer
	State   *State
	Events  *bus.EventBus
	Inbound InboundSink
	Logger  *slog.Logger
}

// Controller runs the lifecycle state machine:
//
//	Uninitialized --Initialize--> AwaitingScan --ready--> Ready --lost--> Disconnected
//	AwaitingScan --auth failure--> AuthFailed
//	AuthFailed | Disconnected --Initialize--> AwaitingScan
//
// It is the connection's domain.Listener. Lifecycle callbacks become
// transitions; messages are forwarded to the inbound sink untouched.
type Controller struct {
	mu      sync.Mutex
	conn    Initializer
	state   *State
	events  *bus.EventBus
	inbound InboundSink
	logger  *slog.Logger
}

var _ domain.Listener = (*Controller)(nil)

func NewController(cfg Config) *Controller {
	if cfg.State == nil {
		cfg.State = NewState()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		conn:    cfg.Conn,
		state:   cfg.State,
		events:  cfg.Events,
		inbound: cfg.Inbound,
		logger:  cfg.Logger,
	}
}

// State returns the state object the controller writes.
func (c *Controller) State() *State { return c.state }

// Initialize starts the session. Allowed from Uninitialized, AuthFailed and
// Disconnected; a no-op while a session is pending or ready. If the
// connection cannot start, the state becomes Disconnected.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch from := c.state.Get(); from {
	case domain.StateUninitialized, domain.StateAuthFailed, domain.StateDisconnected:
	default:
		c.logger.Debug("initialize ignored", "state", from)
		return nil
	}

	c.transition(domain.StateAwaitingScan, bus.Event{Type: bus.EventInitializing})
	if err := c.conn.Initialize(ctx); err != nil {
		c.transition(domain.StateDisconnected, bus.Event{Type: bus.EventDisconnected, Reason: "initialize failed: " + err.Error()})
		return fmt.Errorf("initialize connection: %w", err)
	}
	return nil
}

func (c *Controller) OnQR(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.allowed(domain.StateAwaitingScan, "qr") {
		return
	}
	c.state.setQR(code)
	c.logger.Info("scan code received")
	c.emit(bus.Event{Type: bus.EventQR, Code: code})
}

func (c *Controller) OnReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.allowed(domain.StateReady, "ready") {
		return
	}
	c.transition(domain.StateReady, bus.Event{Type: bus.EventReady})
}

func (c *Controller) OnAuthFailure(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.allowed(domain.StateAuthFailed, "auth_failure") {
		return
	}
	c.transition(domain.StateAuthFailed, bus.Event{Type: bus.EventAuthFailure, Reason: reason})
}

func (c *Controller) OnDisconnected(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.allowed(domain.StateDisconnected, "disconnected") {
		return
	}
	c.transition(domain.StateDisconnected, bus.Event{Type: bus.EventDisconnected, Reason: reason})
}

func (c *Controller) OnMessage(ev domain.RawEvent) {
	c.inbound.Publish(ev)
}

// allowed checks the transition table. Caller holds c.mu.
func (c *Controller) allowed(to domain.ConnectionState, trigger string) bool {
	from := c.state.Get()
	ok := false
	switch to {
	case domain.StateAwaitingScan:
		// qr refresh
		ok = from == domain.StateAwaitingScan
	case domain.StateReady:
		ok = from == domain.StateAwaitingScan
	case domain.StateAuthFailed:
		ok = from == domain.StateAwaitingScan
	case domain.StateDisconnected:
		ok = from == domain.StateReady || from == domain.StateAwaitingScan
	}
	if !ok {
		c.logger.Debug("ignoring lifecycle event", "event", trigger, "state", from)
	}
	return ok
}

// transition sets the state, logs and emits ev. Caller holds c.mu so
// emitted events are ordered like the transitions.
func (c *Controller) transition(to domain.ConnectionState, ev bus.Event) {
	from := c.state.Get()
	c.state.set(to)
	metrics.SessionState.Set(float64(to))

	switch to {
	case domain.StateAuthFailed:
		c.logger.Error("authentication failed", "reason", ev.Reason)
	case domain.StateDisconnected:
		c.logger.Warn("connection lost", "reason", ev.Reason, "from", from)
	default:
		c.logger.Info("session state changed", "from", from, "to", to)
	}

	if ev.Type != "" {
		c.emit(ev)
	}
}

func (c *Controller) emit(ev bus.Event) {
	if c.events == nil {
		return
	}
	ev.State = c.state.Get()
	c.events.Emit(ev)
}
