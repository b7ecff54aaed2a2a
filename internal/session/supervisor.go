package session

import (
	"context"
	"log/slog"
	"time"

	"whatsbridge/internal/bus"
	"whatsbridge/internal/retry"
)

// Supervisor restarts the session after the connection drops. Authentication
// failures are terminal until an operator intervenes, so only Disconnected
// triggers a restart.
type Supervisor struct {
	controller *Controller
	events     *bus.EventBus
	delay      time.Duration
	sleep      retry.Sleeper
	logger     *slog.Logger
	lost       chan string
	handlerID  string
}

type SupervisorConfig struct {
	Controller *Controller
	Events     *bus.EventBus
	Delay      time.Duration
	Sleeper    retry.Sleeper
	Logger     *slog.Logger
}

func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.Sleeper == nil {
		cfg.Sleeper = retry.SleepContext
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Supervisor{
		controller: cfg.Controller,
		events:     cfg.Events,
		delay:      cfg.Delay,
		sleep:      cfg.Sleeper,
		logger:     cfg.Logger,
		lost:       make(chan string, 1),
	}
	s.handlerID = s.events.On(bus.EventDisconnected, func(ev bus.Event) {
		// Emitted under the controller lock; hand off rather than re-enter.
		select {
		case s.lost <- ev.Reason:
		default:
		}
	})
	return s
}

// Run blocks until ctx is done, re-initializing the session each time it
// reports a lost connection.
func (s *Supervisor) Run(ctx context.Context) {
	defer s.events.Off(bus.EventDisconnected, s.handlerID)

	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-s.lost:
			s.logger.Info("reinitializing session", "reason", reason, "delay", s.delay)
			if err := s.sleep(ctx, s.delay); err != nil {
				return
			}
			if err := s.controller.Initialize(ctx); err != nil {
				// Initialize moved the state to Disconnected, which queues another attempt.
				s.logger.Error("reinitialize failed", "err", err)
			}
		}
	}
}
