// Package delivery sends outbound text messages through the connection,
// gated on session readiness and wrapped in a bounded retry loop.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"whatsbridge/internal/canon"
	"whatsbridge/internal/domain"
	"whatsbridge/internal/metrics"
	"whatsbridge/internal/retry"
)

// Readiness reports whether the session accepts sends.
type Readiness interface {
	IsReady() bool
}

// Sender is the network send primitive.
type Sender interface {
	SendText(ctx context.Context, address, text string) error
}

type Config struct {
	State   Readiness
	Sender  Sender
	Retrier *retry.Retrier
	Logger  *slog.Logger
}

// Result describes a successful send.
type Result struct {
	To       string
	Attempts int
}

// Error is returned when every attempt failed. It matches domain.ErrDelivery.
type Error struct {
	To       string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("send to %s failed after %d attempts: %v", e.To, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == domain.ErrDelivery }

type Gate struct {
	state   Readiness
	sender  Sender
	retrier *retry.Retrier
	logger  *slog.Logger
}

func New(cfg Config) *Gate {
	if cfg.Retrier == nil {
		cfg.Retrier = retry.New(retry.DefaultPolicy())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Gate{
		state:   cfg.State,
		sender:  cfg.Sender,
		retrier: cfg.Retrier,
		logger:  cfg.Logger,
	}
}

// Send validates the request, canonicalizes the destination and sends the
// normalized text, retrying under the gate's policy.
func (g *Gate) Send(ctx context.Context, rawTo, rawText string) (Result, error) {
	if !g.state.IsReady() {
		metrics.SendOutcomes.WithLabelValues(metrics.OutcomeNotReady).Inc()
		g.logger.Warn("send rejected: connection not ready", "to", rawTo)
		return Result{}, domain.ErrNotReady
	}

	to, err := validate(rawTo, rawText)
	if err != nil {
		metrics.SendOutcomes.WithLabelValues(metrics.OutcomeInvalid).Inc()
		g.logger.Warn("send rejected", "to", rawTo, "err", err)
		return Result{}, err
	}
	text := canon.Text(rawText)

	start := time.Now()
	attempts, err := g.retrier.Do(ctx, func(ctx context.Context, attempt int) error {
		metrics.SendAttempts.Inc()
		if err := g.sender.SendText(ctx, to, text); err != nil {
			g.logger.Warn("send attempt failed", "to", to, "attempt", attempt, "err", err)
			return err
		}
		return nil
	})
	metrics.SendLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.SendOutcomes.WithLabelValues(metrics.OutcomeFailed).Inc()
		g.logger.Error("send failed", "to", to, "attempts", attempts, "err", err)
		return Result{To: to, Attempts: attempts}, &Error{To: to, Attempts: attempts, Err: err}
	}
	metrics.SendOutcomes.WithLabelValues(metrics.OutcomeDelivered).Inc()
	g.logger.Info("message sent", "to", to, "attempts", attempts)
	return Result{To: to, Attempts: attempts}, nil
}

func validate(rawTo, rawText string) (string, error) {
	if strings.TrimSpace(rawTo) == "" {
		return "", fmt.Errorf("%w: missing destination", domain.ErrValidation)
	}
	if rawText == "" {
		return "", fmt.Errorf("%w: missing text", domain.ErrValidation)
	}
	to := canon.Address(rawTo)
	if to == "" || canon.User(to) == "" {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidAddress, rawTo)
	}
	return to, nil
}
