// Package pipeline turns raw inbound events into normalized inbox messages.
// A single goroutine handles events one at a time so the inbox keeps
// arrival order.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"whatsbridge/internal/classify"
	"whatsbridge/internal/domain"
	"whatsbridge/internal/metrics"
)

// Source yields raw events in arrival order.
type Source interface {
	Events() <-chan domain.RawEvent
	Done() <-chan struct{}
}

type Resolver interface {
	Resolve(ctx context.Context, address string) string
}

type Classifier interface {
	Classify(ctx context.Context, ev domain.RawEvent) classify.Content
}

// Publisher stores a message and pushes it to subscribed clients.
type Publisher interface {
	PublishMessage(msg domain.NormalizedMessage)
}

type Config struct {
	Source     Source
	Resolver   Resolver
	Classifier Classifier
	Publisher  Publisher
	// IncludeEchoes keeps messages sent from this account.
	IncludeEchoes bool
	Now           func() time.Time
	Logger        *slog.Logger
}

type Pipeline struct {
	source        Source
	resolver      Resolver
	classifier    Classifier
	publisher     Publisher
	includeEchoes bool
	now           func() time.Time
	logger        *slog.Logger
}

func New(cfg Config) *Pipeline {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		source:        cfg.Source,
		resolver:      cfg.Resolver,
		classifier:    cfg.Classifier,
		publisher:     cfg.Publisher,
		includeEchoes: cfg.IncludeEchoes,
		now:           cfg.Now,
		logger:        cfg.Logger,
	}
}

// Run processes events until ctx is cancelled or the source is closed.
// Events already queued when the source closes are processed before Run
// returns; on cancellation they are left and counted in the log.
func (p *Pipeline) Run(ctx context.Context) {
	p.logger.Info("inbound pipeline started")
	events := p.source.Events()
	for {
		if ctx.Err() != nil {
			p.stopping(len(events))
			return
		}
		select {
		case <-ctx.Done():
			p.stopping(len(events))
			return
		case <-p.source.Done():
			n := p.drain(ctx, events)
			p.logger.Info("inbound source closed, pipeline stopping", "drained", n)
			if ctx.Err() != nil {
				p.stopping(len(events))
			}
			return
		case ev := <-events:
			p.Process(ctx, ev)
		}
	}
}

// drain processes buffered events until none are left or ctx is done.
func (p *Pipeline) drain(ctx context.Context, events <-chan domain.RawEvent) int {
	n := 0
	for ctx.Err() == nil {
		select {
		case ev := <-events:
			p.Process(ctx, ev)
			n++
		default:
			return n
		}
	}
	return n
}

func (p *Pipeline) stopping(pending int) {
	if pending > 0 {
		p.logger.Warn("inbound pipeline stopping with unprocessed events", "pending", pending)
		return
	}
	p.logger.Info("inbound pipeline stopping")
}

// Process normalizes one event and publishes it. Lookup and download
// failures are absorbed; an event is only skipped when it is an echo of
// our own message and echoes are disabled.
func (p *Pipeline) Process(ctx context.Context, ev domain.RawEvent) {
	if ev.FromMe && !p.includeEchoes {
		p.logger.Debug("skipping own message", "to", ev.From, "id", ev.ID)
		return
	}

	name := p.resolver.Resolve(ctx, ev.From)
	content := p.classifier.Classify(ctx, ev)

	msg := domain.NormalizedMessage{
		SenderDisplayName: name,
		Text:              content.Text,
		Media:             content.Media,
		TimestampMillis:   p.now().UnixMilli(),
		SenderAddress:     ev.From,
		IsOutgoingEcho:    ev.FromMe,
	}
	p.publisher.PublishMessage(msg)
	metrics.InboundMessages.Inc()

	p.logger.Info("inbound message",
		"from", ev.From,
		"name", name,
		"media", msg.Media != nil,
	)
}
