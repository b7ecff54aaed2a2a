package bus

import (
	"log/slog"
	"sync"

	"whatsbridge/internal/domain"
)

// Queue is the ordered hand-off between the connection's event callbacks and
// the single inbound pipeline goroutine. Events leave in the order they were
// published. A full queue applies back-pressure instead of dropping.
type Queue struct {
	events chan domain.RawEvent
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// NewQueue creates a Queue with the given buffer size.
func NewQueue(bufferSize int, logger *slog.Logger) *Queue {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		events: make(chan domain.RawEvent, bufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Publish enqueues ev, blocking while the queue is full. Events published
// after Close are dropped with a warning.
func (q *Queue) Publish(ev domain.RawEvent) {
	select {
	case <-q.done:
		q.logger.Warn("attempted to publish to closed queue", "from", ev.From, "id", ev.ID)
		return
	default:
	}

	select {
	case q.events <- ev:
		return
	default:
	}

	q.logger.Warn("inbound queue full, waiting...", "from", ev.From, "id", ev.ID)
	select {
	case q.events <- ev:
		q.logger.Info("inbound event queued after wait", "from", ev.From, "id", ev.ID)
	case <-q.done:
		q.logger.Error("inbound event dropped: queue closed while waiting", "from", ev.From, "id", ev.ID)
	}
}

// Events is the consumer side. It is never closed; consumers stop on their
// own context or on Done.
func (q *Queue) Events() <-chan domain.RawEvent {
	return q.events
}

// Done is closed by Close.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	return len(q.events)
}

func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}
