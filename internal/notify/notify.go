// Package notify fans domain events out to external collaborators.
// Delivery is best effort: a failing sink is logged and counted, never
// propagated to the write that triggered it.
package notify

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Kind names an event type.
type Kind string

const (
	KindMetadataCreated        Kind = "metadata.created"
	KindMetadataUpdated        Kind = "metadata.updated"
	KindConflictResolved       Kind = "conflict.resolved"
	KindConflictAwaitingManual Kind = "conflict.awaiting_manual"
)

// IsMetadata reports whether k describes a metadata write.
func (k Kind) IsMetadata() bool {
	return strings.HasPrefix(string(k), "metadata.")
}

// IsConflict reports whether k describes a conflict outcome.
func (k Kind) IsConflict() bool {
	return strings.HasPrefix(string(k), "conflict.")
}

// Event is one notification. Payload is the domain object that changed.
type Event struct {
	ID         string
	Kind       Kind
	FileID     string
	OccurredAt time.Time
	Attributes map[string]string
	Payload    any
}

// Sink delivers events to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, event Event) error
}

// QueueSinkName is reported to OnFailure when an event is dropped because the
// delivery queue is full.
const QueueSinkName = "queue"

// Dispatcher sends every event to each configured sink in order. Until Start
// is called delivery happens on the caller's goroutine.
type Dispatcher struct {
	sinks     []Sink
	timeout   time.Duration
	logger    *zap.Logger
	onFailure func(sink string, kind Kind)

	mu    sync.RWMutex
	queue chan Event
	done  chan struct{}
}

// NewDispatcher builds a dispatcher. A non-positive timeout leaves the
// caller's context deadline in charge.
func NewDispatcher(logger *zap.Logger, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sinks:   sinks,
		timeout: timeout,
		logger:  logger,
	}
}

// OnFailure registers fn to observe failed deliveries.
func (d *Dispatcher) OnFailure(fn func(sink string, kind Kind)) {
	d.onFailure = fn
}

// Sinks returns the names of the configured sinks.
func (d *Dispatcher) Sinks() []string {
	if d == nil {
		return nil
	}
	names := make([]string, 0, len(d.sinks))
	for _, sink := range d.sinks {
		names = append(names, sink.Name())
	}
	return names
}

// Start moves delivery onto a background worker fed by a queue of size
// events. Calling Start again has no effect until Close.
func (d *Dispatcher) Start(size int) {
	if size < 1 {
		size = 1
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queue != nil {
		return
	}
	d.queue = make(chan Event, size)
	d.done = make(chan struct{})
	go d.run(d.queue, d.done)
}

// Close stops accepting queued events and waits for the worker to drain the
// queue or for ctx to end. Later events are delivered synchronously.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	queue, done := d.queue, d.done
	d.queue, d.done = nil, nil
	d.mu.Unlock()
	if queue == nil {
		return nil
	}

	close(queue)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run(queue <-chan Event, done chan<- struct{}) {
	defer close(done)
	for event := range queue {
		d.deliver(context.Background(), event)
	}
}

// Notify delivers event to all sinks, or queues it when the dispatcher is
// started. It never blocks on a full queue: the event is dropped instead.
// Failures are swallowed.
func (d *Dispatcher) Notify(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	d.mu.RLock()
	if d.queue != nil {
		select {
		case d.queue <- event:
		default:
			d.logger.Warn("notification queue full, event dropped",
				zap.String("kind", string(event.Kind)),
				zap.String("file_id", event.FileID),
			)
			if d.onFailure != nil {
				d.onFailure(QueueSinkName, event.Kind)
			}
		}
		d.mu.RUnlock()
		return
	}
	d.mu.RUnlock()

	d.deliver(ctx, event)
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	for _, sink := range d.sinks {
		if err := d.send(ctx, sink, event); err != nil {
			d.logger.Warn("notification delivery failed",
				zap.String("sink", sink.Name()),
				zap.String("kind", string(event.Kind)),
				zap.String("file_id", event.FileID),
				zap.Error(err),
			)
			if d.onFailure != nil {
				d.onFailure(sink.Name(), event.Kind)
			}
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, sink Sink, event Event) (err error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("notification sink panicked", zap.String("sink", sink.Name()), zap.Any("panic", r))
			err = errPanicked
		}
	}()
	return sink.Send(ctx, event)
}
