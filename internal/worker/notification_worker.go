// Package worker runs background consumers for domain events.
package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/events"
	"github.com/spec-kit/ticket-tracker/internal/service"
)

const defaultQueueSize = 256

// NotificationWorker moves notification delivery off the request path: events
// are queued on publish and handled by a single goroutine.
type NotificationWorker struct {
	notifier *service.NotificationService
	logger   *zap.Logger
	queue    chan events.Event
	wg       sync.WaitGroup
}

// NewNotificationWorker builds a worker with a bounded queue.
func NewNotificationWorker(notifier *service.NotificationService, logger *zap.Logger, queueSize int) *NotificationWorker {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{notifier: notifier, logger: logger, queue: make(chan events.Event, queueSize)}
}

// Subscribe registers the worker for every event the notifier handles.
func (w *NotificationWorker) Subscribe(dispatcher events.Dispatcher) {
	if dispatcher == nil || w.notifier == nil {
		return
	}
	for _, eventType := range w.notifier.EventTypes() {
		dispatcher.Subscribe(eventType, w.enqueue)
	}
}

// Start consumes the queue until ctx is cancelled; queued events are then
// drained before Wait returns.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				w.drain()
				return
			case event := <-w.queue:
				w.handle(context.WithoutCancel(ctx), event)
			}
		}
	}()
}

// Wait blocks until the consumer has stopped.
func (w *NotificationWorker) Wait() { w.wg.Wait() }

func (w *NotificationWorker) enqueue(_ context.Context, event events.Event) error {
	select {
	case w.queue <- event:
	default:
		w.logger.Warn("notification queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID))
	}
	return nil
}

func (w *NotificationWorker) drain() {
	for {
		select {
		case event := <-w.queue:
			w.handle(context.Background(), event)
		default:
			return
		}
	}
}

func (w *NotificationWorker) handle(ctx context.Context, event events.Event) {
	if err := w.notifier.Handle(ctx, event); err != nil {
		w.logger.Error("notification failed", zap.String("event_id", event.ID), zap.Error(err))
	}
}
