package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/linkshelf/linkshelf/pkg/logger"
)

type AsyncOptions struct {
	QueueSize      int
	Workers        int
	DeliverTimeout time.Duration
}

// AsyncDeliverer hands notifications to a worker pool so slow channels do not
// hold up the caller. When the queue is full Deliver returns ErrQueueFull.
type AsyncDeliverer struct {
	next  Deliverer
	log   *slog.Logger
	opts  AsyncOptions
	queue chan Notification

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewAsyncDeliverer(next Deliverer, log *slog.Logger, opts AsyncOptions) *AsyncDeliverer {
	if next == nil {
		panic("notifications: next deliverer is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.DeliverTimeout <= 0 {
		opts.DeliverTimeout = 10 * time.Second
	}

	d := &AsyncDeliverer{next: next, log: log, opts: opts, queue: make(chan Notification, opts.QueueSize)}
	d.wg.Add(opts.Workers)
	for range opts.Workers {
		go d.worker()
	}
	return d
}

func (d *AsyncDeliverer) Deliver(_ context.Context, n Notification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDelivererClosed
	}
	select {
	case d.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *AsyncDeliverer) worker() {
	defer d.wg.Done()
	for n := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.DeliverTimeout)
		if err := d.next.Deliver(ctx, n); err != nil {
			d.log.ErrorContext(ctx, "async notification delivery failed",
				slog.String("notification_id", n.ID),
				slog.String("kind", string(n.Kind)),
				logger.UserID(n.UserID),
				logger.Error(err),
			)
		}
		cancel()
	}
}

// Close stops accepting work and waits for queued notifications to drain or
// ctx to expire.
func (d *AsyncDeliverer) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
