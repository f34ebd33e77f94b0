package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrQueueFull is returned by Enqueue when the delivery queue has no room.
	ErrQueueFull = errors.New("webhook queue full")
	// ErrStopped is returned by Enqueue after Stop.
	ErrStopped = errors.New("webhook dispatcher stopped")
	// ErrDisabled is returned by Enqueue when no webhook is configured.
	ErrDisabled = errors.New("webhook not configured")
)

// DeliveryError reports a failed delivery on the dispatcher's error channel.
type DeliveryError struct {
	Episode string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %q: %v", e.Episode, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// QueueStats reports the current state of the delivery queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// OutcomeFunc observes each delivery attempt ("delivered", "failed", "dropped").
type OutcomeFunc func(outcome string)

// DispatcherOptions configures the webhook dispatcher.
type DispatcherOptions struct {
	Sender    Sender // nil disables delivery
	Workers   int
	QueueSize int
	Timeout   time.Duration
	OnOutcome OutcomeFunc
	Log       zerolog.Logger
}

// Dispatcher delivers payloads in the background. Deliveries are attempted
// once; failures are counted and logged, never retried.
type Dispatcher struct {
	jobs   chan Payload
	errs   chan error
	opts   DispatcherOptions
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	errWG  sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewDispatcher creates a dispatcher. Call Start before enqueueing work that
// must be delivered.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize < 0 {
		opts.QueueSize = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		jobs:   make(chan Payload, opts.QueueSize),
		errs:   make(chan error, opts.QueueSize+opts.Workers),
		opts:   opts,
		log:    opts.Log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Enabled reports whether a sender is configured.
func (d *Dispatcher) Enabled() bool { return d.opts.Sender != nil }

// Start launches the worker goroutines and the error logger.
func (d *Dispatcher) Start() {
	d.errWG.Add(1)
	go d.logErrors()

	if !d.Enabled() {
		d.log.Warn().Msg("MAKE_WEBHOOK_URL not set; reports will not be delivered")
		return
	}
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.log.Info().Int("workers", d.opts.Workers).Int("queue_size", d.opts.QueueSize).Msg("webhook dispatcher started")
}

// Stop drains queued payloads and waits for in-flight deliveries.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.jobs)
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
	close(d.errs)
	d.errWG.Wait()
	d.log.Info().
		Int64("delivered", d.delivered.Load()).
		Int64("failed", d.failed.Load()).
		Int64("dropped", d.dropped.Load()).
		Msg("webhook dispatcher stopped")
}

// Enqueue hands p to the background workers without blocking.
func (d *Dispatcher) Enqueue(p Payload) error {
	if !d.Enabled() {
		return ErrDisabled
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}
	select {
	case d.jobs <- p:
		return nil
	default:
		d.dropped.Add(1)
		d.observe("dropped")
		return ErrQueueFull
	}
}

// Stats returns current queue statistics.
func (d *Dispatcher) Stats() QueueStats {
	return QueueStats{
		Pending:   len(d.jobs),
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
	}
}

// Pending returns the number of queued payloads.
func (d *Dispatcher) Pending() int { return len(d.jobs) }

// Capacity returns the queue size.
func (d *Dispatcher) Capacity() int { return cap(d.jobs) }

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	log := d.log.With().Int("worker", id).Logger()

	for p := range d.jobs {
		start := time.Now()
		ctx, cancel := context.WithTimeout(d.ctx, d.opts.Timeout)
		err := d.opts.Sender.Send(ctx, p)
		cancel()

		if err != nil {
			d.failed.Add(1)
			d.observe("failed")
			d.report(&DeliveryError{Episode: p.EpisodeName, Err: err})
			continue
		}
		d.delivered.Add(1)
		d.observe("delivered")
		log.Info().
			Str("episode", p.EpisodeName).
			Int("risk_score", p.RiskScore).
			Dur("took", time.Since(start)).
			Msg("report delivered to webhook")
	}
}

// report passes err to the logger goroutine, or logs inline if the channel
// is full.
func (d *Dispatcher) report(err error) {
	select {
	case d.errs <- err:
	default:
		d.log.Warn().Err(err).Msg("webhook delivery failed")
	}
}

func (d *Dispatcher) logErrors() {
	defer d.errWG.Done()
	for err := range d.errs {
		d.log.Warn().Err(err).Msg("webhook delivery failed")
	}
}

func (d *Dispatcher) observe(outcome string) {
	if d.opts.OnOutcome != nil {
		d.opts.OnOutcome(outcome)
	}
}
