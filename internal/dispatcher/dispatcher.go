// Package dispatcher hands released batches from sessions to the delivery
// sinks. Sessions enqueue; a single Run loop delivers in enqueue order.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"avl-gateway/internal/codec"
	"avl-gateway/internal/observability"
)

// ErrClosed is returned by Enqueue and Announce after Close.
var ErrClosed = errors.New("dispatcher closed")

// deliverTimeout bounds one Deliver or Announce call.
const deliverTimeout = 5 * time.Second

// Batch is what one session released in one step.
type Batch struct {
	IMEI    string
	Remote  string
	Packets []codec.Packet
	// Final marks the batch flushed at session teardown.
	Final bool
	At    time.Time
}

func (b Batch) Records() int {
	n := 0
	for _, p := range b.Packets {
		n += len(p.Records)
	}
	return n
}

// Sink receives every batch.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, b Batch) error
}

// Presence is implemented by sinks that also track devices coming and going.
type Presence interface {
	Announce(ctx context.Context, info DeviceInfo) error
}

type item struct {
	batch *Batch
	info  *DeviceInfo
}

type Dispatcher struct {
	logger *slog.Logger
	sinks  []Sink
	queue  chan item

	mu     sync.RWMutex
	closed bool
}

func New(logger *slog.Logger, queueSize int, sinks ...Sink) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		logger: logger.With("component", "dispatcher"),
		sinks:  sinks,
		queue:  make(chan item, queueSize),
	}
}

// Enqueue queues b, blocking while the queue is full.
func (d *Dispatcher) Enqueue(ctx context.Context, b Batch) error {
	if len(b.Packets) == 0 {
		return nil
	}
	return d.put(ctx, item{batch: &b})
}

// Announce queues a presence change behind any batch already queued.
func (d *Dispatcher) Announce(ctx context.Context, info DeviceInfo) error {
	return d.put(ctx, item{info: &info})
}

func (d *Dispatcher) put(ctx context.Context, it item) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- it:
		observability.QueueDepth.Set(float64(len(d.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work. Run returns once the queue is drained.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
}

// Run delivers queued items until Close has been called and the queue is empty.
func (d *Dispatcher) Run(ctx context.Context) error {
	for it := range d.queue {
		observability.QueueDepth.Set(float64(len(d.queue)))
		switch {
		case it.batch != nil:
			d.deliver(ctx, *it.batch)
		case it.info != nil:
			d.announce(ctx, *it.info)
		}
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, b Batch) {
	for _, s := range d.sinks {
		dctx, cancel := context.WithTimeout(ctx, deliverTimeout)
		err := s.Deliver(dctx, b)
		cancel()
		if err != nil {
			observability.DeliveryErrors.WithLabelValues(s.Name()).Inc()
			d.logger.Warn("deliver failed", "sink", s.Name(), "imei", b.IMEI, "packets", len(b.Packets), "err", err)
			continue
		}
		observability.BatchesDelivered.WithLabelValues(s.Name()).Inc()
	}
	d.logger.Debug("batch delivered", "imei", b.IMEI, "packets", len(b.Packets), "records", b.Records(), "final", b.Final)
}

func (d *Dispatcher) announce(ctx context.Context, info DeviceInfo) {
	for _, s := range d.sinks {
		p, ok := s.(Presence)
		if !ok {
			continue
		}
		actx, cancel := context.WithTimeout(ctx, deliverTimeout)
		err := p.Announce(actx, info)
		cancel()
		if err != nil {
			observability.DeliveryErrors.WithLabelValues(s.Name()).Inc()
			d.logger.Warn("announce failed", "sink", s.Name(), "imei", info.IMEI, "state", info.State.String(), "err", err)
		}
	}
}
