// Package pipeline orders decoded packets by priority and releases them in
// fixed-size batches for delivery.
package pipeline

import (
	"slices"
	"time"

	"avl-gateway/internal/codec"
)

// Priority bands.
const (
	lowPriorityMax    = 3
	normalPriorityMax = 7
)

// Pipeline keeps two queues: incoming, ordered by priority band, and
// outgoing, holding released batches in release order. It belongs to one
// session and is not safe for concurrent use.
type Pipeline struct {
	incoming  []codec.Packet
	outgoing  []codec.Packet
	batchSize int
	now       func() time.Time
}

type Option func(*Pipeline)

// WithClock replaces time.Now when measuring a Submit budget.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(batchSize int, opts ...Option) *Pipeline {
	if batchSize < 1 {
		batchSize = 1
	}
	p := &Pipeline{batchSize: batchSize, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit places pkt by the priority of its first record and releases one
// batch when incoming holds batchSize packets or the call took strictly longer
// than budget. A budget <= 0 means no budget, so a zero budget never forces a
// batch; time.Nanosecond releases whenever any time elapses during the call.
func (p *Pipeline) Submit(pkt codec.Packet, budget time.Duration) {
	start := p.now()

	prio := pkt.Priority()
	switch {
	case prio <= lowPriorityMax:
		p.incoming = append(p.incoming, pkt)
	case prio <= normalPriorityMax:
		i := slices.IndexFunc(p.incoming, func(q codec.Packet) bool { return q.Priority() < prio })
		if i < 0 {
			i = len(p.incoming)
		}
		p.incoming = slices.Insert(p.incoming, i, pkt)
	default:
		p.incoming = slices.Insert(p.incoming, 0, pkt)
	}

	if len(p.incoming) >= p.batchSize || (budget > 0 && p.now().Sub(start) > budget) {
		p.releaseBatch()
	}
}

func (p *Pipeline) releaseBatch() {
	n := min(p.batchSize, len(p.incoming))
	p.outgoing = append(p.outgoing, p.incoming[:n]...)
	p.incoming = slices.Delete(p.incoming, 0, n)
}

// Flush drains incoming followed by outgoing, leaving both empty.
func (p *Pipeline) Flush() []codec.Packet {
	out := make([]codec.Packet, 0, len(p.incoming)+len(p.outgoing))
	out = append(out, p.incoming...)
	out = append(out, p.outgoing...)
	p.incoming = p.incoming[:0]
	p.outgoing = p.outgoing[:0]
	return out
}

// Release drains only the outgoing queue: the batches released so far.
func (p *Pipeline) Release() []codec.Packet {
	if len(p.outgoing) == 0 {
		return nil
	}
	out := slices.Clone(p.outgoing)
	p.outgoing = p.outgoing[:0]
	return out
}

// Stats returns the queue lengths.
func (p *Pipeline) Stats() (incoming, outgoing int) {
	return len(p.incoming), len(p.outgoing)
}
