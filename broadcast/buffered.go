package broadcast

import (
	"errors"
	"sync"
	"time"
)

// ErrQueueFull is returned when a non-droppable frame cannot be
// enqueued because the buffer is saturated: by BufferedPolicy at once
// when EnqueueTimeout is zero, otherwise once EnqueueTimeout has elapsed
// (ChannelPolicy waits 2s when EnqueueTimeout is zero).
var ErrQueueFull = errors.New("broadcast: queue full, frame is not droppable")

// BufferedConfig configures a BufferedPolicy.
type BufferedConfig struct {
	// QueueSize bounds the number of pending frames. Defaults to 256.
	QueueSize int
	// EnqueueTimeout bounds how long Deliver blocks trying to enqueue a
	// non-droppable frame once the queue is full, before giving up.
	// Zero means fail immediately.
	EnqueueTimeout time.Duration
}

type queuedFrame struct {
	kind MessageKind
	data []byte
}

// BufferedPolicy queues frames for asynchronous delivery to sink on a
// background goroutine, dropping droppable kinds when the queue
// saturates rather than blocking the broadcaster.
type BufferedPolicy struct {
	sink  Sink
	cfg   BufferedConfig
	queue chan queuedFrame
	stats *statsRecorder

	closeOnce sync.Once
	done      chan struct{}
}

// NewBufferedPolicy creates a policy that drains frames into sink from
// a background goroutine.
func NewBufferedPolicy(sink Sink, cfg BufferedConfig) *BufferedPolicy {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	p := &BufferedPolicy{
		sink:  sink,
		cfg:   cfg,
		queue: make(chan queuedFrame, cfg.QueueSize),
		stats: newStatsRecorder(),
		done:  make(chan struct{}),
	}
	go p.drain()
	return p
}

// Deliver enqueues frame for asynchronous delivery. Droppable kinds are
// discarded if the queue is full; non-droppable kinds wait up to
// EnqueueTimeout before returning ErrQueueFull.
func (p *BufferedPolicy) Deliver(_ string, kind MessageKind, data []byte) error {
	f := queuedFrame{kind: kind, data: data}

	select {
	case p.queue <- f:
		return nil
	default:
	}

	if IsDroppable(kind) {
		p.stats.incDropped(kind)
		return nil
	}

	if p.cfg.EnqueueTimeout <= 0 {
		p.stats.incErrors()
		return ErrQueueFull
	}

	timer := time.NewTimer(p.cfg.EnqueueTimeout)
	defer timer.Stop()
	select {
	case p.queue <- f:
		return nil
	case <-timer.C:
		p.stats.incErrors()
		return ErrQueueFull
	case <-p.done:
		return ErrQueueFull
	}
}

func (p *BufferedPolicy) drain() {
	for {
		select {
		case f := <-p.queue:
			if err := p.sink.Write(f.data); err != nil {
				p.stats.incErrors()
				continue
			}
			p.stats.incDelivered()
		case <-p.done:
			return
		}
	}
}

// Stats returns policy statistics.
func (p *BufferedPolicy) Stats() Stats { return p.stats.snapshot() }

// Close stops the drain goroutine. Pending queued frames are discarded.
func (p *BufferedPolicy) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

var _ Policy = (*BufferedPolicy)(nil)
