package realtime

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"walkin-queue-coordinator/pkg/metrics"
)

// buffered is one frame waiting for its user to reconnect.
type buffered struct {
	userID     string
	frame      Frame
	enqueuedAt time.Time
	attempts   int
}

// Buffer holds frames for offline users. Bounded FIFO: past the size cap
// the oldest entry is dropped, and entries older than the age cap are
// discarded on read.
type Buffer struct {
	mu      sync.Mutex
	items   []buffered
	maxSize int
	maxAge  time.Duration
	clock   clockwork.Clock

	mEnqueued *metrics.Counter
	mDropped  *metrics.Counter
	mExpired  *metrics.Counter
	mFlushed  *metrics.Counter
	mDepth    *metrics.Gauge
}

func NewBuffer(maxSize int, maxAge time.Duration, clock clockwork.Clock) *Buffer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Buffer{
		maxSize:   maxSize,
		maxAge:    maxAge,
		clock:     clock,
		mEnqueued: metrics.Default.Counter("realtime_buffer_enqueued_total", "Frames buffered for offline users"),
		mDropped:  metrics.Default.Counter("realtime_buffer_dropped_total", "Frames dropped because the buffer was full"),
		mExpired:  metrics.Default.Counter("realtime_buffer_expired_total", "Frames discarded past the age cap"),
		mFlushed:  metrics.Default.Counter("realtime_buffer_flushed_total", "Frames flushed to reconnecting users"),
		mDepth:    metrics.Default.Gauge("realtime_buffer_depth", "Frames currently buffered"),
	}
}

// Enqueue stores a frame for an offline user, evicting the oldest entry
// when the buffer is full.
func (b *Buffer) Enqueue(userID string, f Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) >= b.maxSize {
		b.items = b.items[1:]
		b.mDropped.Inc(1)
	}
	b.items = append(b.items, buffered{userID: userID, frame: f, enqueuedAt: b.clock.Now()})
	b.mEnqueued.Inc(1)
	b.mDepth.SetFloat64(float64(len(b.items)))
}

// TakeFor removes and returns the user's non-expired frames in enqueue
// order. Expired frames for that user are discarded as a side effect.
func (b *Buffer) TakeFor(userID string) []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.clock.Now().Add(-b.maxAge)
	var out []Frame
	kept := b.items[:0]
	for _, it := range b.items {
		if it.userID != userID {
			kept = append(kept, it)
			continue
		}
		if it.enqueuedAt.Before(cutoff) {
			b.mExpired.Inc(1)
			continue
		}
		out = append(out, it.frame)
	}
	b.items = kept
	b.mFlushed.Inc(int64(len(out)))
	b.mDepth.SetFloat64(float64(len(b.items)))
	return out
}

// Len returns the number of buffered frames across all users.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
