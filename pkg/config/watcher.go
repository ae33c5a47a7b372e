package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"walkin-queue-coordinator/pkg/metrics"
)

// Change describes a configuration update event.
// Only a subset of fields may have changed; see Fields for the list of keys.
type Change struct {
	Old    *Config
	New    *Config
	Fields []string
	Err    error
}

// Subscriber channel buffer size; small to apply back-pressure if receivers are slow.
const subBuf = 4

// Watcher periodically reloads configuration from the environment and
// publishes diffs. Polling keeps it simple; the tunables that matter here
// (rate limits, sweep intervals, breaker thresholds) change rarely.
type Watcher struct {
	mu     sync.RWMutex
	cur    *Config
	closed bool
	intv   time.Duration
	subs   []chan Change
	cancel context.CancelFunc

	mReloads  *metrics.Counter
	mFailures *metrics.Counter
}

func NewWatcher(interval time.Duration) *Watcher {
	w := &Watcher{
		intv:      interval,
		mReloads:  metrics.Default.Counter("config_reload_total", "Total number of config reload attempts"),
		mFailures: metrics.Default.Counter("config_reload_failures_total", "Total number of failed config reloads"),
	}
	w.cur = Load()
	return w
}

// Subscribe returns a channel receiving Change notifications until Close.
func (w *Watcher) Subscribe() <-chan Change {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(chan Change, subBuf)
	w.subs = append(w.subs, ch)
	return ch
}

// Close stops the watcher and closes subscriber channels.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	if w.cancel != nil {
		w.cancel()
	}
	for _, s := range w.subs {
		close(s)
	}
	w.subs = nil
}

// Start begins polling in a goroutine. Safe to call once; a zero interval
// disables the watcher entirely.
func (w *Watcher) Start() {
	if w.intv <= 0 {
		return
	}
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.mu.Unlock()

	go w.loop(ctx)
}

func (w *Watcher) loop(ctx context.Context) {
	t := time.NewTicker(w.intv)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.checkOnce()
		}
	}
}

func (w *Watcher) checkOnce() {
	newCfg := Load()
	if err := newCfg.Validate(); err != nil {
		w.mFailures.Inc(1)
		w.notify(Change{Old: w.cur, New: newCfg, Err: fmt.Errorf("invalid config: %w", err)})
		return
	}

	fields := diffKeys(w.cur, newCfg)
	if len(fields) == 0 {
		return
	}

	w.mReloads.Inc(1)
	w.mu.Lock()
	old := w.cur
	w.cur = newCfg
	w.mu.Unlock()
	w.notify(Change{Old: old, New: newCfg, Fields: fields})
}

func (w *Watcher) notify(chg Change) {
	w.mu.RLock()
	subs := append([]chan Change(nil), w.subs...)
	w.mu.RUnlock()
	for _, s := range subs {
		select {
		case s <- chg:
		default:
			// drop if slow; keep system moving
		}
	}
}

func diffKeys(a, b *Config) []string {
	if a == nil || b == nil {
		return []string{"all"}
	}
	var f []string
	appendIf := func(cond bool, name string) {
		if cond {
			f = append(f, name)
		}
	}
	appendIf(a.CheckInLimit != b.CheckInLimit || a.CheckInWindow != b.CheckInWindow, "CheckInRate")
	appendIf(a.NotifyLimit != b.NotifyLimit || a.NotifyWindow != b.NotifyWindow, "NotifyRate")
	appendIf(a.GeneralLimit != b.GeneralLimit || a.GeneralWindow != b.GeneralWindow, "GeneralRate")
	appendIf(a.NoShowSweepInterval != b.NoShowSweepInterval || a.NoShowAfter != b.NoShowAfter, "NoShowSweep")
	appendIf(a.PendingSweepInterval != b.PendingSweepInterval || a.PendingVerifyTimeout != b.PendingVerifyTimeout, "PendingSweep")
	appendIf(a.LogLevel != b.LogLevel || a.LogFormat != b.LogFormat, "Logging")
	appendIf(a.MetricsEnabled != b.MetricsEnabled || a.MetricsPath != b.MetricsPath, "Metrics")
	return f
}
