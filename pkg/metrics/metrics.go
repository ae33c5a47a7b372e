package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Simple, dependency-free metrics with Prometheus text exposition.
// Atomic values, mutex-protected registry; nothing fancier is needed here.

// Counter is a monotonically increasing number.
type Counter struct {
	name string
	help string
	val  int64
}

func (c *Counter) Inc(delta int64) { atomic.AddInt64(&c.val, delta) }
func (c *Counter) Get() int64      { return atomic.LoadInt64(&c.val) }

// Gauge is an arbitrary number that can go up and down.
type Gauge struct {
	name string
	help string
	bits uint64 // float64 stored atomically as bits
}

func (g *Gauge) SetFloat64(v float64) { atomic.StoreUint64(&g.bits, math.Float64bits(v)) }
func (g *Gauge) AddFloat64(delta float64) {
	for {
		old := atomic.LoadUint64(&g.bits)
		nv := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(&g.bits, old, math.Float64bits(nv)) {
			return
		}
	}
}
func (g *Gauge) GetFloat64() float64 { return math.Float64frombits(atomic.LoadUint64(&g.bits)) }

// Histogram with fixed upper bounds plus an implicit +Inf bucket.
type Histogram struct {
	name    string
	help    string
	bounds  []float64 // sorted ascending, without +Inf
	counts  []uint64  // len(bounds)+1; last is +Inf
	sumBits uint64
	count   uint64
}

func (h *Histogram) Observe(v float64) {
	idx := len(h.bounds)
	for i, ub := range h.bounds {
		if v <= ub {
			idx = i
			break
		}
	}
	atomic.AddUint64(&h.counts[idx], 1)
	atomic.AddUint64(&h.count, 1)
	for {
		old := atomic.LoadUint64(&h.sumBits)
		nv := math.Float64frombits(old) + v
		if atomic.CompareAndSwapUint64(&h.sumBits, old, math.Float64bits(nv)) {
			return
		}
	}
}

// Registry holds all metrics. Lookups create on first use.
type Registry struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
}

func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
}

var Default = NewRegistry()

func (r *Registry) Counter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := &Counter{name: sanitize(name), help: help}
	r.counters[name] = c
	return c
}

func (r *Registry) Gauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[name]; ok {
		return g
	}
	g := &Gauge{name: sanitize(name), help: help}
	r.gauges[name] = g
	return g
}

func (r *Registry) Histogram(name, help string, bounds []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h
	}
	sorted := append([]float64(nil), bounds...)
	sort.Float64s(sorted)
	h := &Histogram{name: sanitize(name), help: help, bounds: sorted, counts: make([]uint64, len(sorted)+1)}
	r.histograms[name] = h
	return h
}

// Handler exposes the registry in Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		r.mu.RLock()
		counters := sortedValues(r.counters)
		gauges := sortedValues(r.gauges)
		histograms := sortedValues(r.histograms)
		r.mu.RUnlock()

		for _, c := range counters {
			fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", c.name, escapeHelp(c.help), c.name, c.name, c.Get())
		}
		for _, g := range gauges {
			fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n", g.name, escapeHelp(g.help), g.name, g.name, g.GetFloat64())
		}
		for _, h := range histograms {
			fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", h.name, escapeHelp(h.help), h.name)
			var cum uint64
			for i, ub := range h.bounds {
				cum += atomic.LoadUint64(&h.counts[i])
				fmt.Fprintf(w, "%s_bucket{le=\"%g\"} %d\n", h.name, ub, cum)
			}
			cum += atomic.LoadUint64(&h.counts[len(h.bounds)])
			fmt.Fprintf(w, "%s_bucket{le=\"+Inf\"} %d\n", h.name, cum)
			fmt.Fprintf(w, "%s_sum %g\n", h.name, math.Float64frombits(atomic.LoadUint64(&h.sumBits)))
			fmt.Fprintf(w, "%s_count %d\n", h.name, atomic.LoadUint64(&h.count))
		}
	})
}

// Handler exposes the Default registry.
func Handler() http.Handler { return Default.Handler() }

func sanitize(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

func escapeHelp(s string) string { return strings.ReplaceAll(s, "\n", " ") }

func sortedValues[T interface{ metricName() string }](m map[string]T) []T {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	out := make([]T, 0, len(ks))
	for _, k := range ks {
		out = append(out, m[k])
	}
	return out
}

func (c *Counter) metricName() string   { return c.name }
func (g *Gauge) metricName() string     { return g.name }
func (h *Histogram) metricName() string { return h.name }
