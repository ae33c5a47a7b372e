package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"walkin-queue-coordinator/pkg/circuit"
	"walkin-queue-coordinator/pkg/database"
	"walkin-queue-coordinator/pkg/logging"
)

// Status is the health of a single component or of the whole system.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Component is the result of one checker run.
type Component struct {
	Name        string         `json:"name"`
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	LastChecked time.Time      `json:"lastChecked"`
	LatencyMS   int64          `json:"latencyMs"`
	Details     map[string]any `json:"details,omitempty"`
}

// System aggregates all component results.
type System struct {
	Status     Status               `json:"status"`
	Timestamp  time.Time            `json:"timestamp"`
	Components map[string]Component `json:"components"`
	Summary    Summary              `json:"summary"`
}

type Summary struct {
	Total     int `json:"total"`
	Healthy   int `json:"healthy"`
	Degraded  int `json:"degraded"`
	Unhealthy int `json:"unhealthy"`
}

// Checker probes one dependency. Check must respect ctx and return quickly;
// the manager enforces a timeout on top.
type Checker interface {
	Name() string
	Check(ctx context.Context) Component
}

// CheckFunc adapts a function to the Checker interface.
type CheckFunc struct {
	CheckerName string
	Fn          func(ctx context.Context) Component
}

func (c CheckFunc) Name() string                        { return c.CheckerName }
func (c CheckFunc) Check(ctx context.Context) Component { return c.Fn(ctx) }

// Manager runs registered checkers concurrently and caches the last result
// so the readiness endpoint stays cheap under probe storms.
type Manager struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	cached   *System

	timeout time.Duration
	clock   clockwork.Clock
	log     *logging.Logger
}

func NewManager(timeout time.Duration, clock clockwork.Clock, log *logging.Logger) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Manager{
		checkers: make(map[string]Checker),
		timeout:  timeout,
		clock:    clock,
		log:      log.WithComponent("health"),
	}
}

// Register adds a checker. Re-registering a name replaces the old checker.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[c.Name()] = c
}

// CheckAll runs every checker concurrently and returns the aggregate.
func (m *Manager) CheckAll(ctx context.Context) *System {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make(chan Component, len(checkers))
	for _, c := range checkers {
		go func(c Checker) {
			start := m.clock.Now()
			comp := c.Check(ctx)
			comp.Name = c.Name()
			comp.LastChecked = m.clock.Now().UTC()
			comp.LatencyMS = int64(m.clock.Since(start) / time.Millisecond)
			results <- comp
		}(c)
	}

	sys := &System{
		Timestamp:  m.clock.Now().UTC(),
		Components: make(map[string]Component, len(checkers)),
	}
	for range checkers {
		select {
		case comp := <-results:
			sys.Components[comp.Name] = comp
		case <-ctx.Done():
			// Remaining checkers are counted as unhealthy timeouts.
		}
	}
	for _, c := range checkers {
		if _, ok := sys.Components[c.Name()]; !ok {
			sys.Components[c.Name()] = Component{
				Name:        c.Name(),
				Status:      StatusUnhealthy,
				Message:     "health check timed out",
				LastChecked: m.clock.Now().UTC(),
			}
		}
	}
	sys.Summary, sys.Status = summarize(sys.Components)

	if sys.Status != StatusHealthy {
		m.log.Warn("system health degraded",
			logging.String("status", string(sys.Status)),
			logging.Int("unhealthy", sys.Summary.Unhealthy),
			logging.Int("degraded", sys.Summary.Degraded))
	}

	m.mu.Lock()
	m.cached = sys
	m.mu.Unlock()
	return sys
}

// Cached returns the last CheckAll result, or nil before the first run.
func (m *Manager) Cached() *System {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cached
}

func summarize(components map[string]Component) (Summary, Status) {
	var s Summary
	s.Total = len(components)
	for _, c := range components {
		switch c.Status {
		case StatusHealthy:
			s.Healthy++
		case StatusDegraded:
			s.Degraded++
		default:
			s.Unhealthy++
		}
	}
	switch {
	case s.Unhealthy > 0:
		return s, StatusUnhealthy
	case s.Degraded > 0:
		return s, StatusDegraded
	default:
		return s, StatusHealthy
	}
}

// DatabaseChecker verifies connectivity and reports pool pressure.
type DatabaseChecker struct {
	db *database.DB
}

func NewDatabaseChecker(db *database.DB) *DatabaseChecker {
	return &DatabaseChecker{db: db}
}

func (c *DatabaseChecker) Name() string { return "database" }

func (c *DatabaseChecker) Check(ctx context.Context) Component {
	if err := c.db.Ping(ctx); err != nil {
		return Component{Status: StatusUnhealthy, Message: "ping failed: " + err.Error()}
	}
	var one int
	if err := c.db.Conn().QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return Component{Status: StatusUnhealthy, Message: "query failed: " + err.Error()}
	}

	stats := c.db.Conn().Stats()
	comp := Component{
		Status: StatusHealthy,
		Details: map[string]any{
			"openConnections": stats.OpenConnections,
			"inUse":           stats.InUse,
			"idle":            stats.Idle,
			"waitCount":       stats.WaitCount,
		},
	}
	if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
		comp.Status = StatusDegraded
		comp.Message = "connection pool exhausted"
	}
	return comp
}

// HTTPChecker probes an upstream HTTP dependency, e.g. the SMS provider.
type HTTPChecker struct {
	name   string
	url    string
	client *http.Client
}

func NewHTTPChecker(name, url string, timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPChecker{name: name, url: url, client: &http.Client{Timeout: timeout}}
}

func (c *HTTPChecker) Name() string { return c.name }

func (c *HTTPChecker) Check(ctx context.Context) Component {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Component{Status: StatusUnhealthy, Message: err.Error()}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Component{Status: StatusUnhealthy, Message: err.Error()}
	}
	defer resp.Body.Close()

	comp := Component{Status: StatusHealthy, Details: map[string]any{"statusCode": resp.StatusCode}}
	switch {
	case resp.StatusCode >= 500:
		comp.Status = StatusUnhealthy
		comp.Message = "upstream returned " + resp.Status
	case resp.StatusCode >= 400:
		comp.Status = StatusDegraded
		comp.Message = "upstream returned " + resp.Status
	}
	return comp
}

// BreakerChecker reports the state of a delivery circuit breaker. An open
// breaker means the channel is down but the coordinator still serves traffic,
// so it maps to degraded rather than unhealthy.
type BreakerChecker struct {
	name    string
	breaker *circuit.Breaker
}

func NewBreakerChecker(name string, b *circuit.Breaker) *BreakerChecker {
	return &BreakerChecker{name: name, breaker: b}
}

func (c *BreakerChecker) Name() string { return c.name }

func (c *BreakerChecker) Check(ctx context.Context) Component {
	switch c.breaker.State() {
	case circuit.Open:
		return Component{Status: StatusDegraded, Message: "circuit open"}
	case circuit.HalfOpen:
		return Component{Status: StatusDegraded, Message: "circuit half-open"}
	default:
		return Component{Status: StatusHealthy}
	}
}

// ConnCounter is implemented by the realtime bus.
type ConnCounter interface {
	ConnCount() int
}

// NewBusChecker reports websocket connection counts. It never fails the
// system; zero connections is a normal state.
func NewBusChecker(bus ConnCounter) Checker {
	return CheckFunc{
		CheckerName: "realtime",
		Fn: func(ctx context.Context) Component {
			return Component{
				Status:  StatusHealthy,
				Details: map[string]any{"connections": bus.ConnCount()},
			}
		},
	}
}
