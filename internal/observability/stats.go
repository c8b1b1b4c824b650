package observability

import (
	"sync"
	"time"
)

// RouteSnapshot is the call summary of one route or RPC method.
type RouteSnapshot struct {
	Count         int64   `json:"count"`
	Errors        int64   `json:"errors"`
	InFlight      int64   `json:"in_flight"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
	LastLatencyMs float64 `json:"last_latency_ms"`
}

// Snapshot is the JSON document served on /stats.
type Snapshot struct {
	UptimeSec         int64                    `json:"uptime_sec"`
	TotalRequests     int64                    `json:"total_requests"`
	TotalErrors       int64                    `json:"total_errors"`
	InFlight          int64                    `json:"in_flight"`
	RateLimitWaits    int64                    `json:"rate_limit_waits"`
	RateLimitWaitMs   int64                    `json:"rate_limit_wait_ms"`
	RateLimitRejects  int64                    `json:"rate_limit_rejects"`
	Outcomes          map[string]int64         `json:"outcomes"`
	LedgerWriteErrors int64                    `json:"ledger_write_errors"`
	Lifecycle         *LifecycleSnapshot       `json:"lifecycle,omitempty"`
	Routes            map[string]RouteSnapshot `json:"routes"`
}

// LifecycleSnapshot records the shutdown point once it happened.
type LifecycleSnapshot struct {
	ShutdownAt         time.Time `json:"shutdown_at"`
	InFlightAtShutdown int64     `json:"inflight_at_shutdown"`
}

type routeStats struct {
	count        int64
	errors       int64
	inFlight     int64
	totalLatency time.Duration
	maxLatency   time.Duration
	lastLatency  time.Duration
}

// Stats aggregates in-process counters for the /stats endpoint. A nil
// *Stats is a valid no-op.
type Stats struct {
	mu                sync.Mutex
	start             time.Time
	routes            map[string]*routeStats
	rateLimitWaits    int64
	rateLimitWait     time.Duration
	rateLimitRejects  int64
	outcomes          map[string]int64
	ledgerWriteErrors int64
	shutdownAt        time.Time
	inflightAtStop    int64
}

// CallSpan measures one call started with Stats.Start.
type CallSpan struct {
	stats *Stats
	route string
	start time.Time
}

// NewStats constructs an empty aggregate.
func NewStats() *Stats {
	return &Stats{
		start:    time.Now(),
		routes:   make(map[string]*routeStats),
		outcomes: make(map[string]int64),
	}
}

// Start opens a span for route.
func (s *Stats) Start(route string) *CallSpan {
	if s == nil {
		return &CallSpan{}
	}
	s.mu.Lock()
	s.route(route).inFlight++
	s.mu.Unlock()
	return &CallSpan{stats: s, route: route, start: time.Now()}
}

// End closes the span; a non-nil err counts as a failed call.
func (c *CallSpan) End(err error) {
	if c == nil || c.stats == nil {
		return
	}
	c.stats.finish(c.route, time.Since(c.start), err != nil)
}

// AddRateLimitWait records time spent blocked on a limiter.
func (s *Stats) AddRateLimitWait(d time.Duration) {
	if s == nil || d <= 0 {
		return
	}
	s.mu.Lock()
	s.rateLimitWaits++
	s.rateLimitWait += d
	s.mu.Unlock()
}

// AddRateLimitReject records a request turned away by a limiter.
func (s *Stats) AddRateLimitReject() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.rateLimitRejects++
	s.mu.Unlock()
}

// AddOutcome counts one order outcome.
func (s *Stats) AddOutcome(outcome string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.outcomes[outcome]++
	s.mu.Unlock()
}

// AddLedgerWriteError counts a finalize write that failed.
func (s *Stats) AddLedgerWriteError() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.ledgerWriteErrors++
	s.mu.Unlock()
}

// MarkShutdown records when shutdown began and what was still running.
func (s *Stats) MarkShutdown(inflight int64) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.shutdownAt = time.Now()
	s.inflightAtStop = inflight
	s.mu.Unlock()
}

// InFlight sums in-flight calls across routes.
func (s *Stats) InFlight() int64 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.routes {
		n += r.inFlight
	}
	return n
}

// Snapshot copies the current counters.
func (s *Stats) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		UptimeSec:         int64(time.Since(s.start).Seconds()),
		Routes:            make(map[string]RouteSnapshot, len(s.routes)),
		Outcomes:          make(map[string]int64, len(s.outcomes)),
		RateLimitWaits:    s.rateLimitWaits,
		RateLimitWaitMs:   int64(s.rateLimitWait / time.Millisecond),
		RateLimitRejects:  s.rateLimitRejects,
		LedgerWriteErrors: s.ledgerWriteErrors,
	}
	for outcome, n := range s.outcomes {
		snap.Outcomes[outcome] = n
	}
	for name, r := range s.routes {
		avg := 0.0
		if r.count > 0 {
			avg = float64(r.totalLatency.Milliseconds()) / float64(r.count)
		}
		snap.Routes[name] = RouteSnapshot{
			Count:         r.count,
			Errors:        r.errors,
			InFlight:      r.inFlight,
			AvgLatencyMs:  avg,
			MaxLatencyMs:  float64(r.maxLatency.Milliseconds()),
			LastLatencyMs: float64(r.lastLatency.Milliseconds()),
		}
		snap.TotalRequests += r.count
		snap.TotalErrors += r.errors
		snap.InFlight += r.inFlight
	}
	if !s.shutdownAt.IsZero() {
		snap.Lifecycle = &LifecycleSnapshot{ShutdownAt: s.shutdownAt, InFlightAtShutdown: s.inflightAtStop}
	}
	return snap
}

func (s *Stats) route(name string) *routeStats {
	r, ok := s.routes[name]
	if !ok {
		r = &routeStats{}
		s.routes[name] = r
	}
	return r
}

func (s *Stats) finish(name string, dur time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.route(name)
	r.inFlight--
	r.count++
	if failed {
		r.errors++
	}
	r.totalLatency += dur
	r.maxLatency = max(r.maxLatency, dur)
	r.lastLatency = dur
}
