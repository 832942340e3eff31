// Package store holds the process-wide, in-memory test-state registry:
// RunConfig (immutable) and RunState (mutable, concurrency-safe) plus the
// keyed map that the admission layer, dispatcher, and query paths share.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is one of the RunState lifecycle values.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
	StatusCompleted Status = "completed"
	StatusFailed   Status = "failed"
)

// Terminal reports whether s is one of the terminal states.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopped:
		return true
	default:
		return false
	}
}

// ShapeRef names a rate-shape evaluator and its configuration.
type ShapeRef struct {
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

// RunConfig is the immutable description of a run, constructed once at
// admission and never mutated afterward.
type RunConfig struct {
	TestType        string    `json:"test_type"`
	DurationSeconds *int      `json:"duration_seconds,omitempty"`
	NumRequests     *int      `json:"num_requests,omitempty"`
	TargetRPS       *float64  `json:"target_rps,omitempty"`
	UserCount       int       `json:"user_count"`
	SpawnRate       float64   `json:"spawn_rate"`
	Shape           *ShapeRef `json:"shape,omitempty"`
	TargetURL       string    `json:"target_url"`
	Method          string    `json:"method"`
}

// Metrics is the broadcastable view of a run's live counters.
type Metrics struct {
	RequestCount        int64   `json:"request_count"`
	SuccessCount         int64   `json:"success_count"`
	FailureCount        int64   `json:"failure_count"`
	RPS                 float64 `json:"rps"`
	AvgLatencyMs        float64 `json:"avg_latency_ms"`
	ActiveUsersEstimate int     `json:"active_users_estimate"`
}

// ResponseTimes is the optional historical percentile summary computed
// once a run reaches a terminal state (§4.10 of the expanded spec).
type ResponseTimes struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	Median time.Duration `json:"median"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	StdDev time.Duration `json:"std_dev"`
}

// RunState is the mutable per-run record. All mutation happens through its
// methods, which take the internal mutex; callers never touch the fields
// directly from outside the package.
type RunState struct {
	TestID    string
	Config    RunConfig
	StartTime time.Time
	EndTime   time.Time

	mu                  sync.Mutex
	status              Status
	metrics             Metrics
	inFlight            int
	latencySamples      []time.Duration
	responseTimes       *ResponseTimes

	cancel context.CancelFunc
	ctx    context.Context
}

// Snapshot is an immutable copy of a RunState for status queries and
// broadcasts, safe to read without the lock.
type Snapshot struct {
	TestID        string
	Status        Status
	Config        RunConfig
	StartTime     time.Time
	EndTime       time.Time
	Metrics       Metrics
	ResponseTimes *ResponseTimes
}

func (s *RunState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		TestID:        s.TestID,
		Status:        s.status,
		Config:        s.Config,
		StartTime:     s.StartTime,
		EndTime:       s.EndTime,
		Metrics:       s.metrics,
		ResponseTimes: s.responseTimes,
	}
}

func (s *RunState) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Context returns the run's cancellation context; the dispatcher selects
// on ctx.Done() at every suspension point.
func (s *RunState) Context() context.Context {
	return s.ctx
}

// SetRunning transitions pending -> running and records the start time.
// Any other status (e.g. stopping after an early stop) is left unchanged.
func (s *RunState) SetRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusPending {
		s.status = StatusRunning
	}
	s.StartTime = time.Now()
}

// RequestStarted records the start of one request: increments request_count
// and in_flight, before the matching success/failure increment as required
// by the ordering invariant.
func (s *RunState) RequestStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight++
	s.metrics.RequestCount++
	s.metrics.ActiveUsersEstimate = clampInt(s.inFlight, 0, s.Config.UserCount)
}

// RequestFinished records the completion of one request: success/failure,
// latency rolling average, and in_flight decrement.
func (s *RunState) RequestFinished(success bool, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if success {
		s.metrics.SuccessCount++
	} else {
		s.metrics.FailureCount++
	}
	n := s.metrics.RequestCount
	if n > 0 {
		prevAvg := s.metrics.AvgLatencyMs
		latencyMs := float64(latency.Microseconds()) / 1000.0
		s.metrics.AvgLatencyMs = (prevAvg*float64(n-1) + latencyMs) / float64(n)
	}
	s.latencySamples = append(s.latencySamples, latency)

	s.inFlight--
	if s.inFlight < 0 {
		s.inFlight = 0
	}
	s.metrics.ActiveUsersEstimate = clampInt(s.inFlight, 0, s.Config.UserCount)
}

// SetRPS writes the dispatcher's current shape-evaluated rate into metrics.
func (s *RunState) SetRPS(rps float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.RPS = rps
}

// RequestCount returns request_count as observed for the
// dispatcher's cap check (request_count + |pending| >= num_requests is
// computed by the dispatcher, which tracks pending itself).
func (s *RunState) RequestCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics.RequestCount
}

// RequestStop transitions running (or pending) -> stopping and cancels the
// run context.
// Returns false if the run was not in a cancelable state.
func (s *RunState) RequestStop() bool {
	s.mu.Lock()
	status := s.status
	if status != StatusRunning && status != StatusPending {
		s.mu.Unlock()
		return false
	}
	s.status = StatusStopping
	s.mu.Unlock()
	s.cancel()
	return true
}

// Finalize transitions to a terminal status, computing final RPS and
// clearing in_flight/active_users_estimate, and optionally attaching a
// percentile summary computed from the latency samples collected so far.
func (s *RunState) Finalize(cancelled bool, failed bool, responseTimes *ResponseTimes) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.EndTime = time.Now()
	switch {
	case failed:
		s.status = StatusFailed
	case cancelled:
		s.status = StatusStopped
	default:
		s.status = StatusCompleted
	}

	if duration := s.EndTime.Sub(s.StartTime).Seconds(); duration > 0 {
		s.metrics.RPS = float64(s.metrics.RequestCount) / duration
	}
	s.inFlight = 0
	s.metrics.ActiveUsersEstimate = 0
	s.responseTimes = responseTimes
}

// LatencySamples returns a copy of the collected per-request latencies, for
// the percentile collector to consume at finalization.
func (s *RunState) LatencySamples() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.latencySamples))
	copy(out, s.latencySamples)
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Store is the process-wide concurrent map of RunState keyed by test-id.
type Store struct {
	mu    sync.RWMutex
	runs  map[string]*RunState
}

func New() *Store {
	return &Store{runs: make(map[string]*RunState)}
}

// Create registers a new RunState under a fresh uuid test-id.
func (st *Store) Create(config RunConfig) *RunState {
	ctx, cancel := context.WithCancel(context.Background())
	state := &RunState{
		TestID: uuid.NewString(),
		Config: config,
		status: StatusPending,
		ctx:    ctx,
		cancel: cancel,
	}
	st.mu.Lock()
	st.runs[state.TestID] = state
	st.mu.Unlock()
	return state
}

func (st *Store) Get(testID string) (*RunState, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.runs[testID]
	return s, ok
}

func (st *Store) ListAll() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	ids := make([]string, 0, len(st.runs))
	for id := range st.runs {
		ids = append(ids, id)
	}
	return ids
}

func (st *Store) ListRunning() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	var ids []string
	for id, s := range st.runs {
		if s.Status() == StatusRunning {
			ids = append(ids, id)
		}
	}
	return ids
}
