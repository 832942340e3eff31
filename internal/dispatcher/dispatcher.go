// Package dispatcher drives a single run from "running" to a terminal
// state, consuming a rate-shape evaluator and emitting HTTP requests
// through a bounded worker pool.
package dispatcher

import (
	"errors"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/origo-stack/performance-simulator/internal/broadcast"
	"github.com/origo-stack/performance-simulator/internal/database"
	"github.com/origo-stack/performance-simulator/internal/metrics"
	"github.com/origo-stack/performance-simulator/internal/ratedist"
	"github.com/origo-stack/performance-simulator/internal/store"
	"github.com/origo-stack/performance-simulator/internal/workerpool"
)

// Archiver persists one completed run's final record. Nil-safe: a
// Dependencies with no Archiver simply skips archiving, the same way a nil
// Hub skips broadcasting.
type Archiver interface {
	ArchiveRun(record database.RunRecord) error
}

// ErrNoMode is returned at admission time when a RunConfig selects neither
// paced mode nor shape mode. The external-driver delegation the original
// spec alludes to is out of scope for this repository (see DESIGN.md).
var ErrNoMode = errors.New("run config selects neither paced mode nor shape mode")

const (
	idleTickSleep      = 250 * time.Millisecond
	iterationSleep     = 10 * time.Millisecond
	broadcastInterval  = 1 * time.Second
)

// Dependencies bundles the collaborators a Dispatcher needs, so tests can
// substitute a fake hub/registry without touching package-level state.
type Dependencies struct {
	Registry    *ratedist.Registry
	Hub         broadcast.Publisher
	Archiver    Archiver
	MaxRetries  int
	RequestTO   time.Duration
	HTTPMethod  string
}

// Dispatcher drives one RunState to completion.
type Dispatcher struct {
	deps Dependencies
}

func New(deps Dependencies) *Dispatcher {
	if deps.HTTPMethod == "" {
		deps.HTTPMethod = http.MethodGet
	}
	return &Dispatcher{deps: deps}
}

// SelectMode determines which mode a RunConfig selects, without running it,
// so the admission layer can reject unsupported configs up front.
func SelectMode(cfg store.RunConfig) (mode string, err error) {
	hasShape := cfg.Shape != nil
	hasTargetRPS := cfg.TargetRPS != nil
	if cfg.NumRequests != nil && !hasShape && !hasTargetRPS {
		return "paced", nil
	}
	if hasShape || hasTargetRPS {
		return "shape", nil
	}
	return "", ErrNoMode
}

// Run executes state's configured mode to completion. It is meant to be
// called in its own goroutine by the admission layer.
func (d *Dispatcher) Run(state *store.RunState) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"test_id": state.TestID,
				"panic":   r,
			}).Error("dispatcher panic, marking run failed")
			state.Finalize(false, true, nil)
			d.publishSnapshot(state)
			d.archiveRun(state)
		}
	}()

	mode, err := SelectMode(state.Config)
	if err != nil {
		logrus.WithFields(logrus.Fields{"test_id": state.TestID, "error": err}).Error("no dispatch mode selected")
		state.Finalize(false, true, nil)
		d.publishSnapshot(state)
		d.archiveRun(state)
		return
	}

	state.SetRunning()

	var shape ratedist.Shape
	if mode == "shape" {
		shape, err = d.buildShape(state.Config)
		if err != nil || !shape.Validate() {
			logrus.WithFields(logrus.Fields{"test_id": state.TestID, "error": err}).Error("invalid shape configuration")
			state.Finalize(false, true, nil)
			d.publishSnapshot(state)
			d.archiveRun(state)
			return
		}
	}

	pool := workerpool.New(state.Config.UserCount, d.deps.RequestTO, d.deps.MaxRetries)
	defer pool.Close()

	var cancelled bool
	if mode == "paced" {
		cancelled = d.runPaced(state, pool)
	} else {
		cancelled = d.runShape(state, pool, shape)
	}

	responseTimes := computeResponseTimes(state.LatencySamples())
	state.Finalize(cancelled, false, responseTimes)
	d.publishSnapshot(state)
	d.archiveRun(state)
}

// archiveRun writes a best-effort archive row for a terminal run. A nil
// Archiver (no DATABASE_URL configured) or a write failure never affects
// the run's own status; only a log line records it.
func (d *Dispatcher) archiveRun(state *store.RunState) {
	if d.deps.Archiver == nil {
		return
	}
	snap := state.Snapshot()
	record := database.RunRecord{
		TestID:       snap.TestID,
		TestType:     snap.Config.TestType,
		TargetURL:    snap.Config.TargetURL,
		Method:       d.deps.HTTPMethod,
		Status:       string(snap.Status),
		RequestCount: snap.Metrics.RequestCount,
		SuccessCount: snap.Metrics.SuccessCount,
		FailureCount: snap.Metrics.FailureCount,
		FinalRPS:     snap.Metrics.RPS,
		AvgLatencyMs: snap.Metrics.AvgLatencyMs,
		StartTime:    snap.StartTime,
		EndTime:      snap.EndTime,
	}
	if snap.ResponseTimes != nil {
		record.P95LatencyMs = float64(snap.ResponseTimes.P95.Microseconds()) / 1000.0
		record.P99LatencyMs = float64(snap.ResponseTimes.P99.Microseconds()) / 1000.0
	}
	if err := d.deps.Archiver.ArchiveRun(record); err != nil {
		logrus.WithFields(logrus.Fields{"test_id": snap.TestID, "error": err}).Warn("failed to archive run record")
	}
}

func (d *Dispatcher) buildShape(cfg store.RunConfig) (ratedist.Shape, error) {
	registry := d.deps.Registry
	if registry == nil {
		registry = ratedist.Default()
	}
	if cfg.Shape != nil {
		return registry.Instantiate(cfg.Shape.Name, cfg.Shape.Config)
	}
	// Only target_rps set, no shape: use constant with empty config.
	return registry.Instantiate("constant", map[string]any{})
}

// runPaced issues exactly num_requests requests at interval 1/spawn_rate.
func (d *Dispatcher) runPaced(state *store.RunState, pool *workerpool.Pool) (cancelled bool) {
	cfg := state.Config
	n := 0
	if cfg.NumRequests != nil {
		n = *cfg.NumRequests
	}
	interval := time.Duration(float64(time.Second) / cfg.SpawnRate)
	broadcastEvery := int(math.Max(1, math.Floor(cfg.SpawnRate)))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		select {
		case <-state.Context().Done():
			wg.Wait()
			return true
		default:
		}

		if !pool.Acquire(state.Context()) {
			wg.Wait()
			return true
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer pool.Release()
			d.executeOne(state, pool)
		}()

		if (i+1)%broadcastEvery == 0 {
			d.publishSnapshot(state)
		}
		time.Sleep(interval)
	}
	wg.Wait()
	return false
}

// runShape is the token-bucket driver described in SPEC_FULL.md §4.4.
func (d *Dispatcher) runShape(state *store.RunState, pool *workerpool.Pool, shape ratedist.Shape) (cancelled bool) {
	cfg := state.Config
	targetRPS := 0.0
	if cfg.TargetRPS != nil {
		targetRPS = *cfg.TargetRPS
	}

	start := time.Now()
	lastTick := start
	lastBroadcast := start
	tokens := 0.0

	var pendingMu sync.Mutex
	pending := make(map[int]struct{})
	var pendingSeq int
	var wg sync.WaitGroup

	removePending := func(id int) {
		pendingMu.Lock()
		delete(pending, id)
		pendingMu.Unlock()
	}
	pendingCount := func() int {
		pendingMu.Lock()
		defer pendingMu.Unlock()
		return len(pending)
	}

	for {
		if state.Status() != store.StatusRunning {
			cancelled = true
			break
		}

		now := time.Now()
		elapsed := now.Sub(start)
		if cfg.DurationSeconds != nil && elapsed.Seconds() >= float64(*cfg.DurationSeconds) {
			break
		}
		if cfg.NumRequests != nil && state.RequestCount()+int64(pendingCount()) >= int64(*cfg.NumRequests) {
			break
		}

		currentRPS := shape.GetRate(elapsed.Seconds(), targetRPS)
		state.SetRPS(currentRPS)

		delta := now.Sub(lastTick).Seconds()
		lastTick = now

		if currentRPS > 0 && delta > 0 {
			capacity := math.Max(1, 2*currentRPS)
			tokens = math.Min(capacity, tokens+currentRPS*delta)
		}

		if currentRPS <= 0 {
			time.Sleep(idleTickSleep)
			continue
		}

		for tokens >= 1 {
			if cfg.NumRequests != nil && state.RequestCount()+int64(pendingCount()) >= int64(*cfg.NumRequests) {
				break
			}
			if !pool.TryAcquire() {
				break
			}
			tokens -= 1

			pendingMu.Lock()
			id := pendingSeq
			pendingSeq++
			pending[id] = struct{}{}
			pendingMu.Unlock()

			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				defer pool.Release()
				defer removePending(id)
				d.executeOne(state, pool)
			}(id)
		}

		if time.Since(lastBroadcast) >= broadcastInterval {
			d.publishSnapshot(state)
			lastBroadcast = time.Now()
		}

		time.Sleep(iterationSleep)
	}

	wg.Wait()
	return cancelled
}

func (d *Dispatcher) executeOne(state *store.RunState, pool *workerpool.Pool) {
	state.RequestStarted()
	t0 := time.Now()
	outcome := pool.Execute(state.Context(), d.deps.HTTPMethod, state.Config.TargetURL)
	latency := time.Since(t0)
	state.RequestFinished(outcome.Success(), latency)
}

func (d *Dispatcher) publishSnapshot(state *store.RunState) {
	if d.deps.Hub == nil {
		return
	}
	snap := state.Snapshot()
	d.deps.Hub.Broadcast(snap.TestID, broadcastPayload(snap))
}

func broadcastPayload(snap store.Snapshot) map[string]any {
	return map[string]any{
		"type":      "metrics",
		"test_id":   snap.TestID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"status":    string(snap.Status),
		"data": map[string]any{
			"requests_sent":         snap.Metrics.RequestCount,
			"responses_received":    snap.Metrics.SuccessCount + snap.Metrics.FailureCount,
			"errors":                snap.Metrics.FailureCount,
			"rps":                   round2(snap.Metrics.RPS),
			"avg_latency_ms":        round2(snap.Metrics.AvgLatencyMs),
			"active_users_estimate": snap.Metrics.ActiveUsersEstimate,
			"configured_users":      snap.Config.UserCount,
		},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func computeResponseTimes(samples []time.Duration) *store.ResponseTimes {
	if len(samples) == 0 {
		return nil
	}
	rt := metrics.CalculatePercentiles(samples)
	return &store.ResponseTimes{
		Min:    rt.Min,
		Max:    rt.Max,
		Mean:   rt.Mean,
		Median: rt.Median,
		P95:    rt.P95,
		P99:    rt.P99,
		StdDev: rt.StdDev,
	}
}
