package healthcheck

import (
	"sync"
	"time"
)

// Snapshot describes the latest pipeline run details.
type Snapshot struct {
	LastRunTime     *time.Time        `json:"last_run_time"`
	LastRunDuration int64             `json:"last_run_duration_ms"`
	RunsCompleted   int               `json:"runs_completed"`
	FatalConditions map[string]string `json:"fatal_conditions,omitempty"`
}

// Tracker records pipeline run outcomes for the health endpoints.
// A fatal condition (failed rollback or failed recovery reload) marks
// the process unhealthy until a later run for that service succeeds.
type Tracker struct {
	mu            sync.RWMutex
	lastRun       time.Time
	lastDuration  time.Duration
	runsCompleted int
	ready         bool
	fatals        map[string]string
}

// NewTracker constructs a new Tracker.
func NewTracker() *Tracker {
	return &Tracker{fatals: make(map[string]string)}
}

// MarkReady records that the engine finished starting up.
func (t *Tracker) MarkReady() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.ready = true
	t.mu.Unlock()
}

// RecordRun updates run timing and clears any fatal condition for the
// service when the run succeeded.
func (t *Tracker) RecordRun(service string, duration time.Duration, succeeded bool) {
	if t == nil {
		return
	}
	now := time.Now().UTC()
	t.mu.Lock()
	t.lastRun = now
	t.lastDuration = duration
	t.runsCompleted++
	if succeeded {
		delete(t.fatals, service)
	}
	t.mu.Unlock()
}

// RecordFatal marks a fatal condition for the service.
func (t *Tracker) RecordFatal(service, reason string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.fatals[service] = reason
	t.mu.Unlock()
}

// Snapshot returns the current tracker snapshot.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var last *time.Time
	if !t.lastRun.IsZero() {
		value := t.lastRun
		last = &value
	}
	var fatals map[string]string
	if len(t.fatals) > 0 {
		fatals = make(map[string]string, len(t.fatals))
		for k, v := range t.fatals {
			fatals[k] = v
		}
	}
	return Snapshot{
		LastRunTime:     last,
		LastRunDuration: int64(t.lastDuration / time.Millisecond),
		RunsCompleted:   t.runsCompleted,
		FatalConditions: fatals,
	}
}

// Ready reports whether the engine finished starting up.
func (t *Tracker) Ready() bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ready
}

// Healthy reports whether no fatal condition is outstanding.
func (t *Tracker) Healthy() bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.fatals) == 0
}
