package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/Mezraniwassim/moxnas-confd/internal/export"
	"github.com/Mezraniwassim/moxnas-confd/internal/healthcheck"
	"github.com/Mezraniwassim/moxnas-confd/internal/metrics"
	"github.com/Mezraniwassim/moxnas-confd/internal/notify"
	"github.com/Mezraniwassim/moxnas-confd/internal/render"
	"github.com/Mezraniwassim/moxnas-confd/internal/servicectl"
	"github.com/Mezraniwassim/moxnas-confd/internal/validate"
	"github.com/rs/zerolog"
)

// ConfigApplier is the filesystem primitive the orchestrator composes.
// *applier.Applier satisfies it; tests substitute failure-injecting fakes.
type ConfigApplier interface {
	Backup() error
	Apply(content []byte) error
	Rollback() error
	ReadLive() ([]byte, error)
	LivePath() string
	BackupPath() string
}

// Deps collects the collaborators for one service kind's pipeline.
type Deps struct {
	Logger     zerolog.Logger
	Provider   export.Provider
	Renderer   *render.Renderer
	Validator  validate.Validator
	Applier    ConfigApplier
	Controller servicectl.Controller
	Notifier   notify.Notifier
	Metrics    *metrics.Metrics
	Tracker    *healthcheck.Tracker
	Unit       string
	RunTimeout time.Duration
}

// Orchestrator drives the generate, validate, apply, reload pipeline
// for a single service kind. Runs are strictly sequential: the worker
// goroutine owns the pipeline, and triggers arriving while a run is in
// flight coalesce into at most one follow-up run.
type Orchestrator struct {
	logger     zerolog.Logger
	kind       export.ServiceKind
	unit       string
	provider   export.Provider
	renderer   *render.Renderer
	validator  validate.Validator
	applier    ConfigApplier
	controller servicectl.Controller
	notifier   notify.Notifier
	metrics    *metrics.Metrics
	tracker    *healthcheck.Tracker
	runTimeout time.Duration

	trigger chan struct{}

	mu    sync.Mutex
	state State
}

// New constructs an Orchestrator for one service kind. If the live
// configuration file already carries this engine's banner, its checksum
// seeds the applied checksum so an unchanged export set is recognized
// across restarts.
func New(kind export.ServiceKind, deps Deps) *Orchestrator {
	runTimeout := deps.RunTimeout
	if runTimeout <= 0 {
		runTimeout = 60 * time.Second
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NewNoop(deps.Logger, "")
	}

	o := &Orchestrator{
		logger:     deps.Logger.With().Str("service", string(kind)).Logger(),
		kind:       kind,
		unit:       deps.Unit,
		provider:   deps.Provider,
		renderer:   deps.Renderer,
		validator:  deps.Validator,
		applier:    deps.Applier,
		controller: deps.Controller,
		notifier:   notifier,
		metrics:    deps.Metrics,
		tracker:    deps.Tracker,
		runTimeout: runTimeout,
		trigger:    make(chan struct{}, 1),
		state: State{
			Service:    kind,
			Lifecycle:  StateIdle,
			BackupPath: deps.Applier.BackupPath(),
		},
	}

	if live, err := deps.Applier.ReadLive(); err == nil {
		o.state.AppliedChecksum = render.ChecksumOfConfig(live)
	}

	return o
}

// Kind returns the service kind this orchestrator manages.
func (o *Orchestrator) Kind() export.ServiceKind {
	return o.kind
}

// Trigger requests a regeneration. If a run is in flight and one is
// already owed, the trigger coalesces; the final state always reflects
// the latest export data because each run snapshots afresh. Returns
// true when the trigger was coalesced into a pending run.
func (o *Orchestrator) Trigger() bool {
	select {
	case o.trigger <- struct{}{}:
		return false
	default:
		o.metrics.IncCoalesced(string(o.kind))
		o.logger.Debug().Msg("trigger coalesced into pending run")
		return true
	}
}

// State returns a snapshot of the current configuration state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Run processes triggers until the context is canceled. A run that has
// begun applying is always driven to a terminal state before the
// worker exits.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info().Str("unit", o.unit).Msg("pipeline worker started")
	for {
		select {
		case <-ctx.Done():
			o.logger.Info().Msg("pipeline worker stopped")
			return nil
		case <-o.trigger:
			o.runOnce(ctx)
		}
	}
}

// RunOnce executes a single pipeline run synchronously. Used for the
// optional regeneration pass at startup; normal operation goes through
// Trigger and the worker loop.
func (o *Orchestrator) RunOnce(ctx context.Context) {
	o.runOnce(ctx)
}

func (o *Orchestrator) runOnce(ctx context.Context) {
	start := time.Now()

	// Stages before apply respect cancellation; a fresher trigger can
	// abandon them. Once the backup is taken the run must reach a
	// terminal state, so those stages run on a detached context.
	preCtx, cancel := context.WithTimeout(ctx, o.runTimeout)
	defer cancel()

	o.transition(StateRendering)

	exports, err := o.provider.Snapshot(preCtx, o.kind)
	if err != nil {
		o.fail(ctx, start, StageSnapshot, err, false)
		return
	}

	result, err := o.renderer.Render(o.kind, exports)
	if err != nil {
		o.fail(ctx, start, StageRender, err, false)
		return
	}

	o.mu.Lock()
	o.state.RenderedChecksum = result.Checksum
	unchanged := o.state.AppliedChecksum == result.Checksum
	o.mu.Unlock()

	if unchanged {
		o.logger.Debug().Str("checksum", result.Checksum).Msg("configuration unchanged, skipping apply")
		o.finish(start, "unchanged")
		return
	}

	o.transition(StateValidating)

	vres, err := o.validator.Validate(preCtx, o.kind, []byte(result.Text))
	if err != nil {
		o.fail(ctx, start, StageValidate, err, false)
		return
	}
	if !vres.Valid {
		o.fail(ctx, start, StageValidate, &ValidationFailedError{Service: o.kind, Diagnostics: vres.Output}, false)
		return
	}
	if vres.Skipped {
		o.logger.Debug().Msg("no syntax checker configured, relying on reload to reject bad syntax")
	}

	applyCtx := context.WithoutCancel(ctx)

	o.transition(StateApplying)

	if err := o.applier.Backup(); err != nil {
		// Live file untouched, nothing to roll back.
		o.fail(ctx, start, StageBackup, err, false)
		return
	}

	if err := o.applier.Apply([]byte(result.Text)); err != nil {
		if rbErr := o.applier.Rollback(); rbErr != nil {
			o.fail(ctx, start, StageApply, &RollbackFailedError{
				Service:     o.kind,
				BackupPath:  o.applier.BackupPath(),
				Cause:       err,
				RollbackErr: rbErr,
			}, true)
			return
		}
		o.fail(ctx, start, StageApply, err, false)
		return
	}

	o.transition(StateReloading)

	rres, err := o.controller.Reload(applyCtx, o.unit)
	if err != nil {
		if rbErr := o.applier.Rollback(); rbErr != nil {
			o.fail(ctx, start, StageReload, &RollbackFailedError{
				Service:     o.kind,
				BackupPath:  o.applier.BackupPath(),
				Cause:       err,
				RollbackErr: rbErr,
			}, true)
			return
		}
		if _, recErr := o.controller.Reload(applyCtx, o.unit); recErr != nil {
			o.fail(ctx, start, StageReload, &RecoveryReloadFailedError{
				Service:     o.kind,
				ReloadErr:   err,
				RecoveryErr: recErr,
			}, true)
			return
		}
		o.fail(ctx, start, StageReload, &ReloadFailedError{Service: o.kind, Err: err}, false)
		return
	}
	if rres.UsedRestart {
		o.logger.Warn().Str("unit", o.unit).Msg("reload satisfied by restart; client connections were interrupted")
		o.metrics.IncReloadFallback(string(o.kind))
	}

	now := time.Now().UTC()
	o.mu.Lock()
	o.state.AppliedChecksum = result.Checksum
	o.state.LastError = ""
	o.state.LastAppliedAt = now
	o.state.Lifecycle = StateApplied
	o.state.LastResult = StateApplied
	o.mu.Unlock()

	o.logger.Info().
		Str("checksum", result.Checksum).
		Int("exports", len(exports)).
		Dur("duration", time.Since(start)).
		Msg("configuration applied and service reloaded")

	o.metrics.SetLastAppliedTimestamp(string(o.kind), now)
	o.finish(start, "applied")
}

func (o *Orchestrator) transition(next LifecycleState) {
	o.mu.Lock()
	o.state.Lifecycle = next
	o.mu.Unlock()
	o.logger.Debug().Str("lifecycle", string(next)).Msg("pipeline stage entered")
}

// finish records a terminal outcome and returns the machine to Idle.
func (o *Orchestrator) finish(start time.Time, result string) {
	now := time.Now().UTC()
	o.mu.Lock()
	o.state.Lifecycle = StateIdle
	o.state.LastRunAt = now
	o.mu.Unlock()

	o.metrics.IncRunsTotal(string(o.kind), result)
	o.metrics.ObserveRunDuration(string(o.kind), time.Since(start))
	o.tracker.RecordRun(string(o.kind), time.Since(start), result != "failed")
}

func (o *Orchestrator) fail(ctx context.Context, start time.Time, stage string, err error, fatal bool) {
	now := time.Now().UTC()
	o.mu.Lock()
	o.state.Lifecycle = StateFailed
	o.state.LastResult = StateFailed
	o.state.LastError = err.Error()
	o.state.LastRunAt = now
	o.mu.Unlock()

	logEvent := o.logger.Error()
	if fatal {
		logEvent = o.logger.Error().Bool("fatal", true)
	}
	logEvent.Err(err).Str("stage", stage).Msg("pipeline run failed")

	o.metrics.IncStageFailure(string(o.kind), stage)
	o.metrics.IncRunsTotal(string(o.kind), "failed")
	o.metrics.ObserveRunDuration(string(o.kind), time.Since(start))
	o.tracker.RecordRun(string(o.kind), time.Since(start), false)
	if fatal {
		o.tracker.RecordFatal(string(o.kind), err.Error())
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	event := notify.Event{
		Service:    string(o.kind),
		Stage:      stage,
		Error:      err.Error(),
		Fatal:      fatal,
		OccurredAt: now,
	}
	if fatal {
		event.BackupPath = o.applier.BackupPath()
	}
	if notifyErr := o.notifier.Notify(notifyCtx, event); notifyErr != nil {
		o.logger.Error().Err(notifyErr).Msg("failure notification could not be delivered")
	}

	// Failed is momentary: record the outcome, then return to Idle so
	// the next trigger re-enters at Rendering.
	o.mu.Lock()
	o.state.Lifecycle = StateIdle
	o.mu.Unlock()
}
