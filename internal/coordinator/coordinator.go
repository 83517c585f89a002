package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Mezraniwassim/moxnas-confd/internal/export"
	"github.com/Mezraniwassim/moxnas-confd/internal/pipeline"
	"github.com/rs/zerolog"
)

// ErrUnknownKind is returned for triggers and queries naming a service
// kind the coordinator does not manage.
type ErrUnknownKind struct {
	Kind export.ServiceKind
}

func (e *ErrUnknownKind) Error() string {
	return fmt.Sprintf("unknown service kind %q", e.Kind)
}

// Coordinator owns one pipeline orchestrator per managed service kind.
// It spawns their workers in parallel and routes triggers and state
// queries by kind. The set of kinds is fixed at construction.
type Coordinator struct {
	logger        zerolog.Logger
	orchestrators map[export.ServiceKind]*pipeline.Orchestrator
}

// New constructs a Coordinator over the given orchestrators.
func New(logger zerolog.Logger, orchestrators ...*pipeline.Orchestrator) *Coordinator {
	byKind := make(map[export.ServiceKind]*pipeline.Orchestrator, len(orchestrators))
	for _, o := range orchestrators {
		byKind[o.Kind()] = o
	}
	return &Coordinator{
		logger:        logger,
		orchestrators: byKind,
	}
}

// Run starts all pipeline workers and blocks until the context is
// canceled. Runs for different kinds proceed in parallel; they touch
// disjoint files and disjoint service units.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info().Int("services", len(c.orchestrators)).Msg("starting coordinator")

	var wg sync.WaitGroup
	for _, o := range c.orchestrators {
		wg.Add(1)
		go func(o *pipeline.Orchestrator) {
			defer wg.Done()
			_ = o.Run(ctx)
		}(o)
	}

	wg.Wait()
	c.logger.Info().Msg("all pipeline workers stopped")
	return nil
}

// Trigger requests a regeneration for one service kind. Returns whether
// the trigger coalesced into an already-pending run.
func (c *Coordinator) Trigger(kind export.ServiceKind) (coalesced bool, err error) {
	o, ok := c.orchestrators[kind]
	if !ok {
		return false, &ErrUnknownKind{Kind: kind}
	}
	return o.Trigger(), nil
}

// State returns the current configuration state for one service kind.
func (c *Coordinator) State(kind export.ServiceKind) (pipeline.State, error) {
	o, ok := c.orchestrators[kind]
	if !ok {
		return pipeline.State{}, &ErrUnknownKind{Kind: kind}
	}
	return o.State(), nil
}

// States returns the state of every managed service kind, ordered by
// kind for deterministic output.
func (c *Coordinator) States() []pipeline.State {
	states := make([]pipeline.State, 0, len(c.orchestrators))
	for _, o := range c.orchestrators {
		states = append(states, o.State())
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].Service < states[j].Service
	})
	return states
}

// RunInitial executes one synchronous pipeline run for every kind.
// Used at startup so the live configuration converges to the current
// export data before the engine starts serving triggers.
func (c *Coordinator) RunInitial(ctx context.Context) {
	for _, state := range c.States() {
		if o, ok := c.orchestrators[state.Service]; ok {
			o.RunOnce(ctx)
		}
	}
}
