package pipeline

import (
	"time"

	"github.com/Mezraniwassim/moxnas-confd/internal/export"
)

// LifecycleState is the position of a service's pipeline in the
// generate, validate, apply, reload cycle.
type LifecycleState string

const (
	StateIdle       LifecycleState = "idle"
	StateRendering  LifecycleState = "rendering"
	StateValidating LifecycleState = "validating"
	StateApplying   LifecycleState = "applying"
	StateReloading  LifecycleState = "reloading"
	StateApplied    LifecycleState = "applied"
	StateFailed     LifecycleState = "failed"
)

// State is a point-in-time snapshot of one service's configuration
// state. Applied and Failed are momentary; the machine returns to Idle
// after recording the outcome in LastResult, so the next trigger always
// gets a fresh attempt.
type State struct {
	Service          export.ServiceKind `json:"service"`
	Lifecycle        LifecycleState     `json:"lifecycle"`
	LastResult       LifecycleState     `json:"last_result,omitempty"`
	RenderedChecksum string             `json:"rendered_checksum,omitempty"`
	AppliedChecksum  string             `json:"applied_checksum,omitempty"`
	BackupPath       string             `json:"backup_path,omitempty"`
	LastError        string             `json:"last_error,omitempty"`
	LastRunAt        time.Time          `json:"last_run_at,omitempty"`
	LastAppliedAt    time.Time          `json:"last_applied_at,omitempty"`
}
