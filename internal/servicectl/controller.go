package servicectl

import "context"

// Status describes the running state of a service unit as reported by
// the host's service manager.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	// StatusUnknown means the status query itself failed. It is never
	// substituted with a guess.
	StatusUnknown Status = "unknown"
)

// ReloadResult reports how a reload request was satisfied.
type ReloadResult struct {
	// UsedRestart is true when the unit does not support reload and
	// the controller fell back to a full restart.
	UsedRestart bool
}

// Controller drives a named service unit through the host's service
// manager. Every call blocks with a bounded timeout.
type Controller interface {
	Start(ctx context.Context, unit string) error
	Stop(ctx context.Context, unit string) error
	Restart(ctx context.Context, unit string) error
	Reload(ctx context.Context, unit string) (ReloadResult, error)
	Status(ctx context.Context, unit string) Status
}
