package notify

import (
	"context"
	"time"
)

// Event describes one pipeline failure for operator alerting. Fatal
// events mean the live configuration may be in an unknown state and
// must be surfaced loudly, not just logged.
type Event struct {
	Service    string    `json:"service"`
	Stage      string    `json:"stage"`
	Error      string    `json:"error"`
	Fatal      bool      `json:"fatal"`
	BackupPath string    `json:"backup_path,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier delivers pipeline failure events to external systems.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}
