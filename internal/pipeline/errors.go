package pipeline

import (
	"fmt"

	"github.com/Mezraniwassim/moxnas-confd/internal/export"
)

// Pipeline stages, attached to every failure for diagnosability.
const (
	StageSnapshot = "snapshot"
	StageRender   = "render"
	StageValidate = "validate"
	StageBackup   = "backup"
	StageApply    = "apply"
	StageReload   = "reload"
)

// ValidationFailedError means the rendered candidate was rejected by
// the service's syntax checker. The live configuration is untouched.
type ValidationFailedError struct {
	Service     export.ServiceKind
	Diagnostics string
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("%s candidate rejected by syntax checker: %s", e.Service, e.Diagnostics)
}

// ReloadFailedError means the service manager refused the reload of
// the new configuration. The previous configuration was restored and
// reloaded successfully.
type ReloadFailedError struct {
	Service export.ServiceKind
	Err     error
}

func (e *ReloadFailedError) Error() string {
	return fmt.Sprintf("%s reload failed, previous configuration restored: %v", e.Service, e.Err)
}

func (e *ReloadFailedError) Unwrap() error {
	return e.Err
}

// RollbackFailedError is fatal: restoring the backup itself failed, so
// the live configuration is in an unknown state. The operator must
// inspect the backup path manually.
type RollbackFailedError struct {
	Service     export.ServiceKind
	BackupPath  string
	Cause       error
	RollbackErr error
}

func (e *RollbackFailedError) Error() string {
	return fmt.Sprintf("%s rollback failed after %v: %v; inspect %s manually",
		e.Service, e.Cause, e.RollbackErr, e.BackupPath)
}

func (e *RollbackFailedError) Unwrap() error {
	return e.RollbackErr
}

// RecoveryReloadFailedError is fatal: the backup was restored, but even
// the last-known-good configuration could not be reloaded. The service
// is in whatever state the service manager reports; poll status before
// any further automated action.
type RecoveryReloadFailedError struct {
	Service     export.ServiceKind
	ReloadErr   error
	RecoveryErr error
}

func (e *RecoveryReloadFailedError) Error() string {
	return fmt.Sprintf("%s reload failed (%v) and reload of the restored configuration also failed: %v",
		e.Service, e.ReloadErr, e.RecoveryErr)
}

func (e *RecoveryReloadFailedError) Unwrap() error {
	return e.RecoveryErr
}
