package applier

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// IOError reports a failed filesystem operation during backup, apply
// or rollback, with the operation and path for diagnosability.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Applier owns the live configuration file and its single backup slot
// for one service kind. It is a pure filesystem primitive: it never
// validates content and never touches the service manager.
//
// Apply and Rollback write a temp file in the live file's directory
// and rename it into place, so concurrent readers of the live path see
// either the fully-old or the fully-new content.
type Applier struct {
	logger     zerolog.Logger
	livePath   string
	backupPath string
	mode       os.FileMode
}

// New constructs an Applier for one live path and backup slot.
func New(logger zerolog.Logger, livePath, backupPath string, mode os.FileMode) *Applier {
	if mode == 0 {
		mode = 0o644
	}
	return &Applier{
		logger:     logger,
		livePath:   livePath,
		backupPath: backupPath,
		mode:       mode,
	}
}

// LivePath returns the live configuration path.
func (a *Applier) LivePath() string { return a.livePath }

// BackupPath returns the backup slot path.
func (a *Applier) BackupPath() string { return a.backupPath }

// ReadLive returns the current live configuration content.
func (a *Applier) ReadLive() ([]byte, error) {
	data, err := os.ReadFile(a.livePath)
	if err != nil {
		return nil, &IOError{Op: "read", Path: a.livePath, Err: err}
	}
	return data, nil
}

// Backup copies the current live configuration to the backup slot,
// overwriting any previous backup. An unreadable live file is a hard
// error; Backup never silently skips.
func (a *Applier) Backup() error {
	data, err := os.ReadFile(a.livePath)
	if err != nil {
		return &IOError{Op: "backup read", Path: a.livePath, Err: err}
	}
	if err := a.writeAtomic(a.backupPath, data); err != nil {
		return err
	}
	a.logger.Debug().Str("live", a.livePath).Str("backup", a.backupPath).Msg("live configuration backed up")
	return nil
}

// Apply replaces the live configuration with content.
func (a *Applier) Apply(content []byte) error {
	if err := a.writeAtomic(a.livePath, content); err != nil {
		return err
	}
	a.logger.Debug().Str("live", a.livePath).Int("bytes", len(content)).Msg("configuration applied")
	return nil
}

// Rollback restores the live configuration from the backup slot using
// the same rename-based swap as Apply.
func (a *Applier) Rollback() error {
	data, err := os.ReadFile(a.backupPath)
	if err != nil {
		return &IOError{Op: "rollback read", Path: a.backupPath, Err: err}
	}
	if err := a.writeAtomic(a.livePath, data); err != nil {
		return err
	}
	a.logger.Info().Str("live", a.livePath).Str("backup", a.backupPath).Msg("live configuration restored from backup")
	return nil
}

func (a *Applier) writeAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+"-*")
	if err != nil {
		return &IOError{Op: "create temp", Path: dir, Err: err}
	}

	cleanup := func() {
		_ = os.Remove(tmp.Name())
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return &IOError{Op: "write", Path: tmp.Name(), Err: err}
	}
	if err := tmp.Chmod(a.mode); err != nil {
		_ = tmp.Close()
		cleanup()
		return &IOError{Op: "chmod", Path: tmp.Name(), Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return &IOError{Op: "sync", Path: tmp.Name(), Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &IOError{Op: "close", Path: tmp.Name(), Err: err}
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		cleanup()
		return &IOError{Op: "rename", Path: target, Err: err}
	}

	if dirHandle, err := os.Open(dir); err == nil {
		_ = dirHandle.Sync()
		_ = dirHandle.Close()
	}

	return nil
}
