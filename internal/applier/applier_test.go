package applier

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func newTestApplier(t *testing.T) (*Applier, string, string) {
	t.Helper()
	dir := t.TempDir()
	live := filepath.Join(dir, "smb.conf")
	backup := filepath.Join(dir, "smb.conf.bak")
	return New(zerolog.Nop(), live, backup, 0o644), live, backup
}

func TestBackupCopiesLiveFile(t *testing.T) {
	a, live, backup := newTestApplier(t)
	if err := os.WriteFile(live, []byte("old config\n"), 0o644); err != nil {
		t.Fatalf("seed live file: %v", err)
	}

	if err := a.Backup(); err != nil {
		t.Fatalf("backup: %v", err)
	}

	data, err := os.ReadFile(backup)
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(data) != "old config\n" {
		t.Fatalf("backup content mismatch: %q", data)
	}
}

func TestBackupOverwritesPreviousBackup(t *testing.T) {
	a, live, backup := newTestApplier(t)
	if err := os.WriteFile(backup, []byte("stale backup\n"), 0o644); err != nil {
		t.Fatalf("seed backup: %v", err)
	}
	if err := os.WriteFile(live, []byte("current config\n"), 0o644); err != nil {
		t.Fatalf("seed live file: %v", err)
	}

	if err := a.Backup(); err != nil {
		t.Fatalf("backup: %v", err)
	}

	data, _ := os.ReadFile(backup)
	if string(data) != "current config\n" {
		t.Fatalf("backup not overwritten: %q", data)
	}
}

func TestBackupFailsOnMissingLiveFile(t *testing.T) {
	a, _, _ := newTestApplier(t)

	err := a.Backup()
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected IOError, got %v", err)
	}
	if ioErr.Op != "backup read" {
		t.Fatalf("unexpected op %q", ioErr.Op)
	}
}

func TestApplyWritesAtomicallyWithMode(t *testing.T) {
	a, live, _ := newTestApplier(t)

	if err := a.Apply([]byte("new config\n")); err != nil {
		t.Fatalf("apply: %v", err)
	}

	data, err := os.ReadFile(live)
	if err != nil {
		t.Fatalf("read live: %v", err)
	}
	if string(data) != "new config\n" {
		t.Fatalf("live content mismatch: %q", data)
	}

	info, err := os.Stat(live)
	if err != nil {
		t.Fatalf("stat live: %v", err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Fatalf("unexpected mode %v", info.Mode().Perm())
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(live))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if entry.Name() != filepath.Base(live) {
			t.Fatalf("leftover file %q", entry.Name())
		}
	}
}

func TestRollbackRestoresBackupContent(t *testing.T) {
	a, live, _ := newTestApplier(t)
	if err := os.WriteFile(live, []byte("known good\n"), 0o644); err != nil {
		t.Fatalf("seed live: %v", err)
	}
	if err := a.Backup(); err != nil {
		t.Fatalf("backup: %v", err)
	}
	if err := a.Apply([]byte("broken candidate\n")); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if err := a.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	data, _ := os.ReadFile(live)
	if string(data) != "known good\n" {
		t.Fatalf("rollback content mismatch: %q", data)
	}
}

func TestRollbackFailsWithoutBackup(t *testing.T) {
	a, _, _ := newTestApplier(t)

	err := a.Rollback()
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected IOError, got %v", err)
	}
}
