package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileProvider_Snapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exports.yaml")

	content := `exports:
  smb:
    - name: docs
      path: /data/docs
      read_only: true
      valid_users: [alice, bob]
  nfs:
    - name: media
      path: /data/media
      hosts_allow: ["192.168.1.0/24"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write exports file: %v", err)
	}

	provider := NewFileProvider(path)

	smb, err := provider.Snapshot(context.Background(), KindSMB)
	if err != nil {
		t.Fatalf("snapshot smb: %v", err)
	}
	if len(smb) != 1 {
		t.Fatalf("expected 1 smb export, got %d", len(smb))
	}
	if smb[0].Name != "docs" || smb[0].Path != "/data/docs" || !smb[0].ReadOnly {
		t.Fatalf("unexpected smb export: %+v", smb[0])
	}
	if len(smb[0].ValidUsers) != 2 {
		t.Fatalf("expected 2 valid users, got %v", smb[0].ValidUsers)
	}

	nfs, err := provider.Snapshot(context.Background(), KindNFS)
	if err != nil {
		t.Fatalf("snapshot nfs: %v", err)
	}
	if len(nfs) != 1 || nfs[0].HostsAllow[0] != "192.168.1.0/24" {
		t.Fatalf("unexpected nfs exports: %+v", nfs)
	}
}

func TestFileProvider_SnapshotMissingFile(t *testing.T) {
	provider := NewFileProvider(filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := provider.Snapshot(context.Background(), KindSMB); err == nil {
		t.Fatalf("expected error for missing exports file")
	}
}

func TestFileProvider_SnapshotUnknownKindEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exports.yaml")
	if err := os.WriteFile(path, []byte("exports: {}\n"), 0o644); err != nil {
		t.Fatalf("write exports file: %v", err)
	}

	provider := NewFileProvider(path)
	exports, err := provider.Snapshot(context.Background(), KindSMB)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(exports) != 0 {
		t.Fatalf("expected empty export set, got %v", exports)
	}
}

func TestStaticProvider_SnapshotIsCopy(t *testing.T) {
	provider := NewStaticProvider()
	provider.Set(KindSMB, []ShareExport{{Name: "docs", Path: "/data/docs"}})

	first, err := provider.Snapshot(context.Background(), KindSMB)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	first[0].Name = "mutated"

	second, err := provider.Snapshot(context.Background(), KindSMB)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if second[0].Name != "docs" {
		t.Fatalf("snapshot leaked internal slice: %+v", second[0])
	}
}

func TestIsBrowseableDefault(t *testing.T) {
	e := ShareExport{Name: "docs", Path: "/data/docs"}
	if !e.IsBrowseable() {
		t.Fatalf("expected browseable by default")
	}
	hidden := false
	e.Browseable = &hidden
	if e.IsBrowseable() {
		t.Fatalf("expected hidden share")
	}
}
