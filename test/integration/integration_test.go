//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Mezraniwassim/moxnas-confd/internal/applier"
	"github.com/Mezraniwassim/moxnas-confd/internal/coordinator"
	"github.com/Mezraniwassim/moxnas-confd/internal/export"
	"github.com/Mezraniwassim/moxnas-confd/internal/healthcheck"
	"github.com/Mezraniwassim/moxnas-confd/internal/logging"
	"github.com/Mezraniwassim/moxnas-confd/internal/pipeline"
	"github.com/Mezraniwassim/moxnas-confd/internal/render"
	"github.com/Mezraniwassim/moxnas-confd/internal/server"
	"github.com/Mezraniwassim/moxnas-confd/internal/servicectl"
	"github.com/Mezraniwassim/moxnas-confd/internal/validate"
)

// TestIntegrationRegenerateFlow drives the whole engine through its HTTP
// surface: a trigger arriving over POST /regenerate flows through render,
// validate, apply, and reload, and the result is observable both in
// GET /state and in the live file on disk.
//
// Uses real processes for the syntax checker (sh) but substitutes the
// systemctl invocation, so it runs anywhere with a POSIX shell.
//
// Run with: go test -tags=integration -v ./test/integration/...
func TestIntegrationRegenerateFlow(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skipf("no /bin/sh available: %v", err)
	}

	logger := logging.New()
	dir := t.TempDir()

	exportsPath := filepath.Join(dir, "exports.yaml")
	writeExports(t, exportsPath, `
exports:
  smb:
    - name: media
      path: /srv/media
      comment: Shared media
    - name: backups
      path: /srv/backups
      read_only: true
`)

	livePath := filepath.Join(dir, "smb.conf")
	if err := os.WriteFile(livePath, []byte("# hand-written predecessor\n"), 0o644); err != nil {
		t.Fatalf("seed live config: %v", err)
	}

	var mu sync.Mutex
	var reloaded []string
	controller := servicectl.NewSystemdController(logger, 5*time.Second,
		servicectl.WithCommandRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
			mu.Lock()
			defer mu.Unlock()
			reloaded = append(reloaded, strings.Join(args, " "))
			return nil, nil
		}))
	reloads := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), reloaded...)
	}

	// The candidate path is appended as the command's final argument,
	// which sh -c binds to $0.
	validator := validate.NewExecValidator(logger, map[export.ServiceKind][]string{
		export.KindSMB: {"/bin/sh", "-c", `test -s "$0"`},
	}, 5*time.Second)

	orch := pipeline.New(export.KindSMB, pipeline.Deps{
		Logger:     logger,
		Provider:   export.NewFileProvider(exportsPath),
		Renderer:   render.New(),
		Validator:  validator,
		Applier:    applier.New(logger, livePath, livePath+".bak", 0o644),
		Controller: controller,
		Unit:       "smbd",
	})

	tracker := healthcheck.NewTracker()
	coord := coordinator.New(logger, orch)
	mux := server.NewMux(coord, tracker, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		_ = coord.Run(ctx)
	}()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/regenerate/smb", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("trigger: expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	state := waitForApply(t, mux)

	if state.AppliedChecksum == "" {
		t.Fatal("expected applied checksum after regeneration")
	}
	if state.LastError != "" {
		t.Fatalf("unexpected error in state: %s", state.LastError)
	}

	live, err := os.ReadFile(livePath)
	if err != nil {
		t.Fatalf("read live config: %v", err)
	}
	for _, want := range []string{"[media]", "[backups]", "path = /srv/media", "read only = yes"} {
		if !strings.Contains(string(live), want) {
			t.Errorf("live config missing %q:\n%s", want, live)
		}
	}
	if got := render.ChecksumOfConfig(live); got != state.AppliedChecksum {
		t.Errorf("live file checksum %s does not match reported %s", got, state.AppliedChecksum)
	}

	backup, err := os.ReadFile(livePath + ".bak")
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(backup) != "# hand-written predecessor\n" {
		t.Errorf("backup does not preserve previous live config: %q", backup)
	}

	if calls := reloads(); len(calls) != 1 || calls[0] != "reload smbd" {
		t.Errorf("expected one reload of smbd, got %v", calls)
	}

	// A second trigger with unchanged exports must skip apply and reload.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/regenerate/smb", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("second trigger: expected 202, got %d", rec.Code)
	}
	time.Sleep(200 * time.Millisecond)
	if calls := reloads(); len(calls) != 1 {
		t.Errorf("unchanged config should not reload, got %v", calls)
	}

	cancel()
	select {
	case <-workerDone:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not stop after cancellation")
	}
}

func writeExports(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write exports file: %v", err)
	}
}

func waitForApply(t *testing.T, mux http.Handler) pipeline.State {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state/smb", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("state: expected 200, got %d", rec.Code)
		}
		var state pipeline.State
		if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
			t.Fatalf("decode state: %v", err)
		}
		if !state.LastAppliedAt.IsZero() {
			return state
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timed out waiting for configuration to apply")
	return pipeline.State{}
}
