package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Mezraniwassim/moxnas-confd/internal/applier"
	"github.com/Mezraniwassim/moxnas-confd/internal/coordinator"
	"github.com/Mezraniwassim/moxnas-confd/internal/export"
	"github.com/Mezraniwassim/moxnas-confd/internal/healthcheck"
	"github.com/Mezraniwassim/moxnas-confd/internal/pipeline"
	"github.com/Mezraniwassim/moxnas-confd/internal/render"
	"github.com/Mezraniwassim/moxnas-confd/internal/servicectl"
	"github.com/Mezraniwassim/moxnas-confd/internal/validate"
	"github.com/rs/zerolog"
)

type okValidator struct{}

func (okValidator) Validate(ctx context.Context, kind export.ServiceKind, candidate []byte) (validate.Result, error) {
	return validate.Result{Valid: true}, nil
}

type okController struct{}

func (okController) Start(ctx context.Context, unit string) error   { return nil }
func (okController) Stop(ctx context.Context, unit string) error    { return nil }
func (okController) Restart(ctx context.Context, unit string) error { return nil }
func (okController) Reload(ctx context.Context, unit string) (servicectl.ReloadResult, error) {
	return servicectl.ReloadResult{}, nil
}
func (okController) Status(ctx context.Context, unit string) servicectl.Status {
	return servicectl.StatusRunning
}

func newTestMux(t *testing.T) (*http.ServeMux, *healthcheck.Tracker) {
	t.Helper()

	dir := t.TempDir()
	livePath := filepath.Join(dir, "smb.conf")
	if err := os.WriteFile(livePath, []byte("# existing\n"), 0o644); err != nil {
		t.Fatalf("seed live file: %v", err)
	}

	logger := zerolog.Nop()
	provider := export.NewStaticProvider()
	provider.Set(export.KindSMB, []export.ShareExport{{Name: "media", Path: "/srv/media"}})

	orch := pipeline.New(export.KindSMB, pipeline.Deps{
		Logger:     logger,
		Provider:   provider,
		Renderer:   render.New(),
		Validator:  okValidator{},
		Applier:    applier.New(logger, livePath, filepath.Join(dir, "smb.conf.bak"), 0o644),
		Controller: okController{},
		Unit:       "smbd",
	})

	tracker := healthcheck.NewTracker()
	coord := coordinator.New(logger, orch)
	return NewMux(coord, tracker, nil), tracker
}

func TestRegenerateAcceptsKnownKind(t *testing.T) {
	mux, _ := newTestMux(t)

	req := httptest.NewRequest(http.MethodPost, "/regenerate/smb", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp TriggerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Service != "smb" {
		t.Errorf("expected service smb, got %q", resp.Service)
	}
	if resp.Coalesced {
		t.Error("first trigger should not be coalesced")
	}
}

func TestRegenerateReportsCoalescing(t *testing.T) {
	mux, _ := newTestMux(t)

	// No worker is draining the trigger channel, so the second request
	// must coalesce into the pending one.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/regenerate/smb", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusAccepted {
			t.Fatalf("request %d: expected 202, got %d", i, rec.Code)
		}
		var resp TriggerResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if want := i == 1; resp.Coalesced != want {
			t.Errorf("request %d: coalesced = %v, want %v", i, resp.Coalesced, want)
		}
	}
}

func TestRegenerateUnknownKind(t *testing.T) {
	mux, _ := newTestMux(t)

	req := httptest.NewRequest(http.MethodPost, "/regenerate/ftp", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStateEndpoints(t *testing.T) {
	mux, _ := newTestMux(t)

	req := httptest.NewRequest(http.MethodGet, "/state/smb", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var state pipeline.State
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Service != export.KindSMB {
		t.Errorf("expected service smb, got %q", state.Service)
	}
	if state.Lifecycle != pipeline.StateIdle {
		t.Errorf("expected idle lifecycle, got %q", state.Lifecycle)
	}

	req = httptest.NewRequest(http.MethodGet, "/state/ftp", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown kind, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/state", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for state list, got %d", rec.Code)
	}
	var states []pipeline.State
	if err := json.Unmarshal(rec.Body.Bytes(), &states); err != nil {
		t.Fatalf("decode states: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("expected 1 state, got %d", len(states))
	}
}

func TestHealthEndpoints(t *testing.T) {
	mux, tracker := newTestMux(t)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before ready, got %d", rec.Code)
	}

	tracker.MarkReady()

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after ready, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 healthy, got %d", rec.Code)
	}

	tracker.RecordFatal("smb", "rollback failed")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after fatal condition, got %d", rec.Code)
	}
}
