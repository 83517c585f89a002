package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Mezraniwassim/moxnas-confd/internal/coordinator"
	"github.com/Mezraniwassim/moxnas-confd/internal/export"
	"github.com/Mezraniwassim/moxnas-confd/internal/healthcheck"
	"github.com/Mezraniwassim/moxnas-confd/internal/metrics"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// TriggerResponse is the body returned for accepted regeneration requests.
type TriggerResponse struct {
	Service   string `json:"service"`
	Coalesced bool   `json:"coalesced"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewMux builds the HTTP routes: the trigger and state surface for the
// surrounding application, plus health and metrics endpoints.
func NewMux(coord *coordinator.Coordinator, tracker *healthcheck.Tracker, metricsCollector *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /regenerate/{kind}", func(w http.ResponseWriter, r *http.Request) {
		kind := export.ServiceKind(r.PathValue("kind"))
		coalesced, err := coord.Trigger(kind)
		if err != nil {
			var unknown *coordinator.ErrUnknownKind
			if errors.As(err, &unknown) {
				writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
				return
			}
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, TriggerResponse{Service: string(kind), Coalesced: coalesced})
	})

	mux.HandleFunc("GET /state/{kind}", func(w http.ResponseWriter, r *http.Request) {
		kind := export.ServiceKind(r.PathValue("kind"))
		state, err := coord.State(kind)
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, state)
	})

	mux.HandleFunc("GET /state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, coord.States())
	})

	mux.HandleFunc("GET /healthz", healthcheck.HealthHandler(tracker))
	mux.HandleFunc("GET /readyz", healthcheck.ReadyHandler(tracker))

	if metricsCollector != nil {
		mux.Handle("GET /metrics", metricsCollector.Handler())
	}

	return mux
}

// Start launches the HTTP server and shuts it down when the context is
// canceled.
func Start(ctx context.Context, logger zerolog.Logger, handler http.Handler, port int) {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Int("port", port).Msg("http server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Int("port", port).Msg("http server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Int("port", port).Msg("http server shutdown failed")
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
