package storewatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/playsense/storewatch/internal/state"
)

// controlRequest is the tagged command envelope.
type controlRequest struct {
	Action  string `json:"action"`
	Enabled *bool  `json:"enabled,omitempty"`
}

type controlResponse struct {
	Success bool            `json:"success"`
	State   *state.Snapshot `json:"state,omitempty"`
	Metrics *state.Metrics  `json:"metrics,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ControlServer is the local HTTP surface: manual refresh, state inspection
// and the enabled flag. Bound to loopback by default.
type ControlServer struct {
	watcher *Watcher
	logger  *slog.Logger
	srv     *http.Server
}

// NewControlServer builds the server; Start binds it.
func NewControlServer(w *Watcher, listen string, logger *slog.Logger) *ControlServer {
	if logger == nil {
		logger = slog.Default()
	}
	cs := &ControlServer{watcher: w, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", cs.handleHealth)
	r.Post("/control", cs.handleControl)

	cs.srv = &http.Server{
		Addr:              listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return cs
}

// Start serves until the listener fails or Shutdown runs.
func (cs *ControlServer) Start() {
	go func() {
		cs.logger.Info("control: listening", "addr", cs.srv.Addr)
		if err := cs.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			cs.logger.Error("control: server stopped", "error", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (cs *ControlServer) Shutdown(ctx context.Context) error {
	return cs.srv.Shutdown(ctx)
}

func (cs *ControlServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (cs *ControlServer) handleControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeControl(w, http.StatusBadRequest, controlResponse{Success: false, Error: "invalid request body"})
		return
	}

	switch req.Action {
	case "refresh":
		if err := cs.watcher.Refresh(); err != nil {
			writeControl(w, http.StatusOK, controlResponse{Success: false, Error: err.Error()})
			return
		}
		writeControl(w, http.StatusOK, controlResponse{Success: true})

	case "getState":
		snap := cs.watcher.State().Snapshot()
		writeControl(w, http.StatusOK, controlResponse{Success: true, State: &snap, Metrics: &snap.Metrics})

	case "setEnabled":
		if req.Enabled == nil {
			writeControl(w, http.StatusBadRequest, controlResponse{Success: false, Error: "enabled field required"})
			return
		}
		if err := cs.watcher.SetEnabled(*req.Enabled); err != nil {
			cs.logger.Error("control: persist enabled flag", "error", err)
			writeControl(w, http.StatusInternalServerError, controlResponse{Success: false, Error: "failed to persist setting"})
			return
		}
		writeControl(w, http.StatusOK, controlResponse{Success: true})

	default:
		writeControl(w, http.StatusOK, controlResponse{Success: false, Error: "Unknown action"})
	}
}

func writeControl(w http.ResponseWriter, status int, resp controlResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
