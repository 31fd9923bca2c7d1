// Package web exposes the operations layer over HTTP: a small JSON API
// plus server-sent-events streams for watching long-running tasks. It
// is a local dashboard, bound to loopback by default.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/modstage/modstage/pkg/errors"
	"github.com/modstage/modstage/pkg/logging"
	"github.com/modstage/modstage/pkg/service"
	"github.com/modstage/modstage/pkg/tasks"
	"github.com/modstage/modstage/pkg/types"
)

// Server serves the dashboard API for one staging directory.
type Server struct {
	svc        *service.Service
	manager    *tasks.Manager
	stagingDir string
}

// NewServer returns a Server over svc for stagingDir.
func NewServer(svc *service.Service, stagingDir string) *Server {
	return &Server{
		svc:        svc,
		manager:    tasks.NewManager(),
		stagingDir: stagingDir,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/sync", s.handleSync)
	mux.HandleFunc("/api/update", s.handleUpdate)
	mux.HandleFunc("/api/add", s.handleAdd)
	mux.HandleFunc("/api/add-local", s.handleAddLocal)
	mux.HandleFunc("/api/deploy", s.handleDeploy)
	mux.HandleFunc("/api/undeploy", s.handleUndeploy)
	mux.HandleFunc("/api/load-order", s.handleLoadOrder)
	mux.HandleFunc("/api/track-sync/", s.handleTrackSync)
	mux.HandleFunc("/api/tasks", s.handleTasks)
	mux.HandleFunc("/api/tasks/", s.handleTask)
	return mux
}

// ListenAndServe blocks serving the API on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	logger := logging.GetLogger("web")

	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	logger.Info().Str("addr", addr).Msg("Dashboard listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrapf(err, errors.ErrInternal, "dashboard server failed on %s", addr)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.GetStatus(r.Context(), s.stagingDir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}
	var req struct {
		URL          string `json:"url"`
		SkipOptional bool   `json:"skip_optional"`
		DryRun       bool   `json:"dry_run"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must include a collection url"})
		return
	}

	opts := service.SyncOptions{SkipOptional: req.SkipOptional, DryRun: req.DryRun}
	id := s.manager.Run("sync", func(ctx context.Context, progress func(float64, string)) (interface{}, error) {
		return s.svc.Sync(ctx, s.stagingDir, req.URL, opts, types.ProgressFunc(progress))
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}
	var req struct {
		SkipOptional bool `json:"skip_optional"`
		DryRun       bool `json:"dry_run"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	opts := service.SyncOptions{SkipOptional: req.SkipOptional, DryRun: req.DryRun}
	id := s.manager.Run("update", func(ctx context.Context, progress func(float64, string)) (interface{}, error) {
		return s.svc.Update(ctx, s.stagingDir, opts, types.ProgressFunc(progress))
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}
	var req struct {
		URL    string `json:"url"`
		FileID int64  `json:"file_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must include a mod url"})
		return
	}

	id := s.manager.Run("add", func(ctx context.Context, progress func(float64, string)) (interface{}, error) {
		return s.svc.Add(ctx, s.stagingDir, req.URL, req.FileID, types.ProgressFunc(progress))
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id})
}

func (s *Server) handleAddLocal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}
	var req struct {
		Name string `json:"name"`
		Dir  string `json:"dir"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must include a mod name"})
		return
	}

	id, err := s.svc.AddLocal(s.stagingDir, req.Name, req.Dir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"mod_id": id})
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}
	var req struct {
		GameDir string `json:"game_dir"`
		Copy    bool   `json:"copy"`
		DryRun  bool   `json:"dry_run"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	opts := service.DeployOptions{GameDir: req.GameDir, Copy: req.Copy, DryRun: req.DryRun}
	id := s.manager.Run("deploy", func(ctx context.Context, progress func(float64, string)) (interface{}, error) {
		return s.svc.Deploy(s.stagingDir, opts)
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id})
}

func (s *Server) handleUndeploy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}
	id := s.manager.Run("undeploy", func(ctx context.Context, progress func(float64, string)) (interface{}, error) {
		return s.svc.Undeploy(s.stagingDir)
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id})
}

func (s *Server) handleLoadOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}
	res, err := s.svc.LoadOrder(s.stagingDir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTrackSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}
	action := strings.TrimPrefix(r.URL.Path, "/api/track-sync/")
	switch action {
	case "enable":
		res, err := s.svc.TrackSyncEnable(r.Context(), s.stagingDir)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	case "disable":
		if err := s.svc.TrackSyncDisable(s.stagingDir); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": false})
	case "push":
		res, err := s.svc.TrackSyncPush(r.Context(), s.stagingDir)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown track-sync action"})
	}
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.List())
}

// handleTask serves /api/tasks/{id} and /api/tasks/{id}/stream.
func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	id, tail, _ := strings.Cut(rest, "/")

	task := s.manager.Get(id)
	if task == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown task"})
		return
	}

	if tail == "stream" {
		s.streamTask(w, r, task)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// streamTask writes the task's events as server-sent events until the
// task finishes or the client disconnects.
func (s *Server) streamTask(w http.ResponseWriter, r *http.Request, task *tasks.Task) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := task.Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps engine error codes onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetErrorCode(err) {
	case errors.ErrStateNotFound, errors.ErrNotFound, errors.ErrManifestMissing:
		status = http.StatusNotFound
	case errors.ErrInvalidInput:
		status = http.StatusBadRequest
	case errors.ErrRateLimited:
		status = http.StatusTooManyRequests
	case errors.ErrEntitlement:
		status = http.StatusForbidden
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
