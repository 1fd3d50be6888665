package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"camliup/internal/api"
	"camliup/internal/config"
	"camliup/internal/logging"
)

const (
	defaultLogLimit = 200
	maxEnqueueBody  = 1 << 20
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg.Paths.APIToken),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Follow-mode log requests hold the response open.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes(token string) http.Handler {
	r := mux.NewRouter()
	r.Use(authMiddleware(token))
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/queue", s.handleQueue).Methods(http.MethodGet)
	r.HandleFunc("/api/queue", s.handleEnqueue).Methods(http.MethodPost)
	r.HandleFunc("/api/pause", s.handlePause).Methods(http.MethodPost)
	r.HandleFunc("/api/resume", s.handleResume).Methods(http.MethodPost)
	r.HandleFunc("/api/logs", s.handleLogs).Methods(http.MethodGet)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found")
	})
	return r
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr returns the bound listener address, or "" before start.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, statusPayload(s.daemon.Status()))
}

func statusPayload(st Status) api.DaemonStatus {
	return api.DaemonStatus{
		Running:     st.Running,
		PID:         st.PID,
		JournalPath: st.JournalPath,
		LockPath:    st.LockPath,
		Upload:      api.FromUploadStatus(st.Upload),
		Checks:      api.FromCheckResults(st.Checks),
	}
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	files, entries, err := s.daemon.Queue(r.Context())
	if errors.Is(err, ErrNotRunning) {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		s.log().Warn("queue journal read failed", logging.Error(err))
	}
	s.writeJSON(w, http.StatusOK, api.QueueListResponse{
		Files: api.FromFiles(files, api.QueuedAtIndex(entries)),
	})
}

func (s *apiServer) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req api.EnqueueRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEnqueueBody))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Handles) == 0 {
		s.writeError(w, http.StatusBadRequest, "handles required")
		return
	}

	resp, err := enqueueHandles(r.Context(), s.daemon, req.Handles)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// enqueueHandles queues each handle in order. A daemon that is not running
// fails the whole request; per-handle failures are reported in the result.
func enqueueHandles(ctx context.Context, d *Daemon, handles []string) (api.EnqueueResponse, error) {
	resp := api.EnqueueResponse{Results: make([]api.EnqueueResult, 0, len(handles))}
	for _, handle := range handles {
		queued, err := d.Enqueue(ctx, handle)
		if errors.Is(err, ErrNotRunning) {
			return api.EnqueueResponse{}, err
		}
		result := api.EnqueueResult{Handle: handle, Queued: queued}
		if err != nil {
			result.Error = err.Error()
		}
		resp.Results = append(resp.Results, result)
	}
	return resp, nil
}

func (s *apiServer) handlePause(w http.ResponseWriter, _ *http.Request) {
	changed, err := s.daemon.Pause()
	s.writeControl(w, changed, err, "pause requested", "not uploading")
}

func (s *apiServer) handleResume(w http.ResponseWriter, _ *http.Request) {
	changed, err := s.daemon.Resume()
	s.writeControl(w, changed, err, "upload started", "already uploading or server invalid")
}

func (s *apiServer) writeControl(w http.ResponseWriter, changed bool, err error, yes, no string) {
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	msg := no
	if changed {
		msg = yes
	}
	s.writeJSON(w, http.StatusOK, api.ControlResponse{Changed: changed, Message: msg})
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.LogStream()
	if hub == nil {
		s.writeJSON(w, http.StatusOK, api.FromLogEvents(nil, 0))
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = defaultLogLimit
	}
	follow := parseFlag(query.Get("follow"))
	tail := parseFlag(query.Get("tail"))
	component := strings.TrimSpace(query.Get("component"))

	resp, err := fetchLogs(r.Context(), hub, since, limit, follow, tail)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if component != "" {
		filtered := resp.Events[:0]
		for _, evt := range resp.Events {
			if strings.EqualFold(component, evt.Component) {
				filtered = append(filtered, evt)
			}
		}
		resp.Events = filtered
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// fetchLogs reads a page from the hub. A cancelled follow returns what was
// collected rather than an error.
func fetchLogs(ctx context.Context, hub *logging.StreamHub, since uint64, limit int, follow, tail bool) (api.LogStreamResponse, error) {
	if tail && since == 0 && !follow {
		events, next := hub.Tail(limit)
		return api.FromLogEvents(events, next), nil
	}
	events, next, err := hub.Fetch(ctx, since, limit, follow)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return api.LogStreamResponse{}, err
	}
	return api.FromLogEvents(events, next), nil
}

func parseFlag(value string) bool {
	return value == "1" || strings.EqualFold(value, "true")
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
