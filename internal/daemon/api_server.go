package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"audioshelf/internal/api"
	"audioshelf/internal/config"
	"audioshelf/internal/logging"
	"audioshelf/internal/queue"
	"audioshelf/internal/services"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	svc    *api.Service

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, svc *api.Service, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
		svc:    svc,
	}

	routes := http.NewServeMux()
	routes.HandleFunc("GET /api/status", srv.handleStatus)
	routes.HandleFunc("GET /api/queue", srv.handleQueue)
	routes.HandleFunc("GET /api/queue/stats", srv.handleStats)
	routes.HandleFunc("GET /api/queue/{id}", srv.handleItem)
	routes.HandleFunc("DELETE /api/queue/{id}", srv.handleIgnore)
	routes.HandleFunc("POST /api/queue/{id}/ignore", srv.handleIgnore)
	routes.HandleFunc("GET /api/queue/{id}/preview", srv.handlePreview)
	routes.HandleFunc("POST /api/queue/{id}/process", srv.handleProcess)
	routes.HandleFunc("POST /api/queue/{id}/update", srv.handleUpdate)
	routes.HandleFunc("PATCH /api/queue/{id}", srv.handleUpdate)
	routes.HandleFunc("POST /api/queue/{id}/search", srv.handleSearch)
	routes.HandleFunc("POST /api/queue/{id}/apply", srv.handleApply)
	routes.HandleFunc("POST /api/queue/{id}/retry", srv.handleRetry)
	routes.HandleFunc("POST /api/rescan", srv.handleRescan)

	mux := http.NewServeMux()
	mux.Handle("/api/", srv.withRequestID(authMiddleware(cfg.Paths.APIToken, routes)))
	mux.Handle("GET /metrics", promhttp.Handler())

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Searches fan out to every provider, so writes get the long budget.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		s.logger.Info("api server disabled", logging.String("reason", "empty api_bind"))
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	_ = s.listener.Close()
	s.listener = nil
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := services.WithRequestID(r.Context(), requestID)
		logging.WithContext(ctx, s.logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := queue.ParseStatus(part)
			if !ok {
				s.writeError(w, services.Wrap(services.ErrValidation, "", "list", fmt.Sprintf("unknown status %q", part), nil))
				return
			}
			statuses = append(statuses, status)
		}
	}
	items, err := s.svc.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueListResponse{Items: items})
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.svc.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueStatsResponse{Counts: counts})
}

func (s *apiServer) handleItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.svc.Describe(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueItemResponse{Item: item})
}

func (s *apiServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	plan, err := s.svc.Preview(r.Context(), r.PathValue("id"), r.URL.Query().Get("mode"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.PreviewResponse{Plan: plan})
}

func (s *apiServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req api.ProcessRequest
	if !s.decode(w, r, &req) {
		return
	}
	item, err := s.svc.Process(r.Context(), r.PathValue("id"), req.Mode)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueItemResponse{Item: item})
}

func (s *apiServer) handleIgnore(w http.ResponseWriter, r *http.Request) {
	var req api.IgnoreRequest
	if r.Method == http.MethodDelete {
		if raw := r.URL.Query().Get("remove_source"); raw != "" {
			value, err := strconv.ParseBool(raw)
			if err != nil {
				s.writeError(w, services.Wrap(services.ErrValidation, "", "ignore", "remove_source must be a boolean", err))
				return
			}
			req.RemoveSource = value
		}
	} else if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.Ignore(r.Context(), r.PathValue("id"), req.RemoveSource); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateRequest
	if !s.decode(w, r, &req) {
		return
	}
	item, err := s.svc.Update(r.Context(), r.PathValue("id"), req.Fields)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueItemResponse{Item: item})
}

func (s *apiServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req api.SearchRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Search(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleApply(w http.ResponseWriter, r *http.Request) {
	var req api.ApplyRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Apply(r.Context(), r.PathValue("id"), req.Index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	item, err := s.svc.Retry(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueItemResponse{Item: item})
}

func (s *apiServer) handleRescan(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Rescan(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.RescanResponse{Requested: true})
}

// decode reads an optional JSON body. An empty body leaves dst untouched.
func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, services.Wrap(services.ErrValidation, "", "decode request", "invalid JSON body", err))
		return false
	}
	return true
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(payload); err != nil {
		s.logger.Warn("api encode response failed", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, err error) {
	status := statusCode(err)
	details := services.Details(err)
	message := details.Message
	if message == "" {
		message = err.Error()
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("api request failed", logging.Args(logging.ErrorAttrs(err)...)...)
	}
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Kind: details.Kind})
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
