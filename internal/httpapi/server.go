// Package httpapi serves the PVF viewer API over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentic-research/pvf/internal/dataset"
	"github.com/agentic-research/pvf/internal/ingest"
	"github.com/agentic-research/pvf/internal/service"
)

// Server handles the HTTP interface of the viewer.
type Server struct {
	address string
	svc     *service.Service
	server  *http.Server
}

// Config contains configuration options for the server.
type Config struct {
	Address string
	Service *service.Service
}

func New(config Config) *Server {
	s := &Server{
		address: config.Address,
		svc:     config.Service,
	}
	s.server = &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler with CORS and request logging applied.
func (s *Server) Handler() http.Handler {
	return withCORS(withLogging(s.setupRoutes()))
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/list-subjects", s.handleListSubjects)
	mux.HandleFunc("/api/list-subjects-files", s.handleListSubjectFiles)
	mux.HandleFunc("/api/load-subjects-files", s.handleLoad)
	mux.HandleFunc("/api/update-PVF-streamlines", s.handleSlice)
	mux.HandleFunc("/api/arrows", s.handleArrows)

	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("httpapi: listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("httpapi: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		slog.Error("httpapi: shutdown failed", "err", err)
		if err := s.server.Close(); err != nil {
			slog.Error("httpapi: force close failed", "err", err)
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("httpapi: encode response", "err", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// writeError maps core errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()
	switch {
	case errors.Is(err, dataset.ErrIdentityMismatch):
		status, msg = http.StatusConflict, "Subject or file mismatch"
	case errors.Is(err, dataset.ErrTimeOutOfRange), errors.Is(err, ingest.ErrInvalidName):
		status = http.StatusBadRequest
	case errors.Is(err, dataset.ErrNoDataset), errors.Is(err, ingest.ErrNoWindow), errors.Is(err, os.ErrNotExist):
		status = http.StatusNotFound
	case errors.Is(err, ingest.ErrNoVelocity), errors.Is(err, ingest.ErrShapeMismatch):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// the client is gone or gave up; the load itself carries on
		status, msg = http.StatusServiceUnavailable, "Request cancelled"
	}
	if status == http.StatusInternalServerError {
		slog.Error("httpapi: request failed", "err", err)
	}
	writeJSONError(w, status, msg)
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// identity reads the subject and file parameters; both are required.
func identity(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	q := r.URL.Query()
	subject, file := q.Get("subject"), q.Get("file")
	if subject == "" || file == "" {
		writeJSONError(w, http.StatusBadRequest, "No data found.")
		return "", "", false
	}
	return subject, file, true
}

func timepoint(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("timepoint")
	t, err := strconv.Atoi(raw)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid timepoint format")
		return 0, false
	}
	return t, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   "pvf",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Status())
}

func (s *Server) handleListSubjects(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	subjects, err := s.svc.ListSubjects()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subjects)
}

func (s *Server) handleListSubjectFiles(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	subject := r.URL.Query().Get("subject")
	if subject == "" {
		writeJSONError(w, http.StatusBadRequest, "No data found.")
		return
	}
	files, err := s.svc.ListSubjectFiles(subject)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	subject, file, ok := identity(w, r)
	if !ok {
		return
	}
	p, err := s.svc.LoadDataset(r.Context(), subject, file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleSlice serves a time slice of the active dataset. With refresh=1 the
// streamline window covering the time index is reread first.
func (s *Server) handleSlice(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	subject, file, ok := identity(w, r)
	if !ok {
		return
	}
	t, ok := timepoint(w, r)
	if !ok {
		return
	}
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		if _, err := s.svc.RefreshStreamlines(r.Context(), subject, file, t); err != nil {
			if !errors.Is(err, ingest.ErrNoWindow) {
				writeError(w, err)
				return
			}
			slog.Warn("httpapi: no streamline window to refresh", "timepoint", t)
		}
	}
	p, err := s.svc.GetSlice(subject, file, t)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleArrows(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	subject, file, ok := identity(w, r)
	if !ok {
		return
	}
	t, ok := timepoint(w, r)
	if !ok {
		return
	}
	a, err := s.svc.Arrows(subject, file, t)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
