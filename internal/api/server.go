// Package api serves health, metrics, notification history and the manual
// reminder trigger over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	apperrors "billing-workers/internal/common/errors"
	"billing-workers/internal/common/logger"
	"billing-workers/internal/notification"
	"billing-workers/internal/notification/dispatch"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Notifications is the query and receipt surface of the dispatch engine.
type Notifications interface {
	Stats(ctx context.Context) (notification.Stats, error)
	History(ctx context.Context, filter notification.Filter, page notification.Page) (*notification.HistoryPage, error)
	MarkDelivered(ctx context.Context, id string) (*notification.Notification, error)
	MarkRead(ctx context.Context, id string) (*notification.Notification, error)
	Process(ctx context.Context, id string) (*notification.Notification, error)
}

type Searcher interface {
	Search(ctx context.Context, query string, filter notification.Filter, page notification.Page) (*notification.HistoryPage, error)
}

type Trigger interface {
	TriggerReminders()
}

// ReadinessCheck reports an error while a dependency is unavailable.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	notifications Notifications
	search        Searcher
	trigger       Trigger
	checks        map[string]ReadinessCheck
	logger        logger.Logger
	mux           *http.ServeMux
}

type Option func(*Server)

func WithSearch(s Searcher) Option {
	return func(srv *Server) { srv.search = s }
}

func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(srv *Server) { srv.checks[name] = check }
}

func NewServer(n Notifications, trigger Trigger, log logger.Logger, opts ...Option) *Server {
	s := &Server{
		notifications: n,
		trigger:       trigger,
		checks:        make(map[string]ReadinessCheck),
		logger:        log.WithFields(map[string]interface{}{"component": "api"}),
		mux:           http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /api/notifications/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/notifications/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/notifications", s.handleHistory)
	s.mux.HandleFunc("POST /api/notifications/{id}/delivered", s.handleReceipt(notification.StatusDelivered))
	s.mux.HandleFunc("POST /api/notifications/{id}/read", s.handleReceipt(notification.StatusRead))
	s.mux.HandleFunc("POST /api/notifications/{id}/retry", s.handleRetry)
	s.mux.HandleFunc("POST /api/reminders/run", s.handleRunReminders)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.recoverer(s.mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", map[string]interface{}{"address": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := make(map[string]string)
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		s.logger.Warn("readiness check failed", map[string]interface{}{"checks": failed})
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "not ready", "checks": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.notifications.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	filter, page, err := parseQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.notifications.History(r.Context(), filter, page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		writeFailure(w, http.StatusServiceUnavailable, "SEARCH_NOT_CONFIGURED", "history search is not enabled")
		return
	}
	filter, page, err := parseQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.search.Search(r.Context(), r.URL.Query().Get("q"), filter, page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (s *Server) handleReceipt(to notification.Status) http.HandlerFunc {
	mark := s.notifications.MarkDelivered
	if to == notification.StatusRead {
		mark = s.notifications.MarkRead
	}
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := mark(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, n)
	}
}

// handleRetry re-attempts one due pending or retryable failed notification
// without waiting for its retry window.
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	n, err := s.notifications.Process(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, n)
}

func (s *Server) handleRunReminders(w http.ResponseWriter, r *http.Request) {
	s.trigger.TriggerReminders()
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"message": "payment reminder run started",
	})
}

func parseQuery(r *http.Request) (notification.Filter, notification.Page, error) {
	q := r.URL.Query()
	filter := notification.Filter{
		RecipientID: q.Get("recipientId"),
		Status:      notification.Status(q.Get("status")),
		Type:        notification.Type(q.Get("type")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return filter, notification.Page{}, apperrors.NewInvalidInputError(fmt.Sprintf("unknown status %q", filter.Status))
	}

	var page notification.Page
	var err error
	if page.Page, err = intParam(q.Get("page")); err != nil {
		return filter, page, apperrors.NewInvalidInputError("page must be an integer")
	}
	if page.Limit, err = intParam(q.Get("limit")); err != nil {
		return filter, page, apperrors.NewInvalidInputError("limit must be an integer")
	}
	return filter, page.Normalize(), nil
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, dispatch.ErrNotFound):
		writeFailure(w, http.StatusNotFound, string(apperrors.ErrCodeNotificationNotFound), err.Error())
	case errors.Is(err, dispatch.ErrInvalidTransition):
		writeFailure(w, http.StatusConflict, string(apperrors.ErrCodeInvalidStatusTransition), err.Error())
	case apperrors.HasCode(err, apperrors.ErrCodeInvalidInput):
		stdErr, _ := apperrors.AsStandardError(err)
		writeFailure(w, http.StatusBadRequest, string(stdErr.Code), stdErr.Details)
	default:
		s.logger.Error("request failed", map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
			"error":  err.Error(),
		})
		writeFailure(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panicked", map[string]interface{}{
					"path":  r.URL.Path,
					"panic": fmt.Sprint(rec),
				})
				writeFailure(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{"success": true, "data": data})
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
