// Package api exposes the dashboard core over HTTP and MCP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dashd/dashd/internal/composer"
	"github.com/dashd/dashd/internal/feed"
	"github.com/dashd/dashd/internal/media"
	"github.com/dashd/dashd/internal/metrics"
	"github.com/dashd/dashd/internal/proxy"
	"github.com/dashd/dashd/internal/storage"
)

const (
	maxRequestBodySize    = 1 << 20 // 1MB
	defaultMaxUploadBytes = 10 << 20
	maxHeadlineLimit      = 50
)

type Deps struct {
	Store    *storage.Store
	Media    media.Store
	Feed     *feed.Fetcher
	GenAI    *proxy.Client
	Composer *composer.Composer

	// Metrics and Gatherer are optional. /metrics is mounted only when
	// Gatherer is set.
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	// ChatLimiter throttles POST /api/chat per client; nil disables it.
	ChatLimiter *ClientLimiter

	Location       *time.Location
	HeadlineLimit  int
	MaxUploadBytes int64
	Now            func() time.Time
}

func (d *Deps) setDefaults() {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.HeadlineLimit <= 0 {
		d.HeadlineLimit = 8
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = defaultMaxUploadBytes
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

// NewHandler returns the HTTP surface consumed by the presentation layer.
func NewHandler(deps Deps) http.Handler {
	deps.setDefaults()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(accessLog(deps.Metrics))

	r.Get("/health", handleHealth(deps))
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/images/{name}", handleImage(deps))

	r.Route("/api", func(r chi.Router) {
		r.Get("/dashboard", handleDashboard(deps))
		r.Get("/headlines", handleHeadlines(deps))
		r.Get("/news.xml", handleNewsXML(deps))
		r.Get("/time", handleTime(deps))

		r.Get("/notes", handleListNotes(deps))
		r.Post("/notes", handleCreateNote(deps))
		r.Get("/notes/{id}", handleGetNote(deps))
		r.Patch("/notes/{id}", handleUpdateNote(deps))
		r.Delete("/notes/{id}", handleDeleteNote(deps))
		r.Post("/media", handleUploadMedia(deps))

		r.Get("/todos", handleListTodos(deps))
		r.Post("/todos", handleCreateTodo(deps))
		r.Post("/todos/{id}/flip", handleFlipTodo(deps))
		r.Post("/todos/{id}/toggle", handleToggleTodo(deps))
		r.Delete("/todos/{id}", handleDeleteTodo(deps))

		r.Get("/assets", handleListAssets(deps))
		r.Post("/assets", handleCreateAsset(deps))

		r.With(deps.ChatLimiter.Middleware).Post("/chat", handleChat(deps))
	})

	return r
}

// unmatchedRoute labels requests no route matched, so scanners cannot grow
// the route label set.
const unmatchedRoute = "unmatched"

// accessLog logs each request at debug level and records it in metrics under
// its route pattern.
func accessLog(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := unmatchedRoute
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			elapsed := time.Since(start)
			m.HTTPRequest(r.Method, route, strconv.Itoa(status), elapsed.Seconds())
			slog.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration_ms", elapsed.Milliseconds(),
			)
		})
	}
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.Ping(r.Context()); err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "store unavailable: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}
}

func handleDashboard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := deps.Composer.Compose(r.Context())
		if err != nil {
			slog.Error("composing dashboard failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to compose dashboard: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// storeError maps a Record Store error onto the HTTP error envelope.
func storeError(w http.ResponseWriter, err error, entity, action string) {
	var verr *storage.ValidationError
	switch {
	case errors.As(err, &verr):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", verr.Error())
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%s not found", entity)
	default:
		slog.Error("store operation failed", "action", action, "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "failed to %s: %v", action, err)
	}
}

// decodeJSON reads a size-capped JSON body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
