package server

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spanscope/internal/viewmodel"
)

// Handler holds the server dependencies
type Handler struct {
	list     *viewmodel.TraceList
	sessions *Sessions
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// NewHandler creates a new handler. gatherer may be nil, in which case /metrics serves the
// default registry.
func NewHandler(list *viewmodel.TraceList, sessions *Sessions, gatherer prometheus.Gatherer, logger *slog.Logger) *Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		list:     list,
		sessions: sessions,
		gatherer: gatherer,
		logger:   logger,
	}
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleList)
	r.Post("/refresh", h.HandleRefresh)
	r.Get("/traces/{traceID}", h.HandleDetail)

	r.Route("/api", func(r chi.Router) {
		r.Get("/traces", h.HandleListJSON)
		r.Get("/traces/{traceID}", h.HandleDetailJSON)
	})

	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}

type listPageData struct {
	Title          string
	RefreshSeconds int
	State          viewmodel.ListState
	Rows           []viewmodel.ListRow
}

type detailPageData struct {
	Title          string
	RefreshSeconds int
	State          viewmodel.DetailState
}

// HandleList renders the recent-traces page. The page reloads itself on the polling interval.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	state := h.list.Snapshot()
	data := listPageData{
		Title:          "Recent Traces",
		RefreshSeconds: refreshSeconds(h.list.Interval()),
		State:          state,
		Rows:           viewmodel.BuildRows(state.Traces),
	}
	h.render(w, listPage, http.StatusOK, data)
}

// HandleRefresh triggers an immediate list refresh and sends the browser back to the list.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	// A client disconnecting mid-refresh must not leave a cancellation as the list error.
	if err := h.list.Refresh(context.WithoutCancel(r.Context())); err != nil && !errors.Is(err, viewmodel.ErrStaleRefresh) {
		h.logger.Debug("Manual refresh failed", "error", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleDetail loads a trace into the viewer's detail view and renders it.
func (h *Handler) HandleDetail(w http.ResponseWriter, r *http.Request) {
	state := h.loadDetail(w, r)
	data := detailPageData{
		Title: "Trace " + state.TraceID,
		State: state,
	}
	h.render(w, detailPage, detailStatusCode(state.Status), data)
}

// HandleListJSON returns the current list state.
func (h *Handler) HandleListJSON(w http.ResponseWriter, r *http.Request) {
	state := h.list.Snapshot()
	status := http.StatusOK
	if !state.Loaded && state.Err != nil {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]interface{}{
		"traces":    state.Traces,
		"rows":      viewmodel.BuildRows(state.Traces),
		"limit":     h.list.Limit(),
		"loaded":    state.Loaded,
		"updatedAt": state.UpdatedAt,
		"error":     state.ErrorText(),
	})
}

// HandleDetailJSON loads a trace and returns the resulting detail state.
func (h *Handler) HandleDetailJSON(w http.ResponseWriter, r *http.Request) {
	state := h.loadDetail(w, r)
	writeJSON(w, detailStatusCode(state.Status), map[string]interface{}{
		"traceId": state.TraceID,
		"status":  state.Status,
		"detail":  state.Detail,
		"error":   state.ErrorText(),
	})
}

func (h *Handler) loadDetail(w http.ResponseWriter, r *http.Request) viewmodel.DetailState {
	traceID := chi.URLParam(r, "traceID")
	view := h.sessions.View(viewerID(w, r), traceID)
	return view.Load(r.Context(), traceID)
}

// HandleHealth returns health status
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReady reports ready once the trace list has loaded at least once.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if !h.list.Snapshot().Loaded {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "loading",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

func (h *Handler) render(w http.ResponseWriter, tmpl *template.Template, status int, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("Failed to render page", "template", tmpl.Name(), "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func detailStatusCode(status viewmodel.Status) int {
	switch status {
	case viewmodel.StatusNotFound:
		return http.StatusNotFound
	case viewmodel.StatusFailed:
		return http.StatusBadGateway
	case viewmodel.StatusSuperseded:
		return http.StatusConflict
	default:
		return http.StatusOK
	}
}

func refreshSeconds(d time.Duration) int {
	s := int(d / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
