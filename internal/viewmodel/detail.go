package viewmodel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"spanscope/internal/metrics"
	"spanscope/internal/models"
	"spanscope/internal/visualize"
)

// Status is the outcome of loading one trace.
type Status string

const (
	// StatusLoading means a load is in flight.
	StatusLoading Status = "loading"
	// StatusReady carries a complete TraceDetail.
	StatusReady Status = "ready"
	// StatusNoData means the trace exists but has no spans.
	StatusNoData Status = "no_data"
	// StatusNotFound means the backend reported the trace as absent.
	StatusNotFound Status = "not_found"
	// StatusFailed means the request failed and may be retried.
	StatusFailed Status = "failed"
	// StatusSuperseded means a newer load started before this one finished.
	StatusSuperseded Status = "superseded"
)

// ErrViewClosed is reported by loads on a closed DetailView.
var ErrViewClosed = errors.New("detail view closed")

// TraceGetter fetches one complete trace.
type TraceGetter interface {
	GetTrace(ctx context.Context, traceID string) (*models.Trace, error)
}

// DetailRow is one waterfall bar, in display order.
type DetailRow struct {
	SpanID       string          `json:"spanId"`
	ParentSpanID string          `json:"parentSpanId,omitempty"`
	Name         string          `json:"name"`
	ServiceName  string          `json:"serviceName"`
	StatusCode   string          `json:"statusCode"`
	IsError      bool            `json:"isError"`
	Depth        int             `json:"depth"`
	Color        visualize.Color `json:"color"`
	Left         float64         `json:"leftRatio"`
	Width        float64         `json:"widthRatio"`
	Duration     int64           `json:"duration"`
	DurationText string          `json:"durationText"`
}

// LegendEntry is one service in the detail legend.
type LegendEntry struct {
	Service string          `json:"service"`
	Color   visualize.Color `json:"color"`
	Count   int             `json:"count"`
}

// TraceDetail is everything the detail page renders for a trace with spans.
type TraceDetail struct {
	TraceID string            `json:"traceId"`
	Summary visualize.Summary `json:"summary"`
	Layout  visualize.Layout  `json:"layout"`
	Rows    []DetailRow       `json:"rows"`
	Legend  []LegendEntry     `json:"legend"`
	Errors  []models.Span     `json:"errors"`
}

// DetailState is the applied result of a load. Detail is set only for StatusReady.
type DetailState struct {
	TraceID string       `json:"traceId"`
	Status  Status       `json:"status"`
	Detail  *TraceDetail `json:"detail,omitempty"`
	Err     error        `json:"-"`
}

// ErrorText returns the failure message, or "".
func (s DetailState) ErrorText() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// DetailView loads traces for one viewer. Starting a new load cancels the one in flight, and
// only the newest load's result is ever applied.
type DetailView struct {
	getter  TraceGetter
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	state  DetailState
	closed bool
}

// NewDetailView creates a detail view backed by getter.
func NewDetailView(getter TraceGetter, logger *slog.Logger) *DetailView {
	if logger == nil {
		logger = slog.Default()
	}
	return &DetailView{
		getter: getter,
		logger: logger.With("component", "trace_detail"),
	}
}

// WithMetrics records load outcomes on m.
func (v *DetailView) WithMetrics(m *metrics.Metrics) *DetailView {
	v.metrics = m
	return v
}

// Load fetches traceID and returns the resulting state. If another Load on this view starts
// before the fetch completes, this one is cancelled and returns StatusSuperseded without
// touching the view's state.
func (v *DetailView) Load(ctx context.Context, traceID string) DetailState {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return DetailState{TraceID: traceID, Status: StatusFailed, Err: ErrViewClosed}
	}
	if v.cancel != nil {
		v.cancel()
	}
	v.gen++
	gen := v.gen
	ctx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	v.state = DetailState{TraceID: traceID, Status: StatusLoading}
	v.mu.Unlock()
	defer cancel()

	trace, err := v.getter.GetTrace(ctx, traceID)
	next := resolve(traceID, trace, err)

	v.mu.Lock()
	defer v.mu.Unlock()

	if gen != v.gen {
		v.metrics.ObserveDetail(string(StatusSuperseded))
		v.logger.Debug("Discarding superseded trace load", "traceID", traceID)
		return DetailState{TraceID: traceID, Status: StatusSuperseded}
	}

	v.cancel = nil
	v.state = next
	v.metrics.ObserveDetail(string(next.Status))
	if next.Err != nil {
		v.logger.Warn("Failed to load trace", "traceID", traceID, "status", next.Status, "error", next.Err)
	}
	return next
}

// current returns the most recently applied state.
func (v *DetailView) current() DetailState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Close cancels any in-flight load. Later loads fail with ErrViewClosed.
func (v *DetailView) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}
	v.closed = true
	v.gen++
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
}

func resolve(traceID string, trace *models.Trace, err error) DetailState {
	switch {
	case errors.Is(err, models.ErrTraceNotFound):
		return DetailState{TraceID: traceID, Status: StatusNotFound, Err: err}
	case err != nil:
		return DetailState{TraceID: traceID, Status: StatusFailed, Err: err}
	case trace == nil:
		return DetailState{TraceID: traceID, Status: StatusFailed, Err: fmt.Errorf("trace %s: empty response", traceID)}
	case len(trace.Spans) == 0:
		return DetailState{TraceID: traceID, Status: StatusNoData}
	}

	detail := BuildDetail(traceID, trace.Spans)
	return DetailState{TraceID: traceID, Status: StatusReady, Detail: &detail}
}

// BuildDetail composes summary, layout, display order and legend for a non-empty span list.
func BuildDetail(traceID string, spans []models.Span) TraceDetail {
	summary := visualize.Summarize(spans)
	if summary.TraceID == "" {
		summary.TraceID = traceID
	}
	layout := visualize.Normalize(spans)

	order := visualize.Order(spans)
	rows := make([]DetailRow, 0, len(order))
	for _, n := range order {
		s := spans[n.Index]
		sl := layout.Spans[n.Index]
		duration := s.Duration()
		if duration < 0 {
			duration = 0
		}
		rows = append(rows, DetailRow{
			SpanID:       s.SpanID,
			ParentSpanID: s.ParentSpanID,
			Name:         s.Name,
			ServiceName:  s.ServiceName,
			StatusCode:   s.StatusCode,
			IsError:      s.IsError(),
			Depth:        n.Depth,
			Color:        visualize.ColorFor(s.ServiceName),
			Left:         sl.Left,
			Width:        sl.Width,
			Duration:     duration,
			DurationText: visualize.FormatDuration(duration),
		})
	}

	legend := make([]LegendEntry, 0, len(summary.Services))
	for _, name := range summary.Services {
		legend = append(legend, LegendEntry{
			Service: name,
			Color:   visualize.ColorFor(name),
			Count:   summary.ServiceCounts[name],
		})
	}

	return TraceDetail{
		TraceID: traceID,
		Summary: summary,
		Layout:  layout,
		Rows:    rows,
		Legend:  legend,
		Errors:  summary.ErrorSpans,
	}
}
