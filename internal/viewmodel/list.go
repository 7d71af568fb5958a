// Package viewmodel holds the stateful halves of the trace viewer: a polling list of recent
// traces and a per-viewer detail view. Both turn backend results and failures into states a
// renderer can draw without further decisions.
package viewmodel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"spanscope/internal/metrics"
	"spanscope/internal/models"
	"spanscope/internal/visualize"
)

const (
	// MaxListLimit is the most traces the list ever requests.
	MaxListLimit = 20
	// DefaultRefreshInterval is the polling period used when none is configured.
	DefaultRefreshInterval = 5 * time.Second
)

// ErrStaleRefresh is returned by Refresh when a newer refresh was issued before this one
// completed. Its result was discarded.
var ErrStaleRefresh = errors.New("refresh superseded by a newer request")

// TraceSearcher fetches the most recent trace summaries.
type TraceSearcher interface {
	Search(ctx context.Context, limit int) ([]models.TraceSummary, error)
}

// ListState is the list as last applied. Traces survives a failed refresh; Err describes
// the most recent failure and is cleared by the next success.
type ListState struct {
	Traces    []models.TraceSummary `json:"traces"`
	Err       error                 `json:"-"`
	Loaded    bool                  `json:"loaded"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

// ErrorText returns the failure message, or "" when the last refresh succeeded.
func (s ListState) ErrorText() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// ServiceBadge is one colored service tag on a list row.
type ServiceBadge struct {
	Name  string          `json:"name"`
	Color visualize.Color `json:"color"`
}

// ListRow is a display-ready trace summary.
type ListRow struct {
	TraceID       string          `json:"traceId"`
	ShortID       string          `json:"shortId"`
	RootService   string          `json:"rootService"`
	RootColor     visualize.Color `json:"rootColor"`
	TotalDuration int64           `json:"totalDuration"`
	Duration      string          `json:"duration"`
	HasError      bool            `json:"hasError"`
	Services      []ServiceBadge  `json:"services"`
}

// Option configures a TraceList.
type Option func(*TraceList)

// WithLimit sets how many traces each refresh requests, clamped to [1, MaxListLimit].
func WithLimit(limit int) Option {
	return func(l *TraceList) {
		l.limit = ClampLimit(limit)
	}
}

// WithInterval sets the polling period. Non-positive values keep the default.
func WithInterval(d time.Duration) Option {
	return func(l *TraceList) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *TraceList) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics records refresh outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *TraceList) {
		l.metrics = m
	}
}

// TraceList keeps the recent-traces list fresh.
//
// Every Refresh takes a sequence number. A completion is applied only when its number is
// still the latest issued, so a slow response can never overwrite a newer one.
type TraceList struct {
	id       string
	searcher TraceSearcher
	limit    int
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu    sync.Mutex
	seq   uint64
	state ListState

	inFlight atomic.Int32
	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewTraceList creates a list view model backed by searcher.
func NewTraceList(searcher TraceSearcher, opts ...Option) *TraceList {
	l := &TraceList{
		id:       uuid.NewString(),
		searcher: searcher,
		limit:    MaxListLimit,
		interval: DefaultRefreshInterval,
		logger:   slog.Default(),
		now:      time.Now,
		state:    ListState{Traces: []models.TraceSummary{}},
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "trace_list", "list_id", l.id)
	return l
}

// ClampLimit bounds a requested list size to [1, MaxListLimit].
func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// Limit returns the number of traces requested per refresh.
func (l *TraceList) Limit() int {
	return l.limit
}

// Interval returns the polling period.
func (l *TraceList) Interval() time.Duration {
	return l.interval
}

// Refresh fetches the list once. It returns the backend error on failure and
// ErrStaleRefresh when a newer refresh overtook this one.
func (l *TraceList) Refresh(ctx context.Context) error {
	l.mu.Lock()
	l.seq++
	seq := l.seq
	l.mu.Unlock()

	l.inFlight.Add(1)
	defer l.inFlight.Add(-1)

	traces, err := l.searcher.Search(ctx, l.limit)

	l.mu.Lock()
	defer l.mu.Unlock()

	if seq != l.seq {
		l.metrics.ObserveRefresh(metrics.RefreshStale)
		l.logger.Debug("Discarding stale refresh", "seq", seq, "latest", l.seq)
		return ErrStaleRefresh
	}

	if err != nil {
		l.state.Err = err
		l.metrics.ObserveRefresh(metrics.RefreshFailed)
		l.logger.Warn("Failed to refresh trace list", "error", err)
		return err
	}

	if traces == nil {
		traces = []models.TraceSummary{}
	}
	if len(traces) > l.limit {
		traces = traces[:l.limit]
	}
	l.state = ListState{
		Traces:    traces,
		Loaded:    true,
		UpdatedAt: l.now(),
	}
	l.metrics.ObserveRefresh(metrics.RefreshOK)
	l.logger.Debug("Refreshed trace list", "seq", seq, "traces", len(traces))
	return nil
}

// Run refreshes immediately and then on every interval until ctx is cancelled or Stop is
// called. A tick is skipped while another refresh is still in flight. Run blocks; calling
// it a second time returns at once.
func (l *TraceList) Run(ctx context.Context) {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	defer close(l.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-l.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	l.logger.Info("Starting trace list polling", "interval", l.interval, "limit", l.limit)
	l.tick(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopped trace list polling")
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *TraceList) tick(ctx context.Context) {
	if l.inFlight.Load() > 0 {
		l.metrics.ObserveRefresh(metrics.RefreshSkipped)
		return
	}
	_ = l.Refresh(ctx)
}

// Stop ends polling and waits for Run to return. In-flight requests made by the poller are
// cancelled. Stop is safe to call more than once and before Run.
func (l *TraceList) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
	if l.started.Load() {
		<-l.done
	}
}

// Snapshot returns a copy of the current state.
func (l *TraceList) Snapshot() ListState {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.state
	s.Traces = make([]models.TraceSummary, len(l.state.Traces))
	copy(s.Traces, l.state.Traces)
	return s
}

// Rows returns the current traces as display rows.
func (l *TraceList) Rows() []ListRow {
	return BuildRows(l.Snapshot().Traces)
}

// BuildRows maps summaries onto display rows, coloring each service.
func BuildRows(traces []models.TraceSummary) []ListRow {
	rows := make([]ListRow, 0, len(traces))
	for _, t := range traces {
		badges := make([]ServiceBadge, 0, len(t.Services))
		for _, s := range t.Services {
			badges = append(badges, ServiceBadge{Name: s, Color: visualize.ColorFor(s)})
		}
		rows = append(rows, ListRow{
			TraceID:       t.TraceID,
			ShortID:       visualize.ShortID(t.TraceID),
			RootService:   t.RootService,
			RootColor:     visualize.ColorFor(t.RootService),
			TotalDuration: t.TotalDuration,
			Duration:      visualize.FormatDuration(t.TotalDuration),
			HasError:      t.HasError,
			Services:      badges,
		})
	}
	return rows
}
