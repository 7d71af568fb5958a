// Package tracequery provides a client for the trace-query backend's search and trace endpoints.
package tracequery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"spanscope/internal/metrics"
	"spanscope/internal/models"
)

// MaxLimit is the largest page size the backend accepts.
const MaxLimit = 100

var tracer = otel.Tracer("spanscope/tracequery")

// Client implements HTTP interaction with the trace-query API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a new trace-query client
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// WithMetrics attaches request latency metrics to the client.
func (c *Client) WithMetrics(m *metrics.Metrics) *Client {
	c.metrics = m
	return c
}

// StatusError reports a non-2xx answer from the backend.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code from trace backend: %d", e.StatusCode)
}

// doRequest performs a GET against the backend and returns the body of a 2xx response.
func (c *Client) doRequest(ctx context.Context, apiPath string, params url.Values) ([]byte, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	u = u.JoinPath(apiPath)
	if params != nil {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trace backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return body, nil
}

// Search fetches at most limit recent trace summaries, newest first.
func (c *Client) Search(ctx context.Context, limit int) (traces []models.TraceSummary, err error) {
	limit = clampLimit(limit)

	ctx, span := tracer.Start(ctx, "tracequery.Search", trace.WithAttributes(attribute.Int("limit", limit)))
	started := time.Now()
	defer func() {
		c.metrics.ObserveBackend("search", started, err)
		endSpan(span, err)
	}()

	params := url.Values{
		"limit": []string{strconv.Itoa(limit)},
	}

	resp, err := c.doRequest(ctx, "/search", params)
	if err != nil {
		c.logger.Error("Failed to search traces", "limit", limit, "error", err)
		return nil, err
	}

	if err := json.Unmarshal(resp, &traces); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	for i := range traces {
		if traces[i].Services == nil {
			traces[i].Services = []string{}
		}
	}
	if len(traces) > limit {
		traces = traces[:limit]
	}

	span.SetAttributes(attribute.Int("traces", len(traces)))
	return traces, nil
}

// GetTrace fetches a single complete trace by its ID.
// It returns models.ErrTraceNotFound when the backend flags the trace as absent.
func (c *Client) GetTrace(ctx context.Context, traceID string) (result *models.Trace, err error) {
	ctx, span := tracer.Start(ctx, "tracequery.GetTrace", trace.WithAttributes(attribute.String("trace.id", traceID)))
	started := time.Now()
	defer func() {
		c.metrics.ObserveBackend("get_trace", started, err)
		endSpan(span, err)
	}()

	resp, err := c.doRequest(ctx, "/traces/"+url.PathEscape(traceID), nil)
	if err != nil {
		c.logger.Error("Failed to fetch trace by ID", "traceID", traceID, "error", err)
		return nil, err
	}

	var t models.Trace
	if err := json.Unmarshal(resp, &t); err != nil {
		return nil, fmt.Errorf("failed to parse trace response: %w", err)
	}

	if t.NotFound() {
		return nil, fmt.Errorf("trace %s: %w", traceID, models.ErrTraceNotFound)
	}

	if t.TraceID == "" {
		t.TraceID = traceID
	}
	if t.Spans == nil {
		t.Spans = []models.Span{}
	}
	for i := range t.Spans {
		if t.Spans[i].TraceID == "" {
			t.Spans[i].TraceID = t.TraceID
		}
	}

	span.SetAttributes(attribute.Int("spans", len(t.Spans)))
	return &t, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 1
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
