// Package tempo provides a client for reading traces from a Grafana Tempo backend.
package tempo

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
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

// matchAllQuery selects every trace in the search window.
const matchAllQuery = "{}"

// defaultLookback is how far back Search looks for recent traces.
const defaultLookback = time.Hour

var tracer = otel.Tracer("spanscope/tempo")

// Client implements HTTP interaction with the Tempo API to fetch traces and spans.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
	lookback   time.Duration
	now        func() time.Time
}

// NewClient creates a new Tempo client
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:   logger,
		lookback: defaultLookback,
		now:      time.Now,
	}
}

// WithMetrics attaches request latency metrics to the client.
func (c *Client) WithMetrics(m *metrics.Metrics) *Client {
	c.metrics = m
	return c
}

// doRequest performs the HTTP request to Tempo via HTTP API
func (c *Client) doRequest(ctx context.Context, apiPath string, params url.Values) (int, []byte, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid base URL: %w", err)
	}

	u = u.JoinPath(apiPath)
	if params != nil {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("tempo request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, body, nil
}

// Search fetches up to limit recent traces and maps them onto list rows.
func (c *Client) Search(ctx context.Context, limit int) (traces []models.TraceSummary, err error) {
	if limit <= 0 {
		limit = 1
	}

	ctx, span := tracer.Start(ctx, "tempo.Search", trace.WithAttributes(attribute.Int("limit", limit)))
	started := time.Now()
	defer func() {
		c.metrics.ObserveBackend("search", started, err)
		endSpan(span, err)
	}()

	end := c.now()
	params := url.Values{
		"q":     []string{matchAllQuery},
		"limit": []string{strconv.Itoa(limit)},
		"start": []string{strconv.FormatInt(end.Add(-c.lookback).Unix(), 10)},
		"end":   []string{strconv.FormatInt(end.Unix(), 10)},
	}

	status, body, err := c.doRequest(ctx, "/api/search", params)
	if err != nil {
		c.logger.Error("Failed to search traces", "error", err)
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code from tempo: %d", status)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	// Newest first, like the native backend.
	sort.SliceStable(resp.Traces, func(i, j int) bool {
		return resp.Traces[i].StartTimeUnixNano > resp.Traces[j].StartTimeUnixNano
	})

	traces = make([]models.TraceSummary, 0, len(resp.Traces))
	for _, t := range resp.Traces {
		traces = append(traces, toSummary(t))
	}
	if len(traces) > limit {
		traces = traces[:limit]
	}

	return traces, nil
}

func toSummary(t searchTrace) models.TraceSummary {
	summary := models.TraceSummary{
		TraceID:       t.TraceID,
		RootService:   t.RootServiceName,
		TotalDuration: int64(t.DurationMs) * 1000,
		Services:      []string{},
	}

	others := make([]string, 0, len(t.ServiceStats))
	for name, stats := range t.ServiceStats {
		if stats.ErrorCount > 0 {
			summary.HasError = true
		}
		if name != t.RootServiceName {
			others = append(others, name)
		}
	}
	sort.Strings(others)

	if t.RootServiceName != "" {
		summary.Services = append(summary.Services, t.RootServiceName)
	}
	summary.Services = append(summary.Services, others...)

	return summary
}

// GetTrace fetches a single complete trace by its ID.
// A 404 from Tempo is reported as models.ErrTraceNotFound.
func (c *Client) GetTrace(ctx context.Context, traceID string) (result *models.Trace, err error) {
	ctx, span := tracer.Start(ctx, "tempo.GetTrace", trace.WithAttributes(attribute.String("trace.id", traceID)))
	started := time.Now()
	defer func() {
		c.metrics.ObserveBackend("get_trace", started, err)
		endSpan(span, err)
	}()

	status, body, err := c.doRequest(ctx, "/api/traces/"+url.PathEscape(traceID), nil)
	if err != nil {
		c.logger.Error("Failed to fetch trace by ID", "traceID", traceID, "error", err)
		return nil, err
	}
	switch {
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("trace %s: %w", traceID, models.ErrTraceNotFound)
	case status != http.StatusOK:
		return nil, fmt.Errorf("unexpected status code from tempo: %d", status)
	}

	var resp traceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse trace response: %w", err)
	}

	spans := decodeSpans(resp)
	for i := range spans {
		if spans[i].TraceID == "" {
			spans[i].TraceID = traceID
		}
	}

	return &models.Trace{
		TraceID:    traceID,
		Spans:      spans,
		TotalSpans: len(spans),
	}, nil
}

// decodeSpans flattens OTLP resource/scope batches into spans, taking the service name from
// each batch's resource attributes. Batch order carries no meaning, so spans are returned
// stably sorted by start time and that order is the input order summaries see.
func decodeSpans(resp traceResponse) []models.Span {
	batches := resp.ResourceSpans
	if len(batches) == 0 {
		batches = resp.Batches
	}

	spans := []models.Span{}
	for _, rs := range batches {
		service := stringAttribute(rs.Resource.Attributes, "service.name")
		scopes := rs.ScopeSpans
		if len(scopes) == 0 {
			scopes = rs.InstrumentationLibrarySpans
		}
		for _, ss := range scopes {
			for _, s := range ss.Spans {
				spans = append(spans, models.Span{
					TraceID:      normalizeID(s.TraceID),
					SpanID:       normalizeID(s.SpanID),
					ParentSpanID: normalizeID(s.ParentSpanID),
					Name:         s.Name,
					ServiceName:  service,
					Start:        models.NanosToMicros(int64(s.StartTimeUnixNano)),
					End:          models.NanosToMicros(int64(s.EndTimeUnixNano)),
					StatusCode:   statusCode(s.Status.Code),
					Attributes:   attributeMap(s.Attributes),
				})
			}
		}
	}

	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].Start < spans[j].Start
	})
	return spans
}

// normalizeID returns lowercase hex for hex or base64 encoded OTLP ids.
func normalizeID(id string) string {
	if id == "" {
		return ""
	}
	if (len(id) == 16 || len(id) == 32) && isHex(id) {
		return strings.ToLower(id)
	}
	raw, err := base64.StdEncoding.DecodeString(id)
	if err != nil {
		return id
	}
	return hex.EncodeToString(raw)
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}

// statusCode maps an OTLP status code (enum name or number) onto "OK" / "ERROR".
func statusCode(code any) string {
	switch c := code.(type) {
	case string:
		if c == "STATUS_CODE_ERROR" || c == "ERROR" || c == "2" {
			return "ERROR"
		}
	case float64:
		if c == 2 {
			return "ERROR"
		}
	}
	return models.StatusOK
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
