package tracequery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spanscope/internal/metrics"
	"spanscope/internal/models"
)

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "20", r.URL.Query().Get("limit"))

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[
			{"traceId": "trace-123", "rootService": "gateway", "totalDuration": 1500, "hasError": true, "services": ["gateway", "auth"]},
			{"traceId": "trace-456", "rootService": "orders", "totalDuration": 80, "hasError": false}
		]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, nil)
	traces, err := client.Search(context.Background(), 20)

	require.NoError(t, err)
	require.Len(t, traces, 2)
	assert.Equal(t, "trace-123", traces[0].TraceID)
	assert.Equal(t, int64(1500), traces[0].TotalDuration)
	assert.True(t, traces[0].HasError)
	assert.Equal(t, []string{"gateway", "auth"}, traces[0].Services)
	assert.Equal(t, []string{}, traces[1].Services)
}

func TestSearchTruncatesOversizedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"traceId":"a"},{"traceId":"b"},{"traceId":"c"}]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, nil)
	traces, err := client.Search(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, traces, 2)
}

func TestSearchClampsLimit(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got = append(got, r.URL.Query().Get("limit"))
		mu.Unlock()
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, nil)
	_, err := client.Search(context.Background(), 0)
	require.NoError(t, err)
	_, err = client.Search(context.Background(), 500)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"1", "100"}, got)
}

func TestSearchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	client := NewClient(server.URL, 5*time.Second, nil).WithMetrics(m)

	_, err := client.Search(context.Background(), 20)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, 1, testutil.CollectAndCount(m.BackendRequests))
}

func TestSearchInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, nil)
	_, err := client.Search(context.Background(), 20)
	assert.Error(t, err)
}

func TestGetTrace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/traces/abc-123", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"traceId": "abc-123",
			"spans": [
				{"spanId": "s1", "name": "GET /", "serviceName": "gateway", "startTime": 0, "duration": 100, "statusCode": "OK"},
				{"spanId": "s2", "parentSpanId": "s1", "name": "auth", "serviceName": "auth", "startTimeUnixNano": 20000, "endTimeUnixNano": 120000, "statusCode": "ERROR"}
			],
			"total_spans": 2
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, nil)
	trace, err := client.GetTrace(context.Background(), "abc-123")

	require.NoError(t, err)
	require.NotNil(t, trace)
	assert.Equal(t, "abc-123", trace.TraceID)
	require.Len(t, trace.Spans, 2)
	assert.Equal(t, "abc-123", trace.Spans[0].TraceID, "spans inherit the trace id")
	assert.Equal(t, int64(20), trace.Spans[1].Start)
	assert.Equal(t, int64(120), trace.Spans[1].End)
	assert.Equal(t, "s1", trace.Spans[1].ParentSpanID)
}

func TestGetTraceNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"error": "Trace not found"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, nil)
	_, err := client.GetTrace(context.Background(), "missing")

	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrTraceNotFound))
}

func TestGetTraceEmptySpans(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"traceId": "t-1"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, nil)
	trace, err := client.GetTrace(context.Background(), "t-1")

	require.NoError(t, err)
	assert.NotNil(t, trace.Spans)
	assert.Empty(t, trace.Spans)
}

func TestGetTraceTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url, time.Second, nil)
	_, err := client.GetTrace(context.Background(), "abc")

	require.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrTraceNotFound))
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8002/", 30*time.Second, nil)
	assert.NotNil(t, client)
	assert.Equal(t, "http://localhost:8002", client.baseURL)
}
