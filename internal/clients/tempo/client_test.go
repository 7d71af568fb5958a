package tempo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spanscope/internal/models"
)

func TestSearch(t *testing.T) {
	now := time.Unix(1700003600, 0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/search", r.URL.Path)
		assert.Equal(t, "{}", r.URL.Query().Get("q"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		assert.Equal(t, "1700000000", r.URL.Query().Get("start"))
		assert.Equal(t, "1700003600", r.URL.Query().Get("end"))

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"traces": [
				{"traceID": "older", "rootServiceName": "gateway", "startTimeUnixNano": "1700000000000000000", "durationMs": 12,
				 "serviceStats": {"gateway": {"spanCount": 2}, "db": {"spanCount": 1}, "auth": {"spanCount": 1, "errorCount": 1}}},
				{"traceID": "newer", "rootServiceName": "orders", "startTimeUnixNano": "1700000100000000000", "durationMs": 3}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, nil)
	client.now = func() time.Time { return now }

	traces, err := client.Search(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, traces, 2)

	assert.Equal(t, "newer", traces[0].TraceID)
	assert.Equal(t, []string{"orders"}, traces[0].Services)
	assert.False(t, traces[0].HasError)

	assert.Equal(t, "older", traces[1].TraceID)
	assert.Equal(t, int64(12000), traces[1].TotalDuration)
	assert.True(t, traces[1].HasError)
	assert.Equal(t, []string{"gateway", "auth", "db"}, traces[1].Services)
}

func TestSearchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, nil)
	_, err := client.Search(context.Background(), 20)
	assert.Error(t, err)
}

func TestGetTrace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/traces/000102030405060708090a0b0c0d0e0f", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"batches": [
				{
					"resource": {"attributes": [{"key": "service.name", "value": {"stringValue": "auth"}}]},
					"scopeSpans": [{"spans": [{
						"traceId": "AAECAwQFBgcICQoLDA0ODw==",
						"spanId": "CQoLDA0ODxA=",
						"parentSpanId": "AQIDBAUGBwg=",
						"name": "verify",
						"startTimeUnixNano": "1700000000020000000",
						"endTimeUnixNano": "1700000000120000000",
						"status": {"code": "STATUS_CODE_ERROR"},
						"attributes": [{"key": "http.status_code", "value": {"intValue": "401"}}]
					}]}]
				},
				{
					"resource": {"attributes": [{"key": "service.name", "value": {"stringValue": "gateway"}}]},
					"scopeSpans": [{"spans": [{
						"traceId": "000102030405060708090a0b0c0d0e0f",
						"spanId": "0102030405060708",
						"name": "GET /login",
						"startTimeUnixNano": "1700000000000000000",
						"endTimeUnixNano": "1700000000100000000",
						"status": {}
					}]}]
				}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, nil)
	trace, err := client.GetTrace(context.Background(), "000102030405060708090a0b0c0d0e0f")
	require.NoError(t, err)
	require.Len(t, trace.Spans, 2)
	assert.Equal(t, 2, trace.TotalSpans)

	root := trace.Spans[0]
	assert.Equal(t, "gateway", root.ServiceName)
	assert.Equal(t, "0102030405060708", root.SpanID)
	assert.Equal(t, "", root.ParentSpanID)
	assert.Equal(t, models.StatusOK, root.StatusCode)
	assert.Equal(t, int64(1700000000000000), root.Start)

	child := trace.Spans[1]
	assert.Equal(t, "auth", child.ServiceName)
	assert.Equal(t, "090a0b0c0d0e0f10", child.SpanID)
	assert.Equal(t, "0102030405060708", child.ParentSpanID)
	assert.Equal(t, "000102030405060708090a0b0c0d0e0f", child.TraceID)
	assert.Equal(t, "ERROR", child.StatusCode)
	assert.Equal(t, int64(100000), child.Duration())
	assert.Equal(t, int64(401), child.Attributes["http.status_code"])
}

func TestGetTraceNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, nil)
	_, err := client.GetTrace(context.Background(), "abc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrTraceNotFound))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "ERROR", statusCode("STATUS_CODE_ERROR"))
	assert.Equal(t, "ERROR", statusCode(float64(2)))
	assert.Equal(t, "OK", statusCode("STATUS_CODE_OK"))
	assert.Equal(t, "OK", statusCode("STATUS_CODE_UNSET"))
	assert.Equal(t, "OK", statusCode(nil))
}

func TestNormalizeID(t *testing.T) {
	assert.Equal(t, "0102030405060708", normalizeID("AQIDBAUGBwg="))
	assert.Equal(t, "abcdef0123456789", normalizeID("ABCDEF0123456789"))
	assert.Equal(t, "", normalizeID(""))
	assert.Equal(t, "not-an-id!", normalizeID("not-an-id!"))
}
