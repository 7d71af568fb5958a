package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spanscope/internal/metrics"
	"spanscope/internal/models"
	"spanscope/internal/viewmodel"
)

type fakeBackend struct {
	mu       sync.Mutex
	traces   []models.TraceSummary
	err      error
	byID     map[string]*models.Trace
	getErr   error
	searches int
	// gates holds GetTrace for a trace id until the channel is closed.
	gates   map[string]chan struct{}
	started chan string
}

func (f *fakeBackend) Search(ctx context.Context, limit int) ([]models.TraceSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.traces, f.err
}

func (f *fakeBackend) GetTrace(ctx context.Context, traceID string) (*models.Trace, error) {
	f.mu.Lock()
	gate := f.gates[traceID]
	started := f.started
	f.mu.Unlock()

	if started != nil {
		started <- traceID
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	t, ok := f.byID[traceID]
	if !ok {
		return nil, fmt.Errorf("trace %s: %w", traceID, models.ErrTraceNotFound)
	}
	return t, nil
}

func newBackend() *fakeBackend {
	return &fakeBackend{
		traces: []models.TraceSummary{
			{TraceID: "4bf92f3577b34da6a3ce929d0e0e4736", RootService: "frontend", TotalDuration: 1000, HasError: true, Services: []string{"frontend", "payment-service"}},
		},
		byID: map[string]*models.Trace{
			"4bf92f3577b34da6a3ce929d0e0e4736": {
				TraceID: "4bf92f3577b34da6a3ce929d0e0e4736",
				Spans: []models.Span{
					{SpanID: "a", Name: "GET /checkout", ServiceName: "frontend", Start: 0, End: 1000, StatusCode: "OK"},
					{SpanID: "b", ParentSpanID: "a", Name: "charge card", ServiceName: "payment-service", Start: 200, End: 900, StatusCode: "ERROR"},
				},
			},
			"empty": {TraceID: "empty", Spans: []models.Span{}},
		},
	}
}

func setupTest(t *testing.T, backend *fakeBackend) (http.Handler, *viewmodel.TraceList, *Sessions) {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	list := viewmodel.NewTraceList(backend, viewmodel.WithMetrics(m))
	sessions, err := NewSessions(8, func() *viewmodel.DetailView {
		return viewmodel.NewDetailView(backend, nil).WithMetrics(m)
	})
	require.NoError(t, err)

	handler := NewHandler(list, sessions, reg, nil)
	return SetupRouter(handler), list, sessions
}

func doRequest(router http.Handler, method, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	router, _, _ := setupTest(t, newBackend())

	w := doRequest(router, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "healthy", response["status"])
	assert.Contains(t, response, "timestamp")
}

func TestHandleReady(t *testing.T) {
	router, list, _ := setupTest(t, newBackend())

	w := doRequest(router, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	require.NoError(t, list.Refresh(context.Background()))

	w = doRequest(router, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "ready", response["status"])
}

func TestHandleList(t *testing.T) {
	router, list, _ := setupTest(t, newBackend())
	require.NoError(t, list.Refresh(context.Background()))

	w := doRequest(router, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")

	body := w.Body.String()
	assert.Contains(t, body, `http-equiv="refresh" content="5"`)
	assert.Contains(t, body, `href="/traces/4bf92f3577b34da6a3ce929d0e0e4736"`)
	assert.Contains(t, body, "929d0e0e4736")
	assert.Contains(t, body, "1.00ms")
	assert.Contains(t, body, "payment-service")
	assert.Contains(t, body, "Error")
}

func TestHandleListStates(t *testing.T) {
	t.Run("loading", func(t *testing.T) {
		router, _, _ := setupTest(t, newBackend())
		w := doRequest(router, http.MethodGet, "/")
		assert.Contains(t, w.Body.String(), "Loading traces...")
	})

	t.Run("empty", func(t *testing.T) {
		backend := newBackend()
		backend.traces = nil
		router, list, _ := setupTest(t, backend)
		require.NoError(t, list.Refresh(context.Background()))

		w := doRequest(router, http.MethodGet, "/")
		assert.Contains(t, w.Body.String(), "No traces found.")
	})

	t.Run("backend down", func(t *testing.T) {
		backend := newBackend()
		backend.err = errors.New("connection refused")
		router, list, _ := setupTest(t, backend)
		assert.Error(t, list.Refresh(context.Background()))

		w := doRequest(router, http.MethodGet, "/")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Failed to fetch traces: connection refused")
	})
}

func TestHandleRefresh(t *testing.T) {
	backend := newBackend()
	router, list, _ := setupTest(t, backend)

	w := doRequest(router, http.MethodPost, "/refresh")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	assert.Equal(t, 1, backend.searches)
	assert.True(t, list.Snapshot().Loaded)
}

func TestHandleRefreshMethodNotAllowed(t *testing.T) {
	router, _, _ := setupTest(t, newBackend())

	w := doRequest(router, http.MethodGet, "/refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleDetail(t *testing.T) {
	tests := []struct {
		name     string
		traceID  string
		getErr   error
		wantCode int
		want     []string
	}{
		{
			name:     "ready",
			traceID:  "4bf92f3577b34da6a3ce929d0e0e4736",
			wantCode: http.StatusOK,
			want:     []string{"Trace Details", "Waterfall Timeline", "charge card", "payment-service", "Errors (1)", "left:20.0000%;width:70.0000%"},
		},
		{
			name:     "no spans",
			traceID:  "empty",
			wantCode: http.StatusOK,
			want:     []string{"No span data available"},
		},
		{
			name:     "not found",
			traceID:  "missing",
			wantCode: http.StatusNotFound,
			want:     []string{"Trace not found", "Back to Traces"},
		},
		{
			name:     "backend failure",
			traceID:  "4bf92f3577b34da6a3ce929d0e0e4736",
			getErr:   errors.New("unexpected status code from trace backend: 500"),
			wantCode: http.StatusBadGateway,
			want:     []string{"Failed to fetch trace", "Retry"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newBackend()
			backend.getErr = tt.getErr
			router, _, _ := setupTest(t, backend)

			w := doRequest(router, http.MethodGet, "/traces/"+tt.traceID)
			assert.Equal(t, tt.wantCode, w.Code)
			for _, s := range tt.want {
				assert.Contains(t, w.Body.String(), s)
			}
		})
	}
}

func TestViewerCookieReusesDetailView(t *testing.T) {
	router, _, sessions := setupTest(t, newBackend())

	w := doRequest(router, http.MethodGet, "/traces/empty")
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, viewerCookie, cookies[0].Name)
	assert.Equal(t, 1, sessions.Len())

	w = doRequest(router, http.MethodGet, "/traces/4bf92f3577b34da6a3ce929d0e0e4736", cookies[0])
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Result().Cookies(), "known viewer keeps its cookie")
	assert.Equal(t, 2, sessions.Len())

	w = doRequest(router, http.MethodGet, "/traces/empty", cookies[0])
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, sessions.Len())

	w = doRequest(router, http.MethodGet, "/traces/empty", &http.Cookie{Name: viewerCookie, Value: "not-a-uuid"})
	assert.Len(t, w.Result().Cookies(), 1)
	assert.Equal(t, 3, sessions.Len())
}

func TestConcurrentTracesForOneViewer(t *testing.T) {
	backend := newBackend()
	backend.byID["slow"] = &models.Trace{
		TraceID: "slow",
		Spans:   []models.Span{{SpanID: "s", Name: "batch job", ServiceName: "worker", Start: 0, End: 5000, StatusCode: "OK"}},
	}
	release := make(chan struct{})
	backend.gates = map[string]chan struct{}{"slow": release}
	backend.started = make(chan string, 4)
	router, _, _ := setupTest(t, backend)

	cookie := &http.Cookie{Name: viewerCookie, Value: "0b9f6f1e-8a55-4c51-9d5e-3f1c8f6e2a10"}

	slow := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		slow <- doRequest(router, http.MethodGet, "/traces/slow", cookie)
	}()
	require.Equal(t, "slow", <-backend.started)

	// A second tab opens another trace while the first is still loading.
	w := doRequest(router, http.MethodGet, "/traces/4bf92f3577b34da6a3ce929d0e0e4736", cookie)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "charge card")

	close(release)
	first := <-slow
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Contains(t, first.Body.String(), "batch job")
}

func TestHandleDetailSupersededOffersRetry(t *testing.T) {
	release := make(chan struct{})
	backend := newBackend()
	backend.gates = map[string]chan struct{}{"4bf92f3577b34da6a3ce929d0e0e4736": release}
	backend.started = make(chan string, 4)
	router, _, _ := setupTest(t, backend)

	cookie := &http.Cookie{Name: viewerCookie, Value: "0b9f6f1e-8a55-4c51-9d5e-3f1c8f6e2a10"}
	path := "/traces/4bf92f3577b34da6a3ce929d0e0e4736"

	older := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		older <- doRequest(router, http.MethodGet, path, cookie)
	}()
	<-backend.started

	newer := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		newer <- doRequest(router, http.MethodGet, path, cookie)
	}()

	w := <-older
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `href="/traces/4bf92f3577b34da6a3ce929d0e0e4736">Retry`)

	<-backend.started
	close(release)
	assert.Equal(t, http.StatusOK, (<-newer).Code)
}

func TestHandleRefreshIgnoresClientDisconnect(t *testing.T) {
	backend := newBackend()
	router, list, _ := setupTest(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/refresh", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	state := list.Snapshot()
	assert.True(t, state.Loaded)
	assert.NoError(t, state.Err)
	assert.Len(t, state.Traces, 1)
}

func TestSessionEvictionClosesView(t *testing.T) {
	backend := newBackend()
	sessions, err := NewSessions(1, func() *viewmodel.DetailView {
		return viewmodel.NewDetailView(backend, nil)
	})
	require.NoError(t, err)

	first := sessions.View("viewer-a", "empty")
	assert.Same(t, first, sessions.View("viewer-a", "empty"))

	sessions.View("viewer-a", "4bf92f3577b34da6a3ce929d0e0e4736")
	assert.Equal(t, 1, sessions.Len())

	st := first.Load(context.Background(), "empty")
	assert.Equal(t, viewmodel.StatusFailed, st.Status)
	assert.ErrorIs(t, st.Err, viewmodel.ErrViewClosed)

	sessions.Close()
	assert.Equal(t, 0, sessions.Len())
}

func TestHandleListJSON(t *testing.T) {
	router, list, _ := setupTest(t, newBackend())

	w := doRequest(router, http.MethodGet, "/api/traces")
	assert.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, list.Refresh(context.Background()))
	w = doRequest(router, http.MethodGet, "/api/traces")
	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Traces []models.TraceSummary `json:"traces"`
		Rows   []viewmodel.ListRow   `json:"rows"`
		Limit  int                   `json:"limit"`
		Loaded bool                  `json:"loaded"`
		Error  string                `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, viewmodel.MaxListLimit, response.Limit)
	assert.True(t, response.Loaded)
	assert.Empty(t, response.Error)
	require.Len(t, response.Traces, 1)
	require.Len(t, response.Rows, 1)
	assert.Equal(t, "929d0e0e4736", response.Rows[0].ShortID)
}

func TestHandleListJSONBackendDown(t *testing.T) {
	backend := newBackend()
	backend.err = errors.New("connection refused")
	router, list, _ := setupTest(t, backend)
	assert.Error(t, list.Refresh(context.Background()))

	w := doRequest(router, http.MethodGet, "/api/traces")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "connection refused", response["error"])
}

func TestHandleDetailJSON(t *testing.T) {
	router, _, _ := setupTest(t, newBackend())

	w := doRequest(router, http.MethodGet, "/api/traces/4bf92f3577b34da6a3ce929d0e0e4736")
	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		TraceID string                 `json:"traceId"`
		Status  viewmodel.Status       `json:"status"`
		Detail  *viewmodel.TraceDetail `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, viewmodel.StatusReady, response.Status)
	require.NotNil(t, response.Detail)
	require.Len(t, response.Detail.Rows, 2)
	assert.Equal(t, 1, response.Detail.Rows[1].Depth)
	assert.Equal(t, "frontend", response.Detail.Summary.RootService)

	w = doRequest(router, http.MethodGet, "/api/traces/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleMetrics(t *testing.T) {
	router, list, _ := setupTest(t, newBackend())
	require.NoError(t, list.Refresh(context.Background()))

	w := doRequest(router, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `spanscope_list_refreshes_total{result="ok"} 1`)
}
