// Package mcp exposes the trace viewer to MCP clients as two read-only tools.
package mcp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"spanscope/internal/metrics"
	"spanscope/internal/output"
	"spanscope/internal/viewmodel"
)

// Backend is the trace store the tools read from.
type Backend interface {
	viewmodel.TraceSearcher
	viewmodel.TraceGetter
}

// Server renders trace lists and details as plain text tool results.
type Server struct {
	backend  Backend
	renderer *output.Renderer
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a new MCP tool layer. m and logger may be nil.
func New(backend Backend, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		backend:  backend,
		renderer: output.NewRenderer(false),
		metrics:  m,
		logger:   logger.With("component", "mcp"),
		now:      time.Now,
	}
}

// RegisterTools registers the spanscope tools with the MCP server
func (s *Server) RegisterTools(mcpServer *server.MCPServer) {
	listTool := mcp.NewTool("list_recent_traces",
		mcp.WithDescription("Lists the most recent traces with root service, duration, status and services involved."),
		mcp.WithNumber("limit", mcp.Description(fmt.Sprintf("Maximum number of traces (1-%d, default %d)", viewmodel.MaxListLimit, viewmodel.MaxListLimit))),
	)
	mcpServer.AddTool(listTool, s.HandleListRecentTraces)

	traceTool := mcp.NewTool("get_trace",
		mcp.WithDescription("Shows one trace as a waterfall timeline with its service legend and error spans."),
		mcp.WithString("trace_id", mcp.Required(), mcp.Description("Trace ID, hex encoded")),
	)
	mcpServer.AddTool(traceTool, s.HandleGetTrace)
}

// HandleListRecentTraces searches the backend once and renders the result as a table.
func (s *Server) HandleListRecentTraces(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := viewmodel.ClampLimit(request.GetInt("limit", viewmodel.MaxListLimit))

	traces, err := s.backend.Search(ctx, limit)
	if err != nil {
		s.logger.Warn("Trace search failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to fetch traces: %v", err)), nil
	}
	if len(traces) > limit {
		traces = traces[:limit]
	}

	var buf bytes.Buffer
	state := viewmodel.ListState{Traces: traces, Loaded: true, UpdatedAt: s.now()}
	if err := s.renderer.TraceList(&buf, state); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to render traces: %v", err)), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

// HandleGetTrace loads one trace and renders its detail. Missing and failed traces are
// reported as tool errors.
func (s *Server) HandleGetTrace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	traceID := request.GetString("trace_id", "")
	if traceID == "" {
		return mcp.NewToolResultError("trace_id is required"), nil
	}

	view := viewmodel.NewDetailView(s.backend, s.logger).WithMetrics(s.metrics)
	defer view.Close()
	state := view.Load(ctx, traceID)

	var buf bytes.Buffer
	if err := s.renderer.TraceDetail(&buf, state); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to render trace: %v", err)), nil
	}

	switch state.Status {
	case viewmodel.StatusNotFound, viewmodel.StatusFailed:
		return mcp.NewToolResultError(buf.String()), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}
