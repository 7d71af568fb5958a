// Package clients selects the trace backend client named by configuration.
package clients

import (
	"context"
	"fmt"
	"log/slog"

	"spanscope/internal/clients/tempo"
	"spanscope/internal/clients/tracequery"
	"spanscope/internal/config"
	"spanscope/internal/metrics"
	"spanscope/internal/models"
)

// Backend is implemented by every trace backend client.
type Backend interface {
	Search(ctx context.Context, limit int) ([]models.TraceSummary, error)
	GetTrace(ctx context.Context, traceID string) (*models.Trace, error)
}

// New builds the client for cfg.Kind. m may be nil.
func New(cfg config.BackendConfig, m *metrics.Metrics, logger *slog.Logger) (Backend, error) {
	switch cfg.KindName() {
	case config.BackendNative:
		return tracequery.NewClient(cfg.URL, cfg.GetTimeoutDuration(), logger).WithMetrics(m), nil
	case config.BackendTempo:
		return tempo.NewClient(cfg.URL, cfg.GetTimeoutDuration(), logger).WithMetrics(m), nil
	default:
		return nil, fmt.Errorf("unsupported backend kind %q", cfg.Kind)
	}
}
