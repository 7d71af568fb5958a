package clients

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spanscope/internal/clients/tempo"
	"spanscope/internal/clients/tracequery"
	"spanscope/internal/config"
)

func TestNew(t *testing.T) {
	b, err := New(config.BackendConfig{URL: "http://localhost:8002"}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &tracequery.Client{}, b)

	b, err = New(config.BackendConfig{Kind: " Tempo ", URL: "http://localhost:3200"}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &tempo.Client{}, b)

	_, err = New(config.BackendConfig{Kind: "jaeger", URL: "http://localhost:16686"}, nil, nil)
	assert.ErrorContains(t, err, "jaeger")
}
