package exporters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"smallbiznis-picks/pkg/config"
)

func TestParseHeaders(t *testing.T) {
	require.Equal(t, map[string]string{}, ParseHeaders(""))
	require.Equal(t,
		map[string]string{"authorization": "Bearer abc", "x-tenant": "picks"},
		ParseHeaders("authorization=Bearer abc, x-tenant = picks,broken,=nokey"),
	)
}

func TestNewSpanExporter(t *testing.T) {
	ctx := context.Background()

	for _, protocol := range []string{"http", "grpc"} {
		cfg := &config.Config{AppName: "picks-ledger"}
		cfg.Otel.Addr = "127.0.0.1:4318"
		cfg.Otel.Protocol = protocol
		cfg.Otel.Insecure = true

		exporter, err := NewSpanExporter(ctx, cfg)
		require.NoError(t, err, protocol)
		require.NoError(t, exporter.Shutdown(ctx), protocol)
	}

	cfg := &config.Config{}
	cfg.Otel.Protocol = "zipkin"
	_, err := NewSpanExporter(ctx, cfg)
	require.ErrorContains(t, err, "unsupported otel protocol")
}
