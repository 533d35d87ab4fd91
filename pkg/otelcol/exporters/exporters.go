package exporters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"smallbiznis-picks/pkg/config"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
)

const defaultTimeout = 10 * time.Second

// NewSpanExporter ships ledger spans to the collector at OTEL.ADDR over the
// configured protocol ("http" or "grpc").
func NewSpanExporter(ctx context.Context, cfg *config.Config) (*otlptrace.Exporter, error) {
	timeout := cfg.Otel.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	headers := ParseHeaders(cfg.Otel.Headers)
	if cfg.AppName != "" {
		headers["x-picks-service"] = cfg.AppName
	}

	var client otlptrace.Client
	switch strings.ToLower(cfg.Otel.Protocol) {
	case "", "http":
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Otel.Addr),
			otlptracehttp.WithHeaders(headers),
			otlptracehttp.WithTimeout(timeout),
			otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
		}
		if cfg.Otel.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		client = otlptracehttp.NewClient(opts...)
	case "grpc":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Otel.Addr),
			otlptracegrpc.WithHeaders(headers),
			otlptracegrpc.WithTimeout(timeout),
			otlptracegrpc.WithCompressor("gzip"),
		}
		if cfg.Otel.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		client = otlptracegrpc.NewClient(opts...)
	default:
		return nil, fmt.Errorf("unsupported otel protocol %q", cfg.Otel.Protocol)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return otlptrace.New(ctx, client)
}

// ParseHeaders reads "key=value,key=value" pairs; malformed pairs are skipped.
func ParseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		headers[k] = strings.TrimSpace(v)
	}
	return headers
}
