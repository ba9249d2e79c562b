// Package telemetry exports log records to an OTLP/HTTP collector.
package telemetry

import (
	"context"
	"net/url"
	"time"

	"github.com/agentuity/storefront/logger"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

type ShutdownFunc func()

// New returns a logger that writes to base (when not nil) and exports every
// record to the collector at otlpServerURL.
func New(ctx context.Context, serviceName, otlpServerURL, authToken string, base logger.Logger) (logger.Logger, ShutdownFunc, error) {
	otlpURL, err := url.Parse(otlpServerURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "error parsing otlp url")
	}
	if otlpURL.Scheme != "http" && otlpURL.Scheme != "https" {
		return nil, nil, errors.Newf("unsupported otlp url scheme %q", otlpURL.Scheme)
	}
	otlpURL.Path = "/v1/logs"

	res, err := resource.New(
		ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if errors.Is(err, resource.ErrPartialResource) || errors.Is(err, resource.ErrSchemaURLConflict) {
		if base != nil {
			base.Warn("partial telemetry resource: %s", err)
		}
	} else if err != nil {
		return nil, nil, errors.Wrap(err, "error creating resource")
	}

	headers := make(map[string]string)
	if authToken != "" {
		headers["Authorization"] = "Bearer " + authToken
	}
	opts := []otlploghttp.Option{
		otlploghttp.WithEndpointURL(otlpURL.String()),
		otlploghttp.WithHeaders(headers),
		otlploghttp.WithTimeout(10 * time.Second),
		otlploghttp.WithCompression(otlploghttp.GzipCompression),
	}
	if otlpURL.Scheme == "http" {
		opts = append(opts, otlploghttp.WithInsecure())
	}
	exporter, err := otlploghttp.New(ctx, opts...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "error creating log exporter")
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	var log logger.Logger = logger.NewOtelLogger(provider.Logger(serviceName), logger.LevelTrace)
	if base != nil {
		log = base.Stack(log)
	}

	return log, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil && base != nil {
			base.Warn("telemetry shutdown: %s", err)
		}
	}, nil
}
