package server

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/otlp"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/clinic-gateway/internal/config"
)

const operationPage = "page"

type meters struct {
	counter metric.Int64Counter
	hist    metric.Int64Histogram
}

func initMeters(ctx context.Context, cfg *config.Config) (*meters, error) {
	meter := otel.Meter(
		"clinic/"+cfg.Application.Name,
		metric.WithInstrumentationVersion(otel.Version()),
		metric.WithInstrumentationAttributes(otlp.CreateAttributesFrom(cfg.Application)...),
	)

	counter, err := meter.Int64Counter(
		"http.request_count",
		metric.WithDescription("Incoming request count"),
		metric.WithUnit("request"),
	)
	if err != nil {
		return nil, oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "creating request_count meter")
	}

	hist, err := meter.Int64Histogram(
		"http.duration",
		metric.WithDescription("Incoming end to end duration"),
		metric.WithUnit("milliseconds"),
	)
	if err != nil {
		return nil, oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "creating duration meter")
	}

	return &meters{counter: counter, hist: hist}, nil
}

// newTraceMiddleware covers every request with a span, request scoped log
// attributes and the request meters.
func newTraceMiddleware(cfg *config.Config, m *meters) gin.HandlerFunc {
	traceAttrs := otlp.CreateAttributesFrom(cfg.Application)
	tracer := otel.Tracer("clinic-gateway", trace.WithInstrumentationAttributes(traceAttrs...))

	return func(c *gin.Context) {
		operation := c.FullPath()
		if operation == "" {
			operation = operationPage
		}

		ctx := slogctx.With(c.Request.Context(),
			commoncfg.AttrRequestID, uuid.NewString(),
			commoncfg.AttrOperation, operation,
			"method", c.Request.Method,
		)

		parentCtx := otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(c.Request.Header))

		ctx, span := tracer.Start(parentCtx, operation+"-span",
			trace.WithAttributes(traceAttrs...),
			trace.WithAttributes(attribute.String(commoncfg.AttrOperation, operation)),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		requestStartTime := time.Now()

		slogctx.Debug(ctx, "Processing request", "path", c.Request.URL.Path)
		c.Next()

		elapsedTime := time.Since(requestStartTime)
		status := c.Writer.Status()

		attrs := metric.WithAttributes(
			otlp.CreateAttributesFrom(cfg.Application,
				attribute.String("userAgent", c.Request.UserAgent()),
				attribute.String(commoncfg.AttrOperation, operation),
				attribute.Int("status", status),
			)...,
		)
		m.counter.Add(ctx, 1, attrs)
		m.hist.Record(ctx, elapsedTime.Milliseconds(), attrs)

		slogctx.Info(ctx, "Finished request", "status", status, "duration", elapsedTime)
	}
}
