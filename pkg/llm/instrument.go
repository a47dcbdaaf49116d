package llm

import (
	"context"
	"time"

	"github.com/perbu/promptforge/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.GetTracerProvider().Tracer("promptforge/llm")

// Instrumented records a span, Prometheus metrics and a debug log line for
// every call to next.
type Instrumented struct {
	next    Generator
	backend string
	logger  *zap.Logger
}

// NewInstrumented wraps next. backend labels the metrics.
func NewInstrumented(next Generator, backend string, logger *zap.Logger) *Instrumented {
	if backend == "" {
		backend = "gemini"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Instrumented{next: next, backend: backend, logger: logger}
}

// Generate implements Generator.
func (i *Instrumented) Generate(ctx context.Context, req Request) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.generate", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("llm.backend", i.backend),
		attribute.Int("llm.request.prompt_length", len(req.Prompt)),
		attribute.Bool("llm.request.system", req.System != ""),
		attribute.Bool("llm.request.structured", req.Schema != nil),
	)

	start := time.Now()
	text, err := i.next.Generate(ctx, req)
	elapsed := time.Since(start)
	metrics.LLMRequestDuration.WithLabelValues(i.backend).Observe(elapsed.Seconds())

	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(i.backend, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		i.logger.Warn("llm request failed", zap.String("backend", i.backend), zap.Duration("elapsed", elapsed), zap.Error(err))
		return "", err
	}

	metrics.LLMRequestsTotal.WithLabelValues(i.backend, "ok").Inc()
	span.SetAttributes(attribute.Int("llm.response.content_length", len(text)))
	i.logger.Debug("llm request done", zap.String("backend", i.backend), zap.Duration("elapsed", elapsed), zap.Int("response_length", len(text)))
	return text, nil
}
