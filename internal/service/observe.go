package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pesio-ai/be-hr-leave-applications/pkg/errors"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/metrics"
)

const instrumentationName = "github.com/pesio-ai/be-hr-leave-applications/internal/service"

// startOperation opens a span for one engine operation. The returned func
// ends it and counts the outcome under action.
func startOperation(ctx context.Context, action string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "leave."+action,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)

	return ctx, func(err error) {
		result := "ok"
		if err != nil {
			result = strings.ToLower(string(errors.CodeOf(err)))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.Transitions.WithLabelValues(action, result).Inc()
		span.End()
	}
}
