// Package telemetry provides OpenTelemetry span helpers and span names for
// the coordinator's tick, agent spawn, harvest, and dispatch paths,
// exporting via OTLP/HTTP when OTEL_EXPORTER_OTLP_ENDPOINT is set and
// falling back to a no-op tracer otherwise. Neither cmd/swarmcoord nor the
// coordinator calls Setup or StartSpan, so a run emits no spans.
// Span/attribute naming follows
// internal/domain/agent/react/tracing.go's startReactSpan/markSpanResult
// pattern (tracer-per-scope, span constants, a result-marking helper).
package telemetry

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	scope = "swarmcoord.coordinator"

	SpanTick     = "swarmcoord.tick"
	SpanSpawn    = "swarmcoord.agent.spawn"
	SpanHarvest  = "swarmcoord.agent.harvest"
	SpanDispatch = "swarmcoord.task.dispatch"

	attrRunID   = "swarmcoord.run_id"
	attrAgentID = "swarmcoord.agent_id"
	attrTaskID  = "swarmcoord.task_id"
	attrStatus  = "swarmcoord.status"
)

// Setup installs a TracerProvider: an OTLP/HTTP exporter when
// OTEL_EXPORTER_OTLP_ENDPOINT is set, otherwise the SDK's default no-op
// sampling is left in place (otel.GetTracerProvider() returns the global
// no-op provider until one is registered). Returns a shutdown func to
// flush and close the exporter on coordinator exit.
func Setup(ctx context.Context, runID string) (func(context.Context) error, error) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", "swarmcoord"),
		attribute.String("swarmcoord.run_id", runID),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// StartSpan starts a span under the coordinator's tracer scope, tagging
// runID/agentID/taskID when non-empty.
func StartSpan(ctx context.Context, spanName, runID, agentID, taskID string) (context.Context, trace.Span) {
	var attrs []attribute.KeyValue
	if runID != "" {
		attrs = append(attrs, attribute.String(attrRunID, runID))
	}
	if agentID != "" {
		attrs = append(attrs, attribute.String(attrAgentID, agentID))
	}
	if taskID != "" {
		attrs = append(attrs, attribute.String(attrTaskID, taskID))
	}
	return otel.Tracer(scope).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// MarkResult records err on span (if any) and sets an ok/error status,
// mirroring markSpanResult.
func MarkResult(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(attrStatus, "error"))
		return
	}
	span.SetStatus(codes.Ok, "")
	span.SetAttributes(attribute.String(attrStatus, "success"))
}
