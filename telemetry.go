package engine

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies spans emitted by this module in whatever
// OpenTelemetry pipeline the host process has configured. When no
// SDK/exporter is registered, otel's no-op tracer makes every call here
// free.
const tracerName = "github.com/arcreliability/engine"

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

func runSpanAttributes(opts RunOptions) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("run.id", opts.RunID),
		attribute.String("run.domain", opts.Domain),
		attribute.String("run.version", opts.Version),
		attribute.Int("run.record_count", len(opts.Records)),
		attribute.Bool("run.flywheel", opts.RunFlywheel),
	}
}
