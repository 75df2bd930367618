// Package tracing wires OpenTelemetry spans around registry operations.
// Without Setup the global no-op provider is used and spans cost nothing.
package tracing

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies spans emitted by this module.
const TracerName = "github.com/momentics/guppi-status"

// Tracer returns the module tracer from the global provider.
func Tracer() trace.Tracer { return otel.Tracer(TracerName) }

// Setup installs a stdout exporter writing to w and returns a shutdown
// function that flushes pending spans.
func Setup(w io.Writer) (func(context.Context) error, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
