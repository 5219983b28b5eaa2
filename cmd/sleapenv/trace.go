// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// logExporter writes finished spans to a logger.
type logExporter struct {
	logger *log.Logger
}

func (e logExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		kv := []any{
			"span", s.Name(),
			"duration", s.EndTime().Sub(s.StartTime()).Round(time.Millisecond),
			"status", s.Status().Code.String(),
		}
		for _, attr := range s.Attributes() {
			kv = append(kv, string(attr.Key), attr.Value.Emit())
		}
		e.logger.Info("trace", kv...)
	}
	return nil
}

func (logExporter) Shutdown(context.Context) error { return nil }

// newTracerProvider returns a provider that logs each span as it ends.
func newTracerProvider(logger *log.Logger) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(sdktrace.WithSyncer(logExporter{logger: logger}))
}
