package observe

import (
	"context"
	"io"

	"github.com/felixgeelhaar/bolt/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("recall")

// Observer handles logging and tracing for a capture run.
type Observer struct {
	log *bolt.Logger
}

// New creates a new Observer with console output.
// If verbose is false, only warnings and errors are shown.
func New(out io.Writer, verbose bool) *Observer {
	l := bolt.New(bolt.NewConsoleHandler(out))
	if !verbose {
		l.SetLevel(bolt.WARN)
	}
	return &Observer{log: l}
}

// NewJSON creates a new Observer with JSON output, used in CI mode.
func NewJSON(out io.Writer, verbose bool) *Observer {
	l := bolt.New(bolt.NewJSONHandler(out))
	if !verbose {
		l.SetLevel(bolt.WARN)
	}
	return &Observer{log: l}
}

// Log returns the underlying logger
func (o *Observer) Log() *bolt.Logger {
	return o.log
}

// StartSpan starts a new OTel span. Attributes are given as key/value
// string pairs; a trailing key without a value is ignored.
func (o *Observer) StartSpan(ctx context.Context, name string, kv ...string) (context.Context, trace.Span) {
	var attrs []attribute.KeyValue
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Close flushes buffered logs or traces. Nothing is buffered today.
func (o *Observer) Close() error {
	return nil
}
