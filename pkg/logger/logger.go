// Package logger builds the service's JSON slog loggers and carries
// request-scoped ids through context so every line about one order or
// request can be joined up.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const (
	correlationIDKey ctxKey = iota
	customerIDKey
	orderIDKey
	loggerKey
)

// contextFields lists the ids WithContext copies onto a logger, in output
// order.
var contextFields = []struct {
	key  ctxKey
	attr string
}{
	{correlationIDKey, "correlation_id"},
	{customerIDKey, "customer_id"},
	{orderIDKey, "order_id"},
}

// New returns a JSON logger on stdout tagged with service.
func New(service, level string) *slog.Logger {
	return NewWithWriter(service, level, os.Stdout)
}

// NewWithWriter is New writing to w. Debug level also records the source
// position.
func NewWithWriter(service, level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl, AddSource: lvl <= slog.LevelDebug})
	return slog.New(h).With(slog.String("service", service))
}

// Discard returns a logger that writes nothing.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel accepts debug, info, warn(ing) and error in any case. Anything
// else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func stringValue(ctx context.Context, k ctxKey) string {
	s, _ := ctx.Value(k).(string)
	return s
}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationIDKey)
}

func WithCustomerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, customerIDKey, id)
}

func CustomerIDFromContext(ctx context.Context) string {
	return stringValue(ctx, customerIDKey)
}

// WithOrderID tags ctx with the order being worked on. Workflow steps, jobs
// and the cancel consumer set it.
func WithOrderID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, orderIDKey, id)
}

func OrderIDFromContext(ctx context.Context) string {
	return stringValue(ctx, orderIDKey)
}

// NewContext stores l for FromContext.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger stored by NewContext, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// WithContext adds the ids carried by ctx to l, plus trace_id and span_id
// when ctx holds a valid span.
func WithContext(ctx context.Context, l *slog.Logger) *slog.Logger {
	var attrs []any
	for _, f := range contextFields {
		if v := stringValue(ctx, f.key); v != "" {
			attrs = append(attrs, slog.String(f.attr, v))
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}
