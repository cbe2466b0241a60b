package database

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/Andre27031510/vynlo-taste-sub001/pkg/errors"
)

const tracerName = "github.com/Andre27031510/vynlo-taste-sub001/pkg/database"

type slowQueryLog struct {
	threshold time.Duration
	logger    *slog.Logger
}

var slowQueries atomic.Pointer[slowQueryLog]

// SetSlowQueryLogging warns about queries that take threshold or longer.
// A zero threshold or nil logger turns it off.
func SetSlowQueryLogging(threshold time.Duration, logger *slog.Logger) {
	if threshold <= 0 || logger == nil {
		slowQueries.Store(nil)
		return
	}
	slowQueries.Store(&slowQueryLog{threshold: threshold, logger: logger})
}

// queryOutcome labels a finished query. A missing row is an answer, not a
// failure, so it does not mark the span as failed.
func queryOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, pgx.ErrNoRows), apperrors.ClassOf(err) == apperrors.ClassNotFound:
		return "not_found"
	default:
		return "error"
	}
}

// TraceQuery opens a client span around one repository query. Call the
// returned func with the query's final error:
//
//	ctx, end := database.TraceQuery(ctx, "GetOrder", query)
//	defer func() { end(err) }()
func TraceQuery(ctx context.Context, operation, statement string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", statement),
		),
	)

	return ctx, func(err error) {
		elapsed := time.Since(start)
		outcome := queryOutcome(err)
		if outcome == "error" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("db.outcome", outcome))
		span.End()
		QueryDuration.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())

		slow := slowQueries.Load()
		if slow == nil || elapsed < slow.threshold {
			return
		}
		attrs := []any{
			slog.String("operation", operation),
			slog.String("statement", statement),
			slog.Duration("duration", elapsed),
			slog.String("outcome", outcome),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		slow.logger.WarnContext(ctx, "slow query detected", attrs...)
	}
}
