package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"testing/fstest"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	apperrors "github.com/Andre27031510/vynlo-taste-sub001/pkg/errors"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/logger"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/retry"
)

func testExecutor() *retry.Executor {
	return retry.NewExecutor(retry.DefaultConfig(), logger.Discard(),
		retry.WithSleeper(func(context.Context, time.Duration) error { return nil }))
}

// ---------------------------------------------------------------------------
// Config and classification
// ---------------------------------------------------------------------------

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: 5433, User: "app", Password: "p@ss/word", DBName: "orders", SSLMode: "require"}
	assert.Equal(t, "postgres://app:p%40ss%2Fword@db:5433/orders?sslmode=require", cfg.DSN())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		code string
		kind retry.ErrorKind
	}{
		{"40001", retry.KindTransient},
		{"40P01", retry.KindTransient},
		{"55P03", retry.KindTransient},
		{"57P01", retry.KindUnavailable},
		{"23505", retry.KindConflict},
		{"42P01", retry.KindPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := Classify(fmt.Errorf("query: %w", &pgconn.PgError{Code: tt.code}))
			assert.Equal(t, tt.kind, retry.Classify(err))
		})
	}

	plain := errors.New("dial tcp: connection refused")
	assert.Same(t, plain, Classify(plain))
	assert.NoError(t, Classify(nil))
}

func TestClassify_UniqueViolationIsConflict(t *testing.T) {
	err := Classify(&pgconn.PgError{Code: "23505", Message: "duplicate key"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(errors.New("other")))
}

// ---------------------------------------------------------------------------
// Migrations
// ---------------------------------------------------------------------------

func migrationsFS() fstest.MapFS {
	return fstest.MapFS{
		"001_products.up.sql":   {Data: []byte("CREATE TABLE products (id TEXT PRIMARY KEY)")},
		"001_products.down.sql": {Data: []byte("DROP TABLE products")},
		"002_orders.up.sql":     {Data: []byte("CREATE TABLE orders (id TEXT PRIMARY KEY)")},
		"README.md":             {Data: []byte("notes")},
	}
}

func TestRunMigrations_AppliesPendingInOrder(t *testing.T) {
	mock := MockPool(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("001_products.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("002_orders.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE orders").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("002_orders.up.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	err := RunMigrations(context.Background(), mock, migrationsFS(), testExecutor(), logger.Discard())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_SQLErrorIsNotRetried(t *testing.T) {
	mock := MockPool(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("001_products.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE products").WillReturnError(&pgconn.PgError{Code: "42601", Message: "syntax error"})
	mock.ExpectRollback()

	err := RunMigrations(context.Background(), mock, migrationsFS(), testExecutor(), logger.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_products.up.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_ConnectionLossIsRetried(t *testing.T) {
	mock := MockPool(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnError(&pgconn.PgError{Code: "57P01", Message: "terminating connection due to administrator command"})
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("001_products.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("002_orders.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	err := RunMigrations(context.Background(), mock, migrationsFS(), testExecutor(), logger.Discard())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Tracing
// ---------------------------------------------------------------------------

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func TestTraceQuery_Span(t *testing.T) {
	exporter := setupTestTracer(t)

	_, end := TraceQuery(context.Background(), "GetOrder", "SELECT id FROM orders WHERE id = $1")
	end(nil)
	_, end = TraceQuery(context.Background(), "UpdateOrder", "UPDATE orders SET status = $2 WHERE id = $1")
	end(errors.New("connection reset"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "db.GetOrder", spans[0].Name)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.NotEmpty(t, spans[1].Events)

	attrs := map[string]string{}
	for _, a := range spans[0].Attributes {
		attrs[string(a.Key)] = a.Value.Emit()
	}
	assert.Equal(t, "postgresql", attrs["db.system"])
	assert.Equal(t, "GetOrder", attrs["db.operation"])
}

func TestTraceQuery_NotFoundIsNotSpanError(t *testing.T) {
	exporter := setupTestTracer(t)

	_, end := TraceQuery(context.Background(), "GetOrder", "SELECT id FROM orders WHERE id = $1")
	end(apperrors.OrderNotFound("ord-404"))
	_, end = TraceQuery(context.Background(), "GetProduct", "SELECT id FROM products WHERE id = $1")
	end(fmt.Errorf("get product: %w", pgx.ErrNoRows))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	for _, s := range spans {
		assert.Equal(t, codes.Unset, s.Status.Code, s.Name)
		assert.Empty(t, s.Events, s.Name)
	}
}

func TestTraceQuery_SlowQueryLog(t *testing.T) {
	setupTestTracer(t)

	var buf bytes.Buffer
	SetSlowQueryLogging(time.Nanosecond, slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })

	_, end := TraceQuery(context.Background(), "ListOrders", "SELECT * FROM orders")
	end(errors.New("statement timeout"))

	out := buf.String()
	assert.Contains(t, out, "slow query detected")
	assert.Contains(t, out, "ListOrders")
	assert.Contains(t, out, "statement timeout")
}

func TestTraceQuery_FastQueryNotLogged(t *testing.T) {
	setupTestTracer(t)

	var buf bytes.Buffer
	SetSlowQueryLogging(time.Hour, slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })

	_, end := TraceQuery(context.Background(), "GetProduct", "SELECT 1")
	end(nil)
	assert.Empty(t, buf.String())
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

func TestPoolStatsCollector_Describe(t *testing.T) {
	c := NewPoolStatsCollector(nil, "order-service")

	ch := make(chan *prometheus.Desc, 16)
	c.Describe(ch)
	close(ch)

	var names []string
	for d := range ch {
		names = append(names, d.String())
	}
	assert.Len(t, names, 8)
	assert.Contains(t, names[0], "db_pool_acquired_connections")
}

// ---------------------------------------------------------------------------
// Redis
// ---------------------------------------------------------------------------

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	var cfg RedisConfig
	cfg.Host = mr.Host()
	_, err := fmt.Sscanf(mr.Port(), "%d", &cfg.Port)
	require.NoError(t, err)

	client, err := NewRedisClient(context.Background(), cfg, testExecutor())
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := RedisConfig{Host: mr.Host()}
	_, err := fmt.Sscanf(mr.Port(), "%d", &cfg.Port)
	require.NoError(t, err)
	mr.Close()

	_, err = NewRedisClient(context.Background(), cfg, testExecutor())
	assert.Error(t, err)
}
