package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/config"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/customer"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/event"
	handler "github.com/Andre27031510/vynlo-taste-sub001/internal/handler/http"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/inventory"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/jobs"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/order"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/payment"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/payment/httpgateway"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/payment/mock"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/repository"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/repository/memory"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/repository/postgres"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/repository/redis"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/database"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/health"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/httpclient"
	pkgkafka "github.com/Andre27031510/vynlo-taste-sub001/pkg/kafka"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/retry"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/tracing"
)

// ServiceName labels logs, metrics and traces.
const ServiceName = "order-service"

// Version is the service version reported to the tracer.
var Version = "0.1.0"

type scheduledJob struct {
	job      jobs.Job
	interval time.Duration
}

// App wires together all dependencies and runs the order service.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	httpServer     *http.Server
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	cancelConsumer *pkgkafka.Consumer
	jobs           []scheduledJob
	tracerShutdown tracing.Shutdown
}

type stores struct {
	products  repository.ProductStore
	orders    repository.OrderRepository
	customers repository.CustomerRepository
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	tracingCfg := cfg.Tracing
	tracingCfg.ServiceName = ServiceName
	tracingCfg.ServiceVersion = Version
	tracingCfg.Environment = cfg.Environment
	tracerShutdown, err := tracing.Init(ctx, tracingCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	exec := retry.NewExecutor(cfg.Retry, logger)
	healthHandler := health.NewHandler()

	st, err := a.openStorage(ctx, exec, healthHandler)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	ledger := inventory.NewLedger(st.products, exec, logger)
	directory := customer.NewDirectory(st.customers, exec, logger)
	opts := []order.Option{order.WithCustomerDirectory(directory)}

	if cfg.RedisEnabled {
		client, err := database.NewRedisClient(ctx, cfg.Redis, exec)
		if err != nil {
			// The workflow runs without the cache; status reads fall back to storage.
			logger.Warn("redis unavailable, status cache disabled", slog.String("error", err.Error()))
		} else {
			a.redis = client
			statusCache := redis.NewStatusCache(client, exec, logger, cfg.StatusCacheTTL)
			opts = append(opts, order.WithStatusCache(statusCache))
			healthHandler.RegisterOptional("redis", statusCache.Ping)
			logger.Info("redis status cache enabled", slog.String("addr", cfg.Redis.Addr()))
		}
	}

	if cfg.KafkaEnabled {
		pcfg := cfg.KafkaProducer
		pcfg.Brokers = cfg.KafkaBrokers
		a.producer = pkgkafka.NewProducer(pcfg, logger)
		opts = append(opts, order.WithPublisher(event.NewPublisher(a.producer, logger)))
		healthHandler.RegisterOptional("kafka", a.producer.Ping)
		logger.Info("kafka publisher enabled", slog.Any("brokers", cfg.KafkaBrokers))
	}

	gateway, err := newPaymentGateway(cfg, logger)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	svc := order.NewService(st.orders, ledger, gateway, exec, logger, order.Config{
		PaymentTimeout: cfg.PaymentTimeout,
		MaxLines:       cfg.MaxOrderLines,
	}, opts...)

	if cfg.KafkaEnabled {
		a.cancelConsumer = a.newCancelConsumer(svc, exec)
	}

	a.jobs = []scheduledJob{
		{jobs.NewRecoveryJob(svc, cfg.RecoveryMinAge, cfg.JobBatchSize, logger), cfg.RecoveryInterval},
		{jobs.NewStaleOrderSweeper(svc, cfg.StaleOrderTimeout, cfg.JobBatchSize, logger), cfg.StaleSweepInterval},
	}

	router := handler.NewRouter(handler.Handlers{
		Orders:    handler.NewOrderHandler(svc, logger),
		Products:  handler.NewProductHandler(ledger, logger),
		Customers: handler.NewCustomerHandler(directory, logger),
	}, healthHandler, logger, handler.RouterConfig{
		ServiceName:          ServiceName,
		SlowRequestThreshold: cfg.SlowRequestThreshold,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// openStorage selects the configured storage driver. The postgres driver
// connects, registers pool metrics and applies pending migrations.
func (a *App) openStorage(ctx context.Context, exec *retry.Executor, healthHandler *health.Handler) (stores, error) {
	if a.cfg.StorageDriver == config.StorageMemory {
		a.logger.Info("using in-memory storage")
		return stores{
			products:  memory.NewProductStore(),
			orders:    memory.NewOrderRepository(),
			customers: memory.NewCustomerRepository(),
		}, nil
	}

	pool, err := database.NewPostgresPool(ctx, &a.cfg.Postgres, exec, a.logger)
	if err != nil {
		return stores{}, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", a.cfg.Postgres.Host),
		slog.Int("port", a.cfg.Postgres.Port),
		slog.String("database", a.cfg.Postgres.DBName),
	)

	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, ServiceName); err != nil {
		a.logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}
	if err := database.RunMigrations(ctx, pool, postgres.Migrations(), exec, a.logger); err != nil {
		return stores{}, fmt.Errorf("run migrations: %w", err)
	}
	a.logger.Info("database migrations completed")

	if a.cfg.SlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(a.cfg.SlowQueryThreshold, a.logger)
	}
	healthHandler.Register("postgres", pool.Ping)

	return stores{
		products:  postgres.NewProductStore(pool),
		orders:    postgres.NewOrderRepository(pool),
		customers: postgres.NewCustomerRepository(pool),
	}, nil
}

// newPaymentGateway returns the HTTP gateway client, or the in-process
// gateway when no URL is configured.
func newPaymentGateway(cfg *config.Config, logger *slog.Logger) (payment.Gateway, error) {
	if cfg.PaymentGatewayURL == "" {
		logger.Warn("PAYMENT_GATEWAY_URL not set, using the in-process payment gateway")
		return mock.New(), nil
	}

	client := httpclient.New(httpclient.Config{
		Timeout:         cfg.PaymentTimeout,
		MaxConnsPerHost: 50,
		RateLimit:       cfg.PaymentRateLimitRPS,
		Burst:           cfg.PaymentRateBurst,
		UserAgent:       ServiceName + "/" + Version,
	})
	bcfg := cfg.PaymentBreaker
	bcfg.Name = "payment-gateway"
	breaker := httpclient.NewBreakerClient(client, bcfg, logger)
	logger.Info("payment gateway configured", slog.String("url", cfg.PaymentGatewayURL))
	return httpgateway.New(cfg.PaymentGatewayURL, breaker, logger), nil
}

// newCancelConsumer consumes order.cancel_requested. Redelivered events are
// dropped by event id, in Redis when available so the window survives
// restarts.
func (a *App) newCancelConsumer(svc *order.Service, exec *retry.Executor) *pkgkafka.Consumer {
	var dedup pkgkafka.Deduplicator = pkgkafka.NewMemoryDeduplicator(a.cfg.EventDedupWindow)
	if a.redis != nil {
		dedup = redis.NewEventDeduplicator(a.redis, a.cfg.EventDedupWindow)
	}
	a.dlq = pkgkafka.NewDLQProducer(a.cfg.KafkaBrokers, a.logger)

	h := pkgkafka.Deduplicated(dedup, event.CancelRequestedHandler(svc, a.logger), a.logger)
	return pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:  a.cfg.KafkaBrokers,
		GroupID:  a.cfg.KafkaGroupID,
		Topic:    event.TopicOrderCancelRequested,
		MinBytes: 1,
		MaxBytes: 10e6,
	}, h, a.logger, pkgkafka.WithDeadLetterQueue(a.dlq), pkgkafka.WithExecutor(exec))
}

// Run starts the HTTP server, the Kafka consumer and the background jobs,
// then blocks until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.cancelConsumer != nil {
		g.Go(func() error {
			if err := a.cancelConsumer.Start(gctx); err != nil && gctx.Err() == nil {
				return fmt.Errorf("cancel request consumer: %w", err)
			}
			return nil
		})
	}

	for _, sj := range a.jobs {
		g.Go(func() error {
			return jobs.Run(gctx, sj.job, sj.interval, a.logger)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			a.logger.Info("shutdown signal received")
		}
		return a.Shutdown()
	})

	return g.Wait()
}

// Shutdown gracefully stops all components in order:
// HTTP server, tracer, Kafka consumer, Kafka producers, Redis, PostgreSQL.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.cancelConsumer != nil {
		if err := a.cancelConsumer.Close(); err != nil {
			a.logger.Error("cancel request consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	errs = append(errs, a.closeResources()...)

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeResources() []error {
	var errs []error
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("dlq producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errs
}
