// Package jobs runs periodic maintenance over in-flight orders. Jobs only
// use the public operations of the order workflow.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/domain"
	apperrors "github.com/Andre27031510/vynlo-taste-sub001/pkg/errors"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/logger"
)

// Orders is the part of the order workflow the jobs drive.
type Orders interface {
	ListInFlight(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error)
	ResumeOrder(ctx context.Context, orderID string) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID, reason string) (*domain.Order, error)
}

// Job is one pass of a periodic task.
type Job interface {
	Name() string
	RunOnce(ctx context.Context) (Result, error)
}

// Result counts what one pass did.
type Result struct {
	Seen      int
	Processed int
	Failed    int
}

var jobOrdersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "order_jobs_orders_total",
		Help: "Orders handled by maintenance jobs",
	},
	[]string{"job", "outcome"},
)

// Run calls job.RunOnce every interval until ctx is done. A failed pass is
// logged and the next one runs on schedule.
func Run(ctx context.Context, job Job, interval time.Duration, log *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log = log.With(slog.String("job", job.Name()))
	log.Info("job started", slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			log.Info("job stopped")
			return nil
		case <-ticker.C:
			res, err := job.RunOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Error("job pass failed", slog.String("error", err.Error()))
				continue
			}
			if res.Seen > 0 {
				log.Info("job pass completed",
					slog.Int("seen", res.Seen),
					slog.Int("processed", res.Processed),
					slog.Int("failed", res.Failed),
				)
			}
		}
	}
}

const staleCancelReason = "stale order timeout"

// StaleOrderSweeper cancels orders that have sat in a non-terminal status
// for longer than Timeout. Orders already CONFIRMED by the time the cancel
// lands are skipped.
type StaleOrderSweeper struct {
	orders    Orders
	timeout   time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewStaleOrderSweeper creates a sweeper.
func NewStaleOrderSweeper(orders Orders, timeout time.Duration, batchSize int, log *slog.Logger) *StaleOrderSweeper {
	return &StaleOrderSweeper{orders: orders, timeout: timeout, batchSize: batchSize, logger: log}
}

// Name implements Job.
func (s *StaleOrderSweeper) Name() string { return "stale-order-sweeper" }

// RunOnce implements Job.
func (s *StaleOrderSweeper) RunOnce(ctx context.Context) (Result, error) {
	stale, err := s.orders.ListInFlight(ctx, s.timeout, s.batchSize)
	if err != nil {
		return Result{}, err
	}

	res := Result{Seen: len(stale)}
	for _, o := range stale {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		octx := logger.WithOrderID(ctx, o.ID)
		got, err := s.orders.CancelOrder(octx, o.ID, staleCancelReason)
		switch {
		case err == nil:
			res.Processed++
			jobOrdersTotal.WithLabelValues(s.Name(), "cancelled").Inc()
			logger.WithContext(octx, s.logger).Warn("stale order cancelled",
				slog.String("order_id", o.ID),
				slog.String("stale_status", string(o.Status)),
				slog.String("status", string(got.Status)),
				slog.Time("updated_at", o.UpdatedAt),
			)
		case apperrors.ClassOf(err) == apperrors.ClassState:
			jobOrdersTotal.WithLabelValues(s.Name(), "skipped").Inc()
		default:
			res.Failed++
			jobOrdersTotal.WithLabelValues(s.Name(), "failed").Inc()
			logger.WithContext(octx, s.logger).Error("stale order cancel failed",
				slog.String("order_id", o.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return res, nil
}

// RecoveryJob re-drives orders left mid-workflow, for example by a restart.
// Only orders idle for at least MinAge are picked up so that workflows still
// running in this process are left alone.
type RecoveryJob struct {
	orders    Orders
	minAge    time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewRecoveryJob creates a recovery job.
func NewRecoveryJob(orders Orders, minAge time.Duration, batchSize int, log *slog.Logger) *RecoveryJob {
	return &RecoveryJob{orders: orders, minAge: minAge, batchSize: batchSize, logger: log}
}

// Name implements Job.
func (j *RecoveryJob) Name() string { return "order-recovery" }

// RunOnce implements Job.
func (j *RecoveryJob) RunOnce(ctx context.Context) (Result, error) {
	idle, err := j.orders.ListInFlight(ctx, j.minAge, j.batchSize)
	if err != nil {
		return Result{}, err
	}

	res := Result{Seen: len(idle)}
	for _, o := range idle {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		octx := logger.WithOrderID(ctx, o.ID)
		got, err := j.orders.ResumeOrder(octx, o.ID)
		if got != nil && got.Status.IsTerminal() {
			res.Processed++
			jobOrdersTotal.WithLabelValues(j.Name(), string(got.Status)).Inc()
			logger.WithContext(octx, j.logger).Info("order recovered",
				slog.String("order_id", o.ID),
				slog.String("from", string(o.Status)),
				slog.String("to", string(got.Status)),
			)
			continue
		}
		res.Failed++
		jobOrdersTotal.WithLabelValues(j.Name(), "failed").Inc()
		attrs := []any{slog.String("order_id", o.ID), slog.String("status", string(o.Status))}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		logger.WithContext(octx, j.logger).Warn("order recovery incomplete", attrs...)
	}
	return res, nil
}
