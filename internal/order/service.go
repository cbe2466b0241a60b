// Package order drives orders through CREATED -> VALIDATED -> RESERVED ->
// PAID -> CONFIRMED, compensating on failure.
//
// Every step of one order runs under that order's lock, so a step never
// overlaps another step or a cancellation of the same order. Progress is
// persisted after each step; ResumeOrder continues from the persisted status
// and never repeats a completed step.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/domain"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/payment"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/repository"
	apperrors "github.com/Andre27031510/vynlo-taste-sub001/pkg/errors"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/keylock"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/logger"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/retry"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/tracing"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/validator"
)

// Config holds workflow tuning.
type Config struct {
	// PaymentTimeout bounds each charge attempt.
	PaymentTimeout time.Duration
	// MaxLines caps the number of lines per order.
	MaxLines int
}

// DefaultConfig returns the workflow defaults.
func DefaultConfig() Config {
	return Config{
		PaymentTimeout: 10 * time.Second,
		MaxLines:       50,
	}
}

// Service implements the order workflow.
type Service struct {
	orders    repository.OrderRepository
	inventory Inventory
	payments  payment.Gateway
	exec      *retry.Executor
	logger    *slog.Logger
	cfg       Config

	customers CustomerDirectory
	publisher EventPublisher
	cache     StatusCache
	tracer    trace.Tracer
	locks     *keylock.Map
	now       func() time.Time
}

// Option configures optional collaborators of the Service.
type Option func(*Service)

// WithCustomerDirectory enables the customer check during validation.
func WithCustomerDirectory(d CustomerDirectory) Option {
	return func(s *Service) { s.customers = d }
}

// WithPublisher enables order notifications.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithStatusCache enables the order status cache.
func WithStatusCache(c StatusCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new order workflow service.
func NewService(
	orders repository.OrderRepository,
	inventory Inventory,
	payments payment.Gateway,
	exec *retry.Executor,
	logger *slog.Logger,
	cfg Config,
	opts ...Option,
) *Service {
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = DefaultConfig().PaymentTimeout
	}
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = DefaultConfig().MaxLines
	}
	s := &Service{
		orders:    orders,
		inventory: inventory,
		payments:  payments,
		exec:      exec,
		logger:    logger,
		cfg:       cfg,
		tracer:    tracing.Tracer("order-workflow"),
		locks:     keylock.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const defaultCancelReason = "cancelled by request"

var (
	dbPolicy      = retry.For(retry.CategoryDatabase)
	notifyPolicy  = retry.For(retry.CategoryExternalService).WithSilentFallback()
	paymentPolicy = retry.For(retry.CategoryExternalService)
)

// LineRequest is one requested product and quantity.
type LineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// SubmitOrderRequest is the input of SubmitOrder.
type SubmitOrderRequest struct {
	// OrderID is an optional client-chosen id. Submitting an id that already
	// exists resumes that order instead of creating a new one.
	OrderID       string               `json:"order_id,omitempty"`
	CustomerID    string               `json:"customer_id"`
	Type          domain.OrderType     `json:"type"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	Lines         []LineRequest        `json:"lines"`
	// TotalAmount, when present, must equal the sum of the line subtotals.
	TotalAmount *decimal.Decimal `json:"total_amount,omitempty"`
}

// ---------------------------------------------------------------------------
// Public operations
// ---------------------------------------------------------------------------

// SubmitOrder creates an order and drives it to a terminal status. On a
// workflow failure it returns the FAILED order together with the cause.
func (s *Service) SubmitOrder(ctx context.Context, req SubmitOrderRequest) (*domain.Order, error) {
	start := time.Now()

	if req.OrderID != "" {
		if len(req.OrderID) > 64 {
			return nil, apperrors.OrderValidation("order_id", req.OrderID, "must be at most 64 characters")
		}
		existing, err := s.loadOrder(ctx, req.OrderID)
		switch {
		case err == nil:
			s.logger.InfoContext(ctx, "order already submitted, resuming",
				slog.String("order_id", existing.ID),
				slog.String("status", string(existing.Status)),
			)
			return s.ResumeOrder(ctx, existing.ID)
		case !apperrors.HasCode(err, apperrors.CodeOrderNotFound):
			return nil, err
		}
	}

	o, err := s.newOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithOrderID(logger.WithCustomerID(ctx, o.CustomerID), o.ID)

	unlock, err := s.locks.Lock(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = s.exec.Do(ctx, "order.create", dbPolicy, func(ctx context.Context) error {
		return s.orders.Create(ctx, o)
	})
	if errors.Is(err, apperrors.ErrConflict) {
		// Lost a race with a concurrent submit of the same id.
		unlock()
		return s.ResumeOrder(ctx, o.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.cacheStatus(ctx, o)

	s.logger.InfoContext(ctx, "order created",
		slog.String("order_id", o.ID),
		slog.String("order_number", o.OrderNumber),
		slog.String("customer_id", o.CustomerID),
		slog.String("total_amount", o.TotalAmount.StringFixed(2)),
		slog.Int("lines", len(o.Lines)),
	)

	o, err = s.drive(ctx, o, req.TotalAmount)
	submitDuration.WithLabelValues(string(o.Status)).Observe(time.Since(start).Seconds())
	return o, err
}

// ResumeOrder continues an order from its persisted status. Terminal orders
// are returned unchanged.
func (s *Service) ResumeOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	ctx = logger.WithOrderID(ctx, orderID)
	unlock, err := s.locks.Lock(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	o, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status.IsTerminal() {
		return o, nil
	}
	s.logger.InfoContext(ctx, "resuming order",
		slog.String("order_id", o.ID),
		slog.String("status", string(o.Status)),
	)
	return s.drive(ctx, o, nil)
}

// CancelOrder cancels an order that has not been confirmed. Cancelling a
// CANCELLED or FAILED order is a no-op. If a workflow step is running the
// request and its reason are recorded and applied at the next step boundary;
// the returned order then has CancelRequested set and its current status.
// An empty reason is recorded as "cancelled by request".
func (s *Service) CancelOrder(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	ctx = logger.WithOrderID(ctx, orderID)
	if reason == "" {
		reason = defaultCancelReason
	}

	o, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if done, err := cancelNoop(o); done {
		return o, err
	}

	unlock, ok := s.locks.TryLock(orderID)
	if !ok {
		err := s.exec.Do(ctx, "order.request_cancel", dbPolicy, func(ctx context.Context) error {
			return s.orders.RequestCancel(ctx, orderID, reason)
		})
		if err != nil {
			return nil, fmt.Errorf("record cancellation: %w", err)
		}
		s.logger.InfoContext(ctx, "cancellation requested while workflow in flight",
			slog.String("order_id", orderID),
			slog.String("status", string(o.Status)),
		)
		// The workflow may have released the lock in between.
		if unlock, ok = s.locks.TryLock(orderID); !ok {
			o.CancelRequested = true
			o.CancelReason = reason
			return o, nil
		}
	}
	defer unlock()

	if o, err = s.loadOrder(ctx, orderID); err != nil {
		return nil, err
	}
	if done, err := cancelNoop(o); done {
		return o, err
	}
	if err := s.applyCancel(ctx, o, reason); err != nil {
		return o, err
	}
	return o, nil
}

func cancelNoop(o *domain.Order) (bool, error) {
	switch o.Status {
	case domain.OrderStatusCancelled, domain.OrderStatusFailed:
		return true, nil
	case domain.OrderStatusConfirmed:
		return true, apperrors.InvalidStateTransition("order", o.ID, string(o.Status), string(domain.OrderStatusCancelled))
	}
	return false, nil
}

// GetOrder returns an order by id.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.loadOrder(ctx, orderID)
}

// GetOrderStatus returns the current status of an order, from the status
// cache when it has one.
func (s *Service) GetOrderStatus(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	if s.cache != nil {
		if status, ok := s.cache.GetStatus(ctx, orderID); ok {
			return status, nil
		}
	}
	o, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	s.cacheStatus(ctx, o)
	return o.Status, nil
}

// ListInFlight returns non-terminal orders not updated for at least
// olderThan, oldest first.
func (s *Service) ListInFlight(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error) {
	filter := repository.OrderFilter{
		Statuses: InFlightStatuses(),
		Limit:    limit,
	}
	if olderThan > 0 {
		filter.UpdatedBefore = s.now().Add(-olderThan)
	}
	return retry.Execute(ctx, s.exec, "order.list_in_flight", dbPolicy, func(ctx context.Context) ([]domain.Order, error) {
		return s.orders.List(ctx, filter)
	})
}

// ---------------------------------------------------------------------------
// Workflow
// ---------------------------------------------------------------------------

// newOrder builds a CREATED order, snapshotting product names and prices.
// Unknown products are kept as zero-priced lines so validation can name them.
func (s *Service) newOrder(ctx context.Context, req SubmitOrderRequest) (*domain.Order, error) {
	now := s.now()
	o := &domain.Order{
		ID:            req.OrderID,
		OrderNumber:   domain.GenerateOrderNumber(now),
		CustomerID:    strings.TrimSpace(req.CustomerID),
		Type:          req.Type,
		Status:        domain.OrderStatusCreated,
		PaymentMethod: req.PaymentMethod,
		Lines:         make([]domain.OrderLine, 0, len(req.Lines)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	for _, l := range req.Lines {
		line := domain.OrderLine{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: decimal.Zero}
		if l.ProductID != "" {
			p, err := s.inventory.GetProduct(ctx, l.ProductID)
			switch {
			case err == nil:
				line.ProductName = p.Name
				line.UnitPrice = p.Price
			case !apperrors.HasCode(err, apperrors.CodeProductNotFound):
				return nil, fmt.Errorf("snapshot product %s: %w", l.ProductID, err)
			}
		}
		o.Lines = append(o.Lines, line)
	}
	o.TotalAmount = o.ComputeTotal()
	return o, nil
}

// drive runs steps until the order is terminal or a step fails. A pending
// cancellation is honoured before each step.
func (s *Service) drive(ctx context.Context, o *domain.Order, expectedTotal *decimal.Decimal) (*domain.Order, error) {
	for !o.Status.IsTerminal() {
		cancel, err := s.cancelRequested(ctx, o)
		if err != nil {
			return o, err
		}
		if cancel {
			reason := o.CancelReason
			if reason == "" {
				reason = defaultCancelReason
			}
			return o, s.applyCancel(ctx, o, reason)
		}
		if err := s.step(ctx, o, expectedTotal); err != nil {
			return o, err
		}
	}
	return o, nil
}

func (s *Service) step(ctx context.Context, o *domain.Order, expectedTotal *decimal.Decimal) error {
	ctx, span := s.tracer.Start(ctx, "order."+strings.ToLower(string(o.Status)),
		trace.WithAttributes(
			attribute.String("order.id", o.ID),
			attribute.String("order.status", string(o.Status)),
		),
	)
	defer span.End()

	var err error
	switch o.Status {
	case domain.OrderStatusCreated:
		err = s.validate(ctx, o, expectedTotal)
	case domain.OrderStatusValidated:
		err = s.reserve(ctx, o)
	case domain.OrderStatusReserved:
		err = s.pay(ctx, o)
	case domain.OrderStatusPaid:
		err = s.confirm(ctx, o)
	default:
		err = apperrors.InvalidStateTransition("order", o.ID, string(o.Status), "next")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func init() {
	validator.RegisterEnum("order_type", domain.ValidOrderTypes()...)
	validator.RegisterEnum("payment_method", domain.ValidPaymentMethods()...)
}

// orderInput is the validated shape of an order.
type orderInput struct {
	CustomerID    string               `json:"customer_id" validate:"required,max=64"`
	Type          domain.OrderType     `json:"type" validate:"required,order_type"`
	PaymentMethod domain.PaymentMethod `json:"payment_method" validate:"required,payment_method"`
	Lines         []lineInput          `json:"lines" validate:"required,min=1,dive"`
}

type lineInput struct {
	ProductID string `json:"product_id" validate:"required,max=64"`
	Quantity  int    `json:"quantity" validate:"gt=0,lte=1000"`
}

// CREATED -> VALIDATED
func (s *Service) validate(ctx context.Context, o *domain.Order, expectedTotal *decimal.Decimal) error {
	if err := s.checkOrder(ctx, o, expectedTotal); err != nil {
		return s.abort(ctx, o, err)
	}
	return s.advance(ctx, o, domain.OrderStatusValidated)
}

func (s *Service) checkOrder(ctx context.Context, o *domain.Order, expectedTotal *decimal.Decimal) error {
	in := orderInput{
		CustomerID:    o.CustomerID,
		Type:          o.Type,
		PaymentMethod: o.PaymentMethod,
		Lines:         make([]lineInput, 0, len(o.Lines)),
	}
	for _, l := range o.Lines {
		in.Lines = append(in.Lines, lineInput{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	if err := validator.Validate(in); err != nil {
		var ve *validator.ValidationError
		if errors.As(err, &ve) {
			field, value, msg := ve.First()
			return apperrors.OrderValidation(field, value, msg)
		}
		return apperrors.OrderValidation("order", nil, err.Error())
	}
	if len(o.Lines) > s.cfg.MaxLines {
		return apperrors.OrderValidation("lines", len(o.Lines), fmt.Sprintf("must contain at most %d items", s.cfg.MaxLines))
	}

	seen := make(map[string]int, len(o.Lines))
	for i, l := range o.Lines {
		field := fmt.Sprintf("lines[%d].product_id", i)
		if j, dup := seen[l.ProductID]; dup {
			return apperrors.OrderValidation(field, l.ProductID, fmt.Sprintf("duplicates lines[%d]", j))
		}
		seen[l.ProductID] = i

		if _, err := s.inventory.GetProduct(ctx, l.ProductID); err != nil {
			if apperrors.HasCode(err, apperrors.CodeProductNotFound) {
				return apperrors.OrderValidation(field, l.ProductID, "product does not exist")
			}
			return err
		}
	}

	total := o.ComputeTotal()
	if !total.Equal(o.TotalAmount) {
		return apperrors.OrderValidation("total_amount", o.TotalAmount.StringFixed(2),
			"does not match the sum of line subtotals "+total.StringFixed(2))
	}
	if expectedTotal != nil && !expectedTotal.Equal(total) {
		return apperrors.OrderValidation("total_amount", expectedTotal.StringFixed(2),
			"does not match the sum of line subtotals "+total.StringFixed(2))
	}

	if s.customers != nil {
		if err := s.customers.CheckActive(ctx, o.CustomerID); err != nil {
			return err
		}
	}
	return nil
}

// VALIDATED -> RESERVED
func (s *Service) reserve(ctx context.Context, o *domain.Order) error {
	for _, l := range o.Lines {
		if _, err := s.inventory.Reserve(ctx, l.ProductID, l.Quantity, o.ID); err != nil {
			return s.abort(ctx, o, err)
		}
	}
	return s.advance(ctx, o, domain.OrderStatusReserved)
}

// RESERVED -> PAID
func (s *Service) pay(ctx context.Context, o *domain.Order) error {
	if err := s.checkHolds(ctx, o); err != nil {
		if holdLost(err) {
			return s.abort(ctx, o, err)
		}
		return err
	}

	req := payment.ChargeRequest{
		IdempotencyKey: o.ID,
		OrderID:        o.ID,
		CustomerID:     o.CustomerID,
		Amount:         o.TotalAmount,
		Method:         o.PaymentMethod,
	}
	policy := paymentPolicy.WithAttemptTimeout(s.cfg.PaymentTimeout)

	result, err := retry.Execute(ctx, s.exec, "payment.charge", policy, func(ctx context.Context) (*domain.PaymentResult, error) {
		res, err := s.payments.Charge(ctx, req)
		if err != nil {
			return nil, err
		}
		if !res.Succeeded() {
			return nil, apperrors.PaymentDeclined(res.PaymentID, res.FailureReason)
		}
		return res, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return s.abort(ctx, o, paymentFailure(o, err))
	}

	o.PaymentID = result.PaymentID
	s.logger.InfoContext(ctx, "payment captured",
		slog.String("order_id", o.ID),
		slog.String("payment_id", result.PaymentID),
		slog.String("amount", o.TotalAmount.StringFixed(2)),
	)
	return s.advance(ctx, o, domain.OrderStatusPaid)
}

func paymentFailure(o *domain.Order, cause error) error {
	paymentID, reason := "", "payment could not be completed"
	var opErr *retry.OperationError
	if appErr, ok := apperrors.As(cause); ok && appErr.Code == apperrors.CodePaymentDeclined {
		if v, ok := appErr.Value("payment_id"); ok {
			paymentID, _ = v.(string)
		}
		reason = appErr.Message
	} else if errors.As(cause, &opErr) {
		reason = fmt.Sprintf("gateway unavailable after %d attempts", opErr.Attempts)
	}
	return apperrors.PaymentFailed(paymentID, o.TotalAmount.StringFixed(2), string(o.PaymentMethod), reason, cause)
}

// checkHolds verifies that every line of o still holds its stock.
// Compensation releases holds before it persists FAILED or CANCELLED, so a
// crash in between leaves a live status with nothing reserved behind it.
func (s *Service) checkHolds(ctx context.Context, o *domain.Order) error {
	reservations, err := s.inventory.ReservationsForOrder(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("list reservations: %w", err)
	}
	states := make(map[string]domain.ReservationState, len(reservations))
	for _, r := range reservations {
		states[r.ID] = r.State
	}
	for _, id := range o.ReservationIDs() {
		state, ok := states[id]
		switch {
		case !ok:
			return apperrors.ReservationNotFound(id)
		case state == domain.ReservationReleased:
			return apperrors.InvalidStateTransition("reservation", id, string(state), string(domain.ReservationCommitted))
		}
	}
	return nil
}

func holdLost(err error) bool {
	return apperrors.HasCode(err, apperrors.CodeInvalidStateTransition) ||
		apperrors.HasCode(err, apperrors.CodeReservationNotFound)
}

// PAID -> CONFIRMED. A commit failure leaves the order PAID for a later
// resume. An order whose holds were released is refunded and failed.
func (s *Service) confirm(ctx context.Context, o *domain.Order) error {
	err := s.checkHolds(ctx, o)
	if err == nil {
		err = s.inventory.CommitByOrder(ctx, o.ID)
	}
	if holdLost(err) {
		if rerr := s.refund(ctx, o, "reserved stock was released"); rerr != nil {
			return rerr
		}
		return s.abort(ctx, o, err)
	}
	if err != nil {
		return fmt.Errorf("commit reservations: %w", err)
	}
	if err := s.advance(ctx, o, domain.OrderStatusConfirmed); err != nil {
		return err
	}
	s.notify(ctx, o, "order.confirmed", func(ctx context.Context) error {
		return s.publisher.PublishOrderConfirmed(ctx, o)
	})
	return nil
}

// abort compensates and moves the order to FAILED. The cause is returned so
// callers see the original error. If the caller is gone or compensation
// fails, the order keeps its status and a later resume or sweep finishes it.
func (s *Service) abort(ctx context.Context, o *domain.Order, cause error) error {
	if ctx.Err() != nil {
		return cause
	}

	released, err := s.inventory.ReleaseByOrder(ctx, o.ID)
	if err != nil {
		compensationsTotal.WithLabelValues("release", "error").Inc()
		s.logger.ErrorContext(ctx, "compensation failed, order left for recovery",
			slog.String("order_id", o.ID),
			slog.String("status", string(o.Status)),
			slog.String("cause", cause.Error()),
			slog.String("error", err.Error()),
		)
		return cause
	}
	if released > 0 {
		compensationsTotal.WithLabelValues("release", "ok").Inc()
	}

	prev := *o
	if err := o.Fail(cause, s.now()); err != nil {
		return err
	}
	if err := s.save(ctx, o); err != nil {
		*o = prev
		return cause
	}
	transitionsTotal.WithLabelValues(string(prev.Status), string(o.Status)).Inc()
	s.cacheStatus(ctx, o)

	s.logger.WarnContext(ctx, "order failed",
		slog.String("order_id", o.ID),
		slog.String("from_status", string(prev.Status)),
		slog.String("failure_code", o.FailureCode),
		slog.String("reason", o.FailureReason),
		slog.Int("released_reservations", released),
	)
	s.notify(ctx, o, "order.failed", func(ctx context.Context) error {
		return s.publisher.PublishOrderFailed(ctx, o)
	})
	return cause
}

// applyCancel refunds a PAID order, releases held stock and moves the order
// to CANCELLED. Any failure leaves the order in its current status.
func (s *Service) applyCancel(ctx context.Context, o *domain.Order, reason string) error {
	if err := s.refund(ctx, o, reason); err != nil {
		return err
	}

	released, err := s.inventory.ReleaseByOrder(ctx, o.ID)
	if err != nil {
		compensationsTotal.WithLabelValues("release", "error").Inc()
		return fmt.Errorf("release reservations: %w", err)
	}
	if released > 0 {
		compensationsTotal.WithLabelValues("release", "ok").Inc()
	}

	from := o.Status
	o.CancelReason = reason
	if err := s.advance(ctx, o, domain.OrderStatusCancelled); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "order cancelled",
		slog.String("order_id", o.ID),
		slog.String("from_status", string(from)),
		slog.Int("released_reservations", released),
		slog.Bool("refunded", from == domain.OrderStatusPaid),
		slog.String("reason", reason),
	)
	s.notify(ctx, o, "order.cancelled", func(ctx context.Context) error {
		return s.publisher.PublishOrderCancelled(ctx, o, reason)
	})
	return nil
}

// refund returns the payment of a PAID order. Other orders have nothing to
// refund. The idempotency key is fixed per order, so repeating a refund is
// safe at a gateway that honours it.
func (s *Service) refund(ctx context.Context, o *domain.Order, reason string) error {
	if o.Status != domain.OrderStatusPaid || o.PaymentID == "" {
		return nil
	}
	req := payment.RefundRequest{
		IdempotencyKey: "refund:" + o.ID,
		PaymentID:      o.PaymentID,
		Amount:         o.TotalAmount,
		Reason:         reason,
	}
	err := s.exec.Do(ctx, "payment.refund", paymentPolicy.WithAttemptTimeout(s.cfg.PaymentTimeout), func(ctx context.Context) error {
		return s.payments.Refund(ctx, req)
	})
	if err != nil {
		compensationsTotal.WithLabelValues("refund", "error").Inc()
		return fmt.Errorf("refund payment %s: %w", o.PaymentID, err)
	}
	compensationsTotal.WithLabelValues("refund", "ok").Inc()
	return nil
}

// cancelRequested reports whether a cancellation was recorded for o.
func (s *Service) cancelRequested(ctx context.Context, o *domain.Order) (bool, error) {
	if o.CancelRequested {
		return true, nil
	}
	fresh, err := s.loadOrder(ctx, o.ID)
	if err != nil {
		return false, err
	}
	o.CancelRequested = fresh.CancelRequested
	o.CancelReason = fresh.CancelReason
	return o.CancelRequested, nil
}

// advance transitions and persists o. On a persistence failure o keeps its
// previous status.
func (s *Service) advance(ctx context.Context, o *domain.Order, target domain.OrderStatus) error {
	prev := *o
	if err := o.TransitionTo(target, s.now()); err != nil {
		return err
	}
	if err := s.save(ctx, o); err != nil {
		*o = prev
		return err
	}
	transitionsTotal.WithLabelValues(string(prev.Status), string(target)).Inc()
	s.cacheStatus(ctx, o)
	s.logger.InfoContext(ctx, "order status changed",
		slog.String("order_id", o.ID),
		slog.String("from", string(prev.Status)),
		slog.String("to", string(target)),
	)
	return nil
}

func (s *Service) save(ctx context.Context, o *domain.Order) error {
	err := s.exec.Do(ctx, "order.update", dbPolicy, func(ctx context.Context) error {
		return s.orders.Update(ctx, o)
	})
	if err != nil {
		return fmt.Errorf("persist order %s: %w", o.ID, err)
	}
	return nil
}

func (s *Service) loadOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return retry.Execute(ctx, s.exec, "order.get", dbPolicy, func(ctx context.Context) (*domain.Order, error) {
		return s.orders.GetByID(ctx, orderID)
	})
}

func (s *Service) cacheStatus(ctx context.Context, o *domain.Order) {
	if s.cache != nil {
		s.cache.SetStatus(ctx, o.ID, o.Status)
	}
}

// notify publishes through the retry engine with silent fallback, so an
// unreachable broker never reverses the order's status.
func (s *Service) notify(ctx context.Context, o *domain.Order, event string, publish func(ctx context.Context) error) {
	if s.publisher == nil {
		return
	}
	if err := s.exec.Do(ctx, "notify."+event, notifyPolicy, publish); err != nil {
		s.logger.WarnContext(ctx, "order notification dropped",
			slog.String("order_id", o.ID),
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// InFlightStatuses lists the statuses ListInFlight scans.
func InFlightStatuses() []domain.OrderStatus {
	return slices.DeleteFunc(domain.ValidStatuses(), domain.OrderStatus.IsTerminal)
}
