package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/domain"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/payment"
)

func charge(key string) payment.ChargeRequest {
	return payment.ChargeRequest{
		IdempotencyKey: key,
		OrderID:        key,
		Amount:         decimal.NewFromInt(10),
		Method:         domain.PaymentMethodWallet,
	}
}

func TestCharge_DefaultSucceeds(t *testing.T) {
	g := New()
	res, err := g.Charge(context.Background(), charge("o1"))
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.True(t, g.Charged("o1"))
	assert.Equal(t, 1, g.Calls())
}

func TestCharge_IdempotentByKey(t *testing.T) {
	g := New()
	first, err := g.Charge(context.Background(), charge("o1"))
	require.NoError(t, err)
	second, err := g.Charge(context.Background(), charge("o1"))
	require.NoError(t, err)
	assert.Equal(t, first.PaymentID, second.PaymentID)
}

func TestCharge_ScriptedSteps(t *testing.T) {
	g := New()
	boom := errors.New("connection reset")
	g.FailNext(1, boom)
	g.Enqueue(Step{Decline: "card expired"})

	_, err := g.Charge(context.Background(), charge("o1"))
	assert.ErrorIs(t, err, boom)

	res, err := g.Charge(context.Background(), charge("o1"))
	require.NoError(t, err)
	assert.False(t, res.Succeeded())
	assert.Equal(t, "card expired", res.FailureReason)
	assert.False(t, g.Charged("o1"))

	res, err = g.Charge(context.Background(), charge("o1"))
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
}

func TestCharge_DelayHonoursContext(t *testing.T) {
	g := New()
	g.Enqueue(Step{Delay: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := g.Charge(ctx, charge("o1"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCharge_Block(t *testing.T) {
	g := New()
	release := make(chan struct{})
	g.Enqueue(Step{Block: release})

	done := make(chan error, 1)
	go func() {
		_, err := g.Charge(context.Background(), charge("o1"))
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("charge returned before release")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-done)
}

func TestRefund(t *testing.T) {
	g := New()
	res, err := g.Charge(context.Background(), charge("o1"))
	require.NoError(t, err)

	req := payment.RefundRequest{IdempotencyKey: "refund-o1", PaymentID: res.PaymentID, Amount: res.Amount}
	require.NoError(t, g.Refund(context.Background(), req))
	require.NoError(t, g.Refund(context.Background(), req))
	assert.Len(t, g.Refunded(), 1)

	err = g.Refund(context.Background(), payment.RefundRequest{IdempotencyKey: "x", PaymentID: "pay_unknown"})
	assert.Error(t, err)
}
