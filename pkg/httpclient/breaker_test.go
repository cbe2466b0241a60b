package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Andre27031510/vynlo-taste-sub001/pkg/errors"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/logger"
)

// downstream answers with whatever status is stored and counts hits.
type downstream struct {
	status atomic.Int32
	hits   atomic.Int32
	server *httptest.Server
}

func newDownstream(t *testing.T, status int) *downstream {
	t.Helper()
	d := &downstream{}
	d.status.Store(int32(status))
	d.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.hits.Add(1)
		w.WriteHeader(int(d.status.Load()))
		_, _ = w.Write([]byte(`{"outcome":"SUCCEEDED"}`))
	}))
	t.Cleanup(d.server.Close)
	return d
}

func newBreaker(t *testing.T, openTimeout time.Duration) *BreakerClient {
	cfg := DefaultBreakerConfig(t.Name())
	cfg.MinRequests = 3
	cfg.OpenTimeout = openTimeout
	return NewBreakerClient(New(Config{Timeout: 5 * time.Second, MaxConnsPerHost: 4}), cfg, logger.Discard())
}

func charge(ctx context.Context, b *BreakerClient, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/v1/charges", http.NoBody)
	if err != nil {
		return nil, err
	}
	return b.Do(ctx, req)
}

func TestBreaker_PassesSuccess(t *testing.T) {
	d := newDownstream(t, http.StatusOK)
	b := newBreaker(t, time.Minute)

	resp, err := charge(context.Background(), b, d.server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_OpensOnServerErrors(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusTooManyRequests} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			d := newDownstream(t, status)
			b := newBreaker(t, time.Minute)

			for range 3 {
				_, err := charge(context.Background(), b, d.server.URL)
				require.Error(t, err)
				assert.True(t, apperrors.HasCode(err, apperrors.CodeServiceUnavailable))
			}
			assert.Equal(t, gobreaker.StateOpen, b.State())

			_, err := charge(context.Background(), b, d.server.URL)
			assert.ErrorIs(t, err, apperrors.ErrTransient)
			assert.ErrorIs(t, err, gobreaker.ErrOpenState)
			assert.EqualValues(t, 3, d.hits.Load(), "open breaker must not reach the downstream")
		})
	}
}

func TestBreaker_ClientErrorsAreHandedBack(t *testing.T) {
	d := newDownstream(t, http.StatusPaymentRequired)
	b := newBreaker(t, time.Minute)

	for range 5 {
		resp, err := charge(context.Background(), b, d.server.URL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
		resp.Body.Close()
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_CallerCancellationDoesNotTrip(t *testing.T) {
	d := newDownstream(t, http.StatusOK)
	b := newBreaker(t, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for range 5 {
		_, err := charge(ctx, b, d.server.URL)
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_RecoversAfterOpenTimeout(t *testing.T) {
	d := newDownstream(t, http.StatusBadGateway)
	b := newBreaker(t, 50*time.Millisecond)

	for range 3 {
		_, _ = charge(context.Background(), b, d.server.URL)
	}
	require.Equal(t, gobreaker.StateOpen, b.State())

	d.status.Store(http.StatusOK)
	require.Eventually(t, func() bool { return b.State() == gobreaker.StateHalfOpen },
		time.Second, 10*time.Millisecond)

	resp, err := charge(context.Background(), b, d.server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultBreakerConfig("payments").Validate())

	cfg := DefaultBreakerConfig("payments")
	cfg.FailureRatio = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultBreakerConfig("payments")
	cfg.FailureRatio = 1.2
	assert.Error(t, cfg.Validate())

	cfg = DefaultBreakerConfig("payments")
	cfg.OpenTimeout = 0
	assert.Error(t, cfg.Validate())
}
