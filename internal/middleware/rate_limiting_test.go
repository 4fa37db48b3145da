package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redis_rate/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/2beens/fitassess/internal/telemetry/metrics"
)

type testRequestRateLimiter struct {
	// key to remaining allowed requests
	limits map[string]int
	keys   []string
	err    error
}

func (l *testRequestRateLimiter) Allow(_ context.Context, key string, _ redis_rate.Limit) (*redis_rate.Result, error) {
	l.keys = append(l.keys, key)
	if l.err != nil {
		return nil, l.err
	}

	res := &redis_rate.Result{RetryAfter: 1500 * time.Millisecond}
	if l.limits[key] > 0 {
		res.Allowed = 1
		l.limits[key]--
	}
	return res, nil
}

func TestRateLimit(t *testing.T) {
	metricsManager := metrics.NewTestManager()
	limiter := &testRequestRateLimiter{
		limits: map[string]int{"login||203.0.113.9": 2},
	}

	handler := RateLimit(limiter, "login", 2, metricsManager)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/a/login", nil)
		req.Header.Set("X-Real-Ip", "203.0.113.9")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
		if rr.Code == http.StatusTooManyRequests {
			assert.Equal(t, "2", rr.Header().Get("Retry-After"))
		}
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.CounterRateLimitedRequests))
	assert.Equal(t, "login||203.0.113.9", limiter.keys[0])
}

func TestRateLimit_LimiterError(t *testing.T) {
	limiter := &testRequestRateLimiter{err: errors.New("redis down")}
	handler := RateLimit(limiter, "login", 2, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("must not be called")
		}),
	)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/a/login", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
