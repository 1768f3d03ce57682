package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockfusion/pkg/config"
	"github.com/wonny/stockfusion/pkg/logger"
	"github.com/wonny/stockfusion/pkg/redis"
)

func newTestClient() *Client {
	return New(logger.Nop(), 2*time.Second).WithRetry(2, time.Millisecond)
}

func TestNew(t *testing.T) {
	client := New(logger.Nop(), 5*time.Second)

	require.NotNil(t, client)
	assert.Equal(t, 5*time.Second, client.httpClient.Timeout)
	assert.NotNil(t, client.httpClient.Jar)
	assert.Equal(t, 2, client.retryConfig.MaxRetries)
	assert.Equal(t, DefaultUserAgent, client.headers["User-Agent"])
}

func TestGetJSON_SendsHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "https://example.test/", r.Header.Get("Referer"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"TCS","price":3500.5}`))
	}))
	defer server.Close()

	client := newTestClient().WithHeader("Referer", "https://example.test/")

	var out struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	}
	require.NoError(t, client.GetJSON(context.Background(), server.URL, &out))
	assert.Equal(t, "TCS", out.Symbol)
	assert.InDelta(t, 3500.5, out.Price, 1e-9)
}

func TestGetBody_WithDisabledRateLimiter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	rc, err := redis.New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	client := newTestClient().WithRateLimiter(redis.NewRateLimiter(rc, "test"), redis.NSERateLimit)

	for i := 0; i < 5; i++ {
		body, err := client.GetBody(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Equal(t, "ok", string(body))
	}
}

func TestGetBody_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	body, err := newTestClient().GetBody(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetBody_StatusError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{"not found is not retried", http.StatusNotFound, 1},
		{"too many requests exhausts retries", http.StatusTooManyRequests, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := newTestClient().GetBody(context.Background(), server.URL)

			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestGet_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestClient().Get(ctx, server.URL)
	assert.Error(t, err)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{200, false},
		{404, false},
		{429, true},
		{500, true},
		{503, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryableError(tt.code), "status %d", tt.code)
	}
}
