package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/taskflow/taskflow/internal/config"
)

func TestLogger(t *testing.T) {
	t.Run("logs with request id and status", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)
		app := fiber.New()
		app.Use(RequestID())
		app.Use(Logger(DefaultLoggerConfig(zap.New(core))))
		app.Get("/api/v1/sync/metrics", func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/metrics", nil)
		req.Header.Set(RequestIDHeader, "req-1")
		_, err := app.Test(req)
		require.NoError(t, err)

		entries := logs.FilterMessage("request completed").All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.EqualValues(t, 200, fields["status"])
		assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	})

	t.Run("error handler status is logged", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)
		app := fiber.New()
		app.Use(Logger(DefaultLoggerConfig(zap.New(core))))
		app.Get("/boom", func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusBadGateway, "upstream")
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

		entries := logs.FilterMessage("request completed").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	})

	t.Run("skips health and metrics", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)
		app := fiber.New()
		app.Use(Logger(DefaultLoggerConfig(zap.New(core))))
		app.Get("/livez", func(c *fiber.Ctx) error { return c.SendStatus(200) })
		app.Get("/metrics", func(c *fiber.Ctx) error { return c.SendStatus(200) })

		for _, path := range []string{"/livez", "/metrics"} {
			_, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
			require.NoError(t, err)
		}
		assert.Zero(t, logs.Len())
	})
}

func TestSensitiveHeader(t *testing.T) {
	assert.True(t, sensitiveHeader("Authorization"))
	assert.True(t, sensitiveHeader("Cookie"))
	assert.False(t, sensitiveHeader("Content-Type"))
}

func TestMetrics(t *testing.T) {
	app := fiber.New()
	app.Use(Metrics(DefaultMetricsConfig()))
	app.Get("/api/v1/sync/records/:collection/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/v1/sync/records/:collection/:id", "200"))
	for _, id := range []string{"a", "b"} {
		_, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/sync/records/tasks/"+id, nil))
		require.NoError(t, err)
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/v1/sync/records/:collection/:id", "200"))
	assert.Equal(t, 2.0, after-before)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, 404, statusOf(fiber.ErrNotFound))
	assert.Equal(t, 500, statusOf(errors.New("boom")))
}

type captureTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func newSentryHub(t *testing.T) (*sentry.Hub, *captureTransport) {
	t.Helper()
	transport := &captureTransport{}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn: "",
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			transport.mu.Lock()
			transport.events = append(transport.events, event)
			transport.mu.Unlock()
			return nil
		},
	})
	require.NoError(t, err)
	return sentry.NewHub(client, sentry.NewScope()), transport
}

func (c *captureTransport) Events() []*sentry.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*sentry.Event(nil), c.events...)
}

func TestRecover(t *testing.T) {
	t.Run("panic becomes 500 with request id", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		app := fiber.New()
		app.Use(RequestID())
		app.Use(Recover(zap.New(core), nil))
		app.Get("/panic", func(c *fiber.Ctx) error {
			panic("kaboom")
		})

		req := httptest.NewRequest(http.MethodGet, "/panic", nil)
		req.Header.Set(RequestIDHeader, "req-9")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

		entries := logs.FilterMessage("panic recovered").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "req-9", entries[0].ContextMap()["request_id"])
	})

	t.Run("panic reported to sentry", func(t *testing.T) {
		hub, transport := newSentryHub(t)
		app := fiber.New()
		app.Use(RequestID())
		app.Use(Recover(zap.NewNop(), hub))
		app.Get("/panic", func(c *fiber.Ctx) error {
			panic(errors.New("kaboom"))
		})

		req := httptest.NewRequest(http.MethodGet, "/panic", nil)
		req.Header.Set(RequestIDHeader, "req-10")
		_, err := app.Test(req)
		require.NoError(t, err)

		events := transport.Events()
		require.Len(t, events, 1)
		assert.Equal(t, "req-10", events[0].Tags["request_id"])
		assert.Equal(t, sentry.LevelFatal, events[0].Level)
	})
}

func TestCaptureError(t *testing.T) {
	hub, transport := newSentryHub(t)
	app := fiber.New()
	app.Use(RequestID())
	app.Use(Sentry(hub))
	app.Get("/fail", func(c *fiber.Ctx) error {
		CaptureError(c, errors.New("secondary store unavailable"))
		return c.SendStatus(fiber.StatusServiceUnavailable)
	})

	_, err := app.Test(httptest.NewRequest(http.MethodGet, "/fail", nil))
	require.NoError(t, err)

	events := transport.Events()
	require.Len(t, events, 1)
	require.NotEmpty(t, events[0].Exception)
	assert.Equal(t, "secondary store unavailable", events[0].Exception[0].Value)
	assert.Equal(t, "/fail", events[0].Extra["path"])

	noHub := fiber.New()
	noHub.Get("/nohub", func(c *fiber.Ctx) error {
		CaptureError(c, errors.New("ignored"))
		return c.SendStatus(fiber.StatusOK)
	})
	resp, err := noHub.Test(httptest.NewRequest(http.MethodGet, "/nohub", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInitSentry_NoDSN(t *testing.T) {
	enabled, err := InitSentry(config.SentryConfig{Environment: "test"})
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestRateLimit_NilClient(t *testing.T) {
	app := fiber.New()
	app.Post("/reconcile", RateLimit(nil), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})

	for i := 0; i < 20; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/reconcile", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	}
}

func TestRateLimit_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set, skipping integration test")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	cfg := DefaultRateLimitConfig()
	cfg.Max = 2
	cfg.Window = time.Minute
	cfg.Prefix = "taskflow:test:ratelimit:" + time.Now().Format("150405.000000")

	app := fiber.New()
	app.Post("/reconcile", RateLimit(client, cfg), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})

	var codes []int
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/reconcile", nil))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
		if i == 2 {
			assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
			assert.Equal(t, "60", resp.Header.Get(fiber.HeaderRetryAfter))
		}
	}
	assert.Equal(t, []int{202, 202, 429}, codes)
}
