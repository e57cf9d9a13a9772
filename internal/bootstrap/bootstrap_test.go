package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawinstinctart/rawauditpro/internal/circuitbreaker"
	"github.com/rawinstinctart/rawauditpro/internal/config"
	"github.com/rawinstinctart/rawauditpro/internal/logger"
	"github.com/rawinstinctart/rawauditpro/internal/server"
	"github.com/rawinstinctart/rawauditpro/internal/suggest"
	"github.com/rawinstinctart/rawauditpro/internal/telemetry"
)

func TestSetupProvider(t *testing.T) {
	log := logger.NewNop()

	rule, breaker := SetupProvider(config.SuggestConfig{Provider: "rule"}, nil, log)
	assert.Equal(t, suggest.SourceRule, rule.Name())
	assert.Nil(t, breaker)

	model, breaker := SetupProvider(config.SuggestConfig{
		Provider:        "Anthropic",
		APIKey:          "test-key",
		BreakerFailures: 2,
	}, telemetry.New(nil), log)
	assert.Equal(t, suggest.SourceModel+"+"+suggest.SourceRuleFallback, model.Name())
	require.NotNil(t, breaker)
	assert.Equal(t, circuitbreaker.StateClosed, breaker.State())
}

func TestBreakerChecker(t *testing.T) {
	b := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 1, Cooldown: time.Hour})
	check := breakerChecker(b)
	assert.Equal(t, server.HealthStatusHealthy, check().Status)

	_ = b.Execute(context.Background(), func(context.Context) error { return errors.New("rate limited") })
	r := check()
	assert.Equal(t, server.HealthStatusDegraded, r.Status)
	assert.Contains(t, r.Message, "circuit open")
}

func TestSetupActivityStream(t *testing.T) {
	log := logger.NewNop()

	t.Run("disabled", func(t *testing.T) {
		cfg := config.Default()
		events := SetupActivityStream(context.Background(), cfg, log)
		assert.Nil(t, events.Client)
		assert.Nil(t, events.Stream)
		assert.NoError(t, events.Ping())
		events.Close()
	})

	t.Run("connected", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := config.Default()
		cfg.Redis.Enabled = true
		cfg.Redis.Address = mr.Addr()

		events := SetupActivityStream(context.Background(), cfg, log)
		defer events.Close()
		require.NotNil(t, events.Client)
		assert.NotNil(t, events.Stream)
		assert.NoError(t, events.Ping())
	})

	t.Run("unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		cfg := config.Default()
		cfg.Redis.Enabled = true
		cfg.Redis.Address = addr

		events := SetupActivityStream(context.Background(), cfg, log)
		assert.Nil(t, events.Client)
	})
}

func TestSetupHTTPServer_InMemory(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	log := logger.NewNop()

	storage, err := SetupStorage(context.Background(), cfg, log, true)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, storage.Backend)
	assert.NoError(t, storage.Ping())

	services, err := SetupServices(cfg, storage, &EventComponents{}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Shutdown(log, nil, services) })

	srv := SetupHTTPServer(cfg, storage, &EventComponents{}, services, log)

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), BackendMemory)

	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")

	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/websites", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoadConfig_Overrides(t *testing.T) {
	cfg, err := LoadConfig(Options{Debug: true})
	require.NoError(t, err)
	assert.True(t, cfg.Service.Debug)
	assert.Equal(t, "debug", cfg.Logging.Level)

	cfg, err = LoadConfig(Options{Debug: true, LogLevel: "warn"})
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestRunAudit(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><head></head><body><h1>Clay Works</h1><p>%s</p></body></html>`,
			strings.Repeat("pottery ", 40))
	}))
	defer site.Close()

	var out bytes.Buffer
	r, err := RunAudit(context.Background(), Options{LogLevel: "error"}, AuditOptions{
		URL:       site.URL,
		Policy:    "safe",
		AutoApply: true,
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, 1, r.PagesScanned)
	assert.Equal(t, "safe", r.Policy)
	assert.Positive(t, r.TotalIssues)
	assert.Positive(t, r.FixedCount)
	assert.GreaterOrEqual(t, r.AfterScore, r.BeforeScore)
	assert.Contains(t, out.String(), "Audit "+r.AuditID)
}

func TestRunAudit_InvalidURL(t *testing.T) {
	_, err := RunAudit(context.Background(), Options{LogLevel: "error"}, AuditOptions{URL: "ftp://example.com"}, nil)
	require.Error(t, err)
}
