package logger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawinstinctart/rawauditpro/internal/logger"
)

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	log, err := logger.New(logger.Config{OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	require.NotNil(t, log)

	child := log.With(logger.Component("test"), logger.AuditID("a-1"))
	child.Info("hello", logger.Int("n", 1), logger.Error(errors.New("boom")))
}

func TestNew_ConsoleDevelopment(t *testing.T) {
	t.Parallel()

	log, err := logger.New(logger.Config{
		Level:       "debug",
		Format:      "console",
		Development: true,
		OutputPaths: []string{"stderr"},
	})
	require.NoError(t, err)
	log.Debug("debug entry")
}

func TestNew_InvalidOutputPath(t *testing.T) {
	t.Parallel()

	_, err := logger.New(logger.Config{OutputPaths: []string{"/nonexistent/dir/log.json"}})
	assert.Error(t, err)
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	nop := logger.NewNop()
	ctx := logger.WithContext(context.Background(), nop)
	assert.Equal(t, nop, logger.FromContext(ctx))
	assert.NotNil(t, logger.FromContext(context.Background()))
}
