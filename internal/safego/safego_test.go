package safego_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rawinstinctart/rawauditpro/internal/logger"
	"github.com/rawinstinctart/rawauditpro/internal/safego"
)

func TestRun_RecoversPanic(t *testing.T) {
	panicked := safego.Run(logger.NewNop(), "boom", func() {
		panic("boom")
	})
	assert.True(t, panicked)
}

func TestRun_NoPanic(t *testing.T) {
	called := false
	panicked := safego.Run(logger.NewNop(), "ok", func() { called = true })
	assert.False(t, panicked)
	assert.True(t, called)
}

func TestGo_RunsInBackground(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	safego.Go(nil, "bg", func() {
		defer wg.Done()
		panic("recovered with nil logger")
	})
	wg.Wait()
}
