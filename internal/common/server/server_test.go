package server

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlibekovAA/user-directory/backend/internal/common/logger"
)

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig("9090")

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Positive(t, cfg.ShutdownTimeout)
	assert.Less(t, cfg.DrainTimeout, cfg.ShutdownTimeout)

	srv := NewServer(cfg, http.NotFoundHandler())
	assert.Equal(t, cfg.ReadHeaderTimeout, srv.ReadHeaderTimeout)
	assert.Equal(t, cfg.IdleTimeout, srv.IdleTimeout)
}

func TestRun_ExecutesHooksOnShutdown(t *testing.T) {
	log, err := logger.New("", "test", "error")
	require.NoError(t, err)

	cfg := DefaultServerConfig("0")
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = time.Second
	cfg.DrainTimeout = 500 * time.Millisecond
	srv := NewServer(cfg, http.NotFoundHandler())

	var calls []int
	hooks := []ShutdownHook{
		func(ctx context.Context) error {
			calls = append(calls, 1)
			return errors.New("hook failed")
		},
		func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			assert.True(t, ok)
			calls = append(calls, 2)
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, srv, cfg, log, "test", hooks) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, []int{1, 2}, calls)
}

func TestRun_ReturnsListenError(t *testing.T) {
	log, err := logger.New("", "test", "error")
	require.NoError(t, err)

	cfg := DefaultServerConfig("0")
	cfg.Addr = "invalid-address:-1"
	srv := NewServer(cfg, http.NotFoundHandler())

	err = Run(context.Background(), srv, cfg, log, "test", nil)
	assert.Error(t, err)
}
