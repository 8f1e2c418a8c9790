package httpserver

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regflow/internal/platform/config"
)

func TestNew_AppliesTimeouts(t *testing.T) {
	srv := New(config.Server{Addr: ":0"}, http.NotFoundHandler())
	assert.Equal(t, ":0", srv.Addr)
	assert.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
	assert.NotZero(t, srv.WriteTimeout)
}

func TestRun_StopsOnCancel(t *testing.T) {
	srv := New(config.Server{Addr: "127.0.0.1:0"}, http.NotFoundHandler())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, srv, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
