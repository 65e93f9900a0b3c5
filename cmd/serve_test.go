package cmd

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunHTTP(t *testing.T) {
	t.Run("Should shut down when the context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

		done := make(chan error, 1)
		go func() { done <- runHTTP(ctx, srv, time.Second) }()

		time.Sleep(50 * time.Millisecond)
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not stop")
		}
	})

	t.Run("Should return a listener failure without cancellation", func(t *testing.T) {
		srv := &http.Server{Addr: "127.0.0.1:-1", Handler: http.NotFoundHandler()}

		done := make(chan error, 1)
		go func() { done <- runHTTP(context.Background(), srv, time.Second) }()

		select {
		case err := <-done:
			require.Error(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("listener failure was not reported")
		}
	})
}
