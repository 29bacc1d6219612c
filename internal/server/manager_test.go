package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func TestStartServeShutdown(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "pong")
	})

	m := NewManager(mux, testConfig(), nil)
	require.NoError(t, m.Start())
	require.NotEmpty(t, m.Addr())
	assert.True(t, m.IsRunning())

	resp, err := http.Get("http://" + m.Addr() + "/ping")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "pong", string(body))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
}

func TestDoubleStartFails(t *testing.T) {
	m := NewManager(http.NewServeMux(), testConfig(), nil)
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	assert.Error(t, m.Start())
}

func TestStartAfterShutdownFails(t *testing.T) {
	m := NewManager(http.NewServeMux(), testConfig(), nil)
	require.NoError(t, m.Start())
	require.NoError(t, m.Shutdown(context.Background()))

	assert.Error(t, m.Start())
}

func TestShutdownIdempotent(t *testing.T) {
	m := NewManager(http.NewServeMux(), testConfig(), nil)
	require.NoError(t, m.Start())

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestStartOnBusyPortReportsError(t *testing.T) {
	first := NewManager(http.NewServeMux(), testConfig(), nil)
	require.NoError(t, first.Start())
	t.Cleanup(func() { _ = first.Shutdown(context.Background()) })

	cfg := testConfig()
	cfg.Addr = first.Addr()
	second := NewManager(http.NewServeMux(), cfg, nil)
	assert.Error(t, second.Start())
}
