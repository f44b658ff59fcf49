package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/learning-layers/Timeliner/internal/services/timeline/blob"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		HTTPAddr:        "127.0.0.1:0",
		DatabasePath:    filepath.Join(dir, "db", "timeliner.db"),
		ConfirmationTTL: 48 * time.Hour,
		MaxUploadBytes:  1 << 20,
	}
	cfg.Tokens.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Tokens.Issuer = "timeliner"
	cfg.Tokens.Audience = "timeliner-api"
	cfg.Tokens.TTL = time.Hour
	cfg.Blob.Backend = blob.BackendFilesystem
	cfg.Blob.Dir = filepath.Join(dir, "uploads")
	cfg.Realtime.AuthTimeout = time.Second
	cfg.Realtime.FramesPerSecond = 10
	cfg.Realtime.FrameBurst = 10
	cfg.Realtime.MaxPayloadBytes = 4096
	cfg.Realtime.MaxDecodeErrors = 3
	return cfg
}

func TestNewServerRequiresHTTPAddr(t *testing.T) {
	cfg := testConfig(t)
	cfg.HTTPAddr = " "
	_, err := NewServer(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestNewServerRequiresTokenSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tokens.Secret = ""
	_, err := NewServer(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestNewServerRejectsBadRedisURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "not-a-url"
	_, err := NewServer(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "redis")
}

func TestListenAndServeNilServer(t *testing.T) {
	var s *Server
	require.Error(t, s.ListenAndServe(context.Background()))
}

func TestHandlerHealth(t *testing.T) {
	server, err := NewServer(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer server.Close()

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", strings.TrimSpace(rr.Body.String()))

	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/projects", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestNewServerWithRedis(t *testing.T) {
	redisServer := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RedisURL = "redis://" + redisServer.Addr()

	server, err := NewServer(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, server.redis)
	server.Close()
}

func TestOpenCoreRegistersAndPurges(t *testing.T) {
	core, err := OpenCore(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer core.Close()

	removed, err := core.Service.PurgeUnconfirmed(context.Background())
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := NewServer(ctx, testConfig(t), nil)
	require.NoError(t, err)
	defer server.Close()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe(ctx)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case err := <-serveErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop on cancel")
	}
}
