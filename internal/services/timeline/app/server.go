// Package app assembles the timeline process from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/learning-layers/Timeliner/internal/platform/logging"
	"github.com/learning-layers/Timeliner/internal/platform/otel"
	"github.com/learning-layers/Timeliner/internal/platform/timeouts"
	"github.com/learning-layers/Timeliner/internal/services/timeline/activity"
	"github.com/learning-layers/Timeliner/internal/services/timeline/api/httpapi"
	"github.com/learning-layers/Timeliner/internal/services/timeline/blob"
	"github.com/learning-layers/Timeliner/internal/services/timeline/event"
	"github.com/learning-layers/Timeliner/internal/services/timeline/identity"
	"github.com/learning-layers/Timeliner/internal/services/timeline/maintenance"
	"github.com/learning-layers/Timeliner/internal/services/timeline/realtime"
	"github.com/learning-layers/Timeliner/internal/services/timeline/service"
	"github.com/learning-layers/Timeliner/internal/services/timeline/social"
	"github.com/learning-layers/Timeliner/internal/services/timeline/storage/sqlite"
)

const redisPingTimeout = 5 * time.Second

// Config is the full process configuration, read from TIMELINER_*
// variables.
type Config struct {
	HTTPAddr        string        `env:"TIMELINER_HTTP_ADDR" envDefault:":8080"`
	DatabasePath    string        `env:"TIMELINER_DB_PATH" envDefault:"data/timeliner.db"`
	RedisURL        string        `env:"TIMELINER_REDIS_URL"`
	ConfirmationTTL time.Duration `env:"TIMELINER_CONFIRMATION_TTL" envDefault:"48h"`
	MaxUploadBytes  int64         `env:"TIMELINER_MAX_UPLOAD_BYTES" envDefault:"33554432"`

	ReadHeaderTimeout time.Duration `env:"TIMELINER_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `env:"TIMELINER_SHUTDOWN_TIMEOUT"`

	Logging     logging.Config
	Telemetry   otel.Config
	Tokens      identity.TokenConfig
	Blob        blob.Config
	Realtime    realtime.Config
	Social      social.Config
	Maintenance maintenance.Config
}

// Core is the storage and application layer without any transport.
type Core struct {
	Store   *sqlite.Store
	Blobs   blob.Store
	Bus     *event.Bus
	Service *service.Service

	closeBlobs func() error
}

// OpenCore opens storage and builds the service with its activity
// recorder attached to the bus.
func OpenCore(ctx context.Context, cfg Config, logger logrus.FieldLogger) (*Core, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	tokens, err := identity.NewTokens(cfg.Tokens, nil)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(cfg.DatabasePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open timeline store: %w", err)
	}
	blobs, closeBlobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	bus := event.NewBus(logger)
	svc, err := service.New(service.Options{
		Store:           store,
		Blobs:           blobs,
		Events:          bus,
		Tokens:          tokens,
		Logger:          logger,
		ConfirmationTTL: cfg.ConfirmationTTL,
	})
	if err != nil {
		_ = closeBlobs()
		_ = store.Close()
		return nil, err
	}
	activity.NewRecorder(store, bus, logger, nil, nil).Register()
	return &Core{Store: store, Blobs: blobs, Bus: bus, Service: svc, closeBlobs: closeBlobs}, nil
}

// Close releases storage.
func (c *Core) Close() error {
	if c == nil {
		return nil
	}
	return errors.Join(c.closeBlobs(), c.Store.Close())
}

// Server hosts the HTTP API, the websocket hub and the maintenance jobs.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	core            *Core
	hub             *realtime.Hub
	redis           *redis.Client
	scheduler       *maintenance.Scheduler
	logger          logrus.FieldLogger
}

// NewServer wires every component from cfg.
func NewServer(ctx context.Context, cfg Config, logger logrus.FieldLogger) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	httpAddr := strings.TrimSpace(cfg.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = timeouts.Shutdown
	}

	core, err := OpenCore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	server := &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: cfg.ShutdownTimeout,
		core:            core,
		logger:          logging.Component(logger, "server"),
	}

	if url := strings.TrimSpace(cfg.RedisURL); url != "" {
		client, err := openRedis(ctx, url)
		if err != nil {
			server.Close()
			return nil, err
		}
		server.redis = client
	}

	hub, err := realtime.NewHub(realtime.Options{
		Auth:   core.Service,
		Mover:  core.Service,
		Gate:   core.Service.Gate(),
		Config: cfg.Realtime,
		Redis:  server.redis,
		Logger: logger,
	})
	if err != nil {
		server.Close()
		return nil, err
	}
	hub.Register(core.Bus)
	server.hub = hub

	scheduler, err := maintenance.NewScheduler(cfg.Maintenance, core.Service, logger)
	if err != nil {
		server.Close()
		return nil, err
	}
	server.scheduler = scheduler

	var login *social.Login
	if providers := cfg.Social.Providers(); len(providers) > 0 {
		login = social.NewLogin(cfg.Social, providers, nil, logger)
	}

	server.httpServer = &http.Server{
		Addr: httpAddr,
		Handler: httpapi.NewHandler(httpapi.Options{
			Service:        core.Service,
			Social:         login,
			Realtime:       hub.Handler(),
			MaxUploadBytes: cfg.MaxUploadBytes,
			Logger:         logger,
		}),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	return server, nil
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Run builds a server from cfg and serves until ctx ends.
func Run(ctx context.Context, cfg Config, logger logrus.FieldLogger) error {
	server, err := NewServer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init timeline server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve timeline: %w", err)
	}
	return nil
}

// Handler exposes the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe runs the HTTP server and the maintenance jobs until the
// context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("timeline server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	s.scheduler.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.scheduler.Stop(stopCtx); err != nil {
			s.logger.WithError(err).Warn("stop maintenance scheduler")
		}
	}()

	serveErr := make(chan error, 1)
	s.logger.WithField("addr", s.httpAddr).Info("timeline server listening")
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.hub != nil {
		s.hub.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.WithError(err).Warn("close redis client")
		}
	}
	if err := s.core.Close(); err != nil {
		s.logger.WithError(err).Warn("close storage")
	}
}
