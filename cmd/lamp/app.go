// ABOUTME: Wires configuration, storage, gateway client, analytics, and controllers
// ABOUTME: One app per process; Close drains analytics and closes the store

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/lamp/internal/account"
	"github.com/2389/lamp/internal/analytics"
	"github.com/2389/lamp/internal/chat"
	"github.com/2389/lamp/internal/config"
	"github.com/2389/lamp/internal/flow"
	"github.com/2389/lamp/internal/latch"
	"github.com/2389/lamp/internal/merge"
	"github.com/2389/lamp/internal/store"
)

type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.SQLiteStore
	gateway *account.Client
	events  *analytics.Client
	flow    *flow.Controller
	chat    *chat.Controller

	closers []func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	a.store = st
	a.closers = append(a.closers, func() {
		if err := st.Close(); err != nil {
			logger.Warn("closing store", "error", err)
		}
	})

	httpClient := &http.Client{Timeout: cfg.Gateway.Timeout}
	gw, err := account.NewClient(ctx, account.Options{
		BaseURL:       cfg.Gateway.BaseURL,
		SessionCookie: cfg.Gateway.SessionCookie,
		Cookies:       st,
		HTTPClient:    httpClient,
		Logger:        logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating gateway client: %w", err)
	}
	a.gateway = gw

	var sender analytics.Sender = analytics.NopSender{}
	if cfg.Analytics.Enabled {
		dispatcher := analytics.NewDispatcher(
			analytics.NewHTTPSender(cfg.Analytics.Host, cfg.Analytics.APIKey, &http.Client{Timeout: 10 * time.Second}),
			cfg.Analytics.QueueSize,
			logger,
		)
		sender = dispatcher
		a.closers = append(a.closers, func() {
			drain, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := dispatcher.Close(drain); err != nil {
				logger.Warn("analytics queue not drained", "error", err)
			}
		})
	}
	a.events = analytics.NewClient(sender, st, logger)

	once, err := newLatch(cfg.Latch)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() { once.close() })

	protocol := merge.New(a.events, st, once, merge.Config{
		SMSPrefix:   cfg.Analytics.SMSPrefix,
		Environment: cfg.Environment,
	}, logger)

	a.flow = flow.New(gw, protocol, once, logger)
	a.chat = chat.New(gw, a.flow, logger)
	a.closers = append(a.closers, a.chat.Close)

	logger.Debug("lamp ready",
		"environment", cfg.Environment,
		"gateway", cfg.Gateway.BaseURL,
		"analytics", cfg.Analytics.Enabled,
		"latch", cfg.Latch.Backend,
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

type closableLatch struct {
	latch.Latch
	close func()
}

func newLatch(cfg config.LatchConfig) (*closableLatch, error) {
	switch cfg.Backend {
	case config.LatchRedis:
		r, err := latch.NewRedis(cfg.RedisURL, cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("connecting latch redis: %w", err)
		}
		return &closableLatch{Latch: r, close: func() { r.Close() }}, nil
	default:
		m := latch.NewMemory(cfg.TTL, 10000)
		return &closableLatch{Latch: m, close: m.Close}, nil
	}
}
