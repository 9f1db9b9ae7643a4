// Package app wires configuration into a ready sync engine. Both binaries use it.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/02loveslollipop/shizuku-hidroweb/internal/config"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/db"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/hidro"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/logging"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/syncer"
)

// App owns the sink and the engine built on it.
type App struct {
	Store  db.Store
	Engine *syncer.Engine
}

// New opens the sink named by cfg.DatabaseURL and builds the engine.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	store, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &App{
		Store:  store,
		Engine: NewEngine(cfg, store),
	}, nil
}

// NewEngine builds the upstream client (behind a circuit breaker when
// enabled) and the engine writing to sink.
func NewEngine(cfg config.Config, sink syncer.Sink) *syncer.Engine {
	client := hidro.NewClient(cfg.BaseURL, &http.Client{Timeout: cfg.RequestTimeout})

	var fetcher syncer.Fetcher = client
	if cfg.CircuitBreaker {
		fetcher = hidro.NewBreakerClient(client)
	}

	logging.Info().
		Str("base_url", cfg.BaseURL).
		Bool("circuit_breaker", cfg.CircuitBreaker).
		Int("window_days", cfg.WindowDays).
		Dur("request_delay", cfg.RequestDelay).
		Bool("credentials", cfg.Identifier != "" && cfg.Secret != "").
		Msg("sync engine configured")

	return syncer.New(syncer.Config{
		Identifier: cfg.Identifier,
		Secret:     cfg.Secret,
		WindowDays: cfg.WindowDays,
	}, fetcher, sink, syncer.NewRateThrottle(cfg.RequestDelay))
}

func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
}
