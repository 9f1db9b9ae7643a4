package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/02loveslollipop/shizuku-hidroweb/internal/app"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/config"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/logging"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/syncer"
	httpserver "github.com/02loveslollipop/shizuku-hidroweb/services/api/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("config error")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("startup error")
	}
	defer a.Close()

	if cfg.Schedule != "" {
		sched, err := syncer.NewScheduler(a.Engine, cfg.Schedule, cfg.Stations, cfg.RecentDays)
		if err != nil {
			logging.Fatal().Err(err).Msg("scheduler error")
		}
		sched.Start()
		defer func() {
			stopCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
			defer stop()
			sched.Stop(stopCtx)
		}()
	}

	srv := httpserver.New(cfg, a.Engine)
	logging.Info().Str("addr", cfg.ListenAddr()).Msg("sync API listening")

	if err := srv.Run(ctx); err != nil {
		logging.Error().Err(err).Msg("server error")
	}
}
