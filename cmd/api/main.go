/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HamedShams/manager-am/internal/adapters/jira"
	"github.com/HamedShams/manager-am/internal/adapters/telegram"
	"github.com/HamedShams/manager-am/internal/config"
	apihttp "github.com/HamedShams/manager-am/internal/http"
	"github.com/HamedShams/manager-am/internal/jobs"
	"github.com/HamedShams/manager-am/internal/logger"
	"github.com/HamedShams/manager-am/internal/repo"
	"github.com/HamedShams/manager-am/internal/services"
	"github.com/HamedShams/manager-am/internal/workload"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db := repo.MustOpen(ctx, cfg, log)
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("db migrate failed")
	}
	repository := repo.NewRepository(db, log)

	// Adapters
	jc := jira.NewClient(cfg, log)
	tg := telegram.NewClient(cfg, log)
	if !tg.Enabled() {
		log.Warn().Msg("telegram not configured; snapshot digests disabled")
	}

	// Services
	engine := workload.New(repository, jc, cfg.Policy, log, cfg.MaxConcurrency)
	svc := services.New(cfg, log, repository, repository, engine, tg)

	// Cron
	cron, err := jobs.NewCron(cfg, log, svc)
	if err != nil {
		log.Fatal().Err(err).Msg("cron setup failed")
	}
	cron.Start()
	defer cron.Stop()

	// HTTP server (Gin)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apihttp.NewRouter(cfg, log, svc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info().Str("addr", cfg.HTTPAddr).Int("horizon_weeks", cfg.Policy.HorizonWeeks).Msg("manager-am listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info().Msg("shutting down...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
}
