/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HamedShams/manager-am/internal/config"
	"github.com/HamedShams/manager-am/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type service interface {
	SnapshotUtilization(ctx context.Context, trigger string) error
}

type Cron struct {
	cfg     config.Config
	log     zerolog.Logger
	svc     service
	c       *cron.Cron
	timeout time.Duration
}

func NewCron(cfg config.Config, log zerolog.Logger, svc service) (*Cron, error) {
	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		loc = time.Local
	}
	c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
	cr := &Cron{cfg: cfg, log: log, svc: svc, c: c, timeout: 5 * time.Minute}
	if _, err := c.AddFunc(cfg.SnapshotCron, cr.snapshot); err != nil {
		return nil, fmt.Errorf("cron spec %q: %w", cfg.SnapshotCron, err)
	}
	return cr, nil
}

func (cr *Cron) Start() { cr.c.Start() }

// Stop halts scheduling and waits for a running job to finish.
func (cr *Cron) Stop() { <-cr.c.Stop().Done() }

func (cr *Cron) snapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), cr.timeout)
	defer cancel()
	cr.log.Info().Msg("cron: utilization snapshot")
	err := cr.svc.SnapshotUtilization(ctx, "cron")
	switch {
	case errors.Is(err, services.ErrSnapshotRunning):
		cr.log.Info().Msg("cron: already running elsewhere")
	case err != nil:
		cr.log.Error().Err(err).Msg("cron: snapshot failed")
	}
}
