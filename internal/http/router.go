/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
	"time"

	"github.com/HamedShams/manager-am/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func NewRouter(cfg config.Config, log zerolog.Logger, svc service) *gin.Engine {
	if cfg.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLog(log))

	h := NewHandlers(cfg, log, svc)

	r.GET("/healthz", h.Healthz)
	r.GET("/workload", h.Workload)
	r.GET("/workload/members/:id", h.MemberWorkload)

	admin := r.Group("/admin")
	admin.POST("/staff/:id/assignments", h.CreateAssignment)
	admin.POST("/staff/:id/deactivate", h.DeactivateStaff)
	admin.DELETE("/assignments/:id", h.DeleteAssignment)
	admin.POST("/snapshot", h.Snapshot)
	admin.GET("/last-run", h.LastRun)

	return r
}

func requestLog(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ev := log.Info()
		if c.Writer.Status() >= 500 {
			ev = log.Error()
		}
		ev.Str("m", c.Request.Method).Str("p", c.FullPath()).Int("s", c.Writer.Status()).Dur("took", time.Since(start)).Msg("http")
	}
}
