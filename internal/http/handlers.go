/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/HamedShams/manager-am/internal/config"
	"github.com/HamedShams/manager-am/internal/domain"
	"github.com/HamedShams/manager-am/internal/repo"
	"github.com/HamedShams/manager-am/internal/services"
	"github.com/HamedShams/manager-am/internal/workload"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type service interface {
	WorkloadReport(ctx context.Context) (*workload.Report, error)
	MemberWorkload(ctx context.Context, staffID int64) (workload.MemberSchedule, error)
	CreateAssignment(ctx context.Context, staffID int64, in services.AssignmentInput) (domain.ManualAssignment, error)
	DeleteAssignment(ctx context.Context, id int64) error
	DeactivateStaff(ctx context.Context, id int64) error
	QueueSnapshot(trigger string) error
	LastRun(ctx context.Context) (domain.JobRun, error)
}

type Handlers struct {
	cfg config.Config
	log zerolog.Logger
	svc service
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc service) *Handlers {
	return &Handlers{cfg: cfg, log: log, svc: svc}
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) Workload(c *gin.Context) {
	rep, err := h.svc.WorkloadReport(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handlers) MemberWorkload(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	m, err := h.svc.MemberWorkload(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

type assignmentRequest struct {
	Description string  `json:"description" binding:"required"`
	Hours       float64 `json:"hours" binding:"required"`
	StartDate   string  `json:"start_date" binding:"required"`
	EndDate     string  `json:"end_date" binding:"required"`
}

func (h *Handlers) CreateAssignment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req assignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, err1 := time.ParseInLocation(time.DateOnly, req.StartDate, time.Local)
	end, err2 := time.ParseInLocation(time.DateOnly, req.EndDate, time.Local)
	if err := errors.Join(err1, err2); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dates must be YYYY-MM-DD"})
		return
	}
	a, err := h.svc.CreateAssignment(c.Request.Context(), id, services.AssignmentInput{
		Description: req.Description,
		Hours:       req.Hours,
		StartDate:   start,
		EndDate:     end,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":          a.ID,
		"staff_id":    a.StaffID,
		"description": a.Description,
		"hours":       a.Hours,
		"start_date":  a.StartDate.Format(time.DateOnly),
		"end_date":    a.EndDate.Format(time.DateOnly),
	})
}

func (h *Handlers) DeleteAssignment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteAssignment(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) DeactivateStaff(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.DeactivateStaff(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) Snapshot(c *gin.Context) {
	if err := h.svc.QueueSnapshot("manual"); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *Handlers) LastRun(c *gin.Context) {
	run, err := h.svc.LastRun(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *Handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case services.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, workload.ErrRosterConflict), errors.Is(err, services.ErrSnapshotRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
