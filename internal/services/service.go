/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/HamedShams/manager-am/internal/config"
	"github.com/HamedShams/manager-am/internal/domain"
	"github.com/HamedShams/manager-am/internal/repo"
	"github.com/HamedShams/manager-am/internal/workload"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// reportTimeout bounds one shared report generation.
const reportTimeout = 2 * time.Minute

// digestWeeks is how many leading weeks the snapshot digest inspects.
const digestWeeks = 2

const jobSnapshot = "snapshot"

// snapshotLockKey identifies the snapshot job across replicas.
const snapshotLockKey int64 = 424243

const snapshotTimeout = 5 * time.Minute

// ErrSnapshotRunning means another process holds the snapshot lock.
var ErrSnapshotRunning = errors.New("snapshot already running")

type Store interface {
	StaffByID(ctx context.Context, id int64) (domain.StaffMember, error)
	CreateAssignment(ctx context.Context, a domain.ManualAssignment) (int64, error)
	DeleteAssignment(ctx context.Context, id int64) error
	DeactivateStaff(ctx context.Context, id int64) error
	BulkInsertSnapshots(ctx context.Context, snaps []domain.Snapshot) error
	StartJobRun(ctx context.Context, kind, trigger string) (int64, error)
	FinishJobRun(ctx context.Context, run domain.JobRun) error
	LastJobRun(ctx context.Context, kind string) (domain.JobRun, error)
}

// Locker runs fn under a lock shared by every replica. It reports false
// without running fn when the lock is held elsewhere.
type Locker interface {
	WithAdvisoryLock(ctx context.Context, key int64, fn func(ctx context.Context) error) (bool, error)
}

type Planner interface {
	Generate(ctx context.Context, now time.Time) (*workload.Report, error)
}

type Notifier interface {
	Enabled() bool
	Broadcast(ctx context.Context, text string) error
}

// ValidationError is a rejected input; handlers answer 400.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

type Service struct {
	cfg     config.Config
	log     zerolog.Logger
	store   Store
	lock    Locker
	planner Planner
	tg      Notifier
	now     func() time.Time

	reports singleflight.Group
}

func New(cfg config.Config, log zerolog.Logger, store Store, lock Locker, planner Planner, tg Notifier) *Service {
	return &Service{cfg: cfg, log: log, store: store, lock: lock, planner: planner, tg: tg, now: time.Now}
}

// WorkloadReport generates the report for the current week onwards.
// Concurrent callers share one in-flight generation; the result is
// read-only.
func (s *Service) WorkloadReport(ctx context.Context) (*workload.Report, error) {
	ch := s.reports.DoChan("report", func() (any, error) {
		gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
		defer cancel()
		return s.planner.Generate(gctx, s.now())
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*workload.Report), nil
	}
}

// MemberWorkload returns one member's schedule. Inactive or unknown members
// are not in the report and yield repo.ErrNotFound.
func (s *Service) MemberWorkload(ctx context.Context, staffID int64) (workload.MemberSchedule, error) {
	rep, err := s.WorkloadReport(ctx)
	if err != nil {
		return workload.MemberSchedule{}, err
	}
	m, ok := rep.Member(staffID)
	if !ok {
		return workload.MemberSchedule{}, repo.ErrNotFound
	}
	return m, nil
}

type AssignmentInput struct {
	Description string    `json:"description"`
	Hours       float64   `json:"hours"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
}

// CreateAssignment books non-ticket work for an active member. Inverted
// ranges are stored as given and treated as a single day when planned.
func (s *Service) CreateAssignment(ctx context.Context, staffID int64, in AssignmentInput) (domain.ManualAssignment, error) {
	in.Description = strings.TrimSpace(in.Description)
	switch {
	case in.Description == "":
		return domain.ManualAssignment{}, &ValidationError{Msg: "description is required"}
	case in.Hours <= 0:
		return domain.ManualAssignment{}, &ValidationError{Msg: "hours must be positive"}
	case in.StartDate.IsZero() || in.EndDate.IsZero():
		return domain.ManualAssignment{}, &ValidationError{Msg: "start_date and end_date are required"}
	}
	m, err := s.store.StaffByID(ctx, staffID)
	if err != nil {
		return domain.ManualAssignment{}, err
	}
	if !m.Active {
		return domain.ManualAssignment{}, &ValidationError{Msg: fmt.Sprintf("staff %d is inactive", staffID)}
	}
	a := domain.ManualAssignment{
		StaffID:     staffID,
		Description: in.Description,
		Hours:       in.Hours,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
	}
	id, err := s.store.CreateAssignment(ctx, a)
	if err != nil {
		return domain.ManualAssignment{}, fmt.Errorf("create assignment: %w", err)
	}
	a.ID = id
	s.log.Info().Int64("staff_id", staffID).Int64("assignment_id", id).Float64("hours", a.Hours).Msg("assignment created")
	return a, nil
}

func (s *Service) DeleteAssignment(ctx context.Context, id int64) error {
	if err := s.store.DeleteAssignment(ctx, id); err != nil {
		return err
	}
	s.log.Info().Int64("assignment_id", id).Msg("assignment deleted")
	return nil
}

func (s *Service) DeactivateStaff(ctx context.Context, id int64) error {
	if err := s.store.DeactivateStaff(ctx, id); err != nil {
		return err
	}
	s.log.Info().Int64("staff_id", id).Msg("staff deactivated")
	return nil
}

// SnapshotUtilization runs one snapshot under the replica-wide lock and
// records it in the job ledger. It returns ErrSnapshotRunning when another
// run holds the lock.
func (s *Service) SnapshotUtilization(ctx context.Context, trigger string) error {
	ran, err := s.lock.WithAdvisoryLock(ctx, snapshotLockKey, func(ctx context.Context) error {
		return s.recordedSnapshot(ctx, trigger)
	})
	if err == nil && !ran {
		return ErrSnapshotRunning
	}
	return err
}

// QueueSnapshot starts a snapshot detached from the caller and returns as
// soon as the lock is taken. The run itself is bounded by snapshotTimeout.
func (s *Service) QueueSnapshot(trigger string) error {
	locked := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		defer cancel()
		ran, err := s.lock.WithAdvisoryLock(ctx, snapshotLockKey, func(ctx context.Context) error {
			locked <- nil
			return s.recordedSnapshot(ctx, trigger)
		})
		switch {
		case !ran && err == nil:
			locked <- ErrSnapshotRunning
		case !ran:
			locked <- fmt.Errorf("snapshot lock: %w", err)
		case err != nil:
			s.log.Error().Err(err).Str("trigger", trigger).Msg("snapshot failed")
		}
	}()
	return <-locked
}

// LastRun returns the latest snapshot ledger entry.
func (s *Service) LastRun(ctx context.Context) (domain.JobRun, error) {
	return s.store.LastJobRun(ctx, jobSnapshot)
}

// recordedSnapshot wraps one snapshot in a ledger entry. Ledger failures
// are logged and never fail the run.
func (s *Service) recordedSnapshot(ctx context.Context, trigger string) (err error) {
	run := domain.JobRun{Kind: jobSnapshot, Trigger: trigger}
	id, lerr := s.store.StartJobRun(ctx, jobSnapshot, trigger)
	if lerr != nil {
		s.log.Warn().Err(lerr).Msg("job ledger start failed")
	}
	defer func() {
		if lerr != nil {
			return
		}
		run.ID = id
		run.Status = domain.JobSucceeded
		if err != nil {
			run.Status = domain.JobFailed
			run.Error = err.Error()
		}
		if ferr := s.store.FinishJobRun(context.WithoutCancel(ctx), run); ferr != nil {
			s.log.Warn().Err(ferr).Int64("job_run", id).Msg("job ledger finish failed")
		}
	}()
	run.RunID, run.Rows, err = s.snapshot(ctx)
	return err
}

// snapshot persists one row per member and week of a fresh report and
// sends the digest. A failed send is logged, not returned.
func (s *Service) snapshot(ctx context.Context) (string, int, error) {
	rep, err := s.planner.Generate(ctx, s.now())
	if err != nil {
		return "", 0, fmt.Errorf("snapshot report: %w", err)
	}
	snaps := snapshots(rep, s.now())
	if err := s.store.BulkInsertSnapshots(ctx, snaps); err != nil {
		return rep.RunID, 0, fmt.Errorf("snapshot insert: %w", err)
	}
	s.log.Info().Str("run_id", rep.RunID).Int("rows", len(snaps)).Msg("utilization snapshot stored")

	if !s.tg.Enabled() {
		s.log.Debug().Msg("telegram not configured; digest skipped")
		return rep.RunID, len(snaps), nil
	}
	if err := s.tg.Broadcast(ctx, renderDigest(rep)); err != nil {
		s.log.Error().Err(err).Msg("digest send failed")
	}
	return rep.RunID, len(snaps), nil
}

func snapshots(rep *workload.Report, takenAt time.Time) []domain.Snapshot {
	var out []domain.Snapshot
	for _, m := range rep.Members {
		for _, w := range m.Weeks {
			out = append(out, domain.Snapshot{
				RunID:       rep.RunID,
				StaffID:     m.StaffID,
				WeekStart:   w.Start,
				Capacity:    m.Capacity,
				TotalLoad:   w.TotalLoad,
				Utilization: w.Utilization,
				TakenAt:     takenAt,
			})
		}
	}
	return out
}

func renderDigest(rep *workload.Report) string {
	var b strings.Builder
	if len(rep.Weeks) > 0 {
		fmt.Fprintf(&b, "Carga de trabajo (semana del %s)\n", rep.Weeks[0].Start.Format("02/01/2006"))
	}

	type over struct {
		name string
		week time.Time
		pct  int
	}
	var overs []over
	for _, m := range rep.Members {
		for i, w := range m.Weeks {
			if i >= digestWeeks {
				break
			}
			if w.Utilization > 100 {
				overs = append(overs, over{m.Name, w.Start, w.Utilization})
			}
		}
	}
	sort.SliceStable(overs, func(i, j int) bool { return overs[i].pct > overs[j].pct })
	if len(overs) == 0 {
		b.WriteString("\nNadie por encima del 100% en las próximas semanas.\n")
	} else {
		b.WriteString("\nSobrecarga:\n")
		for _, o := range overs {
			fmt.Fprintf(&b, "- %s: %d%% (semana %s)\n", o.name, o.pct, o.week.Format("02/01"))
		}
	}

	overflow := map[string]float64{}
	var names []string
	for _, o := range rep.Overflow {
		if _, ok := overflow[o.StaffName]; !ok {
			names = append(names, o.StaffName)
		}
		overflow[o.StaffName] += o.Hours
	}
	sort.Strings(names)
	if len(names) > 0 {
		b.WriteString("\nHoras fuera del horizonte:\n")
		for _, n := range names {
			fmt.Fprintf(&b, "- %s: %.1fh\n", n, overflow[n])
		}
	}

	if len(rep.UnassignedSupport) > 0 {
		total := 0.0
		for _, d := range rep.UnassignedSupport {
			total += d.Hours
		}
		fmt.Fprintf(&b, "\nSoporte sin asignar: %.1fh en %d tickets\n", total, len(rep.UnassignedSupport))
	}
	return b.String()
}

// IsValidation reports whether err is a rejected input.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
