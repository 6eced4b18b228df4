/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package repo

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/HamedShams/manager-am/internal/config"
	"github.com/HamedShams/manager-am/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("repo: not found")

//go:embed schema.sql
var schema string

type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	ctx2, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(ctx2); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}
	return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

// Migrate applies the embedded schema. Every statement is idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	d.log.Info().Msg("db schema applied")
	return nil
}

type Repository struct {
	db  *DB
	log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

// WithAdvisoryLock runs fn while holding a session advisory lock on a
// dedicated connection. It reports false without running fn when another
// session holds the lock.
func (r *Repository) WithAdvisoryLock(ctx context.Context, key int64, fn func(ctx context.Context) error) (bool, error) {
	conn, err := r.db.Pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Release()
	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer func() {
		var unlocked bool
		err := conn.QueryRow(context.Background(), "SELECT pg_advisory_unlock($1)", key).Scan(&unlocked)
		if err != nil || !unlocked {
			r.log.Error().Err(err).Int64("key", key).Msg("advisory unlock failed")
		}
	}()
	return true, fn(ctx)
}

const staffColumns = `s.id, s.name, s.weekly_capacity, COALESCE(t.name,''), COALESCE(s.linked_user_id,''), s.active`

func scanStaff(row pgx.Row) (domain.StaffMember, error) {
	var m domain.StaffMember
	err := row.Scan(&m.ID, &m.Name, &m.WeeklyCapacity, &m.Team, &m.LinkedUserID, &m.Active)
	return m, err
}

// ActiveStaff loads every active member with their manual assignments,
// ordered by name then id.
func (r *Repository) ActiveStaff(ctx context.Context) ([]domain.StaffMember, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+staffColumns+`
        FROM staff s LEFT JOIN teams t ON t.id = s.team_id
        WHERE s.active
        ORDER BY s.name, s.id`)
	if err != nil {
		return nil, err
	}
	staff, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.StaffMember, error) { return scanStaff(row) })
	if err != nil {
		return nil, err
	}
	if len(staff) == 0 {
		return staff, nil
	}

	ids := make([]int64, len(staff))
	idx := make(map[int64]int, len(staff))
	for i, m := range staff {
		ids[i] = m.ID
		idx[m.ID] = i
	}
	arows, err := r.db.Pool.Query(ctx, `SELECT id, staff_id, description, hours, start_date, end_date
        FROM manual_assignments WHERE staff_id = ANY($1) ORDER BY start_date, id`, ids)
	if err != nil {
		return nil, err
	}
	defer arows.Close()
	for arows.Next() {
		var a domain.ManualAssignment
		if err := arows.Scan(&a.ID, &a.StaffID, &a.Description, &a.Hours, &a.StartDate, &a.EndDate); err != nil {
			return nil, err
		}
		i := idx[a.StaffID]
		staff[i].Assignments = append(staff[i].Assignments, a)
	}
	return staff, arows.Err()
}

func (r *Repository) StaffByID(ctx context.Context, id int64) (domain.StaffMember, error) {
	m, err := scanStaff(r.db.Pool.QueryRow(ctx, `SELECT `+staffColumns+`
        FROM staff s LEFT JOIN teams t ON t.id = s.team_id WHERE s.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return m, ErrNotFound
	}
	return m, err
}

// OpenTickets lists the tickets assigned to staffID whose status is not in
// closed, ordered by key.
func (r *Repository) OpenTickets(ctx context.Context, staffID int64, closed []string) ([]domain.Ticket, error) {
	if closed == nil {
		closed = []string{}
	}
	rows, err := r.db.Pool.Query(ctx, `SELECT id, key, assignee_id, summary, status, issue_type,
            due_date, original_hours, COALESCE(work_package_id,0)
        FROM tickets
        WHERE assignee_id = $1 AND status <> ALL($2)
        ORDER BY key`, staffID, closed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		if err := rows.Scan(&t.ID, &t.Key, &t.AssigneeID, &t.Summary, &t.Status, &t.IssueType,
			&t.DueDate, &t.OriginalHours, &t.WorkPackageID); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Worklogs returns the time logged since the given instant on tickets of a
// work package.
func (r *Repository) Worklogs(ctx context.Context, workPackageID int64, since time.Time) ([]domain.WorklogDetail, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT t.key, t.issue_type, t.work_package_id, w.started_at, w.hours
        FROM worklogs w JOIN tickets t ON t.id = w.ticket_id
        WHERE t.work_package_id = $1 AND w.started_at >= $2
        ORDER BY w.started_at, w.id`, workPackageID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.WorklogDetail
	for rows.Next() {
		var w domain.WorklogDetail
		if err := rows.Scan(&w.TicketKey, &w.IssueType, &w.WorkPackageID, &w.StartedAt, &w.Hours); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *Repository) CreateAssignment(ctx context.Context, a domain.ManualAssignment) (int64, error) {
	var id int64
	err := r.db.Pool.QueryRow(ctx, `INSERT INTO manual_assignments(staff_id, description, hours, start_date, end_date)
        VALUES($1,$2,$3,$4,$5) RETURNING id`,
		a.StaffID, a.Description, a.Hours, a.StartDate, a.EndDate).Scan(&id)
	return id, err
}

func (r *Repository) DeleteAssignment(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM manual_assignments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateStaff clears the active flag. Staff rows are never deleted so
// their worklogs keep feeding the estimator.
func (r *Repository) DeactivateStaff(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE staff SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) BulkInsertSnapshots(ctx context.Context, snaps []domain.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	const q = `INSERT INTO workload_snapshots(run_id, staff_id, week_start, capacity, total_load, utilization, taken_at)
        VALUES($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (run_id, staff_id, week_start) DO NOTHING`
	for _, s := range snaps {
		batch.Queue(q, s.RunID, s.StaffID, s.WeekStart, s.Capacity, s.TotalLoad, s.Utilization, s.TakenAt)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range snaps {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// StartJobRun opens a ledger entry in the running state.
func (r *Repository) StartJobRun(ctx context.Context, kind, trigger string) (int64, error) {
	var id int64
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO job_runs(kind, triggered_by, status) VALUES($1,$2,$3) RETURNING id`,
		kind, trigger, domain.JobRunning).Scan(&id)
	return id, err
}

func (r *Repository) FinishJobRun(ctx context.Context, run domain.JobRun) error {
	ct, err := r.db.Pool.Exec(ctx, `UPDATE job_runs
        SET finished_at=now(), status=$2, row_count=$3, error=NULLIF($4,''), run_id=NULLIF($5,'')::uuid
        WHERE id=$1`,
		run.ID, run.Status, run.Rows, run.Error, run.RunID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LastJobRun returns the most recent ledger entry of a kind.
func (r *Repository) LastJobRun(ctx context.Context, kind string) (domain.JobRun, error) {
	var run domain.JobRun
	err := r.db.Pool.QueryRow(ctx, `SELECT id, kind, triggered_by, COALESCE(run_id::text,''), started_at, finished_at, status, row_count, COALESCE(error,'')
        FROM job_runs WHERE kind=$1 ORDER BY id DESC LIMIT 1`, kind).
		Scan(&run.ID, &run.Kind, &run.Trigger, &run.RunID, &run.StartedAt, &run.FinishedAt, &run.Status, &run.Rows, &run.Error)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.JobRun{}, ErrNotFound
	}
	return run, err
}
