/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package domain

import "time"

type StaffMember struct {
	ID             int64
	Name           string
	WeeklyCapacity float64
	Team           string
	// LinkedUserID is the member's account id in the issue tracker.
	LinkedUserID string
	Active       bool
	Assignments  []ManualAssignment
}

type ManualAssignment struct {
	ID          int64
	StaffID     int64
	Description string
	Hours       float64
	StartDate   time.Time
	EndDate     time.Time // inclusive
}

type Ticket struct {
	ID            int64
	Key           string
	AssigneeID    int64
	Summary       string
	Status        string
	IssueType     string
	DueDate       *time.Time
	OriginalHours float64
	WorkPackageID int64
}

type WorklogDetail struct {
	TicketKey     string
	IssueType     string
	WorkPackageID int64
	StartedAt     time.Time
	Hours         float64
}

// IssueFields is the subset of a tracker issue the planner consumes.
type IssueFields struct {
	Key                      string
	Summary                  string
	IssueType                string
	Priority                 string
	DueDate                  *time.Time
	RemainingEstimateSeconds int64
	TimeSpentSeconds         int64
	OriginalEstimateSeconds  int64
	// TechResponsibleID is the account id in the technical-responsible field.
	TechResponsibleID string
}

type Snapshot struct {
	RunID       string
	StaffID     int64
	WeekStart   time.Time
	Capacity    float64
	TotalLoad   float64
	Utilization int
	TakenAt     time.Time
}

// Job run states recorded in the ledger.
const (
	JobRunning   = "running"
	JobSucceeded = "success"
	JobFailed    = "failed"
)

// JobRun is one ledger entry for a background job execution.
type JobRun struct {
	ID         int64      `json:"id"`
	Kind       string     `json:"kind"`
	Trigger    string     `json:"trigger"`
	RunID      string     `json:"run_id,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Status     string     `json:"status"`
	Rows       int        `json:"rows"`
	Error      string     `json:"error,omitempty"`
}
