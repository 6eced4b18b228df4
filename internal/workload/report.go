/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package workload

import (
	"math"
	"time"

	"github.com/HamedShams/manager-am/internal/domain"
)

// MemberPlan is the primary-stage result for one member. It is not
// modified once built.
type MemberPlan struct {
	Member   domain.StaffMember
	Capacity float64
	Tickets  []TicketDetail
	Buckets  []Bucket
	Support  []SupportDemand
	Overflow []Overflow
}

type WeekLoad struct {
	Week
	TicketHours     float64  `json:"ticket_hours"`
	AssignmentHours float64  `json:"assignment_hours"`
	SupportHours    float64  `json:"support_hours"`
	TotalLoad       float64  `json:"total_load"`
	Available       float64  `json:"available"`
	Utilization     int      `json:"utilization"`
	Details         []Detail `json:"details"`
}

type MemberSchedule struct {
	StaffID  int64      `json:"staff_id"`
	Name     string     `json:"name"`
	Team     string     `json:"team"`
	Capacity float64    `json:"capacity"`
	Weeks    []WeekLoad `json:"weeks"`
}

type Report struct {
	RunID       string           `json:"run_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Weeks       []Week           `json:"weeks"`
	Members     []MemberSchedule `json:"members"`
	// Overflow lists hours the horizon could not hold.
	Overflow []Overflow `json:"overflow"`
	// UnassignedSupport lists support shares whose partner is not on staff.
	UnassignedSupport []SupportDemand `json:"unassigned_support"`
}

// Member finds a schedule by staff id.
func (r *Report) Member(staffID int64) (MemberSchedule, bool) {
	for _, m := range r.Members {
		if m.StaffID == staffID {
			return m, true
		}
	}
	return MemberSchedule{}, false
}

func utilization(load, capacity float64) int {
	if capacity <= 0 {
		return 0
	}
	return int(math.Round(load / capacity * 100))
}

func summarize(buckets []Bucket) []WeekLoad {
	out := make([]WeekLoad, len(buckets))
	for i, b := range buckets {
		load := b.TotalLoad()
		details := b.Details
		if details == nil {
			details = []Detail{}
		}
		out[i] = WeekLoad{
			Week:            b.Week,
			TicketHours:     b.TicketHours,
			AssignmentHours: b.AssignmentHours,
			SupportHours:    b.SupportHours,
			TotalLoad:       load,
			Available:       b.Available,
			Utilization:     utilization(load, b.Capacity),
			Details:         details,
		}
	}
	return out
}

// Assemble merges primary plans and the support delta into a report.
// Utilization is computed here, after support placement.
func Assemble(runID string, now time.Time, weeks []Week, plans []MemberPlan, sp SupportPlan) *Report {
	r := &Report{
		RunID:             runID,
		GeneratedAt:       now,
		Weeks:             weeks,
		Members:           make([]MemberSchedule, 0, len(plans)),
		Overflow:          []Overflow{},
		UnassignedSupport: []SupportDemand{},
	}
	for _, p := range plans {
		buckets := applySupport(p.Buckets, sp.Placements[p.Member.ID])
		r.Members = append(r.Members, MemberSchedule{
			StaffID:  p.Member.ID,
			Name:     p.Member.Name,
			Team:     p.Member.Team,
			Capacity: p.Capacity,
			Weeks:    summarize(buckets),
		})
		r.Overflow = append(r.Overflow, p.Overflow...)
	}
	r.Overflow = append(r.Overflow, sp.Overflow...)
	r.UnassignedSupport = append(r.UnassignedSupport, sp.Unassigned...)
	return r
}
