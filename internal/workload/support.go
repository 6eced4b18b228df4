/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package workload

import (
	"fmt"
	"sort"
	"time"
)

// SupportDemand is the technical partner's share of a consultant's ticket.
type SupportDemand struct {
	TicketKey    string     `json:"ticket_key"`
	Summary      string     `json:"summary"`
	AssigneeID   int64      `json:"assignee_id"`
	AssigneeName string     `json:"assignee_name"`
	PartnerID    string     `json:"partner_id"`
	TotalHours   float64    `json:"total_hours"`
	Hours        float64    `json:"hours"`
	Priority     int        `json:"priority"`
	DueDate      *time.Time `json:"due_date,omitempty"`
}

// Placement is one week's slice of a support demand on the partner.
type Placement struct {
	Week   int
	Detail Detail
}

// SupportPlan is the delta the redistribution stage adds on top of the
// primary member plans.
type SupportPlan struct {
	Placements map[int64][]Placement
	Unassigned []SupportDemand
	Overflow   []Overflow
}

func sortDemands(ds []SupportDemand) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].Priority != ds[j].Priority {
			return ds[i].Priority < ds[j].Priority
		}
		return dueBefore(ds[i].DueDate, ds[j].DueDate)
	})
}

// Redistribute places every support demand of plans into the partner's
// capacity left after primary packing. Demands are ordered on their own,
// independently of each partner's primary queue. Plans are not modified.
func Redistribute(plans []MemberPlan) SupportPlan {
	sp := SupportPlan{Placements: map[int64][]Placement{}}

	byLinked := map[string]int{}
	var demands []SupportDemand
	for i, p := range plans {
		if p.Member.LinkedUserID != "" {
			byLinked[p.Member.LinkedUserID] = i
		}
		demands = append(demands, p.Support...)
	}
	if len(demands) == 0 {
		return sp
	}
	sortDemands(demands)

	remaining := map[int][]float64{}
	for _, d := range demands {
		idx, ok := byLinked[d.PartnerID]
		if !ok {
			sp.Unassigned = append(sp.Unassigned, d)
			continue
		}
		partner := plans[idx].Member
		avail, ok := remaining[idx]
		if !ok {
			avail = availability(plans[idx].Buckets)
			remaining[idx] = avail
		}
		d := d
		left := firstFit(avail, d.Hours, func(w int, take, left float64) {
			sp.Placements[partner.ID] = append(sp.Placements[partner.ID], Placement{
				Week: w,
				Detail: Detail{
					Kind:           KindSupport,
					Key:            d.TicketKey,
					DisplayKey:     fmt.Sprintf("%s (support)", d.TicketKey),
					Summary:        fmt.Sprintf("Support for %s: %s", d.AssigneeName, d.Summary),
					Hours:          take,
					RemainingHours: left,
					Completed:      left == 0,
					Priority:       d.Priority,
					DueDate:        d.DueDate,
					SupportFor:     d.AssigneeName,
				},
			})
		})
		if left > 0 {
			sp.Overflow = append(sp.Overflow, Overflow{
				StaffID:   partner.ID,
				StaffName: partner.Name,
				Kind:      KindSupport,
				Key:       d.TicketKey,
				Hours:     left,
			})
		}
	}
	return sp
}

// applySupport returns a copy of buckets with the placements added.
func applySupport(buckets []Bucket, placements []Placement) []Bucket {
	out := cloneBuckets(buckets)
	for _, pl := range placements {
		if pl.Week < 0 || pl.Week >= len(out) {
			continue
		}
		b := &out[pl.Week]
		b.SupportHours += pl.Detail.Hours
		b.Available -= pl.Detail.Hours
		if b.Available < epsilon {
			b.Available = 0
		}
		b.Details = append(b.Details, pl.Detail)
	}
	return out
}
