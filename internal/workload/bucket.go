/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package workload

import "time"

// epsilon absorbs float noise when comparing hours.
const epsilon = 1e-9

type DetailKind string

const (
	KindTicket     DetailKind = "ticket"
	KindAssignment DetailKind = "assignment"
	KindSupport    DetailKind = "support"
)

// Detail is one itemized entry placed into a week.
type Detail struct {
	Kind       DetailKind `json:"kind"`
	Key        string     `json:"key"`
	DisplayKey string     `json:"display_key"`
	Summary    string     `json:"summary"`
	Hours      float64    `json:"hours"`
	// RemainingHours is what is still unplaced for this item after this entry.
	RemainingHours float64    `json:"remaining_hours"`
	Completed      bool       `json:"completed"`
	Priority       int        `json:"priority,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	SupportFor     string     `json:"support_for,omitempty"`
}

// Bucket is one member's week while it is being filled.
type Bucket struct {
	Week
	Capacity        float64
	Available       float64
	TicketHours     float64
	AssignmentHours float64
	SupportHours    float64
	Details         []Detail
}

func (b Bucket) TotalLoad() float64 { return b.TicketHours + b.AssignmentHours + b.SupportHours }

func newBuckets(weeks []Week, capacity float64) []Bucket {
	out := make([]Bucket, len(weeks))
	for i, w := range weeks {
		out[i] = Bucket{Week: w, Capacity: capacity, Available: capacity}
	}
	return out
}

func cloneBuckets(in []Bucket) []Bucket {
	out := make([]Bucket, len(in))
	for i, b := range in {
		out[i] = b
		out[i].Details = append([]Detail(nil), b.Details...)
	}
	return out
}

func availability(buckets []Bucket) []float64 {
	out := make([]float64, len(buckets))
	for i, b := range buckets {
		out[i] = b.Available
	}
	return out
}

// firstFit consumes hours from avail in week order, calling place for each
// week that receives a share. It returns the hours that did not fit.
func firstFit(avail []float64, hours float64, place func(week int, take, left float64)) float64 {
	left := hours
	for w := range avail {
		if left <= epsilon {
			break
		}
		if avail[w] <= epsilon {
			continue
		}
		take := min(left, avail[w])
		left -= take
		if left < epsilon {
			left = 0
		}
		avail[w] -= take
		if avail[w] < epsilon {
			avail[w] = 0
		}
		place(w, take, left)
	}
	if left < epsilon {
		return 0
	}
	return left
}

// Overflow records hours the horizon could not hold.
type Overflow struct {
	StaffID   int64      `json:"staff_id"`
	StaffName string     `json:"staff_name"`
	Kind      DetailKind `json:"kind"`
	Key       string     `json:"key"`
	Hours     float64    `json:"hours"`
}
