/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package workload

import (
	"strconv"

	"github.com/HamedShams/manager-am/internal/domain"
)

// assignmentDays is the inclusive calendar-day length of a, floored at 1 so
// inverted or zero-width ranges still yield a usable daily rate.
func assignmentDays(a domain.ManualAssignment) int64 {
	return max(1, dayNumber(a.EndDate)-dayNumber(a.StartDate)+1)
}

// overlapDays counts the calendar days shared by a and w, inclusive.
func overlapDays(a domain.ManualAssignment, w Week) int64 {
	start := max(dayNumber(a.StartDate), dayNumber(w.Start))
	end := min(dayNumber(a.EndDate), dayNumber(w.End))
	return end - start + 1
}

// overlayAssignment spreads a uniformly over its days and books each week's
// share, clamped to what the week still has. It returns the hours that fell
// inside the horizon but did not fit.
func overlayAssignment(buckets []Bucket, a domain.ManualAssignment) float64 {
	perDay := a.Hours / float64(assignmentDays(a))
	clipped := 0.0
	for i := range buckets {
		b := &buckets[i]
		days := overlapDays(a, b.Week)
		if days <= 0 {
			continue
		}
		want := perDay * float64(days)
		take := min(want, b.Available)
		if want-take > epsilon {
			clipped += want - take
		}
		if take <= epsilon {
			continue
		}
		b.Available -= take
		if b.Available < epsilon {
			b.Available = 0
		}
		b.AssignmentHours += take
		b.Details = append(b.Details, Detail{
			Kind:           KindAssignment,
			Key:            assignmentKey(a),
			DisplayKey:     a.Description,
			Summary:        a.Description,
			Hours:          take,
			RemainingHours: 0,
			Completed:      true,
		})
	}
	return clipped
}

// applyAssignments books every assignment before any ticket is packed.
func applyAssignments(buckets []Bucket, member domain.StaffMember) []Overflow {
	var out []Overflow
	for _, a := range member.Assignments {
		if a.Hours <= 0 {
			continue
		}
		if clipped := overlayAssignment(buckets, a); clipped > 0 {
			out = append(out, Overflow{
				StaffID:   member.ID,
				StaffName: member.Name,
				Kind:      KindAssignment,
				Key:       assignmentKey(a),
				Hours:     clipped,
			})
		}
	}
	return out
}

func assignmentKey(a domain.ManualAssignment) string {
	return "assignment-" + strconv.FormatInt(a.ID, 10)
}
