/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package workload

import "github.com/HamedShams/manager-am/internal/domain"

// packTickets places each ticket's planned hours into the earliest weeks
// with room, in the given order. Tickets are expected to be sorted.
func packTickets(buckets []Bucket, member domain.StaffMember, tickets []TicketDetail) []Overflow {
	avail := availability(buckets)
	var out []Overflow
	for _, td := range tickets {
		td := td
		if td.PlannedHours <= epsilon {
			continue
		}
		left := firstFit(avail, td.PlannedHours, func(w int, take, left float64) {
			b := &buckets[w]
			b.Available = avail[w]
			b.TicketHours += take
			b.Details = append(b.Details, Detail{
				Kind:           KindTicket,
				Key:            td.Ticket.Key,
				DisplayKey:     td.Ticket.Key,
				Summary:        td.Summary,
				Hours:          take,
				RemainingHours: left,
				Completed:      left == 0,
				Priority:       td.Priority,
				DueDate:        td.DueDate,
			})
		})
		if left > 0 {
			out = append(out, Overflow{
				StaffID:   member.ID,
				StaffName: member.Name,
				Kind:      KindTicket,
				Key:       td.Ticket.Key,
				Hours:     left,
			})
		}
	}
	return out
}
