/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package workload

import (
	"sort"
	"strings"
	"time"

	"github.com/HamedShams/manager-am/internal/config"
	"github.com/HamedShams/manager-am/internal/domain"
)

type HoursSource string

const (
	SourceRemaining  HoursSource = "remaining_estimate"
	SourceOriginal   HoursSource = "original_minus_spent"
	SourceEvolutivo  HoursSource = "evolutivo"
	SourceHistorical HoursSource = "historical"
	SourceStored     HoursSource = "stored_estimate"
	SourceFallback   HoursSource = "fallback"
)

// TicketDetail is a ticket resolved against the tracker for one run.
type TicketDetail struct {
	Ticket domain.Ticket
	// Hours is the full resolved effort.
	Hours float64
	// PlannedHours is the assignee's part once any support share is removed.
	PlannedHours float64
	// SupportHours is the technical partner's part, Hours*SupportShare.
	SupportHours float64
	Source       HoursSource
	Priority     int
	DueDate      *time.Time
	Summary      string
	NeedsSupport bool
	PartnerID    string
}

func priorityTier(p config.Policy, name string) int {
	for _, hp := range p.HighPriorities {
		if strings.EqualFold(strings.TrimSpace(name), hp) {
			return 1
		}
	}
	return 2
}

func isEvolutivo(p config.Policy, issueType string) bool {
	t := strings.ToLower(issueType)
	if t == "" {
		return false
	}
	for _, m := range p.EvolutivoMarkers {
		if m != "" && strings.Contains(t, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

func isConsultant(p config.Policy, team string) bool {
	team = strings.TrimSpace(team)
	for _, t := range p.ConsultantTeams {
		if strings.EqualFold(team, t) {
			return true
		}
	}
	return false
}

// fallbackDetail is used when the tracker could not describe the ticket.
func fallbackDetail(p config.Policy, t domain.Ticket) TicketDetail {
	td := TicketDetail{
		Ticket:   t,
		Hours:    p.FallbackHours,
		Source:   SourceFallback,
		Priority: 2,
		DueDate:  t.DueDate,
		Summary:  t.Summary,
	}
	if t.OriginalHours > 0 {
		td.Hours = t.OriginalHours
		td.Source = SourceStored
	}
	td.PlannedHours = td.Hours
	return td
}

// trackerHours walks the estimate chain that only needs tracker data. It
// reports ok=false when the historical estimate has to be consulted.
func trackerHours(p config.Policy, t domain.Ticket, f domain.IssueFields) (float64, HoursSource, bool) {
	if f.RemainingEstimateSeconds > 0 {
		return float64(f.RemainingEstimateSeconds) / 3600, SourceRemaining, true
	}
	if diff := f.OriginalEstimateSeconds - f.TimeSpentSeconds; diff > 0 {
		return float64(diff) / 3600, SourceOriginal, true
	}
	issueType := f.IssueType
	if issueType == "" {
		issueType = t.IssueType
	}
	if isEvolutivo(p, issueType) {
		return p.EvolutivoHours, SourceEvolutivo, true
	}
	return 0, "", false
}

// splitSupport moves the support share off the assignee when the member is
// on a consultant team and the tracker names a technical partner. A partner
// equal to the assignee's own account is still split; the share is then
// placed in the assignee's remaining capacity.
func splitSupport(p config.Policy, m domain.StaffMember, td *TicketDetail, partner string) {
	td.PlannedHours = td.Hours
	td.SupportHours = 0
	if partner == "" || !isConsultant(p, m.Team) || p.SupportShare <= 0 {
		return
	}
	support := td.Hours * p.SupportShare
	td.NeedsSupport = true
	td.PartnerID = partner
	td.SupportHours = support
	td.PlannedHours = td.Hours - support
}

// dueBefore orders present due dates first, earliest first.
func dueBefore(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.Before(*b)
	}
}

func sortTickets(ts []TicketDetail) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].Priority != ts[j].Priority {
			return ts[i].Priority < ts[j].Priority
		}
		return dueBefore(ts[i].DueDate, ts[j].DueDate)
	})
}
