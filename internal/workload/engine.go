/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package workload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HamedShams/manager-am/internal/config"
	"github.com/HamedShams/manager-am/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrRosterConflict means two active members cannot be told apart by name
// or by tracker identity.
var ErrRosterConflict = errors.New("workload: roster conflict")

type Engine struct {
	store       Store
	issues      IssueSource
	policy      config.Policy
	log         zerolog.Logger
	concurrency int
}

func New(store Store, issues IssueSource, policy config.Policy, log zerolog.Logger, concurrency int) *Engine {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Engine{store: store, issues: issues, policy: policy, log: log, concurrency: concurrency}
}

// run carries the per-report state shared by the member branches.
type run struct {
	*Engine
	log   zerolog.Logger
	weeks []Week
	cache *issueCache
	est   *dedicationEstimator
}

// Generate builds the workload report for the horizon starting at now's week.
func (e *Engine) Generate(ctx context.Context, now time.Time) (*Report, error) {
	runID := uuid.NewString()
	started := time.Now()
	r := &run{
		Engine: e,
		log:    e.log.With().Str("run_id", runID).Logger(),
		weeks:  Calendar(now, e.policy.HorizonWeeks),
		cache:  newIssueCache(e.issues),
		est:    newEstimator(e.store, e.policy, now),
	}

	staff, err := e.store.ActiveStaff(ctx)
	if err != nil {
		return nil, fmt.Errorf("load staff: %w", err)
	}
	if err := ValidateRoster(staff); err != nil {
		return nil, err
	}

	plans := make([]MemberPlan, len(staff))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, m := range staff {
		i, m := i, m
		g.Go(func() error {
			p, err := r.planMember(gctx, m)
			if err != nil {
				return fmt.Errorf("plan %s: %w", m.Name, err)
			}
			plans[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sp := Redistribute(plans)
	rep := Assemble(runID, now, r.weeks, plans, sp)
	r.log.Info().
		Int("members", len(rep.Members)).
		Int("overflow", len(rep.Overflow)).
		Int("unassigned_support", len(rep.UnassignedSupport)).
		Dur("took", time.Since(started)).
		Msg("workload report generated")
	return rep, nil
}

// planMember is the primary stage for one member: assignments first, then
// the member's prioritized ticket queue.
func (r *run) planMember(ctx context.Context, m domain.StaffMember) (MemberPlan, error) {
	capacity := m.WeeklyCapacity
	if capacity <= 0 {
		capacity = r.policy.DefaultCapacity
	}
	tickets, err := r.store.OpenTickets(ctx, m.ID, r.policy.ClosedStatuses)
	if err != nil {
		return MemberPlan{}, fmt.Errorf("open tickets: %w", err)
	}

	details := r.resolveTickets(ctx, m, tickets)
	if err := ctx.Err(); err != nil {
		return MemberPlan{}, err
	}
	sortTickets(details)

	buckets := newBuckets(r.weeks, capacity)
	overflow := applyAssignments(buckets, m)
	overflow = append(overflow, packTickets(buckets, m, details)...)

	var support []SupportDemand
	for _, td := range details {
		if !td.NeedsSupport {
			continue
		}
		support = append(support, SupportDemand{
			TicketKey:    td.Ticket.Key,
			Summary:      td.Summary,
			AssigneeID:   m.ID,
			AssigneeName: m.Name,
			PartnerID:    td.PartnerID,
			TotalHours:   td.Hours,
			Hours:        td.SupportHours,
			Priority:     td.Priority,
			DueDate:      td.DueDate,
		})
	}
	return MemberPlan{
		Member:   m,
		Capacity: capacity,
		Tickets:  details,
		Buckets:  buckets,
		Support:  support,
		Overflow: overflow,
	}, nil
}

// resolveTickets turns stored tickets into runtime details. Tracker and
// history failures degrade to fallbacks and are only logged.
func (r *run) resolveTickets(ctx context.Context, m domain.StaffMember, tickets []domain.Ticket) []TicketDetail {
	if len(tickets) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tickets))
	for _, t := range tickets {
		keys = append(keys, t.Key)
	}
	found := r.cache.Lookup(ctx, keys)

	out := make([]TicketDetail, 0, len(tickets))
	for _, t := range tickets {
		res := found[t.Key]
		if res.err != nil {
			r.log.Warn().Err(res.err).Str("member", m.Name).Str("ticket", t.Key).Msg("tracker lookup failed; using stored estimate")
			out = append(out, fallbackDetail(r.policy, t))
			continue
		}
		out = append(out, r.resolveTicket(ctx, m, t, res.fields))
	}
	return out
}

func (r *run) resolveTicket(ctx context.Context, m domain.StaffMember, t domain.Ticket, f domain.IssueFields) TicketDetail {
	td := TicketDetail{
		Ticket:   t,
		Priority: priorityTier(r.policy, f.Priority),
		DueDate:  f.DueDate,
		Summary:  strings.TrimSpace(f.Summary),
	}
	if td.DueDate == nil {
		td.DueDate = t.DueDate
	}
	if td.Summary == "" {
		td.Summary = t.Summary
	}

	if h, src, ok := trackerHours(r.policy, t, f); ok {
		td.Hours, td.Source = h, src
	} else if avg, err := r.est.Estimate(ctx, t.WorkPackageID); err == nil {
		td.Hours, td.Source = avg, SourceHistorical
	} else {
		r.log.Warn().Err(err).Str("member", m.Name).Str("ticket", t.Key).Int64("work_package", t.WorkPackageID).Msg("historical estimate failed")
		td.Hours, td.Source = r.policy.FallbackHours, SourceFallback
	}

	splitSupport(r.policy, m, &td, f.TechResponsibleID)
	return td
}

// ValidateRoster rejects rosters where tickets or support partners could
// resolve to more than one member.
func ValidateRoster(staff []domain.StaffMember) error {
	names := map[string]int64{}
	linked := map[string]int64{}
	for _, m := range staff {
		n := strings.ToLower(strings.TrimSpace(m.Name))
		if other, dup := names[n]; dup {
			return fmt.Errorf("%w: name %q used by staff %d and %d", ErrRosterConflict, m.Name, other, m.ID)
		}
		names[n] = m.ID
		if m.LinkedUserID == "" {
			continue
		}
		if other, dup := linked[m.LinkedUserID]; dup {
			return fmt.Errorf("%w: tracker account %q linked to staff %d and %d", ErrRosterConflict, m.LinkedUserID, other, m.ID)
		}
		linked[m.LinkedUserID] = m.ID
	}
	return nil
}
