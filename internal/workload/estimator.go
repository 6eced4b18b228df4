/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package workload

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/HamedShams/manager-am/internal/config"
	"github.com/HamedShams/manager-am/internal/domain"
	"golang.org/x/sync/singleflight"
)

type WorklogSource interface {
	Worklogs(ctx context.Context, workPackageID int64, since time.Time) ([]domain.WorklogDetail, error)
}

// dedicationEstimator averages historical per-ticket effort for a work
// package. Results are memoized for the lifetime of one report run.
type dedicationEstimator struct {
	src    WorklogSource
	policy config.Policy
	since  time.Time

	group singleflight.Group
	mu    sync.Mutex
	cache map[int64]float64
}

func newEstimator(src WorklogSource, p config.Policy, now time.Time) *dedicationEstimator {
	return &dedicationEstimator{
		src:    src,
		policy: p,
		since:  now.Add(-p.HistoryWindow),
		cache:  map[int64]float64{},
	}
}

func (e *dedicationEstimator) Estimate(ctx context.Context, workPackageID int64) (float64, error) {
	e.mu.Lock()
	v, ok := e.cache[workPackageID]
	e.mu.Unlock()
	if ok {
		return v, nil
	}
	res, err, _ := e.group.Do(strconv.FormatInt(workPackageID, 10), func() (any, error) {
		e.mu.Lock()
		v, ok := e.cache[workPackageID]
		e.mu.Unlock()
		if ok {
			return v, nil
		}
		logs, err := e.src.Worklogs(ctx, workPackageID, e.since)
		if err != nil {
			return 0.0, fmt.Errorf("worklogs for work package %d: %w", workPackageID, err)
		}
		avg := averageTicketHours(e.policy, logs)
		e.mu.Lock()
		e.cache[workPackageID] = avg
		e.mu.Unlock()
		return avg, nil
	})
	if err != nil {
		return 0, err
	}
	return res.(float64), nil
}

// averageTicketHours sums hours per ticket, skipping evolutivo tickets, and
// returns the mean of those totals or the fallback when there is nothing.
func averageTicketHours(p config.Policy, logs []domain.WorklogDetail) float64 {
	perTicket := map[string]float64{}
	for _, w := range logs {
		if w.TicketKey == "" || isEvolutivo(p, w.IssueType) {
			continue
		}
		perTicket[w.TicketKey] += w.Hours
	}
	if len(perTicket) == 0 {
		return p.FallbackHours
	}
	// summed in key order so repeated runs agree to the last bit
	keys := make([]string, 0, len(perTicket))
	for k := range perTicket {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sum := 0.0
	for _, k := range keys {
		sum += perTicket[k]
	}
	avg := sum / float64(len(perTicket))
	if avg <= 0 {
		return p.FallbackHours
	}
	return avg
}
