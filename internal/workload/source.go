/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package workload

import (
	"context"
	"errors"
	"sync"

	"github.com/HamedShams/manager-am/internal/domain"
)

// IssueSource fetches tracker fields for many issues in one call. Keys the
// tracker does not return are simply absent from the map.
type IssueSource interface {
	Issues(ctx context.Context, keys []string) (map[string]domain.IssueFields, error)
}

// Store is the persisted state the engine reads.
type Store interface {
	WorklogSource
	ActiveStaff(ctx context.Context) ([]domain.StaffMember, error)
	OpenTickets(ctx context.Context, staffID int64, closedStatuses []string) ([]domain.Ticket, error)
}

var errIssueNotReturned = errors.New("issue not returned by tracker")

type issueResult struct {
	fields domain.IssueFields
	err    error
}

// issueCache memoizes tracker lookups for one report run.
type issueCache struct {
	src IssueSource

	mu      sync.Mutex
	entries map[string]issueResult
}

func newIssueCache(src IssueSource) *issueCache {
	return &issueCache{src: src, entries: map[string]issueResult{}}
}

// Lookup returns a result for every key, batching the ones not seen yet
// into a single tracker call.
func (c *issueCache) Lookup(ctx context.Context, keys []string) map[string]issueResult {
	out := make(map[string]issueResult, len(keys))
	var missing []string
	seen := map[string]struct{}{}
	c.mu.Lock()
	for _, k := range keys {
		if r, ok := c.entries[k]; ok {
			out[k] = r
			continue
		}
		if _, dup := seen[k]; !dup {
			seen[k] = struct{}{}
			missing = append(missing, k)
		}
	}
	c.mu.Unlock()
	if len(missing) == 0 {
		return out
	}

	got, err := c.src.Issues(ctx, missing)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range missing {
		r := issueResult{err: err}
		if err == nil {
			if f, ok := got[k]; ok {
				r = issueResult{fields: f}
			} else {
				r = issueResult{err: errIssueNotReturned}
			}
		}
		// a cancelled run must not poison later lookups in the same run
		if !errors.Is(r.err, context.Canceled) && !errors.Is(r.err, context.DeadlineExceeded) {
			c.entries[k] = r
		}
		out[k] = r
	}
	return out
}
