/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/HamedShams/manager-am/internal/domain"
)

type rawIssue struct {
	Key    string                     `json:"key"`
	Fields map[string]json.RawMessage `json:"fields"`
}

type searchPage struct {
	StartAt    int        `json:"startAt"`
	MaxResults int        `json:"maxResults"`
	Total      int        `json:"total"`
	Issues     []rawIssue `json:"issues"`
}

// Issue fetches the planning fields of a single issue.
func (c *Client) Issue(ctx context.Context, key string) (domain.IssueFields, error) {
	if key == "" {
		return domain.IssueFields{}, errors.New("jira: empty issue key")
	}
	q := url.Values{}
	q.Set("fields", c.fieldList())
	var raw rawIssue
	u := c.apiURL(c.restPath("/issue/"+url.PathEscape(key)), q)
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &raw); err != nil {
		return domain.IssueFields{}, err
	}
	return c.parseIssue(raw)
}

// Issues fetches many issues with one JQL search per chunk. Jira rejects a
// whole `key in (...)` query when one key no longer exists, so a 400 falls
// back to per-key lookups for that chunk.
func (c *Client) Issues(ctx context.Context, keys []string) (map[string]domain.IssueFields, error) {
	out := make(map[string]domain.IssueFields, len(keys))
	for start := 0; start < len(keys); start += c.batchSize {
		end := min(start+c.batchSize, len(keys))
		chunk := keys[start:end]
		err := c.searchKeys(ctx, chunk, out)
		var serr *StatusError
		if errors.As(err, &serr) && serr.Code == http.StatusBadRequest {
			c.log.Debug().Int("keys", len(chunk)).Msg("jira batch rejected; fetching one by one")
			c.issuesOneByOne(ctx, chunk, out)
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *Client) issuesOneByOne(ctx context.Context, keys []string, out map[string]domain.IssueFields) {
	for _, k := range keys {
		f, err := c.Issue(ctx, k)
		if err != nil {
			c.log.Warn().Err(err).Str("ticket", k).Msg("jira issue fetch failed")
			continue
		}
		out[f.Key] = f
	}
}

func (c *Client) searchKeys(ctx context.Context, keys []string, out map[string]domain.IssueFields) error {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = `"` + strings.ReplaceAll(k, `"`, `\"`) + `"`
	}
	jql := fmt.Sprintf("key in (%s)", strings.Join(quoted, ","))
	startAt := 0
	for {
		var page searchPage
		body := map[string]any{
			"jql":        jql,
			"startAt":    startAt,
			"maxResults": len(keys),
			"fields":     strings.Split(c.fieldList(), ","),
		}
		if err := c.doJSON(ctx, http.MethodPost, c.apiURL(c.restPath("/search"), nil), body, &page); err != nil {
			return err
		}
		for _, raw := range page.Issues {
			f, err := c.parseIssue(raw)
			if err != nil {
				c.log.Warn().Err(err).Str("ticket", raw.Key).Msg("jira issue parse failed")
				continue
			}
			out[f.Key] = f
		}
		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			return nil
		}
	}
}

func (c *Client) parseIssue(raw rawIssue) (domain.IssueFields, error) {
	f := domain.IssueFields{Key: raw.Key}
	var tt struct {
		RemainingEstimateSeconds int64 `json:"remainingEstimateSeconds"`
		TimeSpentSeconds         int64 `json:"timeSpentSeconds"`
		OriginalEstimateSeconds  int64 `json:"originalEstimateSeconds"`
	}
	if err := decodeField(raw.Fields, "timetracking", &tt); err != nil {
		return f, err
	}
	f.RemainingEstimateSeconds = tt.RemainingEstimateSeconds
	f.TimeSpentSeconds = tt.TimeSpentSeconds
	f.OriginalEstimateSeconds = tt.OriginalEstimateSeconds

	var named struct {
		Name string `json:"name"`
	}
	if err := decodeField(raw.Fields, "issuetype", &named); err != nil {
		return f, err
	}
	f.IssueType = named.Name
	named.Name = ""
	if err := decodeField(raw.Fields, "priority", &named); err != nil {
		return f, err
	}
	f.Priority = named.Name
	if err := decodeField(raw.Fields, "summary", &f.Summary); err != nil {
		return f, err
	}

	var due string
	if err := decodeField(raw.Fields, "duedate", &due); err != nil {
		return f, err
	}
	if due != "" {
		t, err := time.ParseInLocation("2006-01-02", due, time.Local)
		if err != nil {
			return f, fmt.Errorf("jira: duedate %q: %w", due, err)
		}
		f.DueDate = &t
	}
	if c.techField != "" {
		f.TechResponsibleID = accountID(raw.Fields[c.techField])
	}
	return f, nil
}

// decodeField leaves dst untouched when the field is absent or null.
func decodeField(fields map[string]json.RawMessage, name string, dst any) error {
	raw, ok := fields[name]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("jira: field %s: %w", name, err)
	}
	return nil
}

// accountID reads a user picker value, single or multi.
func accountID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var one struct {
		AccountID string `json:"accountId"`
	}
	if err := json.Unmarshal(raw, &one); err == nil {
		return one.AccountID
	}
	var many []struct {
		AccountID string `json:"accountId"`
	}
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return many[0].AccountID
	}
	return ""
}
