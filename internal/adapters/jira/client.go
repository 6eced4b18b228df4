/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/HamedShams/manager-am/internal/config"
	"github.com/rs/zerolog"
)

// StatusError is a non-2xx answer from Jira.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jira api status=%d body=%s", e.Code, e.Body)
}

type Client struct {
	baseURL    string
	token      string
	user       string
	pass       string
	http       *http.Client
	log        zerolog.Logger
	apiVer     string
	techField  string
	batchSize  int
	retries    int
	retryDelay time.Duration
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    cfg.JiraBaseURL,
		token:      cfg.JiraPAT,
		user:       cfg.JiraUsername,
		pass:       cfg.JiraPassword,
		http:       &http.Client{Timeout: cfg.HTTPTimeout},
		log:        log,
		apiVer:     cfg.JiraAPIVersion,
		techField:  cfg.Policy.TechResponsibleField,
		batchSize:  50,
		retries:    3,
		retryDelay: 300 * time.Millisecond,
	}
}

func (c *Client) apiURL(path string, q url.Values) string {
	base := strings.TrimRight(c.baseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := base + path
	if len(q) > 0 {
		u = u + "?" + q.Encode()
	}
	return u
}

func (c *Client) restPath(p string) string {
	if c.apiVer == "2" {
		return "/rest/api/2" + p
	}
	return "/rest/api/3" + p
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.user != "" && c.pass != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
}

// doJSON sends the request and decodes a JSON answer into out, retrying
// 429 and 5xx responses with exponential backoff.
func (c *Client) doJSON(ctx context.Context, method, u string, body, out any) error {
	if c.baseURL == "" {
		return errors.New("jira: empty baseURL")
	}
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(1<<(attempt-1))):
			}
		}
		var r io.Reader
		if payload != nil {
			r = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, r)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		c.authorize(req)

		retry, err := c.roundTrip(req, out)
		if err == nil {
			return nil
		}
		if !retry || ctx.Err() != nil {
			return err
		}
		lastErr = err
		c.log.Debug().Err(err).Int("attempt", attempt+1).Str("url", u).Msg("jira retry")
	}
	return lastErr
}

func (c *Client) roundTrip(req *http.Request, out any) (bool, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		serr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
		return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500, serr
	}
	if out == nil {
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("jira: decode response: %w", err)
	}
	return false, nil
}

func (c *Client) fieldList() string {
	fields := []string{"timetracking", "issuetype", "summary", "priority", "duedate"}
	if c.techField != "" {
		fields = append(fields, c.techField)
	}
	return strings.Join(fields, ",")
}
