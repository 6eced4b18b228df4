package jira

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HamedShams/manager-am/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := config.Config{
		JiraBaseURL:    srv.URL,
		JiraPAT:        "pat",
		JiraAPIVersion: "3",
		HTTPTimeout:    5 * time.Second,
		Policy:         config.DefaultPolicy(),
	}
	c := NewClient(cfg, zerolog.Nop())
	c.retryDelay = time.Millisecond
	return c
}

const issueJSON = `{
  "key": "AM-1",
  "fields": {
    "summary": "Cierre mensual",
    "issuetype": {"name": "Incidencia"},
    "priority": {"name": "Highest"},
    "duedate": "2026-10-21",
    "timetracking": {"remainingEstimateSeconds": 7200, "timeSpentSeconds": 3600, "originalEstimateSeconds": 10800},
    "customfield_10054": {"accountId": "acc-42", "displayName": "Pablo"}
  }
}`

func TestIssue_ParsesPlanningFields(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/3/issue/AM-1", r.URL.Path)
		assert.Equal(t, "Bearer pat", r.Header.Get("Authorization"))
		assert.Contains(t, r.URL.Query().Get("fields"), "customfield_10054")
		_, _ = w.Write([]byte(issueJSON))
	}))

	f, err := c.Issue(context.Background(), "AM-1")
	require.NoError(t, err)
	assert.Equal(t, "AM-1", f.Key)
	assert.Equal(t, "Cierre mensual", f.Summary)
	assert.Equal(t, "Incidencia", f.IssueType)
	assert.Equal(t, "Highest", f.Priority)
	assert.EqualValues(t, 7200, f.RemainingEstimateSeconds)
	assert.EqualValues(t, 3600, f.TimeSpentSeconds)
	assert.EqualValues(t, 10800, f.OriginalEstimateSeconds)
	assert.Equal(t, "acc-42", f.TechResponsibleID)
	require.NotNil(t, f.DueDate)
	assert.Equal(t, 21, f.DueDate.Day())
}

func TestIssue_NullFields(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"key":"AM-2","fields":{"summary":"x","duedate":null,"priority":null,"timetracking":{},"customfield_10054":null}}`))
	}))
	f, err := c.Issue(context.Background(), "AM-2")
	require.NoError(t, err)
	assert.Nil(t, f.DueDate)
	assert.Empty(t, f.Priority)
	assert.Empty(t, f.TechResponsibleID)
	assert.Zero(t, f.RemainingEstimateSeconds)
}

func TestIssues_BatchesBySearch(t *testing.T) {
	var searches int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/api/3/search", r.URL.Path)
		atomic.AddInt32(&searches, 1)
		var body struct {
			JQL string `json:"jql"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		var issues []string
		for _, k := range []string{"AM-1", "AM-2", "AM-3"} {
			if strings.Contains(body.JQL, `"`+k+`"`) {
				issues = append(issues, strings.Replace(issueJSON, `"AM-1"`, `"`+k+`"`, 1))
			}
		}
		_, _ = w.Write([]byte(`{"startAt":0,"total":` + strconv.Itoa(len(issues)) + `,"issues":[` + strings.Join(issues, ",") + `]}`))
	}))
	c.batchSize = 2

	got, err := c.Issues(context.Background(), []string{"AM-1", "AM-2", "AM-3"})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, "acc-42", got["AM-3"].TechResponsibleID)
	assert.EqualValues(t, 2, atomic.LoadInt32(&searches))
}

func TestIssues_BadRequestFallsBackToSingleFetch(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/api/3/search":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"errorMessages":["An issue with key 'AM-9' does not exist"]}`))
		case "/rest/api/3/issue/AM-1":
			_, _ = w.Write([]byte(issueJSON))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	got, err := c.Issues(context.Background(), []string{"AM-1", "AM-9"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, "AM-1")
}

func TestDoJSON_RetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(issueJSON))
	}))
	_, err := c.Issue(context.Background(), "AM-1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestDoJSON_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	_, err := c.Issue(context.Background(), "AM-1")
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusForbidden, serr.Code)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestIssue_EmptyConfig(t *testing.T) {
	c := NewClient(config.Config{Policy: config.DefaultPolicy()}, zerolog.Nop())
	_, err := c.Issue(context.Background(), "AM-1")
	require.Error(t, err)
	_, err = c.Issue(context.Background(), "")
	require.Error(t, err)
}

func TestAccountID(t *testing.T) {
	assert.Equal(t, "a", accountID(json.RawMessage(`{"accountId":"a"}`)))
	assert.Equal(t, "b", accountID(json.RawMessage(`[{"accountId":"b"},{"accountId":"c"}]`)))
	assert.Equal(t, "", accountID(json.RawMessage(`null`)))
	assert.Equal(t, "", accountID(json.RawMessage(`"text"`)))
}
