package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/HamedShams/manager-am/internal/config"
	"github.com/HamedShams/manager-am/internal/domain"
	"github.com/HamedShams/manager-am/internal/repo"
	"github.com/HamedShams/manager-am/internal/services"
	"github.com/HamedShams/manager-am/internal/workload"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	rep      *workload.Report
	err      error
	gotInput services.AssignmentInput
	gotStaff int64
	deleted  []int64
	triggers []string
	queueErr error
	lastRun  domain.JobRun
	mu       sync.Mutex
}

func (f *fakeService) WorkloadReport(ctx context.Context) (*workload.Report, error) {
	return f.rep, f.err
}

func (f *fakeService) MemberWorkload(ctx context.Context, id int64) (workload.MemberSchedule, error) {
	if f.err != nil {
		return workload.MemberSchedule{}, f.err
	}
	m, ok := f.rep.Member(id)
	if !ok {
		return m, repo.ErrNotFound
	}
	return m, nil
}

func (f *fakeService) CreateAssignment(ctx context.Context, staffID int64, in services.AssignmentInput) (domain.ManualAssignment, error) {
	f.gotStaff, f.gotInput = staffID, in
	if f.err != nil {
		return domain.ManualAssignment{}, f.err
	}
	return domain.ManualAssignment{ID: 7, StaffID: staffID, Description: in.Description, Hours: in.Hours, StartDate: in.StartDate, EndDate: in.EndDate}, nil
}

func (f *fakeService) DeleteAssignment(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return f.err
}

func (f *fakeService) DeactivateStaff(ctx context.Context, id int64) error { return f.err }

func (f *fakeService) QueueSnapshot(trigger string) error {
	f.triggers = append(f.triggers, trigger)
	return f.queueErr
}

func (f *fakeService) LastRun(ctx context.Context) (domain.JobRun, error) {
	if f.err != nil {
		return domain.JobRun{}, f.err
	}
	return f.lastRun, nil
}

func newTestRouter(svc *fakeService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(config.Config{AppEnv: "test"}, zerolog.Nop(), svc)
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

func testReport() *workload.Report {
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	weeks := workload.Calendar(now, 1)
	return &workload.Report{
		RunID:       "r1",
		GeneratedAt: now,
		Weeks:       weeks,
		Members: []workload.MemberSchedule{{
			StaffID: 3, Name: "Ana", Capacity: 40,
			Weeks: []workload.WeekLoad{{Week: weeks[0], TotalLoad: 20, Utilization: 50, Details: []workload.Detail{}}},
		}},
		Overflow:          []workload.Overflow{},
		UnassignedSupport: []workload.SupportDemand{},
	}
}

func TestHealthz(t *testing.T) {
	w := do(newTestRouter(&fakeService{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestWorkload(t *testing.T) {
	w := do(newTestRouter(&fakeService{rep: testReport()}), http.MethodGet, "/workload", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "r1", body["run_id"])
	members := body["members"].([]any)
	require.Len(t, members, 1)
	week := members[0].(map[string]any)["weeks"].([]any)[0].(map[string]any)
	assert.EqualValues(t, 50, week["utilization"])
	assert.Equal(t, []any{}, week["details"])
	assert.Equal(t, []any{}, body["overflow"])
}

func TestWorkload_Errors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("x: %w", workload.ErrRosterConflict), http.StatusConflict},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		w := do(newTestRouter(&fakeService{err: c.err}), http.MethodGet, "/workload", "")
		assert.Equal(t, c.code, w.Code, c.err.Error())
	}
}

func TestMemberWorkload(t *testing.T) {
	r := newTestRouter(&fakeService{rep: testReport()})
	w := do(r, http.MethodGet, "/workload/members/3", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Ana"`)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/workload/members/4", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/workload/members/abc", "").Code)
}

func TestCreateAssignment(t *testing.T) {
	svc := &fakeService{}
	r := newTestRouter(svc)
	w := do(r, http.MethodPost, "/admin/staff/3/assignments",
		`{"description":"Formación","hours":12,"start_date":"2026-10-12","end_date":"2026-10-16"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, int64(3), svc.gotStaff)
	assert.Equal(t, 12.0, svc.gotInput.Hours)
	assert.Equal(t, 16, svc.gotInput.EndDate.Day())
	assert.JSONEq(t, `{"id":7,"staff_id":3,"description":"Formación","hours":12,"start_date":"2026-10-12","end_date":"2026-10-16"}`, w.Body.String())
}

func TestCreateAssignment_BadInput(t *testing.T) {
	r := newTestRouter(&fakeService{})
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/admin/staff/3/assignments", `{"description":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/admin/staff/3/assignments",
		`{"description":"x","hours":1,"start_date":"12/10/2026","end_date":"2026-10-16"}`).Code)

	r = newTestRouter(&fakeService{err: &services.ValidationError{Msg: "staff 3 is inactive"}})
	w := do(r, http.MethodPost, "/admin/staff/3/assignments",
		`{"description":"x","hours":1,"start_date":"2026-10-12","end_date":"2026-10-16"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "inactive")
}

func TestDeleteAssignmentAndDeactivate(t *testing.T) {
	svc := &fakeService{}
	r := newTestRouter(svc)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/admin/assignments/9", "").Code)
	assert.Equal(t, []int64{9}, svc.deleted)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/admin/staff/3/deactivate", "").Code)

	r = newTestRouter(&fakeService{err: repo.ErrNotFound})
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/admin/assignments/9", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/admin/staff/3/deactivate", "").Code)
}

func TestSnapshot_Queued(t *testing.T) {
	svc := &fakeService{}
	w := do(newTestRouter(svc), http.MethodPost, "/admin/snapshot", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"status":"queued"}`, w.Body.String())
	assert.Equal(t, []string{"manual"}, svc.triggers)
}

func TestSnapshot_ConflictWhenLockHeld(t *testing.T) {
	svc := &fakeService{queueErr: services.ErrSnapshotRunning}
	w := do(newTestRouter(svc), http.MethodPost, "/admin/snapshot", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already running")

	svc = &fakeService{queueErr: errors.New("snapshot lock: conn refused")}
	assert.Equal(t, http.StatusInternalServerError, do(newTestRouter(svc), http.MethodPost, "/admin/snapshot", "").Code)
}

func TestLastRun(t *testing.T) {
	started := time.Date(2026, 10, 12, 7, 0, 0, 0, time.UTC)
	finished := started.Add(40 * time.Second)
	svc := &fakeService{lastRun: domain.JobRun{
		ID: 4, Kind: "snapshot", Trigger: "cron", RunID: "r1",
		StartedAt: started, FinishedAt: &finished, Status: domain.JobSucceeded, Rows: 24,
	}}
	w := do(newTestRouter(svc), http.MethodGet, "/admin/last-run", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":4,"kind":"snapshot","trigger":"cron","run_id":"r1",
		"started_at":"2026-10-12T07:00:00Z","finished_at":"2026-10-12T07:00:40Z",
		"status":"success","rows":24}`, w.Body.String())

	w = do(newTestRouter(&fakeService{err: repo.ErrNotFound}), http.MethodGet, "/admin/last-run", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
