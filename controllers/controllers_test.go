package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dbaccountsync/models"
	"dbaccountsync/pkg/errs"
	"dbaccountsync/services/accountsync"
	"dbaccountsync/services/classification"
	"dbaccountsync/services/connection"
	"dbaccountsync/services/permission"
	"dbaccountsync/services/task"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSync struct {
	accountsync.Service
	fleetIDs []uint
}

func (f *fakeSync) SyncAccounts(_ context.Context, id uint, syncType, _ string) (*accountsync.Outcome, error) {
	switch id {
	case 1:
		return &accountsync.Outcome{InstanceID: 1, InstanceName: "mysql-prod", Status: models.SyncStatusCompleted}, nil
	case 2:
		return &accountsync.Outcome{InstanceID: 2, Status: models.SyncStatusFailed, Error: "connection refused"},
			fmt.Errorf("%w: connection refused", errs.ErrConnectFailed)
	}
	return nil, fmt.Errorf("%w: instance %d", errs.ErrNotFound, id)
}

func (f *fakeSync) SyncFleet(_ context.Context, ids []uint, _ *uint) (*models.SyncSession, error) {
	f.fleetIDs = ids
	return &models.SyncSession{SessionID: "s-1", Status: models.SyncStatusCompleted, TotalInstances: 3, SuccessfulInstances: 3}, nil
}

func (f *fakeSync) GetSession(_ context.Context, id string) (*models.SyncSession, error) {
	if id != "s-1" {
		return nil, fmt.Errorf("%w: session %s", errs.ErrNotFound, id)
	}
	return &models.SyncSession{SessionID: id}, nil
}

func (f *fakeSync) CancelSession(_ context.Context, id string) error {
	return fmt.Errorf("%w: session %s is completed", errs.ErrValidationFailed, id)
}

func (f *fakeSync) TestConnection(_ context.Context, id uint) (*connection.TestResult, error) {
	return &connection.TestResult{Success: id == 1, MainVersion: "8.0"}, nil
}

type fakePermission struct{}

func (fakePermission) GetPermissions(_ context.Context, id uint, username string) (*permission.View, error) {
	if username != "app@%" {
		return nil, fmt.Errorf("%w: account %s", errs.ErrNotFound, username)
	}
	return &permission.View{InstanceID: id, Username: username, IsActive: true}, nil
}

type fakeExecutor struct {
	monitor *task.RunMonitor
}

func (f *fakeExecutor) ExecuteTask(_ context.Context, id uint, syncType string) (*task.RunInfo, error) {
	if id == 9 {
		return &task.RunInfo{RunID: "r-9", Status: models.TaskStatusTimeout}, fmt.Errorf("%w: slow", errs.ErrTaskTimeout)
	}
	f.monitor.Start("r-1", id, "nightly", syncType)
	f.monitor.Finish("r-1", models.TaskStatusSuccess, "ok", 2, 2, 0, "s-1")
	run, _ := f.monitor.GetRun("r-1")
	return run, nil
}

func (f *fakeExecutor) RunDueTasks(context.Context, []models.Task, string) error { return nil }

func (f *fakeExecutor) Monitor() *task.RunMonitor { return f.monitor }

type fakeClassification struct {
	classification.Service
	scope classification.Scope
}

func (f *fakeClassification) AutoClassify(_ context.Context, scope classification.Scope) (*models.ClassificationBatch, error) {
	f.scope = scope
	return &models.ClassificationBatch{BatchID: "b-1", Status: models.BatchStatusCompleted, TotalMatches: 4}, nil
}

func (f *fakeClassification) CountMatches(_ context.Context, id uint) (int, error) {
	if id != 7 {
		return 0, fmt.Errorf("%w: rule %d", errs.ErrNotFound, id)
	}
	return 12, nil
}

func (f *fakeClassification) Assign(_ context.Context, accountID, classificationID uint, _ *uint, notes string) (*models.AccountClassificationAssignment, error) {
	return &models.AccountClassificationAssignment{AccountID: accountID, ClassificationID: classificationID, AssignmentType: models.AssignmentTypeManual, Notes: notes, IsActive: true}, nil
}

func (f *fakeClassification) Unassign(context.Context, uint, uint) error { return nil }

func newTestRouter(t *testing.T) (*gin.Engine, *fakeSync, *fakeClassification) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := &fakeSync{}
	cls := &fakeClassification{}
	monitor := task.NewRunMonitor(time.Hour)
	t.Cleanup(monitor.Stop)

	SetSyncService(s)
	SetPermissionService(fakePermission{})
	SetTaskExecutor(&fakeExecutor{monitor: monitor})
	SetClassificationService(cls)
	return NewRouter(), s, cls
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRoutes_StatusCodes(t *testing.T) {
	r, _, _ := newTestRouter(t)
	tests := []struct {
		name, method, path, body string
		want                     int
		contains                 string
	}{
		{"sync ok", http.MethodPost, "/api/instances/1/sync", "", http.StatusOK, "mysql-prod"},
		{"sync unreachable keeps outcome", http.MethodPost, "/api/instances/2/sync", "", http.StatusBadGateway, "connection refused"},
		{"sync unknown instance", http.MethodPost, "/api/instances/5/sync", "", http.StatusNotFound, "instance 5"},
		{"sync bad id", http.MethodPost, "/api/instances/abc/sync", "", http.StatusBadRequest, "invalid id"},
		{"batch without body", http.MethodPost, "/api/sync/batch", "", http.StatusOK, "s-1"},
		{"batch bad ids", http.MethodPost, "/api/sync/batch", `{"instance_ids":[0]}`, http.StatusBadRequest, "validation failed"},
		{"batch malformed", http.MethodPost, "/api/sync/batch", `{"instance_ids":"x"}`, http.StatusBadRequest, "error"},
		{"session found", http.MethodGet, "/api/sync/sessions/s-1", "", http.StatusOK, `"session_id":"s-1"`},
		{"session missing", http.MethodGet, "/api/sync/sessions/nope", "", http.StatusNotFound, "nope"},
		{"cancel finished session", http.MethodPost, "/api/sync/sessions/s-1/cancel", "", http.StatusBadRequest, "completed"},
		{"test connection ok", http.MethodPost, "/api/instances/1/test-connection", "", http.StatusOK, `"success":true`},
		{"test connection failure is reported", http.MethodPost, "/api/instances/3/test-connection", "", http.StatusOK, `"success":false`},
		{"permissions", http.MethodGet, "/api/instances/1/permissions?username=app@%25", "", http.StatusOK, `"username":"app@%"`},
		{"permissions need username", http.MethodGet, "/api/instances/1/permissions", "", http.StatusBadRequest, "username"},
		{"permissions unknown account", http.MethodGet, "/api/instances/1/permissions?username=ghost", "", http.StatusNotFound, "ghost"},
		{"execute task", http.MethodPost, "/api/tasks/3/execute", "", http.StatusOK, "nightly"},
		{"execute task timeout", http.MethodPost, "/api/tasks/9/execute", "", http.StatusGatewayTimeout, "r-9"},
		{"unknown run", http.MethodGet, "/api/tasks/runs/nope", "", http.StatusNotFound, "nope"},
		{"auto classify", http.MethodPost, "/api/classifications/auto", `{"instance_id":3}`, http.StatusOK, "b-1"},
		{"rule matches", http.MethodGet, "/api/classification-rules/7/matches", "", http.StatusOK, `"matches":12`},
		{"rule missing", http.MethodGet, "/api/classification-rules/8/matches", "", http.StatusNotFound, "rule 8"},
		{"assign", http.MethodPost, "/api/classifications/2/assignments", `{"account_id":42,"notes":"dba"}`, http.StatusCreated, `"assignment_type":"manual"`},
		{"assign needs account", http.MethodPost, "/api/classifications/2/assignments", `{}`, http.StatusBadRequest, "AccountID"},
		{"unassign", http.MethodDelete, "/api/classifications/2/assignments", `{"account_id":42}`, http.StatusOK, "unassigned"},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK, "go_goroutines"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), tt.contains)
		})
	}
}

func TestSyncBatch_PassesInstanceIDs(t *testing.T) {
	r, s, _ := newTestRouter(t)
	w := do(r, http.MethodPost, "/api/sync/batch", `{"instance_ids":[4,5]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []uint{4, 5}, s.fleetIDs)

	w = do(r, http.MethodPost, "/api/sync/batch", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, s.fleetIDs)
}

func TestAutoClassify_Scope(t *testing.T) {
	r, _, cls := newTestRouter(t)

	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/classifications/auto", "").Code)
	assert.Nil(t, cls.scope.InstanceID)
	assert.Equal(t, models.BatchTypeManual, cls.scope.BatchType)

	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/classifications/auto", `{"instance_id":3}`).Code)
	require.NotNil(t, cls.scope.InstanceID)
	assert.Equal(t, uint(3), *cls.scope.InstanceID)
}

func TestTaskRuns_Listed(t *testing.T) {
	r, _, _ := newTestRouter(t)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/tasks/3/execute", "").Code)

	w := do(r, http.MethodGet, "/api/tasks/runs?page=1&page_size=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data       []task.RunInfo     `json:"data"`
		Pagination PaginationMetadata `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "s-1", body.Data[0].SessionID)
	assert.Equal(t, 1, body.Pagination.Total)
	assert.Equal(t, 5, body.Pagination.PageSize)

	w = do(r, http.MethodGet, "/api/tasks/runs/r-1", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
