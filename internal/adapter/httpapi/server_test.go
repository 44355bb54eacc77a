package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotcron/internal/jobs"
	"hotcron/internal/platform/logger"
	"hotcron/internal/shared"
)

type fakeService struct {
	snaps     []jobs.Snapshot
	reloadErr error
	reloads   int
	triggered []int
}

func (f *fakeService) Snapshots() []jobs.Snapshot { return f.snaps }

func (f *fakeService) Reload(context.Context) error {
	f.reloads++
	return f.reloadErr
}

func (f *fakeService) TriggerJob(index int) error {
	if index >= len(f.snaps) {
		return shared.MarkKind(fmt.Errorf("job %d", index), shared.KindNotFound)
	}
	if !f.snaps[index].Armed {
		return shared.MarkKind(errors.New("invalid schedule"), shared.KindValidation)
	}
	f.triggered = append(f.triggered, index)
	return nil
}

func setup(t *testing.T) (*fakeService, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := &fakeService{snaps: []jobs.Snapshot{
		{Index: 0, ScheduleParams: "* * * * *", CommandToExecute: "echo ciao", Armed: true},
		{Index: 1, ScheduleParams: "bogus", CommandToExecute: "echo never", LastResultOutput: "invalid schedule"},
	}}
	states := func() map[string]string { return map[string]string{"telegram": "closed"} }
	return svc, New(svc, states, logger.Discard()).Router()
}

func do(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	_, r := setup(t)
	w := do(r, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status   string            `json:"status"`
		Jobs     int               `json:"jobs"`
		Channels map[string]string `json:"channels"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 2, body.Jobs)
	assert.Equal(t, "closed", body.Channels["telegram"])
}

func TestListJobs(t *testing.T) {
	_, r := setup(t)
	w := do(r, http.MethodGet, "/jobs")
	require.Equal(t, http.StatusOK, w.Code)

	var got []jobs.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "echo ciao", got[0].CommandToExecute)
	assert.Equal(t, "invalid schedule", got[1].LastResultOutput)
}

func TestReload(t *testing.T) {
	svc, r := setup(t)
	w := do(r, http.MethodPost, "/reload")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, svc.reloads)

	svc.reloadErr = shared.ErrReloadCanceled
	w = do(r, http.MethodPost, "/reload")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "reload canceled")
}

func TestRunJob(t *testing.T) {
	tests := []struct {
		name string
		path string
		code int
	}{
		{"armed", "/jobs/0/run", http.StatusAccepted},
		{"unarmed", "/jobs/1/run", http.StatusConflict},
		{"unknown", "/jobs/9/run", http.StatusNotFound},
		{"not a number", "/jobs/x/run", http.StatusBadRequest},
	}
	svc, r := setup(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, tt.path)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}
	assert.Equal(t, []int{0}, svc.triggered)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusOf(context.Canceled))
	assert.Equal(t, http.StatusInternalServerError, statusOf(errors.New("boom")))
}
