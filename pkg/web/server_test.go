package web

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modstage/modstage/pkg/config"
	"github.com/modstage/modstage/pkg/errors"
	"github.com/modstage/modstage/pkg/filesystem"
	"github.com/modstage/modstage/pkg/paths"
	"github.com/modstage/modstage/pkg/service"
)

// testServer serves the API for a fresh, never-synced staging directory.
func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		Concurrency:  1,
		MaxRetries:   0,
		RetryDelayMS: 1,
		DeployMode:   "link",
	}
	svc := service.New(cfg, paths.New(), filesystem.NewOS())
	srv := httptest.NewServer(NewServer(svc, t.TempDir()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestStatus_NeverSynced(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Contains(t, body["error"], "run sync first")
}

func TestSync_RequiresPost(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Get(srv.URL + "/api/sync")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSync_RequiresURL(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Post(srv.URL+"/api/sync", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Contains(t, body["error"], "collection url")
}

func TestAddLocal_RequiresName(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Post(srv.URL+"/api/add-local", "application/json", strings.NewReader(`{"dir": "x"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTrackSync_UnknownAction(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Post(srv.URL+"/api/track-sync/frobnicate", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTask_Unknown(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Get(srv.URL + "/api/tasks/task-99")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUndeploy_TaskLifecycle(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Post(srv.URL+"/api/undeploy", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := decodeBody(t, resp)
	id, _ := body["task_id"].(string)
	require.NotEmpty(t, id)

	// The staging directory was never synced, so the task fails; poll
	// until it leaves the running state.
	deadline := time.Now().Add(5 * time.Second)
	var task map[string]interface{}
	for time.Now().Before(deadline) {
		resp, err := http.Get(srv.URL + "/api/tasks/" + id)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		task = decodeBody(t, resp)
		if task["status"] == "failed" || task["status"] == "completed" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotNil(t, task)
	assert.Equal(t, "failed", task["status"])
	assert.Contains(t, task["error"], "run sync first")

	// The task list includes it.
	listResp, err := http.Get(srv.URL + "/api/tasks")
	require.NoError(t, err)
	defer listResp.Body.Close()
	var list []map[string]interface{}
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0]["id"])
}

func TestTask_Stream(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Post(srv.URL+"/api/undeploy", "application/json", nil)
	require.NoError(t, err)
	id, _ := decodeBody(t, resp)["task_id"].(string)
	require.NotEmpty(t, id)

	streamResp, err := http.Get(srv.URL + "/api/tasks/" + id + "/stream")
	require.NoError(t, err)
	defer streamResp.Body.Close()
	assert.Equal(t, "text/event-stream", streamResp.Header.Get("Content-Type"))

	// The stream ends with the terminal event once the task fails.
	scanner := bufio.NewScanner(streamResp.Body)
	var sawFailed bool
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "event: failed") {
			sawFailed = true
		}
	}
	assert.True(t, sawFailed, "stream carries the terminal event")
}

func TestWriteError_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"state not found", errors.New(errors.ErrStateNotFound, "x"), http.StatusNotFound},
		{"not found", errors.New(errors.ErrNotFound, "x"), http.StatusNotFound},
		{"manifest missing", errors.New(errors.ErrManifestMissing, "x"), http.StatusNotFound},
		{"invalid input", errors.New(errors.ErrInvalidInput, "x"), http.StatusBadRequest},
		{"rate limited", errors.New(errors.ErrRateLimited, "x"), http.StatusTooManyRequests},
		{"entitlement", errors.New(errors.ErrEntitlement, "x"), http.StatusForbidden},
		{"everything else", errors.New(errors.ErrLocalIO, "x"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}
