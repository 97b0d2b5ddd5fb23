package gitlab

import (
	"context"
	"encoding/base64"
	"errors"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// newTestClient starts a fake API server and returns a client pointed at it
// with backoff sleeps disabled.
func newTestClient(t *testing.T, handler http.Handler) (*HTTPClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewHTTPClient(srv.URL, Options{
		Token:           "test-token",
		Timeout:         5 * time.Second,
		MaxRetries:      2,
		MaxLogSizeMB:    10,
		LogContextLines: 5,
	})
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c, srv
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("encoding response: %v", err)
	}
}

func TestGetProject(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v4/projects/42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("PRIVATE-TOKEN"); got != "test-token" {
			t.Errorf("missing auth token, got %q", got)
		}
		writeJSON(t, w, map[string]any{
			"id": 42, "name": "widget", "path_with_namespace": "acme/widget",
			"web_url": "https://git.example.com/acme/widget", "default_branch": "main",
		})
	}))

	project, err := c.GetProject(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if project.ID != 42 || project.PathWithNamespace != "acme/widget" {
		t.Errorf("unexpected project: %+v", project)
	}
}

func TestGetProject_NotFoundIsImmediate(t *testing.T) {
	var calls int
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"404 Project Not Found"}`))
	}))

	_, err := c.GetProject(context.Background(), 42)
	if !IsNotFound(err) {
		t.Fatalf("expected not-found APIError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("404 must not be retried, got %d calls", calls)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if !strings.Contains(apiErr.ResponseData, "Project Not Found") {
		t.Errorf("response body not preserved: %q", apiErr.ResponseData)
	}
}

func TestGetProject_ForbiddenIsImmediate(t *testing.T) {
	var calls int
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := c.GetProject(context.Background(), 42)
	if !IsForbidden(err) {
		t.Fatalf("expected forbidden APIError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("403 must not be retried, got %d calls", calls)
	}
}

func TestDo_RetriesRateLimit(t *testing.T) {
	var calls int
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(t, w, map[string]any{"id": 1})
	}))

	if _, err := c.GetProject(context.Background(), 1); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestDo_ServerErrorExhaustsRetries(t *testing.T) {
	var calls int
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.GetProject(context.Background(), 1)
	if err == nil {
		t.Fatal("expected an error after retries exhausted")
	}
	// maxRetries=2 means 3 total attempts.
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestGetFailedJobs_FiltersByStatus(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{
			{"id": 1, "name": "build", "status": "success"},
			{"id": 2, "name": "test", "status": "failed", "stage": "test"},
			{"id": 3, "name": "lint", "status": "canceled"},
		})
	}))

	failed, err := c.GetFailedJobs(context.Background(), 1, 100)
	if err != nil {
		t.Fatalf("GetFailedJobs: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != 2 {
		t.Errorf("expected only job 2, got %+v", failed)
	}
}

func TestGetPipelineJobs_IncludeRetried(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("include_retried") != "true" {
			t.Errorf("expected include_retried=true, got %q", r.URL.RawQuery)
		}
		writeJSON(t, w, []map[string]any{})
	}))

	jobs, err := c.GetPipelineJobs(context.Background(), 1, 100, true)
	if err != nil {
		t.Fatalf("GetPipelineJobs: %v", err)
	}
	if jobs == nil {
		t.Error("expected empty slice, not nil")
	}
}

func TestGetJobLog_MissingTraceReturnsSentinel(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	log, err := c.GetJobLog(context.Background(), 1, 2, "failed")
	if err != nil {
		t.Fatalf("GetJobLog: %v", err)
	}
	if log != LogUnavailable {
		t.Errorf("expected sentinel string, got %q", log)
	}
}

func TestGetJobLog_ProcessesTrace(t *testing.T) {
	trace := "step one\nstep two\nerror: compilation terminated\nstep four"
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, trace)
	}))

	log, err := c.GetJobLog(context.Background(), 1, 2, "failed")
	if err != nil {
		t.Fatalf("GetJobLog: %v", err)
	}
	if !strings.Contains(log, "error: compilation terminated") {
		t.Errorf("error line missing from processed log: %q", log)
	}
	if !strings.Contains(log, "   3: ") {
		t.Errorf("expected numbered context lines, got %q", log)
	}
}

func TestGetCIConfig_ProbesFilenames(t *testing.T) {
	content := base64.StdEncoding.EncodeToString([]byte("stages:\n  - build\n"))
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, ".gitlab-ci.yml") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(t, w, map[string]any{"file_name": ".gitlab-ci.yaml", "content": content})
	}))

	cfg, err := c.GetCIConfig(context.Background(), 1, "main")
	if err != nil {
		t.Fatalf("GetCIConfig: %v", err)
	}
	if !strings.Contains(cfg, "stages:") {
		t.Errorf("unexpected config content: %q", cfg)
	}
}

func TestGetCIConfig_NoneFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.GetCIConfig(context.Background(), 1, "main")
	if !IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestGetProjectFiles_Paginates(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		switch page {
		case "1":
			entries := make([]map[string]any, 100)
			for i := range entries {
				entries[i] = map[string]any{"name": fmt.Sprintf("file-%d", i), "type": "blob"}
			}
			writeJSON(t, w, entries)
		default:
			writeJSON(t, w, []map[string]any{{"name": "last", "type": "blob"}})
		}
	}))

	entries, err := c.GetProjectFiles(context.Background(), 1, "main", "")
	if err != nil {
		t.Fatalf("GetProjectFiles: %v", err)
	}
	if len(entries) != 101 {
		t.Errorf("expected 101 entries across pages, got %d", len(entries))
	}
}

func TestGetProjectInfo_OpportunisticPipeline(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v4/projects/7":
			writeJSON(t, w, map[string]any{"id": 7, "name": "widget"})
		case r.URL.Path == "/api/v4/projects/7/pipelines":
			writeJSON(t, w, []map[string]any{{"id": 900, "status": "failed", "ref": "main"}})
		case r.URL.Path == "/api/v4/projects/7/pipelines/900/jobs":
			writeJSON(t, w, []map[string]any{{"id": 1, "status": "failed", "name": "test"}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	info, err := c.GetProjectInfo(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetProjectInfo: %v", err)
	}
	if info.LatestPipeline == nil || info.LatestPipeline.ID != 900 {
		t.Fatalf("expected latest pipeline 900, got %+v", info.LatestPipeline)
	}
	if len(info.FailedJobs) != 1 {
		t.Errorf("expected 1 failed job, got %d", len(info.FailedJobs))
	}
}

func TestGetProjectInfo_PipelineLookupFailureIsNotFatal(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v4/projects/7" {
			writeJSON(t, w, map[string]any{"id": 7, "name": "widget"})
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))

	info, err := c.GetProjectInfo(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetProjectInfo: %v", err)
	}
	if info.LatestPipeline != nil {
		t.Errorf("expected nil latest pipeline, got %+v", info.LatestPipeline)
	}
}

func TestHealthCheck(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v4/version" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeJSON(t, w, map[string]any{"version": "16.9.0"})
	}))

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}
