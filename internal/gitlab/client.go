// Package gitlab wraps the source-control REST API used to fetch pipeline,
// job, log and repository data for failure analysis.
package gitlab

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kiranshivaraju/pipehunter/pkg/models"
)

// LogUnavailable is returned by GetJobLog when the job has no trace yet.
const LogUnavailable = "Log not available or job has not started yet."

// Filenames probed by GetCIConfig, in order.
var ciConfigFilenames = []string{".gitlab-ci.yml", ".gitlab-ci.yaml", "ci.yml", "ci.yaml"}

// Client is the interface for the source-control API.
type Client interface {
	GetProject(ctx context.Context, projectID int64) (models.Project, error)
	GetProjectInfo(ctx context.Context, projectID int64) (models.ProjectInfo, error)
	GetPipeline(ctx context.Context, projectID, pipelineID int64) (models.Pipeline, error)
	GetPipelineJobs(ctx context.Context, projectID, pipelineID int64, includeRetried bool) ([]models.Job, error)
	GetFailedJobs(ctx context.Context, projectID, pipelineID int64) ([]models.Job, error)
	GetJob(ctx context.Context, projectID, jobID int64) (models.Job, error)
	GetJobLog(ctx context.Context, projectID, jobID int64, jobStatus string) (string, error)
	GetCIConfig(ctx context.Context, projectID int64, ref string) (string, error)
	GetProjectFiles(ctx context.Context, projectID int64, ref, path string) ([]models.TreeEntry, error)
	GetJobArtifactsInfo(ctx context.Context, projectID, jobID int64) ([]models.Artifact, error)
	SearchProjects(ctx context.Context, query string) ([]models.Project, error)
	HealthCheck(ctx context.Context) error
	Close()
}

// Options tunes the HTTP client.
type Options struct {
	Token           string
	Timeout         time.Duration
	MaxRetries      int
	MaxLogSizeMB    int
	LogContextLines int
}

// HTTPClient implements Client against the REST API v4.
type HTTPClient struct {
	baseURL         string
	token           string
	maxRetries      int
	maxLogSizeMB    int
	logContextLines int
	client          *http.Client

	// sleep is swappable in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewHTTPClient creates a new source-control API client.
func NewHTTPClient(baseURL string, opts Options) *HTTPClient {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:         baseURL,
		token:           opts.Token,
		maxRetries:      opts.MaxRetries,
		maxLogSizeMB:    opts.MaxLogSizeMB,
		logContextLines: opts.LogContextLines,
		client:          &http.Client{Timeout: timeout},
		sleep:           sleepCtx,
	}
}

func (c *HTTPClient) GetProject(ctx context.Context, projectID int64) (models.Project, error) {
	var project models.Project
	path := fmt.Sprintf("/api/v4/projects/%d", projectID)
	if err := c.getJSON(ctx, path, nil, &project); err != nil {
		return models.Project{}, err
	}
	return project, nil
}

// GetProjectInfo fetches the project plus, best effort, its most recent
// pipeline and that pipeline's failed jobs. Failures in the opportunistic
// lookups are swallowed; the project itself is mandatory.
func (c *HTTPClient) GetProjectInfo(ctx context.Context, projectID int64) (models.ProjectInfo, error) {
	project, err := c.GetProject(ctx, projectID)
	if err != nil {
		return models.ProjectInfo{}, err
	}

	info := models.ProjectInfo{Project: project}

	var pipelines []models.Pipeline
	params := url.Values{"per_page": {"1"}, "order_by": {"id"}, "sort": {"desc"}}
	path := fmt.Sprintf("/api/v4/projects/%d/pipelines", projectID)
	if err := c.getJSON(ctx, path, params, &pipelines); err == nil && len(pipelines) > 0 {
		latest := pipelines[0]
		info.LatestPipeline = &latest
		if failed, err := c.GetFailedJobs(ctx, projectID, latest.ID); err == nil {
			info.FailedJobs = failed
		}
	}

	return info, nil
}

func (c *HTTPClient) GetPipeline(ctx context.Context, projectID, pipelineID int64) (models.Pipeline, error) {
	var pipeline models.Pipeline
	path := fmt.Sprintf("/api/v4/projects/%d/pipelines/%d", projectID, pipelineID)
	if err := c.getJSON(ctx, path, nil, &pipeline); err != nil {
		return models.Pipeline{}, err
	}
	return pipeline, nil
}

func (c *HTTPClient) GetPipelineJobs(ctx context.Context, projectID, pipelineID int64, includeRetried bool) ([]models.Job, error) {
	params := url.Values{"per_page": {"100"}}
	if includeRetried {
		params.Set("include_retried", "true")
	}

	var jobs []models.Job
	path := fmt.Sprintf("/api/v4/projects/%d/pipelines/%d/jobs", projectID, pipelineID)
	if err := c.getJSON(ctx, path, params, &jobs); err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	return jobs, nil
}

// GetFailedJobs returns the pipeline's jobs filtered to failed status.
func (c *HTTPClient) GetFailedJobs(ctx context.Context, projectID, pipelineID int64) ([]models.Job, error) {
	jobs, err := c.GetPipelineJobs(ctx, projectID, pipelineID, false)
	if err != nil {
		return nil, err
	}

	failed := []models.Job{}
	for _, job := range jobs {
		if job.Status == models.PipelineStatusFailed {
			failed = append(failed, job)
		}
	}
	return failed, nil
}

func (c *HTTPClient) GetJob(ctx context.Context, projectID, jobID int64) (models.Job, error) {
	var job models.Job
	path := fmt.Sprintf("/api/v4/projects/%d/jobs/%d", projectID, jobID)
	if err := c.getJSON(ctx, path, nil, &job); err != nil {
		return models.Job{}, err
	}
	return job, nil
}

// GetJobLog fetches the raw trace and reduces it through the log processor.
// A missing trace is not an error: the sentinel LogUnavailable string is
// returned so the caller can record it verbatim.
func (c *HTTPClient) GetJobLog(ctx context.Context, projectID, jobID int64, jobStatus string) (string, error) {
	path := fmt.Sprintf("/api/v4/projects/%d/jobs/%d/trace", projectID, jobID)
	body, err := c.do(ctx, path, nil)
	if err != nil {
		if IsNotFound(err) {
			return LogUnavailable, nil
		}
		return "", err
	}

	return ProcessLog(string(body), c.maxLogSizeMB, c.logContextLines, jobStatus), nil
}

// GetCIConfig probes the well-known CI config filenames and returns the
// first one that exists and parses as YAML.
func (c *HTTPClient) GetCIConfig(ctx context.Context, projectID int64, ref string) (string, error) {
	if ref == "" {
		ref = "main"
	}

	var lastErr error
	for _, filename := range ciConfigFilenames {
		path := fmt.Sprintf("/api/v4/projects/%d/repository/files/%s", projectID, url.PathEscape(filename))
		params := url.Values{"ref": {ref}}

		var file repositoryFile
		if err := c.getJSON(ctx, path, params, &file); err != nil {
			if IsNotFound(err) {
				lastErr = err
				continue
			}
			return "", err
		}

		decoded, err := base64.StdEncoding.DecodeString(file.Content)
		if err != nil {
			return "", fmt.Errorf("decoding %s content: %w", filename, err)
		}

		var parsed map[string]any
		if err := yaml.Unmarshal(decoded, &parsed); err != nil {
			return "", fmt.Errorf("parsing %s: %w", filename, err)
		}

		return string(decoded), nil
	}

	if lastErr != nil {
		return "", lastErr
	}
	return "", &APIError{StatusCode: 404, Message: "no ci config file found"}
}

// GetProjectFiles lists the repository tree at ref/path, following pagination.
func (c *HTTPClient) GetProjectFiles(ctx context.Context, projectID int64, ref, path string) ([]models.TreeEntry, error) {
	const perPage = 100

	entries := []models.TreeEntry{}
	for page := 1; ; page++ {
		params := url.Values{
			"per_page": {strconv.Itoa(perPage)},
			"page":     {strconv.Itoa(page)},
		}
		if ref != "" {
			params.Set("ref", ref)
		}
		if path != "" {
			params.Set("path", path)
		}

		var batch []models.TreeEntry
		apiPath := fmt.Sprintf("/api/v4/projects/%d/repository/tree", projectID)
		if err := c.getJSON(ctx, apiPath, params, &batch); err != nil {
			return nil, err
		}

		entries = append(entries, batch...)
		if len(batch) < perPage {
			return entries, nil
		}
	}
}

func (c *HTTPClient) GetJobArtifactsInfo(ctx context.Context, projectID, jobID int64) ([]models.Artifact, error) {
	job, err := c.GetJob(ctx, projectID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Artifacts == nil {
		return []models.Artifact{}, nil
	}
	return job.Artifacts, nil
}

func (c *HTTPClient) SearchProjects(ctx context.Context, query string) ([]models.Project, error) {
	params := url.Values{"search": {query}, "per_page": {"20"}}

	var projects []models.Project
	if err := c.getJSON(ctx, "/api/v4/projects", params, &projects); err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []models.Project{}
	}
	return projects, nil
}

// HealthCheck verifies the API answers an authenticated version request.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	_, err := c.do(ctx, "/api/v4/version", nil)
	return err
}

// Close releases pooled connections.
func (c *HTTPClient) Close() {
	c.client.CloseIdleConnections()
}

// getJSON performs a retried GET and decodes the response body.
func (c *HTTPClient) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	body, err := c.do(ctx, path, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// do issues one GET with the retry policy: transient network errors, HTTP 429
// and 5xx are retried with 2^attempt seconds backoff up to maxRetries; 404 and
// 403 fail immediately with a typed APIError.
func (c *HTTPClient) do(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}

		body, retryable, err := c.doOnce(ctx, u)
		if err == nil {
			return body, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

func (c *HTTPClient) doOnce(ctx context.Context, u string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, fmt.Errorf("building request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("PRIVATE-TOKEN", c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, classifyError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("reading response body: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, false, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		return nil, false, &APIError{
			StatusCode:   resp.StatusCode,
			Message:      http.StatusText(resp.StatusCode),
			ResponseData: string(data),
		}
	default:
		return nil, true, &APIError{
			StatusCode:   resp.StatusCode,
			Message:      http.StatusText(resp.StatusCode),
			ResponseData: string(data),
		}
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type repositoryFile struct {
	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
	Ref      string `json:"ref"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
