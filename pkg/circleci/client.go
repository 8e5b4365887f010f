package circleci

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethpandaops/circleboard/pkg/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://circleci.com"
	defaultTimeout = 15 * time.Second

	// maxErrorBody bounds how much of an error response is kept.
	maxErrorBody = 4096
)

// ErrUnauthorized is returned when the API rejects the token.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response from the CircleCI API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("circleci API error: %d %s: %s",
		e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Unwrap lets callers detect 401 responses with errors.Is.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}

	return nil
}

// Gateway lists pipelines, workflows and jobs from CircleCI. Every list
// operation returns a single page; callers drive pagination.
type Gateway interface {
	ListProjectPipelines(
		ctx context.Context, slug, branch, pageToken string,
	) (*PipelinePage, error)
	ListPipelineWorkflows(
		ctx context.Context, pipelineID, pageToken string,
	) (*WorkflowPage, error)
	ListWorkflowJobs(
		ctx context.Context, workflowID, pageToken string,
	) (*JobPage, error)
	ListFollowedProjects(ctx context.Context) ([]FollowedProject, error)
}

// TokenFunc resolves the API token at request time so a token stored
// after startup is picked up without rebuilding the client.
type TokenFunc func(ctx context.Context) (string, error)

// Compile-time interface check.
var _ Gateway = (*Client)(nil)

// Client is an HTTP implementation of Gateway.
type Client struct {
	log     logrus.FieldLogger
	baseURL string
	token   TokenFunc
	limiter *rate.Limiter
	http    *http.Client
}

// NewClient creates a CircleCI API client. A zero requests-per-second
// setting disables client-side throttling.
func NewClient(
	log logrus.FieldLogger,
	cfg *config.CircleCIConfig,
	token TokenFunc,
) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := defaultTimeout
	if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
		timeout = d
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		log:     log.WithField("component", "circleci"),
		baseURL: baseURL,
		token:   token,
		limiter: limiter,
		http:    &http.Client{Timeout: timeout},
	}
}

// ListProjectPipelines returns one page of a project's pipelines on the
// given branch, most recent first.
func (c *Client) ListProjectPipelines(
	ctx context.Context, slug, branch, pageToken string,
) (*PipelinePage, error) {
	q := url.Values{}
	if branch != "" {
		q.Set("branch", branch)
	}

	if pageToken != "" {
		q.Set("page-token", pageToken)
	}

	var page PipelinePage
	if err := c.get(ctx, "/api/v2/project/"+escapeSlug(slug)+"/pipeline", q, &page); err != nil {
		return nil, fmt.Errorf("listing pipelines for %s: %w", slug, err)
	}

	return &page, nil
}

// ListPipelineWorkflows returns one page of a pipeline's workflows.
func (c *Client) ListPipelineWorkflows(
	ctx context.Context, pipelineID, pageToken string,
) (*WorkflowPage, error) {
	var page WorkflowPage
	if err := c.get(ctx, "/api/v2/pipeline/"+url.PathEscape(pipelineID)+"/workflow",
		pageQuery(pageToken), &page); err != nil {
		return nil, fmt.Errorf("listing workflows for pipeline %s: %w", pipelineID, err)
	}

	return &page, nil
}

// ListWorkflowJobs returns one page of a workflow's jobs.
func (c *Client) ListWorkflowJobs(
	ctx context.Context, workflowID, pageToken string,
) (*JobPage, error) {
	var page JobPage
	if err := c.get(ctx, "/api/v2/workflow/"+url.PathEscape(workflowID)+"/job",
		pageQuery(pageToken), &page); err != nil {
		return nil, fmt.Errorf("listing jobs for workflow %s: %w", workflowID, err)
	}

	return &page, nil
}

// ListFollowedProjects returns the projects followed by the token owner.
func (c *Client) ListFollowedProjects(
	ctx context.Context,
) ([]FollowedProject, error) {
	var projects []FollowedProject
	if err := c.get(ctx, "/api/v1.1/projects", nil, &projects); err != nil {
		return nil, fmt.Errorf("listing followed projects: %w", err)
	}

	return projects, nil
}

func (c *Client) get(
	ctx context.Context, path string, q url.Values, target any,
) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return fmt.Errorf("resolving token: %w", err)
		}

		if token != "" {
			req.Header.Set("Circle-Token", token)
		}
	}

	req.Header.Set("Accept", "application/json")

	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	c.log.WithField("path", path).
		WithField("status", resp.StatusCode).
		WithField("duration", time.Since(start).Round(time.Millisecond)).
		Debug("CircleCI request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

func pageQuery(pageToken string) url.Values {
	if pageToken == "" {
		return nil
	}

	return url.Values{"page-token": {pageToken}}
}

// escapeSlug escapes each segment of a "vcs/org/repo" project slug while
// keeping the separators intact.
func escapeSlug(slug string) string {
	parts := strings.Split(slug, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}

	return strings.Join(parts, "/")
}
