// Package circlecitest provides an in-memory circleci.Gateway for tests.
package circlecitest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethpandaops/circleboard/pkg/circleci"
)

// Compile-time interface check.
var _ circleci.Gateway = (*Gateway)(nil)

// Gateway serves canned pipelines, workflows and jobs and counts calls.
// Pipeline pages are served in order: the first request (empty token)
// gets PipelinePages[0], a request with token T gets the page registered
// under T in PipelinePagesByToken.
type Gateway struct {
	mu sync.Mutex

	PipelinePages        []circleci.PipelinePage
	PipelinePagesByToken map[string]circleci.PipelinePage
	Workflows            map[string][]circleci.PipelineWorkflow
	Jobs                 map[string][]circleci.WorkflowJob
	Followed             []circleci.FollowedProject

	// Err, when set, is returned by every call.
	Err error
	// FailWorkflowJobs makes ListWorkflowJobs fail for the given workflow ids.
	FailWorkflowJobs map[string]error

	PipelineCalls      int
	WorkflowCalls      map[string]int
	JobCalls           map[string]int
	FollowedCalls      int
	PipelineBranches   []string
	PipelinePageTokens []string
}

// New returns an empty fake gateway.
func New() *Gateway {
	return &Gateway{
		PipelinePagesByToken: make(map[string]circleci.PipelinePage),
		Workflows:            make(map[string][]circleci.PipelineWorkflow),
		Jobs:                 make(map[string][]circleci.WorkflowJob),
		FailWorkflowJobs:     make(map[string]error),
		WorkflowCalls:        make(map[string]int),
		JobCalls:             make(map[string]int),
	}
}

// SetPipelines serves all pipelines in a single page.
func (g *Gateway) SetPipelines(pipelines ...circleci.Pipeline) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.PipelinePages = []circleci.PipelinePage{{Items: pipelines}}
}

// SetErr makes every subsequent call fail with err; nil clears it.
func (g *Gateway) SetErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Err = err
}

// ResetCounts zeroes every call counter.
func (g *Gateway) ResetCounts() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.PipelineCalls = 0
	g.FollowedCalls = 0
	g.WorkflowCalls = make(map[string]int)
	g.JobCalls = make(map[string]int)
	g.PipelineBranches = nil
	g.PipelinePageTokens = nil
}

// TotalWorkflowCalls sums workflow listings across pipelines.
func (g *Gateway) TotalWorkflowCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	total := 0
	for _, n := range g.WorkflowCalls {
		total += n
	}

	return total
}

// TotalJobCalls sums job listings across workflows.
func (g *Gateway) TotalJobCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	total := 0
	for _, n := range g.JobCalls {
		total += n
	}

	return total
}

// ListProjectPipelines implements circleci.Gateway.
func (g *Gateway) ListProjectPipelines(
	_ context.Context, _, branch, pageToken string,
) (*circleci.PipelinePage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.PipelineCalls++
	g.PipelineBranches = append(g.PipelineBranches, branch)
	g.PipelinePageTokens = append(g.PipelinePageTokens, pageToken)

	if g.Err != nil {
		return nil, g.Err
	}

	if pageToken == "" {
		if len(g.PipelinePages) == 0 {
			return &circleci.PipelinePage{}, nil
		}

		page := g.PipelinePages[0]

		return &page, nil
	}

	page, ok := g.PipelinePagesByToken[pageToken]
	if !ok {
		return nil, fmt.Errorf("unknown page token %q", pageToken)
	}

	return &page, nil
}

// ListPipelineWorkflows implements circleci.Gateway.
func (g *Gateway) ListPipelineWorkflows(
	_ context.Context, pipelineID, _ string,
) (*circleci.WorkflowPage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.WorkflowCalls[pipelineID]++

	if g.Err != nil {
		return nil, g.Err
	}

	return &circleci.WorkflowPage{Items: g.Workflows[pipelineID]}, nil
}

// ListWorkflowJobs implements circleci.Gateway.
func (g *Gateway) ListWorkflowJobs(
	_ context.Context, workflowID, _ string,
) (*circleci.JobPage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.JobCalls[workflowID]++

	if g.Err != nil {
		return nil, g.Err
	}

	if err := g.FailWorkflowJobs[workflowID]; err != nil {
		return nil, err
	}

	return &circleci.JobPage{Items: g.Jobs[workflowID]}, nil
}

// ListFollowedProjects implements circleci.Gateway.
func (g *Gateway) ListFollowedProjects(
	_ context.Context,
) ([]circleci.FollowedProject, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.FollowedCalls++

	if g.Err != nil {
		return nil, g.Err
	}

	return g.Followed, nil
}
