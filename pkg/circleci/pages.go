package circleci

import "context"

// AllPipelineWorkflows follows the workflow listing of a pipeline until
// the API stops returning a continuation token.
func AllPipelineWorkflows(
	ctx context.Context, gw Gateway, pipelineID string,
) ([]PipelineWorkflow, error) {
	return collectPages(func(token string) ([]PipelineWorkflow, string, error) {
		page, err := gw.ListPipelineWorkflows(ctx, pipelineID, token)
		if err != nil {
			return nil, "", err
		}

		return page.Items, page.NextPageToken, nil
	})
}

// AllWorkflowJobs follows the job listing of a workflow until the API
// stops returning a continuation token.
func AllWorkflowJobs(
	ctx context.Context, gw Gateway, workflowID string,
) ([]WorkflowJob, error) {
	return collectPages(func(token string) ([]WorkflowJob, string, error) {
		page, err := gw.ListWorkflowJobs(ctx, workflowID, token)
		if err != nil {
			return nil, "", err
		}

		return page.Items, page.NextPageToken, nil
	})
}

// collectPages requests pages until the continuation token is empty or
// repeats one already followed.
func collectPages[T any](
	fetch func(token string) ([]T, string, error),
) ([]T, error) {
	var (
		items []T
		token string
		seen  = make(map[string]struct{}, 4)
	)

	for {
		page, next, err := fetch(token)
		if err != nil {
			return nil, err
		}

		items = append(items, page...)

		if next == "" {
			return items, nil
		}

		if _, ok := seen[next]; ok {
			return items, nil
		}

		seen[next] = struct{}{}
		token = next
	}
}
