package syncer

import (
	"context"
	"time"

	"github.com/ethpandaops/circleboard/pkg/circleci"
	"github.com/ethpandaops/circleboard/pkg/config"
	"github.com/ethpandaops/circleboard/pkg/project"
	"github.com/sirupsen/logrus"
)

// Stats summarizes the work done by one synchronization.
type Stats struct {
	Pipelines        int
	SkippedPipelines int
	// WorkflowListings counts pipelines whose workflows were listed; a
	// listing may span several pages.
	WorkflowListings int
	// JobListings counts workflows whose jobs were listed.
	JobListings int
	Executions  int
}

// WorkflowFetcher merges freshly fetched workflows and jobs into a
// previously persisted workflow mapping.
type WorkflowFetcher struct {
	log              logrus.FieldLogger
	gw               circleci.Gateway
	project          project.TrackedProject
	maxHistory       int
	fetchSleep       time.Duration
	includeBuildJobs bool
}

// NewWorkflowFetcher creates a WorkflowFetcher for one tracked project.
func NewWorkflowFetcher(
	log logrus.FieldLogger,
	gw circleci.Gateway,
	p project.TrackedProject,
	cfg *config.SyncConfig,
) *WorkflowFetcher {
	return &WorkflowFetcher{
		log:              log.WithField("component", "workflow-fetcher"),
		gw:               gw,
		project:          p,
		maxHistory:       cfg.JobExecutionsMaxHistory,
		fetchSleep:       cfg.FetchSleep(),
		includeBuildJobs: p.IncludesBuildJobs(cfg.IncludeBuildJobsOrDefault()),
	}
}

// GetProjectWorkflows returns the updated sync state. previous is never
// modified; on error the partial result is discarded and the caller must
// keep its previous snapshot.
//
// Pipelines are processed sequentially in the order given. A pipeline
// whose updated_at is unchanged, has no active jobs and gained no new
// workflows keeps its cached executions without any job listing. Job
// names the latest pipeline no longer emits are pruned unless still
// active.
func (f *WorkflowFetcher) GetProjectWorkflows(
	ctx context.Context,
	previous project.SyncState,
	pipelines []circleci.Pipeline,
	currentJobs []string,
) (project.SyncState, Stats, error) {
	var stats Stats

	projectWorkflows := previous.Workflows.Clone()

	existing := previous.Pipelines
	if existing == nil {
		existing = projectWorkflows.PipelineStates()
	}

	states := make(project.PipelineStates, len(pipelines))

	current := make(map[string]struct{}, len(currentJobs))
	for _, name := range currentJobs {
		current[name] = struct{}{}
	}

	for _, pipeline := range pipelines {
		stats.Pipelines++

		recorded, ok := existing[pipeline.Number]
		unchangedTimestamp := ok && recorded.UpdatedAt.Equal(pipeline.UpdatedAt)

		all, err := circleci.AllPipelineWorkflows(ctx, f.gw, pipeline.ID)
		if err != nil {
			return project.SyncState{}, stats, err
		}

		stats.WorkflowListings++

		workflows := eligibleWorkflows(all)

		hasNewWorkflows := false

		for _, wf := range workflows {
			if !recorded.HasWorkflow(wf.ID) {
				hasNewWorkflows = true

				break
			}
		}

		if unchangedTimestamp &&
			!hasNewWorkflows &&
			!projectWorkflows.HasActiveJobs(pipeline.Number) {
			stats.SkippedPipelines++
			states[pipeline.Number] = recorded

			continue
		}

		projectWorkflows.RemovePipeline(pipeline.Number)

		for _, wf := range workflows {
			if err := sleep(ctx, f.fetchSleep); err != nil {
				return project.SyncState{}, stats, err
			}

			jobs, err := circleci.AllWorkflowJobs(ctx, f.gw, wf.ID)
			if err != nil {
				return project.SyncState{}, stats, err
			}

			stats.JobListings++

			for _, job := range jobs {
				if job.StartedAt == nil {
					continue
				}

				if !typeIncluded(job, f.includeBuildJobs) {
					continue
				}

				if _, ok := current[job.Name]; !ok {
					continue
				}

				projectWorkflows.Insert(project.NewJobExecution(job, pipeline, wf))
				stats.Executions++
			}
		}

		states[pipeline.Number] = project.NewPipelineState(pipeline, workflows)
	}

	// An empty list means the latest pipeline has not emitted its jobs
	// yet, not that every job was removed.
	if len(currentJobs) > 0 {
		projectWorkflows.RetainJobs(currentJobs)
	}

	projectWorkflows.SortAndTruncate(f.maxHistory)

	f.log.WithFields(logrus.Fields{
		"project":           f.project.String(),
		"pipelines":         stats.Pipelines,
		"skipped_pipelines": stats.SkippedPipelines,
		"job_listings":      stats.JobListings,
		"workflows":         len(projectWorkflows),
	}).Debug("Merged project workflows")

	return project.SyncState{
		Workflows: projectWorkflows,
		Pipelines: states.Clone(),
	}, stats, nil
}

// sleep pauses for d, returning early when ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
