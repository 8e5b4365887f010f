package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ethpandaops/circleboard/pkg/circleci"
	"github.com/ethpandaops/circleboard/pkg/config"
	"github.com/ethpandaops/circleboard/pkg/project"
	"github.com/sirupsen/logrus"
)

// setupWorkflowName is the workflow CircleCI creates for dynamic config;
// it never carries jobs worth tracking.
const setupWorkflowName = "setup"

// PipelineFetcher collects a project's recent pipelines and derives the
// job names that are currently in scope.
type PipelineFetcher struct {
	log              logrus.FieldLogger
	gw               circleci.Gateway
	project          project.TrackedProject
	minPipelines     int
	includeBuildJobs bool
}

// NewPipelineFetcher creates a PipelineFetcher for one tracked project.
func NewPipelineFetcher(
	log logrus.FieldLogger,
	gw circleci.Gateway,
	p project.TrackedProject,
	cfg *config.SyncConfig,
) *PipelineFetcher {
	return &PipelineFetcher{
		log:              log.WithField("component", "pipeline-fetcher"),
		gw:               gw,
		project:          p,
		minPipelines:     cfg.MinPipelineNumber,
		includeBuildJobs: p.IncludesBuildJobs(cfg.IncludeBuildJobsOrDefault()),
	}
}

// ListProjectPipelines pages through the project's pipelines on its
// default branch until at least the configured minimum has been collected
// or the API runs out of pages, whichever comes first.
func (f *PipelineFetcher) ListProjectPipelines(
	ctx context.Context,
) ([]circleci.Pipeline, error) {
	var (
		pipelines []circleci.Pipeline
		pageToken string
		pages     int
		seen      = make(map[string]struct{}, 4)
	)

	slug := f.project.Slug()

	for {
		page, err := f.gw.ListProjectPipelines(
			ctx, slug, f.project.DefaultBranch, pageToken,
		)
		if err != nil {
			return nil, err
		}

		pages++

		pipelines = append(pipelines, page.Items...)

		if page.NextPageToken == "" || len(pipelines) >= f.minPipelines {
			break
		}

		if _, ok := seen[page.NextPageToken]; ok {
			break
		}

		seen[page.NextPageToken] = struct{}{}
		pageToken = page.NextPageToken
	}

	f.log.WithFields(logrus.Fields{
		"project":   f.project.String(),
		"pipelines": len(pipelines),
		"pages":     pages,
	}).Debug("Listed project pipelines")

	return pipelines, nil
}

// ListCurrentJobs returns the job names emitted by the most recent
// pipeline. Only the first pipeline of the list is inspected.
func (f *PipelineFetcher) ListCurrentJobs(
	ctx context.Context, pipelines []circleci.Pipeline,
) ([]string, error) {
	if len(pipelines) == 0 {
		return nil, nil
	}

	latest := pipelines[0]

	workflows, err := circleci.AllPipelineWorkflows(ctx, f.gw, latest.ID)
	if err != nil {
		return nil, err
	}

	var (
		names []string
		seen  = make(map[string]struct{}, 16)
	)

	for _, wf := range eligibleWorkflows(workflows) {
		jobs, err := circleci.AllWorkflowJobs(ctx, f.gw, wf.ID)
		if err != nil {
			return nil, err
		}

		for _, job := range jobs {
			if !typeIncluded(job, f.includeBuildJobs) {
				continue
			}

			if _, ok := seen[job.Name]; ok {
				continue
			}

			seen[job.Name] = struct{}{}
			names = append(names, job.Name)
		}
	}

	return names, nil
}

// eligibleWorkflows drops the setup workflow and workflows without an id.
func eligibleWorkflows(workflows []circleci.PipelineWorkflow) []circleci.PipelineWorkflow {
	out := make([]circleci.PipelineWorkflow, 0, len(workflows))

	for _, wf := range workflows {
		if wf.Name == setupWorkflowName || wf.ID == "" {
			continue
		}

		out = append(out, wf)
	}

	return out
}

// typeIncluded keeps approval jobs always and build jobs only when
// includeBuildJobs is set.
func typeIncluded(job circleci.WorkflowJob, includeBuildJobs bool) bool {
	if includeBuildJobs {
		return true
	}

	return job.Type == circleci.JobTypeApproval
}

// HashPipelines fingerprints a pipeline listing so clients can tell
// whether anything changed between two snapshots.
func HashPipelines(pipelines []circleci.Pipeline) string {
	h := sha256.New()

	for _, p := range pipelines {
		_, _ = fmt.Fprintf(h, "%s|%d|%s\n",
			p.ID, p.Number, p.UpdatedAt.UTC().Format(time.RFC3339Nano))
	}

	return hex.EncodeToString(h.Sum(nil))
}
