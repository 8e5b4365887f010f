package project

import (
	"slices"
	"time"

	"github.com/ethpandaops/circleboard/pkg/circleci"
)

// ProjectData is the synchronized snapshot of one project.
type ProjectData struct {
	Identity
	SyncState
	PipelineHash string    `json:"pipeline_hash"`
	SyncedAt     time.Time `json:"synced_at"`
	CIURL        string    `json:"ci_url"`
}

// SyncState is the part of a snapshot one synchronization hands to the
// next.
type SyncState struct {
	Workflows Workflows      `json:"workflows"`
	Pipelines PipelineStates `json:"pipelines,omitempty"`
}

// PipelineState is what a pipeline looked like when its jobs were last
// listed. It is recorded even when none of the jobs made it into history.
type PipelineState struct {
	UpdatedAt   time.Time `json:"updated_at"`
	WorkflowIDs []string  `json:"workflow_ids,omitempty"`
}

// PipelineStates maps pipeline numbers to their last synced state.
type PipelineStates map[int]PipelineState

// NewPipelineState records the pipeline's updated_at and the ids of the
// given workflows.
func NewPipelineState(
	pipeline circleci.Pipeline,
	workflows []circleci.PipelineWorkflow,
) PipelineState {
	state := PipelineState{
		UpdatedAt:   pipeline.UpdatedAt,
		WorkflowIDs: make([]string, 0, len(workflows)),
	}

	for _, wf := range workflows {
		state.WorkflowIDs = append(state.WorkflowIDs, wf.ID)
	}

	return state
}

// HasWorkflow reports whether the workflow id was seen under the pipeline.
func (s PipelineState) HasWorkflow(id string) bool {
	return slices.Contains(s.WorkflowIDs, id)
}

func (s PipelineState) clone() PipelineState {
	s.WorkflowIDs = slices.Clone(s.WorkflowIDs)

	return s
}

// Clone returns a deep copy of the states.
func (s PipelineStates) Clone() PipelineStates {
	if s == nil {
		return nil
	}

	out := make(PipelineStates, len(s))
	for number, state := range s {
		out[number] = state.clone()
	}

	return out
}

// Workflows maps workflow names to their job histories.
type Workflows map[string]*WorkflowData

// WorkflowData holds the job histories of one workflow name.
type WorkflowData struct {
	Name              string        `json:"name"`
	LatestBuildNumber int           `json:"latest_build_number"`
	LatestID          string        `json:"latest_id"`
	Jobs              []*JobContext `json:"jobs"`
}

// JobContext is the execution history of one job name, most recent first.
type JobContext struct {
	Name    string         `json:"name"`
	History []JobExecution `json:"history"`
}

// JobExecution is one run of a job with slim references to the pipeline
// and workflow it ran in.
type JobExecution struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Status    circleci.JobStatus `json:"status"`
	Type      circleci.JobType   `json:"type"`
	StartedAt time.Time          `json:"started_at"`
	StoppedAt *time.Time         `json:"stopped_at,omitempty"`
	JobNumber *int               `json:"job_number,omitempty"`
	Pipeline  PipelineRef        `json:"pipeline"`
	Workflow  WorkflowRef        `json:"workflow"`
}

// PipelineRef keeps only the pipeline fields the dashboard displays.
type PipelineRef struct {
	ID            string    `json:"id"`
	Number        int       `json:"number"`
	UpdatedAt     time.Time `json:"updated_at"`
	ActorLogin    string    `json:"actor_login,omitempty"`
	ActorAvatar   string    `json:"actor_avatar,omitempty"`
	OriginURL     string    `json:"origin_url,omitempty"`
	Revision      string    `json:"revision,omitempty"`
	CommitSubject string    `json:"commit_subject,omitempty"`
}

// WorkflowRef keeps only the workflow fields the dashboard displays.
type WorkflowRef struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	PipelineID     string `json:"pipeline_id"`
	PipelineNumber int    `json:"pipeline_number"`
	Status         string `json:"status,omitempty"`
}

// NewJobExecution pairs a job with slim references to its pipeline and
// workflow. The job must have started.
func NewJobExecution(
	job circleci.WorkflowJob,
	pipeline circleci.Pipeline,
	workflow circleci.PipelineWorkflow,
) JobExecution {
	exec := JobExecution{
		ID:        job.ID,
		Name:      job.Name,
		Status:    job.Status,
		Type:      job.Type,
		StoppedAt: copyTime(job.StoppedAt),
		JobNumber: copyInt(job.JobNumber),
		Pipeline: PipelineRef{
			ID:          pipeline.ID,
			Number:      pipeline.Number,
			UpdatedAt:   pipeline.UpdatedAt,
			ActorLogin:  pipeline.Trigger.Actor.Login,
			ActorAvatar: pipeline.Trigger.Actor.AvatarURL,
		},
		Workflow: WorkflowRef{
			ID:             workflow.ID,
			Name:           workflow.Name,
			PipelineID:     workflow.PipelineID,
			PipelineNumber: workflow.PipelineNumber,
			Status:         workflow.Status,
		},
	}

	if job.StartedAt != nil {
		exec.StartedAt = *job.StartedAt
	}

	if vcs := pipeline.VCS; vcs != nil {
		exec.Pipeline.OriginURL = vcs.OriginRepositoryURL
		exec.Pipeline.Revision = vcs.Revision

		if vcs.Commit != nil {
			exec.Pipeline.CommitSubject = vcs.Commit.Subject
		}
	}

	return exec
}

// Clone returns a deep copy of the mapping.
func (w Workflows) Clone() Workflows {
	out := make(Workflows, len(w))

	for name, wf := range w {
		if wf == nil {
			continue
		}

		cp := &WorkflowData{
			Name:              wf.Name,
			LatestBuildNumber: wf.LatestBuildNumber,
			LatestID:          wf.LatestID,
			Jobs:              make([]*JobContext, 0, len(wf.Jobs)),
		}

		for _, job := range wf.Jobs {
			if job == nil {
				continue
			}

			history := make([]JobExecution, len(job.History))
			for i, exec := range job.History {
				history[i] = exec.clone()
			}

			cp.Jobs = append(cp.Jobs, &JobContext{Name: job.Name, History: history})
		}

		out[name] = cp
	}

	return out
}

func (e JobExecution) clone() JobExecution {
	e.StoppedAt = copyTime(e.StoppedAt)
	e.JobNumber = copyInt(e.JobNumber)

	return e
}

// Insert records a job execution under its workflow name, creating the
// workflow and job entries when missing. LatestBuildNumber only advances.
func (w Workflows) Insert(exec JobExecution) {
	wf, ok := w[exec.Workflow.Name]
	if !ok {
		wf = &WorkflowData{Name: exec.Workflow.Name}
		w[exec.Workflow.Name] = wf
	}

	if wf.LatestBuildNumber < exec.Workflow.PipelineNumber {
		wf.LatestBuildNumber = exec.Workflow.PipelineNumber
		wf.LatestID = exec.Workflow.ID
	}

	job := wf.Job(exec.Name)
	if job == nil {
		job = &JobContext{Name: exec.Name}
		wf.Jobs = append(wf.Jobs, job)
	}

	job.History = append(job.History, exec)
}

// Job returns the job context with the given name, or nil.
func (wf *WorkflowData) Job(name string) *JobContext {
	for _, job := range wf.Jobs {
		if job.Name == name {
			return job
		}
	}

	return nil
}

// RemovePipeline drops every execution belonging to the pipeline number,
// then any job left without history and any workflow left without jobs.
func (w Workflows) RemovePipeline(number int) {
	for name, wf := range w {
		jobs := wf.Jobs[:0]

		for _, job := range wf.Jobs {
			job.History = slices.DeleteFunc(job.History, func(e JobExecution) bool {
				return e.Workflow.PipelineNumber == number
			})

			if len(job.History) > 0 {
				jobs = append(jobs, job)
			}
		}

		clear(wf.Jobs[len(jobs):])
		wf.Jobs = jobs

		if len(wf.Jobs) == 0 {
			delete(w, name)
		}
	}
}

// HasActiveJobs reports whether any execution of the pipeline number is
// in a status that may still change.
func (w Workflows) HasActiveJobs(number int) bool {
	for _, wf := range w {
		for _, job := range wf.Jobs {
			for _, exec := range job.History {
				if exec.Workflow.PipelineNumber == number && exec.Status.IsActive() {
					return true
				}
			}
		}
	}

	return false
}

// PipelineStates rebuilds pipeline states from the recorded executions.
// It only knows about workflows that contributed history, so it serves
// snapshots persisted without states.
func (w Workflows) PipelineStates() PipelineStates {
	out := make(PipelineStates)

	for _, wf := range w {
		for _, job := range wf.Jobs {
			for _, exec := range job.History {
				state := out[exec.Workflow.PipelineNumber]
				state.UpdatedAt = exec.Pipeline.UpdatedAt

				if !state.HasWorkflow(exec.Workflow.ID) {
					state.WorkflowIDs = append(state.WorkflowIDs, exec.Workflow.ID)
				}

				out[exec.Workflow.PipelineNumber] = state
			}
		}
	}

	return out
}

// RetainJobs drops job names missing from current unless one of their
// executions is still active, then any workflow left without jobs.
func (w Workflows) RetainJobs(current []string) {
	for name, wf := range w {
		wf.Jobs = slices.DeleteFunc(wf.Jobs, func(job *JobContext) bool {
			if slices.Contains(current, job.Name) {
				return false
			}

			return !slices.ContainsFunc(job.History, func(e JobExecution) bool {
				return e.Status.IsActive()
			})
		})

		if len(wf.Jobs) == 0 {
			delete(w, name)
		}
	}
}

// SortAndTruncate orders every job history by start time, most recent
// first, and keeps at most limit entries. Equal start times keep their
// insertion order.
func (w Workflows) SortAndTruncate(limit int) {
	for _, wf := range w {
		for _, job := range wf.Jobs {
			slices.SortStableFunc(job.History, func(a, b JobExecution) int {
				return b.StartedAt.Compare(a.StartedAt)
			})

			if len(job.History) > limit {
				clear(job.History[limit:])
				job.History = job.History[:limit]
			}
		}
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	v := *t

	return &v
}

func copyInt(i *int) *int {
	if i == nil {
		return nil
	}

	v := *i

	return &v
}
