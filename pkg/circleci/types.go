package circleci

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownStatus is returned when the API reports a job status outside
	// the known set.
	ErrUnknownStatus = errors.New("unknown job status")

	// ErrUnknownJobType is returned when the API reports a job type other
	// than build or approval.
	ErrUnknownJobType = errors.New("unknown job type")
)

// JobStatus is the execution state of a workflow job.
type JobStatus string

// The complete set of job statuses reported by the CircleCI v2 API.
const (
	JobStatusSuccess            JobStatus = "success"
	JobStatusRunning            JobStatus = "running"
	JobStatusNotRun             JobStatus = "not_run"
	JobStatusFailed             JobStatus = "failed"
	JobStatusRetried            JobStatus = "retried"
	JobStatusQueued             JobStatus = "queued"
	JobStatusNotRunning         JobStatus = "not_running"
	JobStatusInfrastructureFail JobStatus = "infrastructure_fail"
	JobStatusTimedOut           JobStatus = "timedout"
	JobStatusOnHold             JobStatus = "on_hold"
	JobStatusTerminatedUnknown  JobStatus = "terminated-unknown"
	JobStatusBlocked            JobStatus = "blocked"
	JobStatusCanceled           JobStatus = "canceled"
	JobStatusUnauthorized       JobStatus = "unauthorized"
)

var jobStatuses = map[JobStatus]struct{}{
	JobStatusSuccess:            {},
	JobStatusRunning:            {},
	JobStatusNotRun:             {},
	JobStatusFailed:             {},
	JobStatusRetried:            {},
	JobStatusQueued:             {},
	JobStatusNotRunning:         {},
	JobStatusInfrastructureFail: {},
	JobStatusTimedOut:           {},
	JobStatusOnHold:             {},
	JobStatusTerminatedUnknown:  {},
	JobStatusBlocked:            {},
	JobStatusCanceled:           {},
	JobStatusUnauthorized:       {},
}

// ParseJobStatus validates s against the known job statuses.
func ParseJobStatus(s string) (JobStatus, error) {
	status := JobStatus(s)
	if _, ok := jobStatuses[status]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}

	return status, nil
}

// IsActive reports whether a job in this status may still change.
func (s JobStatus) IsActive() bool {
	switch s {
	case JobStatusRunning, JobStatusOnHold, JobStatusBlocked, JobStatusQueued:
		return true
	default:
		return false
	}
}

// UnmarshalJSON rejects statuses outside the known set.
func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	status, err := ParseJobStatus(raw)
	if err != nil {
		return err
	}

	*s = status

	return nil
}

// JobType distinguishes jobs that run code from manual approval gates.
type JobType string

const (
	JobTypeBuild    JobType = "build"
	JobTypeApproval JobType = "approval"
)

// UnmarshalJSON rejects job types other than build and approval.
func (t *JobType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch JobType(raw) {
	case JobTypeBuild, JobTypeApproval:
		*t = JobType(raw)

		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJobType, raw)
	}
}

// Actor is the user that triggered a pipeline.
type Actor struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Trigger describes how a pipeline was started.
type Trigger struct {
	Type  string `json:"type"`
	Actor Actor  `json:"actor"`
}

// Commit is the head commit of a pipeline.
type Commit struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// VCS holds version control details of a pipeline. It is absent for
// pipelines triggered through the API without a checkout.
type VCS struct {
	OriginRepositoryURL string  `json:"origin_repository_url"`
	Revision            string  `json:"revision"`
	Branch              string  `json:"branch,omitempty"`
	Commit              *Commit `json:"commit,omitempty"`
}

// Pipeline is a single CI run on a branch.
type Pipeline struct {
	ID        string    `json:"id"`
	Number    int       `json:"number"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Trigger   Trigger   `json:"trigger"`
	VCS       *VCS      `json:"vcs,omitempty"`
}

// PipelineWorkflow is a named group of jobs within a pipeline.
type PipelineWorkflow struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	PipelineID     string     `json:"pipeline_id"`
	PipelineNumber int        `json:"pipeline_number"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	StoppedAt      *time.Time `json:"stopped_at,omitempty"`
}

// WorkflowJob is a single job within a workflow.
type WorkflowJob struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Type         JobType    `json:"type"`
	Status       JobStatus  `json:"status"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	StoppedAt    *time.Time `json:"stopped_at,omitempty"`
	JobNumber    *int       `json:"job_number,omitempty"`
	Dependencies []string   `json:"dependencies"`
}

// PipelinePage is one page of a pipeline listing.
type PipelinePage struct {
	Items         []Pipeline `json:"items"`
	NextPageToken string     `json:"next_page_token"`
}

// WorkflowPage is one page of a pipeline's workflows.
type WorkflowPage struct {
	Items         []PipelineWorkflow `json:"items"`
	NextPageToken string             `json:"next_page_token"`
}

// JobPage is one page of a workflow's jobs.
type JobPage struct {
	Items         []WorkflowJob `json:"items"`
	NextPageToken string        `json:"next_page_token"`
}

// FollowedProject is a project the token owner follows, as reported by
// the v1.1 projects endpoint.
type FollowedProject struct {
	VCSType       string `json:"vcs_type"`
	Username      string `json:"username"`
	Reponame      string `json:"reponame"`
	DefaultBranch string `json:"default_branch"`
}
