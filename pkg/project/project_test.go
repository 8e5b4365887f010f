package project

import (
	"testing"
	"time"

	"github.com/ethpandaops/circleboard/pkg/circleci"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdentity(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Identity
		wantErr bool
	}{
		{
			name:  "valid",
			input: "github/ethpandaops/dashboard",
			want:  Identity{VCSType: "github", Username: "ethpandaops", Reponame: "dashboard"},
		},
		{name: "too few parts", input: "github/ethpandaops", wantErr: true},
		{name: "too many parts", input: "github/a/b/c", wantErr: true},
		{name: "empty part", input: "github//dashboard", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIdentity(tt.input)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.input, got.String())
		})
	}
}

func TestIdentityDerivedNames(t *testing.T) {
	tests := []struct {
		name     string
		id       Identity
		wantSlug string
	}{
		{
			name:     "github",
			id:       Identity{VCSType: "github", Username: "org", Reponame: "repo"},
			wantSlug: "gh/org/repo",
		},
		{
			name:     "bitbucket",
			id:       Identity{VCSType: "bitbucket", Username: "org", Reponame: "repo"},
			wantSlug: "bb/org/repo",
		},
		{
			name:     "circleci native",
			id:       Identity{VCSType: "circleci", Username: "org", Reponame: "repo"},
			wantSlug: "circleci/org/repo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantSlug, tt.id.Slug())
			assert.Equal(t, "https://app.circleci.com/pipelines/"+tt.wantSlug, tt.id.CIURL())
			assert.Equal(t, "project-data/"+tt.id.String(), tt.id.Key())
		})
	}
}

func TestTrackedProjectFlags(t *testing.T) {
	off := false

	p := TrackedProject{HiddenJobs: []string{"lint"}}
	assert.True(t, p.IncludesBuildJobs(true))
	assert.False(t, p.IncludesBuildJobs(false))

	p.IncludeBuildJobs = &off
	assert.False(t, p.IncludesBuildJobs(true))

	assert.True(t, p.IsHidden("lint"))
	assert.False(t, p.IsHidden("test"))
}

func TestFind(t *testing.T) {
	a := Identity{VCSType: "github", Username: "org", Reponame: "a"}
	b := Identity{VCSType: "github", Username: "org", Reponame: "b"}

	projects := []TrackedProject{{Identity: a}, {Identity: b}}

	assert.Equal(t, 0, Find(projects, a))
	assert.Equal(t, 1, Find(projects, b))
	assert.Equal(t, -1, Find(projects, Identity{VCSType: "github", Username: "org", Reponame: "c"}))
	assert.Equal(t, -1, Find(nil, a))
}

func execution(workflowID, workflowName, jobName string, pipelineNumber int, started time.Time) JobExecution {
	return JobExecution{
		ID:        workflowID + "-" + jobName,
		Name:      jobName,
		Status:    circleci.JobStatusSuccess,
		Type:      circleci.JobTypeBuild,
		StartedAt: started,
		Pipeline: PipelineRef{
			ID:        "pipe",
			Number:    pipelineNumber,
			UpdatedAt: started,
		},
		Workflow: WorkflowRef{
			ID:             workflowID,
			Name:           workflowName,
			PipelineNumber: pipelineNumber,
		},
	}
}

func TestInsert(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := Workflows{}

	w.Insert(execution("wf-2", "build", "test", 2, start.Add(time.Hour)))
	w.Insert(execution("wf-1", "build", "test", 1, start))
	w.Insert(execution("wf-1", "build", "lint", 1, start))

	require.Contains(t, w, "build")

	build := w["build"]
	assert.Equal(t, 2, build.LatestBuildNumber)
	assert.Equal(t, "wf-2", build.LatestID)
	require.Len(t, build.Jobs, 2)
	assert.Len(t, build.Job("test").History, 2)
	assert.Len(t, build.Job("lint").History, 1)
	assert.Nil(t, build.Job("missing"))
}

func TestClone(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	stopped := start.Add(time.Minute)
	number := 42

	exec := execution("wf-1", "build", "test", 1, start)
	exec.StoppedAt = &stopped
	exec.JobNumber = &number

	w := Workflows{}
	w.Insert(exec)

	cp := w.Clone()
	assert.Equal(t, w, cp)

	cp["build"].LatestID = "other"
	cp["build"].Jobs[0].History[0].Status = circleci.JobStatusFailed
	*cp["build"].Jobs[0].History[0].StoppedAt = start
	*cp["build"].Jobs[0].History[0].JobNumber = 7
	cp.Insert(execution("wf-9", "deploy", "ship", 9, start))

	assert.Equal(t, "wf-1", w["build"].LatestID)
	assert.Equal(t, circleci.JobStatusSuccess, w["build"].Jobs[0].History[0].Status)
	assert.Equal(t, stopped, *w["build"].Jobs[0].History[0].StoppedAt)
	assert.Equal(t, 42, *w["build"].Jobs[0].History[0].JobNumber)
	assert.NotContains(t, w, "deploy")

	assert.Empty(t, Workflows(nil).Clone())
}

func TestRemovePipeline(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	w := Workflows{}
	w.Insert(execution("wf-2", "build", "test", 2, start.Add(time.Hour)))
	w.Insert(execution("wf-1", "build", "test", 1, start))
	w.Insert(execution("wf-1", "build", "lint", 1, start))
	w.Insert(execution("wf-n", "nightly", "fuzz", 1, start))

	w.RemovePipeline(1)

	assert.NotContains(t, w, "nightly")
	require.Contains(t, w, "build")
	require.Len(t, w["build"].Jobs, 1)
	assert.Equal(t, "test", w["build"].Jobs[0].Name)
	require.Len(t, w["build"].Jobs[0].History, 1)
	assert.Equal(t, 2, w["build"].Jobs[0].History[0].Workflow.PipelineNumber)

	w.RemovePipeline(2)
	assert.Empty(t, w)
}

func TestHasActiveJobs(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	running := execution("wf-1", "build", "test", 1, start)
	running.Status = circleci.JobStatusRunning

	w := Workflows{}
	w.Insert(running)
	w.Insert(execution("wf-2", "build", "test", 2, start))

	assert.True(t, w.HasActiveJobs(1))
	assert.False(t, w.HasActiveJobs(2))
	assert.False(t, w.HasActiveJobs(3))

	for _, status := range []circleci.JobStatus{
		circleci.JobStatusRunning,
		circleci.JobStatusOnHold,
		circleci.JobStatusBlocked,
		circleci.JobStatusQueued,
	} {
		assert.True(t, status.IsActive(), status)
	}

	assert.False(t, circleci.JobStatusSuccess.IsActive())
	assert.False(t, circleci.JobStatusCanceled.IsActive())
}

func TestPipelineStates(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	w := Workflows{}
	w.Insert(execution("wf-1", "build", "test", 1, start))
	w.Insert(execution("wf-1", "build", "lint", 1, start))
	w.Insert(execution("wf-1b", "build", "test", 1, start))
	w.Insert(execution("wf-2", "nightly", "fuzz", 2, start.Add(time.Hour)))

	states := w.PipelineStates()
	require.Len(t, states, 2)

	assert.True(t, states[1].UpdatedAt.Equal(start))
	assert.ElementsMatch(t, []string{"wf-1", "wf-1b"}, states[1].WorkflowIDs)
	assert.True(t, states[1].HasWorkflow("wf-1b"))
	assert.False(t, states[1].HasWorkflow("wf-2"))

	assert.True(t, states[2].UpdatedAt.Equal(start.Add(time.Hour)))
	assert.Equal(t, []string{"wf-2"}, states[2].WorkflowIDs)
}

func TestNewPipelineState(t *testing.T) {
	updated := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pipeline := circleci.Pipeline{ID: "pipe-1", Number: 1, UpdatedAt: updated}

	state := NewPipelineState(pipeline, []circleci.PipelineWorkflow{
		{ID: "wf-1", Name: "build"},
		{ID: "wf-2", Name: "release"},
	})

	assert.True(t, state.UpdatedAt.Equal(updated))
	assert.Equal(t, []string{"wf-1", "wf-2"}, state.WorkflowIDs)

	states := PipelineStates{1: state}
	cp := states.Clone()
	cp[1].WorkflowIDs[0] = "changed"

	assert.Equal(t, "wf-1", states[1].WorkflowIDs[0])
	assert.Nil(t, PipelineStates(nil).Clone())
}

func TestRetainJobs(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	running := execution("wf-3", "deploy", "rollout", 3, start)
	running.Status = circleci.JobStatusRunning

	w := Workflows{}
	w.Insert(execution("wf-1", "build", "test", 1, start))
	w.Insert(execution("wf-1", "build", "lint", 1, start))
	w.Insert(execution("wf-2", "nightly", "fuzz", 2, start))
	w.Insert(running)

	w.RetainJobs([]string{"test"})

	require.Contains(t, w, "build")
	require.Len(t, w["build"].Jobs, 1)
	assert.Equal(t, "test", w["build"].Jobs[0].Name)

	assert.NotContains(t, w, "nightly", "workflows without jobs are dropped")

	require.Contains(t, w, "deploy", "active executions keep a stale name")
	assert.Equal(t, "rollout", w["deploy"].Jobs[0].Name)
}

func TestSortAndTruncate(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	w := Workflows{}
	for n := 1; n <= 5; n++ {
		w.Insert(execution("wf", "build", "test", n, start.Add(time.Duration(n)*time.Minute)))
	}

	// Two executions sharing a start time keep their insertion order.
	tieA := execution("wf-a", "build", "tie", 1, start)
	tieB := execution("wf-b", "build", "tie", 2, start)
	w.Insert(tieA)
	w.Insert(tieB)

	w.SortAndTruncate(3)

	history := w["build"].Job("test").History
	require.Len(t, history, 3)
	assert.Equal(t, []int{5, 4, 3}, []int{
		history[0].Workflow.PipelineNumber,
		history[1].Workflow.PipelineNumber,
		history[2].Workflow.PipelineNumber,
	})

	ties := w["build"].Job("tie").History
	require.Len(t, ties, 2)
	assert.Equal(t, "wf-a", ties[0].Workflow.ID)
	assert.Equal(t, "wf-b", ties[1].Workflow.ID)
}

func TestNewJobExecution(t *testing.T) {
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	number := 12

	pipeline := circleci.Pipeline{
		ID:        "pipe-1",
		Number:    1,
		UpdatedAt: started,
		Trigger:   circleci.Trigger{Actor: circleci.Actor{Login: "bob", AvatarURL: "https://a/b"}},
		VCS: &circleci.VCS{
			OriginRepositoryURL: "https://github.com/org/repo",
			Revision:            "deadbeef",
		},
	}
	workflow := circleci.PipelineWorkflow{ID: "wf-1", Name: "build", PipelineID: "pipe-1", PipelineNumber: 1}
	job := circleci.WorkflowJob{
		ID:        "job-1",
		Name:      "test",
		Type:      circleci.JobTypeBuild,
		Status:    circleci.JobStatusFailed,
		StartedAt: &started,
		JobNumber: &number,
	}

	exec := NewJobExecution(job, pipeline, workflow)

	assert.Equal(t, "job-1", exec.ID)
	assert.Equal(t, started, exec.StartedAt)
	assert.Equal(t, "bob", exec.Pipeline.ActorLogin)
	assert.Equal(t, "deadbeef", exec.Pipeline.Revision)
	assert.Empty(t, exec.Pipeline.CommitSubject)
	assert.Equal(t, "wf-1", exec.Workflow.ID)
	require.NotNil(t, exec.JobNumber)
	assert.Equal(t, 12, *exec.JobNumber)

	number = 99
	assert.Equal(t, 12, *exec.JobNumber)
}
