package project

import (
	"fmt"
	"strings"
)

const (
	// TrackedProjectsKey is the store key of the tracked project list.
	TrackedProjectsKey = "projects"

	// TokenKey is the store key of the CircleCI API token.
	TokenKey = "token"

	projectDataKeyPrefix = "project-data"
	pipelinesBaseURL     = "https://app.circleci.com/pipelines"
)

// Identity uniquely identifies a project across CircleCI.
type Identity struct {
	VCSType  string `json:"vcs_type"`
	Username string `json:"username"`
	Reponame string `json:"reponame"`
}

// ParseIdentity parses a "vcs/username/reponame" string.
func ParseIdentity(s string) (Identity, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Identity{}, fmt.Errorf("invalid project %q: want vcs/username/reponame", s)
	}

	return Identity{VCSType: parts[0], Username: parts[1], Reponame: parts[2]}, nil
}

func (id Identity) String() string {
	return id.VCSType + "/" + id.Username + "/" + id.Reponame
}

// Key is the persistence key of this project's synchronized snapshot.
func (id Identity) Key() string {
	return projectDataKeyPrefix + "/" + id.String()
}

// Slug is the project slug used by the CircleCI v2 API.
func (id Identity) Slug() string {
	return vcsSlug(id.VCSType) + "/" + id.Username + "/" + id.Reponame
}

// CIURL is the CircleCI web UI page listing this project's pipelines.
func (id Identity) CIURL() string {
	return pipelinesBaseURL + "/" + id.Slug()
}

func vcsSlug(vcsType string) string {
	switch strings.ToLower(vcsType) {
	case "github", "gh":
		return "gh"
	case "bitbucket", "bb":
		return "bb"
	default:
		return strings.ToLower(vcsType)
	}
}

// TrackedProject is a repository the dashboard follows.
type TrackedProject struct {
	Identity
	Enabled          bool     `json:"enabled"`
	DefaultBranch    string   `json:"default_branch"`
	IncludeBuildJobs *bool    `json:"include_build_jobs,omitempty"`
	HiddenJobs       []string `json:"hidden_jobs,omitempty"`
	Collapsed        bool     `json:"collapsed,omitempty"`
	Excluded         bool     `json:"excluded,omitempty"`
}

// IncludesBuildJobs resolves the include-build-jobs flag, falling back to
// def when the project does not set it.
func (p *TrackedProject) IncludesBuildJobs(def bool) bool {
	if p.IncludeBuildJobs == nil {
		return def
	}

	return *p.IncludeBuildJobs
}

// IsHidden reports whether the job name is hidden for this project.
func (p *TrackedProject) IsHidden(jobName string) bool {
	for _, name := range p.HiddenJobs {
		if name == jobName {
			return true
		}
	}

	return false
}

// Find returns the index of the project with the given identity, or -1.
func Find(projects []TrackedProject, id Identity) int {
	for i := range projects {
		if projects[i].Identity == id {
			return i
		}
	}

	return -1
}
