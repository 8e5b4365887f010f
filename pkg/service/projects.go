package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ethpandaops/circleboard/pkg/project"
)

// ListProjects returns the tracked projects in display order. A missing
// list is an empty list.
func (s *service) ListProjects(ctx context.Context) ([]project.TrackedProject, error) {
	var projects []project.TrackedProject

	if _, err := s.store.Load(ctx, project.TrackedProjectsKey, &projects); err != nil {
		return nil, fmt.Errorf("loading tracked projects: %w", err)
	}

	return projects, nil
}

func (s *service) trackedProject(
	ctx context.Context, id project.Identity,
) (project.TrackedProject, error) {
	projects, err := s.ListProjects(ctx)
	if err != nil {
		return project.TrackedProject{}, err
	}

	i := project.Find(projects, id)
	if i < 0 {
		return project.TrackedProject{}, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}

	return projects[i], nil
}

// updateProjects runs fn on the tracked list under the list lock and
// persists the result when fn succeeds.
func (s *service) updateProjects(
	ctx context.Context,
	fn func([]project.TrackedProject) ([]project.TrackedProject, error),
) error {
	s.projectsMu.Lock()
	defer s.projectsMu.Unlock()

	projects, err := s.ListProjects(ctx)
	if err != nil {
		return err
	}

	updated, err := fn(projects)
	if err != nil {
		return err
	}

	if err := s.store.Persist(ctx, project.TrackedProjectsKey, updated); err != nil {
		return fmt.Errorf("persisting tracked projects: %w", err)
	}

	s.events.Publish(Event{Type: EventProjectsChanged})

	return nil
}

// updateProject applies fn to the tracked project with the given identity.
func (s *service) updateProject(
	ctx context.Context, id project.Identity, fn func(*project.TrackedProject),
) error {
	return s.updateProjects(ctx, func(projects []project.TrackedProject) ([]project.TrackedProject, error) {
		i := project.Find(projects, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
		}

		fn(&projects[i])

		return projects, nil
	})
}

// TrackProject adds the project to the end of the list. Tracking a project
// that is already tracked clears its excluded flag and, when given,
// updates its default branch.
func (s *service) TrackProject(
	ctx context.Context, id project.Identity, defaultBranch string,
) (project.TrackedProject, error) {
	if id.VCSType == "" || id.Username == "" || id.Reponame == "" {
		return project.TrackedProject{}, fmt.Errorf("%w: incomplete project identity", ErrInvalidInput)
	}

	var tracked project.TrackedProject

	err := s.updateProjects(ctx, func(projects []project.TrackedProject) ([]project.TrackedProject, error) {
		if i := project.Find(projects, id); i >= 0 {
			projects[i].Excluded = false

			if defaultBranch != "" {
				projects[i].DefaultBranch = defaultBranch
			}

			tracked = projects[i]

			return projects, nil
		}

		tracked = project.TrackedProject{
			Identity:      id,
			DefaultBranch: defaultBranch,
		}

		return append(projects, tracked), nil
	})
	if err != nil {
		return project.TrackedProject{}, err
	}

	return tracked, nil
}

func (s *service) EnableProject(ctx context.Context, id project.Identity) error {
	return s.updateProject(ctx, id, func(p *project.TrackedProject) {
		p.Enabled = true
		p.Excluded = false
	})
}

func (s *service) DisableProject(ctx context.Context, id project.Identity) error {
	return s.updateProject(ctx, id, func(p *project.TrackedProject) {
		p.Enabled = false
	})
}

// ExcludeProject hides the project from the dashboard and stops syncing it.
// Projects are never removed from the list so discovery does not add them
// back.
func (s *service) ExcludeProject(ctx context.Context, id project.Identity) error {
	return s.updateProject(ctx, id, func(p *project.TrackedProject) {
		p.Excluded = true
		p.Enabled = false
	})
}

func (s *service) IncludeProject(ctx context.Context, id project.Identity) error {
	return s.updateProject(ctx, id, func(p *project.TrackedProject) {
		p.Excluded = false
	})
}

// ReorderProjects moves the listed projects to the front in the given
// order. Unlisted projects keep their relative order after them.
func (s *service) ReorderProjects(ctx context.Context, order []project.Identity) error {
	return s.updateProjects(ctx, func(projects []project.TrackedProject) ([]project.TrackedProject, error) {
		placed := make([]bool, len(projects))
		out := make([]project.TrackedProject, 0, len(projects))

		for _, id := range order {
			i := project.Find(projects, id)
			if i < 0 {
				return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
			}

			if placed[i] {
				continue
			}

			placed[i] = true
			out = append(out, projects[i])
		}

		for i, p := range projects {
			if !placed[i] {
				out = append(out, p)
			}
		}

		return out, nil
	})
}

// SetHiddenJobs replaces the hidden job names. Blank and duplicate names
// are dropped.
func (s *service) SetHiddenJobs(ctx context.Context, id project.Identity, jobs []string) error {
	hidden := make([]string, 0, len(jobs))

	for _, name := range jobs {
		name = strings.TrimSpace(name)
		if name == "" || slices.Contains(hidden, name) {
			continue
		}

		hidden = append(hidden, name)
	}

	return s.updateProject(ctx, id, func(p *project.TrackedProject) {
		p.HiddenJobs = hidden
	})
}

func (s *service) SetCollapsed(ctx context.Context, id project.Identity, collapsed bool) error {
	return s.updateProject(ctx, id, func(p *project.TrackedProject) {
		p.Collapsed = collapsed
	})
}

// SetIncludeBuildJobs overrides the include-build-jobs setting for one
// project. nil falls back to the configured default.
func (s *service) SetIncludeBuildJobs(ctx context.Context, id project.Identity, include *bool) error {
	return s.updateProject(ctx, id, func(p *project.TrackedProject) {
		if include == nil {
			p.IncludeBuildJobs = nil

			return
		}

		v := *include
		p.IncludeBuildJobs = &v
	})
}

// GetProjectData returns the last persisted snapshot of a tracked project.
func (s *service) GetProjectData(
	ctx context.Context, id project.Identity,
) (*project.ProjectData, error) {
	if _, err := s.trackedProject(ctx, id); err != nil {
		return nil, err
	}

	var data project.ProjectData

	found, err := s.store.Load(ctx, id.Key(), &data)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNoData, id)
	}

	return &data, nil
}
