package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethpandaops/circleboard/pkg/circleci"
	"github.com/ethpandaops/circleboard/pkg/config"
	"github.com/ethpandaops/circleboard/pkg/project"
	"github.com/ethpandaops/circleboard/pkg/store"
	"github.com/ethpandaops/circleboard/pkg/syncer"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrProjectNotFound is returned when an identity is not tracked.
	ErrProjectNotFound = errors.New("project not found")
	// ErrNoData is returned when a tracked project was never synced.
	ErrNoData = errors.New("project has not been synced yet")
	// ErrInvalidInput is returned for malformed arguments.
	ErrInvalidInput = errors.New("invalid input")
)

// defaultConcurrency bounds SyncEnabled when the configuration does not.
const defaultConcurrency = 2

// Service orchestrates project synchronization and owns the tracked
// project list.
type Service interface {
	// SyncProject synchronizes one tracked project and persists the new
	// snapshot. Concurrent calls for the same project share one run.
	SyncProject(ctx context.Context, id project.Identity) (*project.ProjectData, error)
	// SyncEnabled synchronizes every enabled, non-excluded project.
	// Per-project failures are logged and published, not returned.
	SyncEnabled(ctx context.Context) (SyncSummary, error)
	// DiscoverProjects tracks, disabled, every followed project that is not
	// tracked yet and returns the newly added ones.
	DiscoverProjects(ctx context.Context) ([]project.TrackedProject, error)

	ListProjects(ctx context.Context) ([]project.TrackedProject, error)
	TrackProject(ctx context.Context, id project.Identity, defaultBranch string) (project.TrackedProject, error)
	EnableProject(ctx context.Context, id project.Identity) error
	DisableProject(ctx context.Context, id project.Identity) error
	ExcludeProject(ctx context.Context, id project.Identity) error
	IncludeProject(ctx context.Context, id project.Identity) error
	ReorderProjects(ctx context.Context, order []project.Identity) error
	SetHiddenJobs(ctx context.Context, id project.Identity, jobs []string) error
	SetCollapsed(ctx context.Context, id project.Identity, collapsed bool) error
	SetIncludeBuildJobs(ctx context.Context, id project.Identity, include *bool) error
	GetProjectData(ctx context.Context, id project.Identity) (*project.ProjectData, error)

	SetToken(ctx context.Context, token string) error
	HasToken(ctx context.Context) (bool, error)

	Events() *Events
}

// SyncSummary reports the outcome of SyncEnabled.
type SyncSummary struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// Compile-time interface check.
var _ Service = (*service)(nil)

type service struct {
	log    logrus.FieldLogger
	cfg    *config.SyncConfig
	store  store.Store
	gw     circleci.Gateway
	tokens *Tokens
	events *Events
	flight singleflight.Group

	// projectsMu serializes read-modify-write cycles on the tracked list.
	projectsMu sync.Mutex
}

// NewService creates a new Service.
func NewService(
	log logrus.FieldLogger,
	cfg *config.SyncConfig,
	st store.Store,
	gw circleci.Gateway,
	tokens *Tokens,
) Service {
	return &service{
		log:    log.WithField("component", "service"),
		cfg:    cfg,
		store:  st,
		gw:     gw,
		tokens: tokens,
		events: NewEvents(log),
	}
}

func (s *service) Events() *Events {
	return s.events
}

func (s *service) SyncProject(
	ctx context.Context, id project.Identity,
) (*project.ProjectData, error) {
	// The first caller's context drives the shared run.
	v, err, shared := s.flight.Do(id.Key(), func() (any, error) {
		return s.syncProject(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	if shared {
		s.log.WithField("project", id.String()).Debug("Joined in-flight sync")
	}

	return v.(*project.ProjectData), nil
}

func (s *service) syncProject(
	ctx context.Context, id project.Identity,
) (*project.ProjectData, error) {
	start := time.Now()
	log := s.log.WithFields(logrus.Fields{
		"project": id.String(),
		"sync_id": uuid.NewString(),
	})

	p, err := s.trackedProject(ctx, id)
	if err != nil {
		return nil, err
	}

	data, stats, err := s.buildSnapshot(ctx, log, p)
	if err != nil {
		log.WithError(err).Warn("Project sync failed")

		s.events.Publish(Event{
			Type:    EventProjectSyncFailed,
			Project: &id,
			Error:   err.Error(),
		})

		return nil, err
	}

	log.WithFields(logrus.Fields{
		"duration":          time.Since(start).Round(time.Millisecond),
		"pipelines":         stats.Pipelines,
		"skipped_pipelines": stats.SkippedPipelines,
		"workflow_listings": stats.WorkflowListings,
		"job_listings":      stats.JobListings,
		"workflows":         len(data.Workflows),
	}).Info("Project synced")

	s.events.Publish(Event{
		Type:         EventProjectSynced,
		Project:      &id,
		PipelineHash: data.PipelineHash,
	})

	return data, nil
}

// buildSnapshot fetches, merges and persists. Nothing is written unless
// every step succeeded.
func (s *service) buildSnapshot(
	ctx context.Context, log logrus.FieldLogger, p project.TrackedProject,
) (*project.ProjectData, syncer.Stats, error) {
	var previous project.ProjectData

	if _, err := s.store.Load(ctx, p.Key(), &previous); err != nil {
		return nil, syncer.Stats{}, fmt.Errorf("loading previous snapshot: %w", err)
	}

	pf := syncer.NewPipelineFetcher(log, s.gw, p, s.cfg)

	pipelines, err := pf.ListProjectPipelines(ctx)
	if err != nil {
		return nil, syncer.Stats{}, fmt.Errorf("listing pipelines: %w", err)
	}

	currentJobs, err := pf.ListCurrentJobs(ctx, pipelines)
	if err != nil {
		return nil, syncer.Stats{}, fmt.Errorf("listing current jobs: %w", err)
	}

	state, stats, err := syncer.NewWorkflowFetcher(log, s.gw, p, s.cfg).
		GetProjectWorkflows(ctx, previous.SyncState, pipelines, currentJobs)
	if err != nil {
		return nil, stats, fmt.Errorf("synchronizing workflows: %w", err)
	}

	data := &project.ProjectData{
		Identity:     p.Identity,
		SyncState:    state,
		PipelineHash: syncer.HashPipelines(pipelines),
		SyncedAt:     time.Now().UTC(),
		CIURL:        p.CIURL(),
	}

	if err := s.store.Persist(ctx, p.Key(), data); err != nil {
		return nil, stats, fmt.Errorf("persisting snapshot: %w", err)
	}

	return data, stats, nil
}

func (s *service) SyncEnabled(ctx context.Context) (SyncSummary, error) {
	projects, err := s.ListProjects(ctx)
	if err != nil {
		return SyncSummary{}, err
	}

	concurrency := s.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	var (
		g              errgroup.Group
		synced, failed atomic.Int64
	)

	g.SetLimit(concurrency)

	for _, p := range projects {
		if !p.Enabled || p.Excluded {
			continue
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			if _, err := s.SyncProject(ctx, p.Identity); err != nil {
				failed.Add(1)

				return nil //nolint:nilerr // reported through events
			}

			synced.Add(1)

			return nil
		})
	}

	_ = g.Wait()

	summary := SyncSummary{
		Synced: int(synced.Load()),
		Failed: int(failed.Load()),
	}

	s.log.WithFields(logrus.Fields{
		"synced": summary.Synced,
		"failed": summary.Failed,
	}).Info("Sync pass completed")

	return summary, ctx.Err()
}

func (s *service) DiscoverProjects(
	ctx context.Context,
) ([]project.TrackedProject, error) {
	followed, err := s.gw.ListFollowedProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing followed projects: %w", err)
	}

	var added []project.TrackedProject

	err = s.updateProjects(ctx, func(projects []project.TrackedProject) ([]project.TrackedProject, error) {
		for _, f := range followed {
			id := project.Identity{
				VCSType:  f.VCSType,
				Username: f.Username,
				Reponame: f.Reponame,
			}

			if project.Find(projects, id) >= 0 {
				continue
			}

			p := project.TrackedProject{
				Identity:      id,
				DefaultBranch: f.DefaultBranch,
			}

			projects = append(projects, p)
			added = append(added, p)
		}

		return projects, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"followed": len(followed),
		"added":    len(added),
	}).Info("Discovered projects")

	return added, nil
}

func (s *service) SetToken(ctx context.Context, token string) error {
	if err := s.tokens.Set(ctx, token); err != nil {
		return err
	}

	s.log.Info("CircleCI token updated")

	return nil
}

func (s *service) HasToken(ctx context.Context) (bool, error) {
	return s.tokens.Has(ctx)
}
