package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethpandaops/circleboard/pkg/circleci"
	"github.com/ethpandaops/circleboard/pkg/project"
	"github.com/ethpandaops/circleboard/pkg/service"
	"github.com/go-chi/chi/v5"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// writeServiceError maps service errors onto HTTP statuses.
func (s *server) writeServiceError(w http.ResponseWriter, err error) {
	var apiErr *circleci.APIError

	switch {
	case errors.Is(err, service.ErrProjectNotFound),
		errors.Is(err, service.ErrNoData):
		writeJSON(w, http.StatusNotFound, errorResponse{err.Error()})
	case errors.Is(err, service.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})
	case errors.Is(err, service.ErrNoToken):
		writeJSON(w, http.StatusPreconditionFailed, errorResponse{err.Error()})
	case errors.As(err, &apiErr):
		writeJSON(w, http.StatusBadGateway, errorResponse{err.Error()})
	default:
		s.log.WithError(err).Error("Request failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})
	}
}

// decodeBody decodes the JSON request body into v, writing a 400 on
// failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return false
	}

	return true
}

// projectFromPath builds the project identity from the route parameters.
func projectFromPath(r *http.Request) project.Identity {
	return project.Identity{
		VCSType:  chi.URLParam(r, "vcs"),
		Username: chi.URLParam(r, "user"),
		Reponame: chi.URLParam(r, "repo"),
	}
}

// --- Public handlers ---

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleConfig returns the public sync settings and whether a CircleCI
// token is available.
func (s *server) handleConfig(w http.ResponseWriter, r *http.Request) {
	hasToken, err := s.svc.HasToken(r.Context())
	if err != nil {
		s.writeServiceError(w, err)

		return
	}

	syncCfg := s.cfg.Sync

	writeJSON(w, http.StatusOK, map[string]any{
		"sync": map[string]any{
			"job_executions_max_history": syncCfg.JobExecutionsMaxHistory,
			"min_pipeline_number":        syncCfg.MinPipelineNumber,
			"include_build_jobs":         syncCfg.IncludeBuildJobsOrDefault(),
			"interval":                   syncCfg.Interval,
		},
		"storage": map[string]any{
			"driver": s.cfg.Storage.Driver,
			"mode":   s.cfg.Storage.Mode,
		},
		"has_token": hasToken,
	})
}

// --- Token ---

type setTokenRequest struct {
	Token string `json:"token"`
}

func (s *server) handleSetToken(w http.ResponseWriter, r *http.Request) {
	var req setTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.svc.SetToken(r.Context(), req.Token); err != nil {
		s.writeServiceError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Project list ---

func (s *server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.svc.ListProjects(r.Context())
	if err != nil {
		s.writeServiceError(w, err)

		return
	}

	if projects == nil {
		projects = []project.TrackedProject{}
	}

	writeJSON(w, http.StatusOK, projects)
}

func (s *server) handleDiscoverProjects(
	w http.ResponseWriter,
	r *http.Request,
) {
	added, err := s.svc.DiscoverProjects(r.Context())
	if err != nil {
		s.writeServiceError(w, err)

		return
	}

	if added == nil {
		added = []project.TrackedProject{}
	}

	writeJSON(w, http.StatusOK, added)
}

type reorderRequest struct {
	Projects []string `json:"projects"`
}

func (s *server) handleReorderProjects(
	w http.ResponseWriter,
	r *http.Request,
) {
	var req reorderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order := make([]project.Identity, 0, len(req.Projects))

	for _, raw := range req.Projects {
		id, err := project.ParseIdentity(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

			return
		}

		order = append(order, id)
	}

	if err := s.svc.ReorderProjects(r.Context(), order); err != nil {
		s.writeServiceError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Single project ---

type trackRequest struct {
	DefaultBranch string `json:"default_branch"`
}

func (s *server) handleTrackProject(w http.ResponseWriter, r *http.Request) {
	var req trackRequest

	// The body is optional.
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	tracked, err := s.svc.TrackProject(
		r.Context(), projectFromPath(r), req.DefaultBranch,
	)
	if err != nil {
		s.writeServiceError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, tracked)
}

type enabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req enabledRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id := projectFromPath(r)

	var err error
	if req.Enabled {
		err = s.svc.EnableProject(r.Context(), id)
	} else {
		err = s.svc.DisableProject(r.Context(), id)
	}

	s.writeUpdateResult(w, err)
}

type excludedRequest struct {
	Excluded bool `json:"excluded"`
}

func (s *server) handleSetExcluded(w http.ResponseWriter, r *http.Request) {
	var req excludedRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id := projectFromPath(r)

	var err error
	if req.Excluded {
		err = s.svc.ExcludeProject(r.Context(), id)
	} else {
		err = s.svc.IncludeProject(r.Context(), id)
	}

	s.writeUpdateResult(w, err)
}

type collapsedRequest struct {
	Collapsed bool `json:"collapsed"`
}

func (s *server) handleSetCollapsed(w http.ResponseWriter, r *http.Request) {
	var req collapsedRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s.writeUpdateResult(w,
		s.svc.SetCollapsed(r.Context(), projectFromPath(r), req.Collapsed))
}

type hiddenJobsRequest struct {
	HiddenJobs []string `json:"hidden_jobs"`
}

func (s *server) handleSetHiddenJobs(w http.ResponseWriter, r *http.Request) {
	var req hiddenJobsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s.writeUpdateResult(w,
		s.svc.SetHiddenJobs(r.Context(), projectFromPath(r), req.HiddenJobs))
}

// includeBuildJobsRequest carries a tri-state flag; null falls back to the
// configured default.
type includeBuildJobsRequest struct {
	IncludeBuildJobs *bool `json:"include_build_jobs"`
}

func (s *server) handleSetIncludeBuildJobs(
	w http.ResponseWriter,
	r *http.Request,
) {
	var req includeBuildJobsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s.writeUpdateResult(w, s.svc.SetIncludeBuildJobs(
		r.Context(), projectFromPath(r), req.IncludeBuildJobs,
	))
}

func (s *server) writeUpdateResult(w http.ResponseWriter, err error) {
	if err != nil {
		s.writeServiceError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleProjectData returns the persisted snapshot of a project. With
// ?visible=true the project's hidden jobs are left out.
func (s *server) handleProjectData(w http.ResponseWriter, r *http.Request) {
	id := projectFromPath(r)

	data, err := s.svc.GetProjectData(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)

		return
	}

	if r.URL.Query().Get("visible") == "true" {
		projects, err := s.svc.ListProjects(r.Context())
		if err != nil {
			s.writeServiceError(w, err)

			return
		}

		if idx := project.Find(projects, id); idx >= 0 {
			data = withoutHiddenJobs(data, &projects[idx])
		}
	}

	writeJSON(w, http.StatusOK, data)
}

// withoutHiddenJobs returns a copy of data without the jobs tp hides.
func withoutHiddenJobs(
	data *project.ProjectData,
	tp *project.TrackedProject,
) *project.ProjectData {
	if len(tp.HiddenJobs) == 0 {
		return data
	}

	out := *data
	out.Workflows = data.Workflows.Clone()

	for _, wf := range out.Workflows {
		jobs := wf.Jobs[:0]

		for _, job := range wf.Jobs {
			if !tp.IsHidden(job.Name) {
				jobs = append(jobs, job)
			}
		}

		wf.Jobs = jobs
	}

	return &out
}

func (s *server) handleSyncProject(w http.ResponseWriter, r *http.Request) {
	data, err := s.svc.SyncProject(r.Context(), projectFromPath(r))
	if err != nil {
		s.writeServiceError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, data)
}
