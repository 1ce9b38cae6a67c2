package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/finsight/riskdash-back/internal/repository"
	"github.com/finsight/riskdash-back/internal/tracker"
)

func (api *API) ListJobs(w http.ResponseWriter, r *http.Request) {
	sess, ok := api.sessionFor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	jobs, err := sess.Tracker.Jobs(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":    jobs,
		"polling": sess.Tracker.Polling(),
	})
}

func (api *API) GetJob(w http.ResponseWriter, r *http.Request) {
	sess, ok := api.sessionFor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	job, err := sess.Tracker.Job(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "job not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (api *API) CancelJob(w http.ResponseWriter, r *http.Request) {
	sess, ok := api.sessionFor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	err := sess.Tracker.Cancel(r.Context(), chi.URLParam(r, "jobID"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, tracker.ErrNotCancellable):
		writeError(w, r, http.StatusConflict, "not_cancellable", "only a processing job can be cancelled")
	default:
		writeError(w, r, http.StatusBadGateway, "upstream_error", "the scoring service failed to cancel the job")
	}
}

func (api *API) DeleteJob(w http.ResponseWriter, r *http.Request) {
	sess, ok := api.sessionFor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	err := sess.Tracker.Delete(r.Context(), chi.URLParam(r, "jobID"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, tracker.ErrJobProcessing):
		writeError(w, r, http.StatusConflict, "job_processing", "a processing job cannot be deleted")
	default:
		writeError(w, r, http.StatusBadGateway, "upstream_error", "the scoring service failed to delete the job")
	}
}
