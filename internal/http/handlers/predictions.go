package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finsight/riskdash-back/internal/domain"
	"github.com/finsight/riskdash-back/internal/platform"
)

// ListPredictions returns the cached predictions for the requested
// period, narrowed by the active data filter. The cache refreshes itself
// when stale; an upstream failure serves whatever was cached before and
// reports the error alongside.
func (api *API) ListPredictions(w http.ResponseWriter, r *http.Request) {
	sess, ok := api.sessionFor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	period, ok := parsePeriodParam(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "period_type must be annual or quarterly")
		return
	}

	start := time.Now()
	err := sess.Cache.Refresh(r.Context(), false)
	api.observeRefresh(start, err)
	if err != nil && !sess.Cache.Populated() && !errors.Is(err, platform.ErrUnauthorized) {
		writeError(w, r, http.StatusBadGateway, "upstream_error", "failed to load predictions")
		return
	}

	items := sess.Cache.Filtered(period)
	writeJSON(w, http.StatusOK, map[string]any{
		"predictions": items,
		"total":       len(items),
		"filter":      sess.Cache.ActiveFilter(),
		"error":       sess.Cache.LastError(),
	})
}

// RefreshPredictions forces a refetch regardless of freshness.
func (api *API) RefreshPredictions(w http.ResponseWriter, r *http.Request) {
	sess, ok := api.sessionFor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	start := time.Now()
	err := sess.Cache.Refresh(r.Context(), true)
	api.observeRefresh(start, err)
	if err != nil && !errors.Is(err, platform.ErrUnauthorized) && !sess.Cache.Populated() {
		writeError(w, r, http.StatusBadGateway, "upstream_error", "failed to refresh predictions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"refreshed": err == nil,
		"filter":    sess.Cache.ActiveFilter(),
		"error":     sess.Cache.LastError(),
	})
}

type filterRequest struct {
	Filter string `json:"filter"`
}

func (api *API) SetPredictionFilter(w http.ResponseWriter, r *http.Request) {
	sess, ok := api.sessionFor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var request filterRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid payload")
		return
	}
	filter, ok := domain.ParseDataFilter(request.Filter)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "filter must be personal, organization, all or system")
		return
	}

	sess.Cache.SetFilter(filter)
	writeJSON(w, http.StatusOK, map[string]any{"filter": sess.Cache.ActiveFilter()})
}

type createPredictionRequest struct {
	CompanyID        string             `json:"company_id"`
	CompanySymbol    string             `json:"company_symbol"`
	CompanyName      string             `json:"company_name"`
	Sector           string             `json:"sector"`
	ReportingYear    string             `json:"reporting_year"`
	ReportingQuarter string             `json:"reporting_quarter"`
	PeriodType       string             `json:"period_type"`
	Metrics          map[string]float64 `json:"financial_metrics"`
}

// CreatePrediction scores a single company. The entry shows up in the
// cache immediately under a temporary id and is swapped in place once the
// platform assigns the real one, so the row never jumps position.
func (api *API) CreatePrediction(w http.ResponseWriter, r *http.Request) {
	sess, ok := api.sessionFor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var request createPredictionRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid payload")
		return
	}
	period, ok := domain.ParsePeriodType(request.PeriodType)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "period_type must be annual or quarterly")
		return
	}
	if request.CompanySymbol == "" || request.CompanyName == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "company_symbol and company_name are required")
		return
	}

	temporary := domain.Prediction{
		ID:                 "temp-" + uuid.NewString(),
		CompanyID:          request.CompanyID,
		CompanySymbol:      request.CompanySymbol,
		CompanyName:        request.CompanyName,
		Sector:             request.Sector,
		ReportingYear:      request.ReportingYear,
		ReportingQuarter:   request.ReportingQuarter,
		Metrics:            request.Metrics,
		OrganizationAccess: domain.AccessPersonal,
		OrganizationID:     sess.Principal.OrganizationID,
		CreatedBy:          sess.Principal.UserID,
		CreatedAt:          time.Now().UTC(),
	}
	sess.Cache.Add(temporary, period)

	created, err := api.sessions.Client().CreatePrediction(r.Context(), temporary)
	if err != nil {
		sess.Cache.Remove(temporary.ID, period)
		api.logger.Warn("prediction creation failed",
			zap.String("user_id", sess.Principal.UserID),
			zap.Error(err),
		)
		writeError(w, r, http.StatusBadGateway, "upstream_error", "the scoring service rejected the prediction")
		return
	}

	sess.Cache.Replace(created, period, temporary.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"prediction": created})
}

func (api *API) DeletePrediction(w http.ResponseWriter, r *http.Request) {
	sess, ok := api.sessionFor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	period, ok := parsePeriodParam(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "period_type must be annual or quarterly")
		return
	}
	id := chi.URLParam(r, "predictionID")

	if err := api.sessions.Client().DeletePrediction(r.Context(), id); err != nil {
		writeError(w, r, http.StatusBadGateway, "upstream_error", "the scoring service failed to delete the prediction")
		return
	}
	sess.Cache.Remove(id, period)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (api *API) observeRefresh(start time.Time, err error) {
	if api.metrics == nil {
		return
	}
	api.metrics.CacheRefreshSeconds.Observe(time.Since(start).Seconds())
	outcome := "ok"
	switch {
	case errors.Is(err, platform.ErrUnauthorized):
		outcome = "unauthorized"
		api.metrics.UpstreamUnauthorized.Inc()
	case err != nil:
		outcome = "error"
	}
	api.metrics.CacheRefreshes.WithLabelValues(outcome).Inc()
}
