package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/finsight/riskdash-back/internal/domain"
	"github.com/finsight/riskdash-back/internal/http/middleware"
	"github.com/finsight/riskdash-back/internal/metrics"
	"github.com/finsight/riskdash-back/internal/session"
)

var errInvalidPayload = errors.New("invalid payload")

type API struct {
	sessions *session.Registry
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewAPI(sessions *session.Registry, m *metrics.Metrics, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		sessions: sessions,
		metrics:  m,
		logger:   logger,
	}
}

// sessionFor resolves the caller's session from the verified principal.
// Routes reaching here sit behind the auth middleware, so a missing
// principal is a wiring bug, not a client error.
func (api *API) sessionFor(r *http.Request) (*session.Session, bool) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		return nil, false
	}
	return api.sessions.For(principal), true
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

func decodeJSON(r *http.Request, value any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(value); err != nil {
		return errInvalidPayload
	}
	return nil
}

func parsePeriodParam(r *http.Request) (domain.PeriodType, bool) {
	raw := r.URL.Query().Get("period_type")
	if raw == "" {
		return domain.PeriodAnnual, true
	}
	return domain.ParsePeriodType(raw)
}
