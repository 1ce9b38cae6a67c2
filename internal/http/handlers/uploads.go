package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/finsight/riskdash-back/internal/domain"
	"github.com/finsight/riskdash-back/internal/reportfile"
	"github.com/finsight/riskdash-back/internal/tracker"
)

const maxUploadBytes = 32 << 20

// SubmitUpload accepts a multipart form with a "file" part and a
// "job_type" field, validates the report structurally and hands it to
// the caller's tracker.
func (api *API) SubmitUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := api.sessionFor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "expected a multipart form with a file")
		return
	}

	jobType, ok := domain.ParseJobType(r.FormValue("job_type"))
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "job_type must be annual or quarterly")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "file is required")
		return
	}
	defer file.Close()

	result, err := reportfile.Validate(header.Filename, file, jobType)
	if err != nil {
		if api.metrics != nil {
			api.metrics.UploadsRejected.WithLabelValues(rejectionReason(err)).Inc()
		}
		if validationErr, ok := reportfile.AsValidationError(err); ok {
			writeError(w, r, http.StatusUnprocessableEntity, "validation_failed", validationErr.Error())
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid_request", "could not read the uploaded file")
		return
	}

	// Validate consumed the stream; rewind before handing it upstream.
	if _, err := file.Seek(0, 0); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to process upload")
		return
	}

	job, err := sess.Tracker.Submit(r.Context(), tracker.SubmitInput{
		Filename:  header.Filename,
		SizeBytes: header.Size,
		JobType:   jobType,
		Content:   file,
	})
	if err != nil {
		api.logger.Warn("bulk upload submission failed",
			zap.String("user_id", sess.Principal.UserID),
			zap.Error(err),
		)
		writeError(w, r, http.StatusBadGateway, "upstream_error", "the scoring service rejected the upload")
		return
	}

	if api.metrics != nil {
		api.metrics.UploadsSubmitted.WithLabelValues(string(jobType)).Inc()
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job":       job,
		"data_rows": result.DataRows,
	})
}

func rejectionReason(err error) string {
	validationErr, ok := reportfile.AsValidationError(err)
	if !ok {
		return "unreadable"
	}
	switch {
	case len(validationErr.MissingColumns) > 0:
		return "missing_columns"
	case validationErr.RowCount > reportfile.MaxDataRows:
		return "too_many_rows"
	case strings.Contains(validationErr.Reason, "empty"):
		return "empty"
	default:
		return "invalid"
	}
}