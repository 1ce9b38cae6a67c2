package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/finsight/riskdash-back/internal/domain"
)

// ErrUnauthorized signals a 401 from the platform. Callers treat it as
// transient: cached state is kept and the request is retried after token
// renewal.
var ErrUnauthorized = errors.New("platform authentication rejected")

type HTTPClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

// HTTPClient talks to the prediction platform REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	maxRetries int
	httpClient *http.Client
}

func NewHTTPClient(config HTTPClientConfig) *HTTPClient {
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = "http://localhost:9000"
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 2
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}

	return &HTTPClient{
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		apiKey:     strings.TrimSpace(config.APIKey),
		timeout:    config.Timeout,
		maxRetries: config.MaxRetries,
		httpClient: config.HTTPClient,
	}
}

// SubmitBulkUpload is never retried: a duplicate submission would create a
// duplicate job upstream. Failures surface synchronously to the caller.
func (c *HTTPClient) SubmitBulkUpload(ctx context.Context, submission UploadSubmission) (UploadAck, error) {
	if submission.Content == nil {
		return UploadAck{}, errors.New("upload content is required")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", submission.Filename)
	if err != nil {
		return UploadAck{}, fmt.Errorf("create upload part: %w", err)
	}
	if _, err := io.Copy(part, submission.Content); err != nil {
		return UploadAck{}, fmt.Errorf("copy upload content: %w", err)
	}
	if err := writer.WriteField("job_type", string(submission.JobType)); err != nil {
		return UploadAck{}, fmt.Errorf("write job_type field: %w", err)
	}
	if err := writer.WriteField("user_id", submission.UserID); err != nil {
		return UploadAck{}, fmt.Errorf("write user_id field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return UploadAck{}, fmt.Errorf("finish multipart body: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpRequest, err := http.NewRequestWithContext(
		timeoutCtx,
		http.MethodPost,
		c.baseURL+"/v1/bulk-uploads",
		&body,
	)
	if err != nil {
		return UploadAck{}, fmt.Errorf("create upload request: %w", err)
	}
	httpRequest.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpRequest.Header.Set("Content-Type", writer.FormDataContentType())

	var ack UploadAck
	if err := c.execute(httpRequest, &ack); err != nil {
		return UploadAck{}, err
	}
	if strings.TrimSpace(ack.JobID) == "" {
		return UploadAck{}, errors.New("platform acknowledged upload without a job id")
	}
	return ack, nil
}

func (c *HTTPClient) ListJobs(ctx context.Context, query ListJobsQuery) ([]JobRecord, error) {
	if query.Limit <= 0 {
		query.Limit = 50
	}
	values := url.Values{}
	values.Set("limit", strconv.Itoa(query.Limit))
	values.Set("offset", strconv.Itoa(query.Offset))
	if query.UserID != "" {
		values.Set("user_id", query.UserID)
	}

	var response struct {
		Jobs []JobRecord `json:"jobs"`
	}
	err := c.getJSON(ctx, "/v1/bulk-uploads/jobs?"+values.Encode(), &response)
	if err != nil {
		return nil, err
	}
	return response.Jobs, nil
}

// GetJobStatus hits the single-job endpoint. The platform serves it from a
// cache that lags the list endpoint; use ListJobs for anything that matters.
func (c *HTTPClient) GetJobStatus(ctx context.Context, jobID string) (JobRecord, error) {
	var record JobRecord
	err := c.getJSON(ctx, "/v1/bulk-uploads/jobs/"+url.PathEscape(jobID), &record)
	return record, err
}

func (c *HTTPClient) CancelJob(ctx context.Context, jobID string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/bulk-uploads/jobs/"+url.PathEscape(jobID)+"/cancel", nil, nil)
}

func (c *HTTPClient) DeleteJob(ctx context.Context, jobID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/bulk-uploads/jobs/"+url.PathEscape(jobID), nil, nil)
}

func (c *HTTPClient) FetchPredictions(ctx context.Context, query PredictionQuery) (PredictionPage, error) {
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.Size <= 0 {
		query.Size = 100
	}
	values := url.Values{}
	values.Set("scope", string(query.Scope))
	values.Set("period_type", string(query.PeriodType))
	values.Set("page", strconv.Itoa(query.Page))
	values.Set("size", strconv.Itoa(query.Size))
	if query.UserID != "" {
		values.Set("user_id", query.UserID)
	}
	if query.OrganizationID != "" {
		values.Set("organization_id", query.OrganizationID)
	}
	if query.TenantID != "" {
		values.Set("tenant_id", query.TenantID)
	}

	var page PredictionPage
	err := c.getJSON(ctx, "/v1/predictions?"+values.Encode(), &page)
	return page, err
}

func (c *HTTPClient) CreatePrediction(ctx context.Context, prediction domain.Prediction) (domain.Prediction, error) {
	var created domain.Prediction
	err := c.doJSON(ctx, http.MethodPost, "/v1/predictions", prediction, &created)
	return created, err
}

func (c *HTTPClient) DeletePrediction(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/predictions/"+url.PathEscape(id), nil, nil)
}

func (c *HTTPClient) ListTenantOrganizations(ctx context.Context, tenantID string) ([]Organization, error) {
	var response struct {
		Items []Organization `json:"items"`
	}
	err := c.getJSON(ctx, "/v1/tenants/"+url.PathEscape(tenantID)+"/organizations", &response)
	if err != nil {
		return nil, err
	}
	return response.Items, nil
}

// getJSON retries idempotent reads on rate limits and server errors with a
// short linear backoff.
func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		callErr := c.doJSON(ctx, http.MethodGet, path, nil, out)
		if callErr == nil {
			return nil
		}
		lastErr = callErr

		if !isRetryableAPIError(callErr) || attempt == c.maxRetries {
			break
		}

		backoff := time.Duration(300*(attempt+1)) * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, in, out any) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal platform payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	httpRequest, err := http.NewRequestWithContext(timeoutCtx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create platform request: %w", err)
	}
	httpRequest.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpRequest.Header.Set("Accept", "application/json")
	if in != nil {
		httpRequest.Header.Set("Content-Type", "application/json")
	}

	return c.execute(httpRequest, out)
}

func (c *HTTPClient) execute(httpRequest *http.Request, out any) error {
	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("platform timeout: %w", err)
		}
		return fmt.Errorf("platform transport error: %w", err)
	}
	defer httpResponse.Body.Close()

	responseBody, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return fmt.Errorf("read platform response: %w", err)
	}

	if httpResponse.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if httpResponse.StatusCode < 200 || httpResponse.StatusCode > 299 {
		message := strings.TrimSpace(string(responseBody))
		if len(message) > 700 {
			message = message[:700]
		}
		return &APIError{StatusCode: httpResponse.StatusCode, Message: message}
	}

	if out == nil || len(responseBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("decode platform response: %w", err)
	}
	return nil
}

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform status %d: %s", e.StatusCode, e.Message)
}

func isRetryableAPIError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "timeout") || strings.Contains(message, "tempor")
}
