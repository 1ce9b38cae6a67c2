package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/finsight/riskdash-back/internal/domain"
)

func TestSubmitBulkUploadSendsMultipartForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/bulk-uploads" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("job_type"); got != "annual" {
			t.Fatalf("job_type = %q", got)
		}
		if got := r.FormValue("user_id"); got != "user-1" {
			t.Fatalf("user_id = %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "annual.csv" {
			t.Fatalf("filename = %q", header.Filename)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"job_id":"job-9","task_id":"task-9","estimated_time_minutes":3,"total_rows":12}`))
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPClientConfig{BaseURL: server.URL, APIKey: "key"})
	ack, err := client.SubmitBulkUpload(context.Background(), UploadSubmission{
		UserID:   "user-1",
		JobType:  domain.JobTypeAnnual,
		Filename: "annual.csv",
		Size:     4,
		Content:  strings.NewReader("data"),
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if ack.JobID != "job-9" || ack.TotalRows != 12 {
		t.Fatalf("unexpected ack: %+v", ack)
	}
}

func TestSubmitBulkUploadIsNeverRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPClientConfig{BaseURL: server.URL, MaxRetries: 3})
	_, err := client.SubmitBulkUpload(context.Background(), UploadSubmission{
		JobType:  domain.JobTypeAnnual,
		Filename: "annual.csv",
		Content:  strings.NewReader("data"),
	})
	if err == nil {
		t.Fatal("expected submit error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("submit must not retry, got %d calls", got)
	}
}

func TestListJobsRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jobs":[{"job_id":"job-1","status":"processing"}]}`))
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPClientConfig{BaseURL: server.URL, MaxRetries: 3})
	jobs, err := client.ListJobs(context.Background(), ListJobsQuery{UserID: "user-1"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].JobID != "job-1" {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestListJobsDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad query"))
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPClientConfig{BaseURL: server.URL, MaxRetries: 3})
	_, err := client.ListJobs(context.Background(), ListJobsQuery{})
	if err == nil {
		t.Fatal("expected list error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected APIError 400, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("client errors must not retry, got %d calls", got)
	}
}

func TestUnauthorizedIsTypedAndNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPClientConfig{BaseURL: server.URL, MaxRetries: 3})
	_, err := client.FetchPredictions(context.Background(), PredictionQuery{
		Scope:      ScopeUser,
		PeriodType: domain.PeriodAnnual,
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("401 must not retry, got %d calls", got)
	}
}

func TestFetchPredictionsSendsScopeAndPeriod(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("scope") != "system" || query.Get("period_type") != "quarterly" {
			t.Fatalf("unexpected query: %v", query)
		}
		if query.Get("page") != "1" || query.Get("size") != "100" {
			t.Fatalf("pagination defaults missing: %v", query)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"id":"p1","company_symbol":"ACME","risk_level":"LOW"}],"total":1,"pages":1}`))
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPClientConfig{BaseURL: server.URL})
	page, err := client.FetchPredictions(context.Background(), PredictionQuery{
		Scope:      ScopeSystem,
		PeriodType: domain.PeriodQuarterly,
	})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "p1" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestCancelJobHitsCancelEndpoint(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.Method + " " + r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPClientConfig{BaseURL: server.URL})
	if err := client.CancelJob(context.Background(), "job-1"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if path != "POST /v1/bulk-uploads/jobs/job-1/cancel" {
		t.Fatalf("unexpected request: %q", path)
	}
}

func TestRequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPClientConfig{
		BaseURL:    server.URL,
		Timeout:    20 * time.Millisecond,
		MaxRetries: 1,
	})
	if err := client.DeleteJob(context.Background(), "job-1"); err == nil {
		t.Fatal("expected timeout error")
	}
}
