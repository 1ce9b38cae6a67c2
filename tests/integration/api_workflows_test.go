package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/finsight/riskdash-back/internal/events"
	httpserver "github.com/finsight/riskdash-back/internal/http"
	"github.com/finsight/riskdash-back/internal/http/handlers"
	"github.com/finsight/riskdash-back/internal/metrics"
	"github.com/finsight/riskdash-back/internal/platform"
	"github.com/finsight/riskdash-back/internal/predcache"
	"github.com/finsight/riskdash-back/internal/repository"
	"github.com/finsight/riskdash-back/internal/session"
	"github.com/finsight/riskdash-back/internal/tracker"
)

const integrationSecret = "integration-secret"

const annualCSV = "stock_symbol,company_name,sector,reporting_year,debt_to_equity,current_ratio,interest_coverage,return_on_assets,net_profit_margin\nACME,Acme Corp,Tech,2024,1.2,1.5,3.0,0.08,0.12\n"

// fakePlatform is a minimal stand-in for the scoring platform API.
type fakePlatform struct {
	mu      sync.Mutex
	jobs    []map[string]any
	uploads int
}

func (p *fakePlatform) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/bulk-uploads", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.uploads++
		jobID := fmt.Sprintf("job-%d", p.uploads)
		p.jobs = append(p.jobs, map[string]any{
			"job_id": jobID,
			"status": "queued",
		})
		p.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"job_id":"` + jobID + `","task_id":"task-1","estimated_time_minutes":2,"total_rows":1}`))
	})
	mux.HandleFunc("/v1/bulk-uploads/jobs", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jobs": p.jobs})
	})
	mux.HandleFunc("/v1/predictions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			var prediction map[string]any
			_ = json.NewDecoder(r.Body).Decode(&prediction)
			prediction["id"] = "server-1"
			_ = json.NewEncoder(w).Encode(prediction)
			return
		}
		scope := r.URL.Query().Get("scope")
		items := []map[string]any{}
		if scope == "user" && r.URL.Query().Get("period_type") == "annual" {
			items = append(items, map[string]any{
				"id":                  "p1",
				"company_symbol":      "ACME",
				"company_name":        "Acme Corp",
				"risk_level":          "LOW",
				"organization_access": "personal",
				"created_by":          "user-1",
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": items,
			"total": len(items),
			"pages": 1,
		})
	})
	return mux
}

type runtime struct {
	server   *httptest.Server
	upstream *httptest.Server
	sessions *session.Registry
}

func startRuntime(t *testing.T) runtime {
	t.Helper()

	upstream := httptest.NewServer((&fakePlatform{}).handler())
	t.Cleanup(upstream.Close)

	client := platform.NewHTTPClient(platform.HTTPClientConfig{
		BaseURL: upstream.URL,
		APIKey:  "service-key",
	})
	repo := repository.NewMemoryUploadJobsRepository()
	bus := events.NewLocalBus(64, nil)
	logger := zap.NewNop()

	sessions := session.NewRegistry(client, repo, bus, logger, session.RegistryConfig{
		Tracker: tracker.Config{PollInterval: time.Hour},
		Cache:   predcache.Config{},
	})
	t.Cleanup(sessions.Close)

	api := handlers.NewAPI(sessions, metrics.New(), logger)
	router := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		JWTSecret:      integrationSecret,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return runtime{server: server, upstream: upstream, sessions: sessions}
}

func bearerToken(t *testing.T, userID, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(integrationSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, method, url, token string, body *bytes.Buffer, contentType string) (*http.Response, map[string]any) {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	request, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()

	decoded := map[string]any{}
	_ = json.NewDecoder(response.Body).Decode(&decoded)
	return response, decoded
}

func multipartUpload(t *testing.T, content, jobType string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "annual.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.WriteField("job_type", jobType); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHealthEndpointIsPublic(t *testing.T) {
	rt := startRuntime(t)

	response, decoded := doJSON(t, http.MethodGet, rt.server.URL+"/healthz", "", nil, "")
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}
	if decoded["status"] != "ok" {
		t.Fatalf("unexpected body: %v", decoded)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	rt := startRuntime(t)

	response, _ := doJSON(t, http.MethodGet, rt.server.URL+"/v1/uploads/jobs", "", nil, "")
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", response.StatusCode)
	}
}

func TestUploadWorkflow(t *testing.T) {
	rt := startRuntime(t)
	token := bearerToken(t, "user-1", "user")

	body, contentType := multipartUpload(t, annualCSV, "annual")
	response, decoded := doJSON(t, http.MethodPost, rt.server.URL+"/v1/uploads", token, body, contentType)
	if response.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %v", response.StatusCode, decoded)
	}
	job, ok := decoded["job"].(map[string]any)
	if !ok {
		t.Fatalf("no job in response: %v", decoded)
	}
	if job["id"] != "job-1" || job["status"] != "queued" {
		t.Fatalf("unexpected job: %v", job)
	}

	listResponse, listDecoded := doJSON(t, http.MethodGet, rt.server.URL+"/v1/uploads/jobs", token, nil, "")
	if listResponse.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", listResponse.StatusCode)
	}
	jobs, ok := listDecoded["jobs"].([]any)
	if !ok || len(jobs) != 1 {
		t.Fatalf("expected one listed job: %v", listDecoded)
	}
}

func TestUploadRejectsInvalidCSV(t *testing.T) {
	rt := startRuntime(t)
	token := bearerToken(t, "user-1", "user")

	missingColumn := strings.Replace(annualCSV, "return_on_assets,", "", 1)
	missingColumn = strings.Replace(missingColumn, "0.08,", "", 1)
	body, contentType := multipartUpload(t, missingColumn, "annual")

	response, decoded := doJSON(t, http.MethodPost, rt.server.URL+"/v1/uploads", token, body, contentType)
	if response.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %v", response.StatusCode, decoded)
	}
	errBody, ok := decoded["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error payload: %v", decoded)
	}
	message, _ := errBody["message"].(string)
	if !strings.Contains(message, "return_on_assets") {
		t.Fatalf("message must name the missing column: %q", message)
	}
}

func TestPredictionsWorkflow(t *testing.T) {
	rt := startRuntime(t)
	token := bearerToken(t, "user-1", "user")

	response, decoded := doJSON(t, http.MethodGet, rt.server.URL+"/v1/predictions?period_type=annual", token, nil, "")
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", response.StatusCode, decoded)
	}
	if decoded["filter"] != "personal" {
		t.Fatalf("user default filter must be personal, got %v", decoded["filter"])
	}
	predictions, ok := decoded["predictions"].([]any)
	if !ok || len(predictions) != 1 {
		t.Fatalf("expected one cached prediction: %v", decoded)
	}

	filterBody := bytes.NewBufferString(`{"filter":"all"}`)
	filterResponse, filterDecoded := doJSON(t, http.MethodPut, rt.server.URL+"/v1/predictions/filter", token, filterBody, "application/json")
	if filterResponse.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", filterResponse.StatusCode)
	}
	if filterDecoded["filter"] != "all" {
		t.Fatalf("filter not applied: %v", filterDecoded)
	}
}

func TestCreatePredictionReturnsServerRecord(t *testing.T) {
	rt := startRuntime(t)
	token := bearerToken(t, "user-1", "user")

	payload := bytes.NewBufferString(`{
		"company_symbol": "ACME",
		"company_name": "Acme Corp",
		"reporting_year": "2024",
		"period_type": "annual"
	}`)
	response, decoded := doJSON(t, http.MethodPost, rt.server.URL+"/v1/predictions", token, payload, "application/json")
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", response.StatusCode, decoded)
	}
	prediction, ok := decoded["prediction"].(map[string]any)
	if !ok {
		t.Fatalf("no prediction in response: %v", decoded)
	}
	if prediction["id"] != "server-1" {
		t.Fatalf("expected server-assigned id, got %v", prediction["id"])
	}
}
