package guardianeye

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthenticateStoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/auth/token" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		var creds Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			t.Fatalf("unexpected body: %v", err)
		}
		if creds.GrantType != "password" || creds.Username != "analyst" {
			t.Fatalf("unexpected credentials: %+v", creds)
		}
		_ = json.NewEncoder(w).Encode(Token{
			AccessToken: "abc123",
			TokenType:   "Bearer",
			ExpiresIn:   3600,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())

	_, err := client.Authenticate(context.Background(), "analyst", "secret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	if got := client.AccessToken(); got != "abc123" {
		t.Fatalf("expected token abc123, got %q", got)
	}
}

func TestExecuteSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/execute" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Fatalf("expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		_ = json.NewEncoder(w).Encode(ExecuteResponse{
			Result:        "triage complete",
			ExecutionPath: []string{"main_router", "security_ops_team", "incident_triage"},
			SessionID:     "sess-1",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())
	client.SetAccessToken("token")

	resp, err := client.Execute(context.Background(), ExecuteRequest{Query: "triage this alert"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resp.Result != "triage complete" || len(resp.ExecutionPath) != 3 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestJobLifecycleEndpoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/jobs" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(Job{ID: "job-1", Status: "pending"})
		case r.URL.Path == "/api/v1/jobs" && r.Method == http.MethodGet:
			if r.URL.Query().Get("status") != "pending,running" {
				t.Fatalf("unexpected status filter: %s", r.URL.Query().Get("status"))
			}
			_ = json.NewEncoder(w).Encode([]Job{{ID: "job-1", Status: "pending"}})
		case r.URL.Path == "/api/v1/jobs/stats":
			_ = json.NewEncoder(w).Encode(JobStats{Total: 1, Pending: 1})
		case r.URL.Path == "/api/v1/jobs/job-1":
			_ = json.NewEncoder(w).Encode(Job{ID: "job-1", Status: "succeeded", Result: &JobResult{Result: "done"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())
	ctx := context.Background()

	submitted, err := client.SubmitJob(ctx, JobSubmission{Query: "hunt for iocs"})
	if err != nil {
		t.Fatalf("submit job: %v", err)
	}
	if submitted.ID != "job-1" {
		t.Fatalf("unexpected job id: %s", submitted.ID)
	}

	jobs, err := client.ListJobs(ctx, ListJobsOptions{Statuses: []string{"pending", "running"}})
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("unexpected job count: %d", len(jobs))
	}

	stats, err := client.JobStats(ctx)
	if err != nil {
		t.Fatalf("job stats: %v", err)
	}
	if stats.Total != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	job, err := client.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != "succeeded" || job.Result == nil || job.Result.Result != "done" {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestAPIErrorFromPlainTextBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "query 不能为空", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())

	_, err := client.Execute(context.Background(), ExecuteRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message == "" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}
