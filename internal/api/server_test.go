package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/printcast/internal/infrastructure/config"
	"github.com/nerrad567/printcast/internal/infrastructure/logging"
	"github.com/nerrad567/printcast/internal/journal"
	"github.com/nerrad567/printcast/internal/pipeline"
	"github.com/nerrad567/printcast/internal/stage"
)

type fakeStatus struct {
	report StatusReport
}

func (f *fakeStatus) Status() StatusReport { return f.report }

type fakeCheck struct{ err error }

func (f fakeCheck) HealthCheck(context.Context) error { return f.err }

type fakeJobs struct {
	mu          sync.Mutex
	jobs        []journal.Job
	transitions map[string][]journal.Transition
	err         error
	lastLimit   int
}

func (f *fakeJobs) RecentJobs(_ context.Context, limit int) ([]journal.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.jobs, nil
}

func (f *fakeJobs) Transitions(_ context.Context, id string) ([]journal.Transition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := f.transitions[id]
	if out == nil {
		out = []journal.Transition{}
	}
	return out, nil
}

func testServer(t *testing.T, jobs JobSource) *Server {
	t.Helper()

	status := &fakeStatus{report: StatusReport{
		Serial:         "SERIAL01",
		Printer:        "connected",
		OBSConnected:   true,
		OverlayReady:   true,
		LastStage:      stage.Printing.String(),
		Pipeline:       pipeline.Stats{Pushed: 10, Dropped: 2, Processed: 8},
		JournalEnabled: jobs != nil,
	}}

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		Logger:  logging.Discard(),
		Status:  status,
		Jobs:    jobs,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv
}

func doRequest(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{Status: &fakeStatus{}}); err == nil {
		t.Error("New() without logger succeeded")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without status source succeeded")
	}
}

func TestHealth(t *testing.T) {
	srv := testServer(t, nil)
	rec := doRequest(t, srv.buildRouter(), "/api/v1/health")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
}

func TestHealth_DependencyChecks(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]HealthChecker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "all healthy",
			checks:     map[string]HealthChecker{"printer": fakeCheck{}, "journal": fakeCheck{}},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"printer": "ok", "journal": "ok"},
		},
		{
			name: "metrics down",
			checks: map[string]HealthChecker{
				"printer": fakeCheck{},
				"metrics": fakeCheck{err: errors.New("influxdb not connected")},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
			wantChecks: map[string]string{"printer": "ok", "metrics": "influxdb not connected"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, nil)
			srv.checks = tt.checks
			rec := doRequest(t, srv.buildRouter(), "/api/v1/health")

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if len(body.Checks) != len(tt.wantChecks) {
				t.Fatalf("checks = %v, want %v", body.Checks, tt.wantChecks)
			}
			for name, want := range tt.wantChecks {
				if body.Checks[name] != want {
					t.Errorf("checks[%s] = %q, want %q", name, body.Checks[name], want)
				}
			}
		})
	}
}

func TestStatus_IncludesHealth(t *testing.T) {
	srv := testServer(t, nil)
	srv.checks = map[string]HealthChecker{
		"printer": fakeCheck{},
		"obs":     fakeCheck{err: errors.New("obs: not connected")},
	}
	rec := doRequest(t, srv.buildRouter(), "/api/v1/status")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got StatusReport
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Health["printer"] != "ok" || got.Health["obs"] != "obs: not connected" {
		t.Errorf("Health = %v", got.Health)
	}
}

func TestRequestID_Propagated(t *testing.T) {
	srv := testServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "abc123" {
		t.Errorf("X-Request-ID = %q, want abc123", got)
	}
}

func TestStatus(t *testing.T) {
	srv := testServer(t, nil)
	rec := doRequest(t, srv.buildRouter(), "/api/v1/status")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got StatusReport
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Printer != "connected" || !got.OverlayReady || got.LastStage != "Printing" {
		t.Errorf("status = %+v", got)
	}
	if got.Pipeline.Dropped != 2 {
		t.Errorf("Pipeline.Dropped = %d, want 2", got.Pipeline.Dropped)
	}
}

func TestListJobs_JournalDisabled(t *testing.T) {
	srv := testServer(t, nil)
	rec := doRequest(t, srv.buildRouter(), "/api/v1/jobs")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"jobs":[]`) {
		t.Errorf("body = %s, want empty jobs array", rec.Body.String())
	}
}

func TestListJobs(t *testing.T) {
	weight := 12.5
	jobs := &fakeJobs{jobs: []journal.Job{
		{ID: "job-1", SubtaskName: "benchy", StartedAt: time.Now(), WeightGrams: &weight},
	}}
	srv := testServer(t, jobs)

	tests := []struct {
		name      string
		path      string
		wantCode  int
		wantLimit int
	}{
		{"default limit", "/api/v1/jobs", http.StatusOK, 0},
		{"explicit limit", "/api/v1/jobs?limit=5", http.StatusOK, 5},
		{"zero limit", "/api/v1/jobs?limit=0", http.StatusBadRequest, -1},
		{"garbage limit", "/api/v1/jobs?limit=abc", http.StatusBadRequest, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs.mu.Lock()
			jobs.lastLimit = -1
			jobs.mu.Unlock()

			rec := doRequest(t, srv.buildRouter(), tt.path)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}

			jobs.mu.Lock()
			defer jobs.mu.Unlock()
			if jobs.lastLimit != tt.wantLimit {
				t.Errorf("limit passed = %d, want %d", jobs.lastLimit, tt.wantLimit)
			}
		})
	}
}

func TestListJobs_RepositoryError(t *testing.T) {
	srv := testServer(t, &fakeJobs{err: errors.New("disk full")})
	rec := doRequest(t, srv.buildRouter(), "/api/v1/jobs")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "disk full") {
		t.Error("internal error detail leaked to client")
	}
}

func TestJobTransitions(t *testing.T) {
	jobs := &fakeJobs{transitions: map[string][]journal.Transition{
		"job-1": {{ID: 1, JobID: "job-1", From: stage.Idle, To: stage.Printing}},
	}}
	srv := testServer(t, jobs)

	rec := doRequest(t, srv.buildRouter(), "/api/v1/jobs/job-1/transitions")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		JobID       string               `json:"job_id"`
		Transitions []journal.Transition `json:"transitions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.JobID != "job-1" || len(body.Transitions) != 1 {
		t.Errorf("body = %+v", body)
	}
}

func TestJobTransitions_JournalDisabled(t *testing.T) {
	srv := testServer(t, nil)
	rec := doRequest(t, srv.buildRouter(), "/api/v1/jobs/job-1/transitions")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestPanelMounted(t *testing.T) {
	srv := testServer(t, nil)

	rec := doRequest(t, srv.buildRouter(), "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /: status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<!DOCTYPE html>") {
		t.Error("GET /: status page not served")
	}

	rec = doRequest(t, srv.buildRouter(), "/api/v1/nope")
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /api/v1/nope: status = %d, want 404", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := testServer(t, nil)
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := doRequest(t, h, "/")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestServer_StartAndClose(t *testing.T) {
	srv := testServer(t, nil)

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer srv.Close()

	resp, err := http.Get("http://" + srv.Addr().String() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestWebSocket_SubscribeAndBroadcast(t *testing.T) {
	srv := testServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.hub.Run(ctx)

	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()

	sub := WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: WSSubscribePayload{Channels: []string{ChannelStatus}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("reading subscribe response: %v", err)
	}
	if resp.Type != WSTypeResponse || resp.ID != "1" {
		t.Fatalf("response = %+v", resp)
	}

	// Only the subscribed channel is delivered.
	srv.Broadcast(ChannelJob, map[string]string{"subtask_name": "ignored"})
	srv.Broadcast(ChannelStatus, map[string]int{"percent": 42})

	var event WSMessage
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("reading event: %v", err)
	}
	if event.Type != WSTypeEvent || event.EventType != ChannelStatus {
		t.Fatalf("event = %+v", event)
	}
	payload, ok := event.Payload.(map[string]any)
	if !ok || payload["percent"] != float64(42) {
		t.Errorf("payload = %v", event.Payload)
	}
}

func TestWebSocket_InvalidMessage(t *testing.T) {
	srv := testServer(t, nil)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if resp.Type != WSTypeError {
		t.Errorf("Type = %q, want %q", resp.Type, WSTypeError)
	}
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	h := NewHub(logging.Discard())
	h.Broadcast(ChannelStatus, map[string]int{"percent": 1})
	if h.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", h.ClientCount())
	}
}
