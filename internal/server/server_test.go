package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hydrosolve/gwcalib/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dataDir := t.TempDir()
	st, err := store.NewFSStore(dataDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return NewServer(":8080", st, dataDir)
}

func TestServer_CreateRun(t *testing.T) {
	casePath := writeTestCase(t)
	s := newTestServer(t)

	config := RunConfig{CasePath: casePath}
	body, _ := json.Marshal(config)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleCreateRun(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", w.Code)
	}

	var job Job
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if job.ID == "" {
		t.Error("Run ID should not be empty")
	}

	// State should be pending or running (since worker starts immediately)
	if job.State != StatePending && job.State != StateRunning {
		t.Errorf("Expected pending or running state, got %s", job.State)
	}
}

func TestServer_CreateRunValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid JSON", "{not json"},
		{"missing case path", `{}`},
		{"negative starts", `{"casePath": "case.yaml", "starts": -1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewReader([]byte(tt.body)))
			w := httptest.NewRecorder()

			s.handleCreateRun(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
		})
	}
}

func TestServer_ListRuns(t *testing.T) {
	s := newTestServer(t)

	// Create two jobs directly, without starting workers
	s.jobManager.CreateJob(RunConfig{CasePath: "case1.yaml"})
	s.jobManager.CreateJob(RunConfig{CasePath: "case2.yaml"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	w := httptest.NewRecorder()

	s.handleListRuns(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var jobs []*Job
	if err := json.NewDecoder(w.Body).Decode(&jobs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if len(jobs) != 2 {
		t.Errorf("Expected 2 runs, got %d", len(jobs))
	}
}

func TestServer_GetRunStatus(t *testing.T) {
	s := newTestServer(t)

	job := s.jobManager.CreateJob(RunConfig{CasePath: "case.yaml"})

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/runs/%s/status", job.ID), nil)
	w := httptest.NewRecorder()

	s.handleGetRunStatus(w, req, job.ID)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["id"] != job.ID {
		t.Error("Response should contain run ID")
	}
	if response["state"] != string(StatePending) {
		t.Errorf("Expected pending state, got %v", response["state"])
	}
}

func TestServer_GetRunStatusNotFound(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/nonexistent/status", nil)
	w := httptest.NewRecorder()

	s.handleGetRunStatus(w, req, "nonexistent")

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_GetRunStatusFromStore(t *testing.T) {
	s := newTestServer(t)

	// A record from a previous server session, not in the job manager.
	record := store.NewRunRecord("old-run", "theis", []string{"T", "S"},
		[]float64{-2.5, -4.2}, 10, 0.01, "converged", 12,
		RunConfig{CasePath: "case.yaml"})
	if err := s.runStore.SaveRun("old-run", record); err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/old-run/status", nil)
	w := httptest.NewRecorder()

	s.handleGetRunStatus(w, req, "old-run")

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var loaded store.RunRecord
	if err := json.NewDecoder(w.Body).Decode(&loaded); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if loaded.RunID != "old-run" || loaded.Model != "theis" {
		t.Errorf("Stored record not returned: %+v", loaded)
	}
}

func TestServer_GetRunTrace(t *testing.T) {
	s := newTestServer(t)

	tw, err := store.NewTraceWriter(s.dataDir, "run-1", false)
	if err != nil {
		t.Fatalf("Failed to open trace: %v", err)
	}
	tw.Write(store.TraceEntry{Iteration: 0, Cost: 10})
	tw.Write(store.TraceEntry{Iteration: 1, Cost: 2})
	if err := tw.Close(); err != nil {
		t.Fatalf("Failed to close trace: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-1/trace", nil)
	w := httptest.NewRecorder()

	s.handleGetRunTrace(w, req, "run-1")

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var entries []store.TraceEntry
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(entries) != 2 || entries[1].Cost != 2 {
		t.Errorf("Trace not returned: %+v", entries)
	}
}

func TestServer_GetRunTraceNotFound(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/nonexistent/trace", nil)
	w := httptest.NewRecorder()

	s.handleGetRunTrace(w, req, "nonexistent")

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_CancelRun(t *testing.T) {
	s := newTestServer(t)

	job := s.jobManager.CreateJob(RunConfig{CasePath: "case.yaml"})
	s.jobManager.RegisterCancel(job.ID, func() {})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/runs/"+job.ID, nil)
	w := httptest.NewRecorder()

	s.handleCancelRun(w, req, job.ID)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	// Cancelling a finished job conflicts.
	s.jobManager.UpdateJob(job.ID, func(j *Job) { j.State = StateCompleted })
	w = httptest.NewRecorder()
	s.handleCancelRun(w, req, job.ID)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/runs", nil)
	w := httptest.NewRecorder()

	s.handleRuns(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestServer_RouteRequiresRunID(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/", nil)
	w := httptest.NewRecorder()

	s.handleRunsWithID(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestBroadcaster_SubscribeAndBroadcast(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("run-1")
	defer eb.Unsubscribe("run-1", ch)

	event := ProgressEvent{
		JobID:     "run-1",
		State:     StateRunning,
		Iteration: 5,
		BestCost:  1.25,
		Timestamp: time.Now(),
	}
	eb.Broadcast(event)

	select {
	case got := <-ch:
		if got.Iteration != 5 || got.BestCost != 1.25 {
			t.Errorf("Wrong event received: %+v", got)
		}
	case <-time.After(time.Second):
		t.Error("Event not received")
	}
}

func TestBroadcaster_LastEventReplay(t *testing.T) {
	eb := NewEventBroadcaster()

	eb.Broadcast(ProgressEvent{JobID: "run-1", Iteration: 3, BestCost: 0.5})

	// A late subscriber gets the last event immediately.
	ch := eb.Subscribe("run-1")
	defer eb.Unsubscribe("run-1", ch)

	select {
	case got := <-ch:
		if got.Iteration != 3 {
			t.Errorf("Expected replayed iteration 3, got %d", got.Iteration)
		}
	case <-time.After(time.Second):
		t.Error("Last event not replayed")
	}
}

func TestBroadcaster_CleanupJob(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("run-1")
	eb.CleanupJob("run-1")

	if _, ok := <-ch; ok {
		t.Error("Channel should be closed after cleanup")
	}
}
