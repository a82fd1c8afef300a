package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"blerelay"
	"blerelay/internal/diag"
	"blerelay/internal/service"
)

func TestLogsHandler_ListAndValidation(t *testing.T) {
	auth := &mockAuth{parseID: 99}
	now := time.Now().UTC().Truncate(time.Second)
	events := []blerelay.SessionEvent{
		{EventID: "e1", OccurredAt: now, Type: "CONNECT", Description: "link up"},
		{EventID: "e2", OccurredAt: now.Add(1 * time.Second), Type: "COMMAND", Description: "sent toggle_relay"},
	}
	logs := &mockEventLog{resp: events}
	s := &service.Service{
		Authorization: auth,
		EventLog:      logs,
		Monitoring:    &mockMonitoring{},
	}
	r := newTestRouter(s)

	// Invalid 'from' → 400
	w := doRequest(r, http.MethodGet, "/api/v1/logs/?from=notatime", nil, "valid")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 invalid 'from', got %d", w.Code)
	}

	// Inverted range → 400
	w = doRequest(r, http.MethodGet, "/api/v1/logs/?from=2026-08-02&to=2026-08-01", nil, "valid")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 inverted range, got %d", w.Code)
	}

	// Valid range and type (lowercase type normalized to upper before service call)
	q := "/api/v1/logs/?from=" + now.Format(time.RFC3339) + "&to=" + now.Add(2*time.Second).Format(time.RFC3339) + "&type=command"
	w = doRequest(r, http.MethodGet, q, nil, "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("logs status=%d, body=%s", w.Code, w.Body.String())
	}
	var out struct {
		Count  int                     `json:"count"`
		Events []blerelay.SessionEvent `json:"events"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.Count != 2 || len(out.Events) != 2 {
		t.Fatalf("unexpected response: %+v", out)
	}
	if logs.lastType != "COMMAND" {
		t.Fatalf("expected lastType COMMAND, got %q", logs.lastType)
	}
}

func TestLogsHandler_DateOnlyToIsEndOfDay(t *testing.T) {
	auth := &mockAuth{parseID: 99}
	logs := &mockEventLog{}
	s := &service.Service{
		Authorization: auth,
		EventLog:      logs,
		Monitoring:    &mockMonitoring{},
	}
	r := newTestRouter(s)

	w := doRequest(r, http.MethodGet, "/api/v1/logs/?to=2026-08-15", nil, "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("logs status=%d, body=%s", w.Code, w.Body.String())
	}
	endOfDay := time.Date(2026, 8, 15, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
	if !logs.lastTo.Equal(endOfDay) {
		t.Fatalf("date-only 'to' = %v, want %v", logs.lastTo, endOfDay)
	}
}

func TestLogsHandler_Recent(t *testing.T) {
	auth := &mockAuth{parseID: 99}
	mon := &mockMonitoring{entries: []diag.Entry{
		{At: time.Now(), Message: "dropped malformed frame"},
	}}
	s := &service.Service{
		Authorization: auth,
		Monitoring:    mon,
	}
	r := newTestRouter(s)

	w := doRequest(r, http.MethodGet, "/api/v1/logs/recent", nil, "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("recent status=%d, body=%s", w.Code, w.Body.String())
	}
	var out struct {
		Count   int          `json:"count"`
		Entries []diag.Entry `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Count != 1 || out.Entries[0].Message != "dropped malformed frame" {
		t.Fatalf("unexpected response: %+v", out)
	}
}
