package controlplane

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/chrisej001/voice-agent/internal/config"
)

type capturedRequest struct {
	method string
	path   string
	body   string
	user   string
	pass   string
}

func newCommandServer(t *testing.T, status int) (*httptest.Server, *[]capturedRequest, *sync.Mutex) {
	t.Helper()

	var mu sync.Mutex
	var requests []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		user, pass, _ := r.BasicAuth()
		mu.Lock()
		requests = append(requests, capturedRequest{
			method: r.Method,
			path:   r.URL.Path,
			body:   string(body),
			user:   user,
			pass:   pass,
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)

	return server, &requests, &mu
}

func commanderConfig(serverURL string) config.ControlConfig {
	return config.ControlConfig{
		URL:      "ws" + strings.TrimPrefix(serverURL, "http") + "/events",
		Username: "agent",
		Password: "secret",
		AppName:  "voice-agent",
		MediaURL: "ws://media.example/stream",
	}
}

func TestCommanderAnswer(t *testing.T) {
	server, requests, mu := newCommandServer(t, http.StatusNoContent)
	commander := NewCommander(commanderConfig(server.URL), testLogger())

	if err := commander.Answer(context.Background(), "call/1"); err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	req := (*requests)[0]
	if req.method != http.MethodPost {
		t.Errorf("Method = %s, want POST", req.method)
	}
	if req.path != "/calls/call%2F1/answer" && req.path != "/calls/call/1/answer" {
		t.Errorf("Path = %s", req.path)
	}
	if req.user != "agent" || req.pass != "secret" {
		t.Errorf("Basic auth = %s:%s", req.user, req.pass)
	}
}

func TestCommanderStartMediaStreamSendsMediaURL(t *testing.T) {
	server, requests, mu := newCommandServer(t, http.StatusOK)
	commander := NewCommander(commanderConfig(server.URL), testLogger())

	if err := commander.StartMediaStream(context.Background(), "call-2", "+15550002222", "hosp-5"); err != nil {
		t.Fatalf("StartMediaStream failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	req := (*requests)[0]
	if req.path != "/calls/call-2/stream" {
		t.Errorf("Path = %s", req.path)
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(req.body), &body); err != nil {
		t.Fatalf("Body is not JSON: %v", err)
	}
	if body["url"] != "ws://media.example/stream" {
		t.Errorf("Media URL = %s", body["url"])
	}
	if body["caller"] != "+15550002222" {
		t.Errorf("Caller = %s", body["caller"])
	}
	if body["hospital_id"] != "hosp-5" {
		t.Errorf("Hospital = %s", body["hospital_id"])
	}
}

func TestCommanderStartMediaStreamOmitsEmptyIdentity(t *testing.T) {
	server, requests, mu := newCommandServer(t, http.StatusOK)
	commander := NewCommander(commanderConfig(server.URL), testLogger())

	if err := commander.StartMediaStream(context.Background(), "call-9", "", ""); err != nil {
		t.Fatalf("StartMediaStream failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	var body map[string]string
	if err := json.Unmarshal([]byte((*requests)[0].body), &body); err != nil {
		t.Fatalf("Body is not JSON: %v", err)
	}
	if _, ok := body["caller"]; ok {
		t.Error("Empty caller must be omitted")
	}
	if _, ok := body["hospital_id"]; ok {
		t.Error("Empty hospital_id must be omitted")
	}
}

func TestCommanderStopPlayback(t *testing.T) {
	server, requests, mu := newCommandServer(t, http.StatusNoContent)
	commander := NewCommander(commanderConfig(server.URL), testLogger())

	if err := commander.StopPlayback(context.Background(), "call-3"); err != nil {
		t.Fatalf("StopPlayback failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	req := (*requests)[0]
	if req.method != http.MethodDelete {
		t.Errorf("Method = %s, want DELETE", req.method)
	}
	if req.path != "/calls/call-3/playback" {
		t.Errorf("Path = %s", req.path)
	}
}

func TestCommanderErrorStatus(t *testing.T) {
	server, _, _ := newCommandServer(t, http.StatusNotFound)
	commander := NewCommander(commanderConfig(server.URL), testLogger())

	if err := commander.Answer(context.Background(), "gone"); err == nil {
		t.Fatal("Answer against HTTP 404 must fail")
	}
}

func TestRestBase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ws://pbx.local:8088/events", "http://pbx.local:8088"},
		{"wss://pbx.example/events", "https://pbx.example"},
		{"ws://pbx.local:8088/events?app=x", "http://pbx.local:8088"},
	}

	for _, tt := range tests {
		if got := restBase(tt.in); got != tt.want {
			t.Errorf("restBase(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
