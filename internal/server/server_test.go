package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/tapcast/tapcast/internal/config"
	"github.com/tapcast/tapcast/internal/notify"
	"github.com/tapcast/tapcast/internal/orchestrator"
	"github.com/tapcast/tapcast/internal/source"
)

func newTestHandler(t *testing.T) *CommandHandler {
	t.Helper()

	cfg := config.New(filepath.Join(t.TempDir(), "tapcast.json"))
	if err := cfg.Load(); err != nil {
		t.Fatalf("config load: %v", err)
	}

	orch := orchestrator.New(orchestrator.Config{
		Resolver: source.NewResolver(nil),
	})
	return NewCommandHandler(cfg, orch, notify.NewOutageNotifier(cfg), true)
}

// dispatch runs one command and returns the first response.
func dispatch(t *testing.T, h *CommandHandler, cmdType, data string) map[string]any {
	t.Helper()

	send := make(chan any, 16)
	cmd := WSCommand{Type: cmdType}
	if data != "" {
		cmd.Data = json.RawMessage(data)
	}
	h.Handle(cmd, send, func() {})

	select {
	case msg := <-send:
		resp, ok := msg.(map[string]any)
		if !ok {
			t.Fatalf("response is %T, want map", msg)
		}
		return resp
	case <-time.After(2 * time.Second):
		t.Fatalf("no response for %s", cmdType)
		return nil
	}
}

func TestCaptureUpdatePersists(t *testing.T) {
	h := newTestHandler(t)

	resp := dispatch(t, h, "capture/update", `{"endpoint":"wss://proc.example.com/audio","input":"hw:1","playback":true}`)
	if resp["success"] != true {
		t.Fatalf("update failed: %v", resp["error"])
	}

	resp = dispatch(t, h, "capture/get", "")
	data, _ := resp["data"].(map[string]any)
	if data["endpoint"] != "wss://proc.example.com/audio" {
		t.Errorf("endpoint = %v", data["endpoint"])
	}
	if data["input"] != "hw:1" {
		t.Errorf("input = %v", data["input"])
	}
	if data["playback"] != true {
		t.Errorf("playback = %v", data["playback"])
	}
}

func TestCaptureUpdateRejectsNonWebSocketEndpoint(t *testing.T) {
	h := newTestHandler(t)

	resp := dispatch(t, h, "capture/update", `{"endpoint":"http://proc.example.com/audio"}`)
	if resp["success"] != false {
		t.Error("expected rejection of http endpoint")
	}
}

func TestCaptureStartRequiresEndpoint(t *testing.T) {
	h := newTestHandler(t)

	resp := dispatch(t, h, "capture/start", `{}`)
	if resp["success"] != false {
		t.Fatal("start without endpoint must fail")
	}
	if errMsg, _ := resp["error"].(string); errMsg != "no processing endpoint configured" {
		t.Errorf("error = %q", errMsg)
	}
}

func TestCaptureStopWhenIdleSucceeds(t *testing.T) {
	h := newTestHandler(t)

	resp := dispatch(t, h, "capture/stop", "")
	if resp["success"] != true {
		t.Errorf("stop on idle session failed: %v", resp["error"])
	}
}

func TestArchiveUpdateMergesFields(t *testing.T) {
	h := newTestHandler(t)
	dir := t.TempDir()

	resp := dispatch(t, h, "archive/update", `{"enabled":true,"path":`+mustJSON(t, dir)+`,"retention_days":7}`)
	if resp["success"] != true {
		t.Fatalf("archive update failed: %v", resp["error"])
	}

	// A partial update must not clobber the path set above.
	resp = dispatch(t, h, "archive/update", `{"retention_days":14}`)
	if resp["success"] != true {
		t.Fatalf("partial update failed: %v", resp["error"])
	}

	resp = dispatch(t, h, "archive/get", "")
	data, _ := resp["data"].(map[string]any)
	if data["path"] != dir {
		t.Errorf("path = %v, want %v", data["path"], dir)
	}
	if data["retention_days"] != float64(14) {
		t.Errorf("retention_days = %v", data["retention_days"])
	}
}

func TestWebhookUpdateValidatesURL(t *testing.T) {
	h := newTestHandler(t)

	resp := dispatch(t, h, "notifications/webhook/update", `{"url":"not a url"}`)
	if resp["success"] != false {
		t.Error("expected validation failure for malformed URL")
	}

	resp = dispatch(t, h, "notifications/webhook/update", `{"url":"https://hooks.example.com/tapcast"}`)
	if resp["success"] != true {
		t.Errorf("valid URL rejected: %v", resp["error"])
	}
}

func TestPrefsUpdateValidatesColors(t *testing.T) {
	h := newTestHandler(t)

	resp := dispatch(t, h, "prefs/update", `{"color_light":"blue"}`)
	if resp["success"] != false {
		t.Error("expected validation failure for non-hex color")
	}

	resp = dispatch(t, h, "prefs/update", `{"instance_name":"Studio B","color_light":"#112233"}`)
	if resp["success"] != true {
		t.Errorf("valid branding rejected: %v", resp["error"])
	}
}

func TestHandleTriggersStatusUpdate(t *testing.T) {
	h := newTestHandler(t)

	triggered := false
	send := make(chan any, 4)
	h.Handle(WSCommand{Type: "status/get"}, send, func() { triggered = true })
	if !triggered {
		t.Error("status update not triggered")
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

// --- Sessions ---

func TestSessionLifecycle(t *testing.T) {
	sm := NewSessionManager()

	token := sm.Create()
	if token == "" {
		t.Fatal("empty session token")
	}
	if !sm.Validate(token) {
		t.Error("fresh session did not validate")
	}
	if sm.Validate("bogus") {
		t.Error("unknown token validated")
	}

	sm.Delete(token)
	if sm.Validate(token) {
		t.Error("deleted session still validates")
	}
}

func TestCSRFTokenIsOneShot(t *testing.T) {
	sm := NewSessionManager()

	token := sm.CreateCSRFToken()
	if !sm.ValidateCSRFToken(token) {
		t.Fatal("fresh CSRF token did not validate")
	}
	if sm.ValidateCSRFToken(token) {
		t.Error("CSRF token validated twice")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	sm := NewSessionManager()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/login", nil)

	if sm.Login(w, r, "admin", "wrong", "admin", "secret") {
		t.Error("login succeeded with wrong password")
	}
	if !sm.Login(w, r, "admin", "secret", "admin", "secret") {
		t.Error("login failed with correct credentials")
	}
}

// --- WebSocket origin checks ---

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "example.com:8080", true},
		{"http://localhost:8080", "example.com:8080", true},
		{"http://127.0.0.1", "example.com:8080", true},
		{"http://example.com", "example.com:8080", true},
		{"http://192.168.1.20", "example.com:8080", true},
		{"http://evil.example.net", "example.com:8080", false},
		{"::not a url::", "example.com:8080", false},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Host = tt.host
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := checkOrigin(r); got != tt.want {
			t.Errorf("checkOrigin(origin=%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
