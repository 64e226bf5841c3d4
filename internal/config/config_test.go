package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "tapcast.json"))
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tapcast.json")
	c := New(path)

	if err := c.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	s := c.Snapshot()
	if s.WebPort != DefaultWebPort {
		t.Errorf("WebPort = %d, want %d", s.WebPort, DefaultWebPort)
	}
	if s.WebUser != DefaultWebUsername {
		t.Errorf("WebUser = %q, want %q", s.WebUser, DefaultWebUsername)
	}
	if s.InstanceName != DefaultInstanceName {
		t.Errorf("InstanceName = %q, want %q", s.InstanceName, DefaultInstanceName)
	}
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tapcast.json")
	partial := `{"system":{"port":9000},"capture":{"endpoint":"wss://proc.example.com/audio"}}`
	if err := os.WriteFile(path, []byte(partial), 0o600); err != nil {
		t.Fatal(err)
	}

	c := New(path)
	if err := c.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	s := c.Snapshot()
	if s.WebPort != 9000 {
		t.Errorf("WebPort = %d, want 9000", s.WebPort)
	}
	if s.Endpoint != "wss://proc.example.com/audio" {
		t.Errorf("Endpoint = %q", s.Endpoint)
	}
	if s.WebUser != DefaultWebUsername {
		t.Errorf("WebUser = %q, want default", s.WebUser)
	}
	if s.ArchiveRetentionDays != DefaultArchiveRetentionDays {
		t.Errorf("ArchiveRetentionDays = %d, want %d", s.ArchiveRetentionDays, DefaultArchiveRetentionDays)
	}
}

func TestLoadRejectsInvalidBranding(t *testing.T) {
	tests := []struct {
		name string
		web  string
	}{
		{"bad color", `{"web":{"instance_name":"Studio","color_light":"blue","color_dark":"#3B82F6"}}`},
		{"control chars in name", "{\"web\":{\"instance_name\":\"bad\\u0000name\",\"color_light\":\"#1D4ED8\",\"color_dark\":\"#3B82F6\"}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "tapcast.json")
			if err := os.WriteFile(path, []byte(tt.web), 0o600); err != nil {
				t.Fatal(err)
			}
			c := New(path)
			if err := c.Load(); err == nil {
				t.Error("Load() accepted invalid branding")
			}
		})
	}
}

func TestSettersPersist(t *testing.T) {
	c := newTestConfig(t)
	if err := c.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := c.SetEndpoint("wss://proc.example.com/audio"); err != nil {
		t.Fatalf("SetEndpoint() error = %v", err)
	}
	if err := c.SetAudioInput("hw:1"); err != nil {
		t.Fatalf("SetAudioInput() error = %v", err)
	}
	if err := c.SetWebhookURL("https://hooks.example.com/outage"); err != nil {
		t.Fatalf("SetWebhookURL() error = %v", err)
	}

	// A fresh Config reading the same file must see the changes.
	reloaded := New(c.filePath)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("reload error = %v", err)
	}
	s := reloaded.Snapshot()
	if s.Endpoint != "wss://proc.example.com/audio" {
		t.Errorf("Endpoint = %q", s.Endpoint)
	}
	if s.AudioInput != "hw:1" {
		t.Errorf("AudioInput = %q", s.AudioInput)
	}
	if s.WebhookURL != "https://hooks.example.com/outage" {
		t.Errorf("WebhookURL = %q", s.WebhookURL)
	}
}

func TestSetArchiveRejectsTraversal(t *testing.T) {
	c := newTestConfig(t)
	if err := c.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	err := c.SetArchive(ArchiveConfig{Enabled: true, Path: "../../etc"})
	if err == nil {
		t.Error("SetArchive() accepted path traversal")
	}
}

func TestConfigFileOmitsInternalFields(t *testing.T) {
	c := newTestConfig(t)
	if err := c.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	data, err := os.ReadFile(c.filePath)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("config file is not valid JSON: %v", err)
	}
	for _, key := range []string{"system", "web", "capture", "archive", "notifications"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("config file missing %q section", key)
		}
	}
}

func TestSnapshotHasHelpers(t *testing.T) {
	s := Snapshot{}
	if s.HasWebhook() || s.HasGraph() || s.HasLogPath() || s.HasS3() {
		t.Error("empty snapshot reports configured channels")
	}

	s.WebhookURL = "https://hooks.example.com"
	if !s.HasWebhook() {
		t.Error("HasWebhook() = false with URL set")
	}

	s.S3Bucket = "sessions"
	s.S3AccessKey = "key"
	s.S3SecretKey = "secret"
	if !s.HasS3() {
		t.Error("HasS3() = false with full S3 config")
	}

	s.GraphTenantID = "t"
	s.GraphClientID = "c"
	s.GraphClientSecret = "s"
	s.GraphFromAddress = "from@example.com"
	if s.HasGraph() {
		t.Error("HasGraph() = true without recipients")
	}
	s.GraphRecipients = "ops@example.com"
	if !s.HasGraph() {
		t.Error("HasGraph() = false with full Graph config")
	}
}
