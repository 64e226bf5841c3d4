package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/tapcast/tapcast/internal/config"
	"github.com/tapcast/tapcast/internal/notify"
	"github.com/tapcast/tapcast/internal/types"
	"github.com/tapcast/tapcast/internal/util"
)

// --- Webhook ---

func (h *CommandHandler) handleWebhookUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(data *WebhookUpdateRequest) error {
		return h.cfg.SetWebhookURL(data.URL)
	})
}

func (h *CommandHandler) handleWebhookGet(send chan<- any) {
	snap := h.cfg.Snapshot()
	SendSuccess(send, "notifications/webhook/get", map[string]any{
		"url": snap.WebhookURL,
	})
}

// --- Outage log ---

func (h *CommandHandler) handleLogUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(data *LogUpdateRequest) error {
		if data.Path != "" {
			if err := util.ValidatePath("path", data.Path); err != nil {
				return err
			}
		}
		return h.cfg.SetLogPath(data.Path)
	})
}

func (h *CommandHandler) handleLogGet(send chan<- any) {
	snap := h.cfg.Snapshot()
	SendSuccess(send, "notifications/log/get", map[string]any{
		"path": snap.LogPath,
	})
}

// --- Email ---

func (h *CommandHandler) handleEmailUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(data *EmailUpdateRequest) error {
		// Validate as a whole only when something is actually configured;
		// clearing all fields disables email notifications.
		cfg := &notify.GraphConfig{
			TenantID:     data.TenantID,
			ClientID:     data.ClientID,
			ClientSecret: data.ClientSecret,
			FromAddress:  data.FromAddress,
			Recipients:   data.Recipients,
		}
		if notify.IsGraphConfigured(cfg) {
			if err := notify.ValidateConfig(cfg); err != nil {
				return err
			}
		}

		if err := h.cfg.SetGraphConfig(data.TenantID, data.ClientID, data.ClientSecret, data.FromAddress, data.Recipients); err != nil {
			return err
		}
		h.notifier.InvalidateGraphClient()
		return nil
	})
}

func (h *CommandHandler) handleEmailGet(send chan<- any) {
	snap := h.cfg.Snapshot()
	// The client secret is write-only.
	SendSuccess(send, "notifications/email/get", map[string]any{
		"tenant_id":    snap.GraphTenantID,
		"client_id":    snap.GraphClientID,
		"from_address": snap.GraphFromAddress,
		"recipients":   snap.GraphRecipients,
		"configured":   snap.HasGraph(),
	})
}

// --- Tests ---

// runTest dispatches to the appropriate notification test.
func (h *CommandHandler) runTest(testType string) error {
	snap := h.cfg.Snapshot()
	switch testType {
	case "webhook":
		return notify.SendTestWebhook(snap.WebhookURL, snap.InstanceName)
	case "log":
		return notify.WriteTestLog(snap.LogPath)
	case "email":
		return h.runTestEmail(&snap)
	default:
		return fmt.Errorf("unknown test type: %s", testType)
	}
}

// runTestEmail sends a test message through the configured Graph mailbox.
func (h *CommandHandler) runTestEmail(snap *config.Snapshot) error {
	cfg := notify.BuildGraphConfig(snap)
	if err := notify.ValidateConfig(cfg); err != nil {
		return err
	}

	client, err := notify.NewGraphClient(cfg)
	if err != nil {
		return err
	}
	if err := client.ValidateAuth(); err != nil {
		return err
	}

	recipients := notify.ParseRecipients(cfg.Recipients)
	subject := "[TEST] " + snap.InstanceName
	body := "This is a test notification from " + snap.InstanceName + ".\n\nSent at " + util.HumanTime() + "."
	return client.SendMail(recipients, subject, body)
}

// handleTest executes a notification test and sends the result to the client.
// testCmd should be in format "test_<type>" (e.g., "test_email").
func (h *CommandHandler) handleTest(send chan<- any, testCmd string) {
	testType := strings.TrimPrefix(testCmd, "test_")

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in test handler", "command", testCmd, "panic", r)
			}
		}()

		result := types.WSTestResult{
			Type:     "test_result",
			TestType: testType,
			Success:  true,
		}

		if err := h.runTest(testType); err != nil {
			slog.Error("test failed", "command", testCmd, "error", err)
			result.Success = false
			result.Error = err.Error()
		} else {
			slog.Info("test succeeded", "command", testCmd)
		}

		trySend(send, testCmd, result)
	}()
}

// --- Outage log viewer ---

// wsOutageLogResult is the response to notifications/log/view.
type wsOutageLogResult struct {
	Type    string                  `json:"type"`
	Success bool                    `json:"success"`
	Error   string                  `json:"error,omitempty"`
	Entries []notify.OutageLogEntry `json:"entries,omitempty"`
	Path    string                  `json:"path,omitempty"`
}

// handleViewOutageLog reads and returns the outage log file contents.
func (h *CommandHandler) handleViewOutageLog(send chan<- any) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in outage log handler", "panic", r)
			}
		}()

		result := wsOutageLogResult{
			Type:    "outage_log_result",
			Success: true,
		}

		logPath := h.cfg.LogPath()
		if logPath == "" {
			result.Success = false
			result.Error = "Log file path not configured"
		} else {
			entries, err := readOutageLog(logPath, MaxLogEntries)
			if err != nil {
				result.Success = false
				result.Error = err.Error()
			} else {
				result.Entries = entries
				result.Path = logPath
			}
		}

		trySend(send, "notifications/log/view", result)
	}()
}

// readOutageLog reads the last N entries from the outage log file.
func readOutageLog(logPath string, maxEntries int) ([]notify.OutageLogEntry, error) {
	data, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return []notify.OutageLogEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) == 0 || (len(lines) == 1 && lines[0] == "") {
		return []notify.OutageLogEntry{}, nil
	}

	start := max(0, len(lines)-maxEntries)
	lines = lines[start:]

	entries := make([]notify.OutageLogEntry, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		var entry notify.OutageLogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue // Skip malformed entries
		}
		entries = append(entries, entry)
	}

	// Newest first
	slices.Reverse(entries)

	return entries, nil
}
