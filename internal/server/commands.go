package server

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/tapcast/tapcast/internal/config"
	"github.com/tapcast/tapcast/internal/notify"
	"github.com/tapcast/tapcast/internal/orchestrator"
)

// MaxLogEntries is the maximum number of outage log entries returned to the
// control surface.
const MaxLogEntries = 100

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg             *config.Config
	orch            *orchestrator.Orchestrator
	notifier        *notify.OutageNotifier
	ffmpegAvailable bool
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(cfg *config.Config, orch *orchestrator.Orchestrator, notifier *notify.OutageNotifier, ffmpegAvailable bool) *CommandHandler {
	return &CommandHandler{
		cfg:             cfg,
		orch:            orch,
		notifier:        notifier,
		ffmpegAvailable: ffmpegAvailable,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "capture/start",
// "notifications/webhook/update").
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	parts := strings.SplitN(cmd.Type, "/", 3)
	namespace := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}
	subaction := ""
	if len(parts) > 2 {
		subaction = parts[2]
	}

	switch namespace {
	case "capture":
		h.handleCapture(action, cmd, send)
	case "archive":
		h.handleArchive(action, cmd, send)
	case "notifications":
		h.handleNotifications(action, subaction, cmd, send)
	case "prefs":
		h.handlePrefs(action, cmd, send)
	case "config":
		h.handleConfig(action, send)
	case "status":
		h.handleStatus(action, send)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// --- Namespace handlers ---

// handleCapture routes capture/* commands
func (h *CommandHandler) handleCapture(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "start":
		h.handleCaptureStart(cmd, send)
	case "stop":
		h.handleCaptureStop(cmd, send)
	case "update":
		h.handleCaptureUpdate(cmd, send)
	case "get":
		h.handleCaptureGet(send)
	case "devices":
		h.handleCaptureDevices(cmd, send)
	default:
		slog.Warn("unknown capture action", "action", action)
	}
}

// handleArchive routes archive/* commands
func (h *CommandHandler) handleArchive(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleArchiveUpdate(cmd, send)
	case "get":
		h.handleArchiveGet(send)
	case "test-s3":
		h.handleTestS3(cmd, send)
	default:
		slog.Warn("unknown archive action", "action", action)
	}
}

// handleNotifications routes notifications/*/* commands
func (h *CommandHandler) handleNotifications(action, subaction string, cmd WSCommand, send chan<- any) {
	switch action {
	case "webhook":
		switch subaction {
		case "update":
			h.handleWebhookUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_webhook")
		case "get":
			h.handleWebhookGet(send)
		default:
			slog.Warn("unknown webhook action", "subaction", subaction)
		}
	case "log":
		switch subaction {
		case "update":
			h.handleLogUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_log")
		case "view":
			h.handleViewOutageLog(send)
		case "get":
			h.handleLogGet(send)
		default:
			slog.Warn("unknown log action", "subaction", subaction)
		}
	case "email":
		switch subaction {
		case "update":
			h.handleEmailUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_email")
		case "get":
			h.handleEmailGet(send)
		default:
			slog.Warn("unknown email action", "subaction", subaction)
		}
	default:
		slog.Warn("unknown notifications action", "action", action)
	}
}

// handlePrefs routes prefs/* commands
func (h *CommandHandler) handlePrefs(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handlePrefsUpdate(cmd, send)
	default:
		slog.Warn("unknown prefs action", "action", action)
	}
}

// handleConfig routes config/* commands
func (h *CommandHandler) handleConfig(action string, send chan<- any) {
	switch action {
	case "get":
		h.handleConfigGet(send)
	default:
		slog.Warn("unknown config action", "action", action)
	}
}

// handleStatus routes status/* commands
func (h *CommandHandler) handleStatus(action string, send chan<- any) {
	switch action {
	case "get":
		// Status is pushed on a fixed interval; an explicit get just
		// triggers an immediate update via triggerStatusUpdate.
	default:
		slog.Warn("unknown status action", "action", action)
	}
}
