package notify

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tapcast/tapcast/internal/util"
)

// OutageLogEntry is one line in the JSONL outage log.
type OutageLogEntry struct {
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	Endpoint   string `json:"endpoint,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// LogOutageStart records the beginning of a delivery outage.
func LogOutageStart(logPath, endpoint string) error {
	return appendLogEntry(logPath, &OutageLogEntry{
		Timestamp: timestampUTC(),
		Event:     "outage_start",
		Endpoint:  endpoint,
	})
}

// LogOutageEnd records the end of a delivery outage.
func LogOutageEnd(logPath, endpoint string, durationMs int64) error {
	return appendLogEntry(logPath, &OutageLogEntry{
		Timestamp:  timestampUTC(),
		Event:      "outage_end",
		Endpoint:   endpoint,
		DurationMs: durationMs,
	})
}

// WriteTestLog writes a test log entry.
func WriteTestLog(logPath string) error {
	if logPath == "" {
		return fmt.Errorf("log file path not configured")
	}

	return appendLogEntry(logPath, &OutageLogEntry{
		Timestamp: timestampUTC(),
		Event:     "test",
	})
}

// appendLogEntry appends a log entry to the file.
func appendLogEntry(logPath string, entry *OutageLogEntry) error {
	if !util.IsConfigured(logPath) {
		return nil
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return util.WrapError("marshal log entry", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return util.WrapError("open log file", err)
	}
	defer util.SafeCloseFunc(f, "log file")()

	if _, err := f.Write(jsonData); err != nil {
		return util.WrapError("write log entry", err)
	}
	if _, err := f.WriteString("\n"); err != nil {
		return util.WrapError("write newline", err)
	}

	return nil
}
