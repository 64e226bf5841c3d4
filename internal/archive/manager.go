// Package archive records capture sessions to local WAV files and
// optionally uploads finished sessions to S3-compatible storage. It hangs
// off the orchestrator's session hook and the worker's frame sink, so a
// disabled archive costs one nil check per tick.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tapcast/tapcast/internal/config"
	"github.com/tapcast/tapcast/internal/util"
)

const (
	uploadAttempts       = 3
	uploadInitialBackoff = 2 * time.Second
	uploadMaxBackoff     = 30 * time.Second
)

// Manager owns session recording and upload. It implements the
// orchestrator's SessionHook and the worker's FrameSink.
type Manager struct {
	cfg *config.Config

	mu      sync.Mutex
	writer  *wavWriter
	curPath string

	uploads *errgroup.Group
}

// NewManager creates an archive manager reading settings from cfg at
// session boundaries.
func NewManager(cfg *config.Config) *Manager {
	g := &errgroup.Group{}
	g.SetLimit(2)
	return &Manager{cfg: cfg, uploads: g}
}

// SessionStarted opens a new session file when archiving is enabled.
func (m *Manager) SessionStarted(endpoint string) {
	snap := m.cfg.Snapshot()
	if !snap.ArchiveEnabled {
		return
	}
	if err := util.CheckPathWritable(snap.ArchivePath); err != nil {
		slog.Error("archive path not writable, session not recorded", "path", snap.ArchivePath)
		return
	}

	name := fmt.Sprintf("session-%s.wav", time.Now().UTC().Format("20060102-150405"))
	path := filepath.Join(snap.ArchivePath, name)

	w, err := newWAVWriter(path)
	if err != nil {
		slog.Error("failed to open session file", "path", path, "error", err)
		return
	}

	m.mu.Lock()
	m.writer = w
	m.curPath = path
	m.mu.Unlock()

	slog.Info("session recording started", "path", path, "endpoint", endpoint)
}

// WriteFrame appends one encoded frame to the open session file. A write
// error abandons the recording; streaming continues untouched.
func (m *Manager) WriteFrame(frame []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writer == nil {
		return
	}
	if err := m.writer.WriteFrame(frame); err != nil {
		slog.Error("session recording failed, abandoning file", "path", m.curPath, "error", err)
		_ = m.writer.Close()
		m.writer = nil
	}
}

// SessionEnded finalises the session file and queues its upload.
func (m *Manager) SessionEnded() {
	m.mu.Lock()
	w := m.writer
	path := m.curPath
	m.writer = nil
	m.curPath = ""
	m.mu.Unlock()

	if w == nil {
		return
	}
	if err := w.Close(); err != nil {
		slog.Error("failed to finalise session file", "path", path, "error", err)
		return
	}
	slog.Info("session recording finished", "path", path)

	snap := m.cfg.Snapshot()
	if snap.HasS3() {
		m.uploads.Go(func() error {
			m.uploadWithRetry(&snap, path)
			return nil
		})
	}
	m.cleanup(&snap)
}

// Recording reports whether a session file is currently open.
func (m *Manager) Recording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writer != nil
}

// Close waits for queued uploads to finish.
func (m *Manager) Close() error {
	return m.uploads.Wait()
}

// uploadWithRetry pushes one session file to S3, backing off between
// attempts.
func (m *Manager) uploadWithRetry(snap *config.Snapshot, path string) {
	client, err := createS3Client(snap)
	if err != nil {
		slog.Error("failed to create S3 client", "error", err)
		return
	}

	backoff := util.NewBackoff(uploadInitialBackoff, uploadMaxBackoff)
	for attempt := 1; attempt <= uploadAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		err = uploadFile(ctx, client, snap.S3Bucket, path)
		cancel()
		if err == nil {
			return
		}
		slog.Warn("session upload failed",
			"path", path,
			"attempt", attempt,
			"error", err)
		if attempt < uploadAttempts {
			time.Sleep(backoff.Next())
		}
	}
	slog.Error("session upload abandoned", "path", path, "attempts", uploadAttempts)
}

// cleanup removes local session files older than the retention window.
func (m *Manager) cleanup(snap *config.Snapshot) {
	cutoff := time.Now().AddDate(0, 0, -snap.ArchiveRetentionDays)

	entries, err := os.ReadDir(snap.ArchivePath)
	if err != nil {
		slog.Warn("failed to read archive directory", "path", snap.ArchivePath, "error", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".wav") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		full := filepath.Join(snap.ArchivePath, entry.Name())
		if err := os.Remove(full); err != nil {
			slog.Warn("failed to remove expired session file", "path", full, "error", err)
			continue
		}
		slog.Info("expired session file removed", "path", full)
	}
}
