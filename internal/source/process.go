package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/tapcast/tapcast/internal/codec"
	"github.com/tapcast/tapcast/internal/types"
	"github.com/tapcast/tapcast/internal/util"
)

// ProcessOpener opens capture sources backed by a platform capture
// subprocess (arecord or FFmpeg) emitting raw S16LE PCM on stdout.
type ProcessOpener struct {
	// FFmpegPath overrides the FFmpeg binary location on platforms that
	// capture through FFmpeg. Empty means search PATH.
	FFmpegPath string
}

// Open spawns the capture subprocess for the given device.
func (o *ProcessOpener) Open(ctx context.Context, device string) (Source, error) {
	cfg := getPlatformConfig()

	command := cfg.Command
	if cfg.UsesFFmpeg {
		path := util.ResolveFFmpegPath(o.FFmpegPath)
		if path == "" {
			return nil, fmt.Errorf("ffmpeg not found for capture on this platform")
		}
		command = path
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, command, cfg.BuildArgs(device)...)
	cmd.WaitDelay = types.ShutdownTimeout
	cmd.Cancel = func() error {
		return util.GracefulSignal(cmd.Process)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create capture stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start capture process %s: %w", command, err)
	}

	slog.Info("capture process started",
		"command", command,
		"device", device,
		"pid", cmd.Process.Pid)

	return &processSource{
		cmd:    cmd,
		cancel: cancel,
		stdout: stdout,
		stderr: &stderr,
		buf:    make([]byte, types.FrameBytes),
	}, nil
}

// processSource reads S16LE PCM from a capture subprocess and decodes it
// into float32 blocks. ReadBlock blocks on the pipe, so the subprocess
// paces the capture loop at real time.
type processSource struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.ReadCloser
	stderr *bytes.Buffer
	buf    []byte
}

func (s *processSource) ReadBlock(ctx context.Context, dst []float32) error {
	if len(dst) < types.BlockSamples {
		return fmt.Errorf("block buffer too small: %d < %d", len(dst), types.BlockSamples)
	}

	type readResult struct {
		err error
	}
	done := make(chan readResult, 1)
	go func() {
		_, err := io.ReadFull(s.stdout, s.buf)
		done <- readResult{err: err}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-done:
		if res.err != nil {
			return fmt.Errorf("read capture block: %w%s", res.err, s.stderrTail())
		}
	}

	codec.DecodeS16LE(s.buf, dst[:types.BlockSamples])
	return nil
}

func (s *processSource) Close() error {
	s.cancel()
	err := s.cmd.Wait()
	if err != nil && !isExpectedExit(err) {
		slog.Warn("capture process exited with error", "error", err)
		return err
	}
	return nil
}

// stderrTail returns the last chunk of subprocess stderr for error
// context, or an empty string when nothing was written.
func (s *processSource) stderrTail() string {
	out := strings.TrimSpace(s.stderr.String())
	if out == "" {
		return ""
	}
	const maxTail = 300
	if len(out) > maxTail {
		out = out[len(out)-maxTail:]
	}
	return " (stderr: " + out + ")"
}

// isExpectedExit reports whether the process exit reflects our own
// cancellation rather than a capture failure.
func isExpectedExit(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "signal: interrupt") ||
		strings.Contains(msg, "signal: killed") ||
		strings.Contains(msg, "signal: terminated")
}
