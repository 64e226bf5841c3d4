// Tapcast captures audio from a local input device and streams it as PCM
// frames to a remote processing endpoint over WebSocket.
//
// Usage:
//
//	tapcast [-config path/to/config.json]
//
// If -config is not specified, tapcast looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/tapcast/tapcast/internal/archive"
	"github.com/tapcast/tapcast/internal/config"
	"github.com/tapcast/tapcast/internal/notify"
	"github.com/tapcast/tapcast/internal/observe"
	"github.com/tapcast/tapcast/internal/orchestrator"
	"github.com/tapcast/tapcast/internal/source"
	"github.com/tapcast/tapcast/internal/util"
	"github.com/tapcast/tapcast/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	shutdownMetrics, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceVersion: Version,
	})
	if err != nil {
		slog.Error("failed to initialize metrics", "error", err)
		os.Exit(1)
	}

	// Check capture backend availability
	ffmpegPath := util.ResolveFFmpegPath(cfg.GetFFmpegPath())
	backendAvailable := source.BackendAvailable(ffmpegPath)
	if !backendAvailable {
		slog.Warn("capture backend not found - running in degraded mode",
			"configured_ffmpeg", cfg.GetFFmpegPath())
	}

	resolver := source.NewResolver(&source.ProcessOpener{FFmpegPath: ffmpegPath})
	arch := archive.NewManager(cfg)
	notifier := notify.NewOutageNotifier(cfg)
	metrics := observe.DefaultMetrics()

	orch := orchestrator.New(orchestrator.Config{
		Resolver: resolver,
		SpawnWorker: func() orchestrator.CaptureWorker {
			w := worker.New(resolver, nil, metrics)
			w.SetSink(arch)
			return w
		},
		Hook:           arch,
		OnChannelState: notifier.HandleChannelState,
	})

	runCtx, cancelRun := context.WithCancel(context.Background())
	go orch.Run(runCtx)

	srv := NewServer(cfg, orch, arch, notifier, backendAvailable)
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	// Stop version checker goroutine
	srv.version.Stop()

	// Shut down HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Cancelling the run context tears down any active capture session.
	cancelRun()

	// Wait for pending archive uploads.
	if err := arch.Close(); err != nil {
		slog.Error("error finishing archive uploads", "error", err)
	}

	if err := shutdownMetrics(shutdownCtx); err != nil {
		slog.Error("metrics shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
