// Package worker runs the capture loop in an isolated goroutine. The worker
// owns the audio source and the streaming channel for the duration of a
// session and talks to the rest of the process exclusively through typed
// messages: commands in, events out. It never touches session state.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/tapcast/tapcast/internal/channel"
	"github.com/tapcast/tapcast/internal/codec"
	"github.com/tapcast/tapcast/internal/observe"
	"github.com/tapcast/tapcast/internal/source"
	"github.com/tapcast/tapcast/internal/types"
)

// Channel is the streaming transport the worker pushes frames into. The
// production implementation is channel.Channel; tests substitute fakes.
type Channel interface {
	Open(ctx context.Context) error
	Send(msg []byte)
	Close() error
	State() types.ChannelState
	OnMessage(fn func([]byte))
	OnStateChange(fn func(types.ChannelState))
}

// ChannelFactory creates the transport for an endpoint URL.
type ChannelFactory func(url string) Channel

// FrameSink receives a copy of every encoded frame before it is handed to
// the channel. The sink must not retain the slice past the call.
type FrameSink interface {
	WriteFrame(frame []byte)
}

// DefaultChannelFactory builds production channels with the standard
// timeouts.
func DefaultChannelFactory(url string) Channel {
	return channel.New(channel.Config{URL: url})
}

const (
	commandBuffer = 4
	eventBuffer   = 64
)

// Worker is the capture actor. Create it with New, hand its mailbox
// commands, and drain Events; Run must be started on its own goroutine.
type Worker struct {
	resolver   *source.Resolver
	newChannel ChannelFactory
	metrics    *observe.Metrics
	sink       FrameSink

	commands chan types.WorkerCommand
	events   chan types.WorkerEvent

	// session-scoped, owned by the Run goroutine
	active      bool
	captureStop context.CancelFunc
	captureDone chan error
	src         source.Source
	ch          Channel
}

// New creates a worker. The resolver redeems stream handles into open
// sources; factory creates the streaming transport.
func New(resolver *source.Resolver, factory ChannelFactory, metrics *observe.Metrics) *Worker {
	if factory == nil {
		factory = DefaultChannelFactory
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Worker{
		resolver:   resolver,
		newChannel: factory,
		metrics:    metrics,
		commands:   make(chan types.WorkerCommand, commandBuffer),
		events:     make(chan types.WorkerEvent, eventBuffer),
	}
}

// SetSink attaches a frame sink. Must be called before Run.
func (w *Worker) SetSink(sink FrameSink) {
	w.sink = sink
}

// Commands returns the mailbox for control messages.
func (w *Worker) Commands() chan<- types.WorkerCommand {
	return w.commands
}

// Events returns the stream of worker events. The owner must drain it.
func (w *Worker) Events() <-chan types.WorkerEvent {
	return w.events
}

// Run processes commands until ctx is cancelled. Any active session is
// torn down on exit.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.teardown()
			return

		case cmd := <-w.commands:
			switch cmd.Kind {
			case types.CmdStartCapture:
				w.handleStart(ctx, cmd)
			case types.CmdStopCapture:
				w.handleStop()
			default:
				slog.Warn("worker received unknown command", "kind", cmd.Kind)
			}

		case err := <-w.captureDoneChan():
			// The capture loop ended on its own, which means the source
			// failed mid-session. The loop goroutine is already gone, so
			// only the resources need releasing.
			w.captureStop()
			w.releaseSession()
			msg := "capture source failed"
			if err != nil {
				msg = err.Error()
			}
			w.metrics.RecordSessionOutcome(ctx, "failed")
			w.emit(types.WorkerEvent{
				Kind:    types.EvtCaptureResult,
				Success: false,
				Error:   msg,
			})
		}
	}
}

// captureDoneChan returns the active capture loop's completion channel, or
// nil (blocking forever in select) when no session is running.
func (w *Worker) captureDoneChan() <-chan error {
	if !w.active {
		return nil
	}
	return w.captureDone
}

func (w *Worker) handleStart(ctx context.Context, cmd types.WorkerCommand) {
	if w.active {
		// Duplicate start for a session that is already up.
		w.emit(types.WorkerEvent{Kind: types.EvtCaptureResult, Success: true})
		return
	}

	ch := w.newChannel(cmd.EndpointURL)
	ch.OnMessage(func(msg []byte) {
		w.emitLossy(types.WorkerEvent{Kind: types.EvtRemoteMessage, Payload: msg})
	})
	ch.OnStateChange(func(s types.ChannelState) {
		if s == types.ChannelReconnecting {
			w.metrics.Reconnects.Add(context.Background(), 1)
		}
		// State transitions must not be lost; a stale Connected flag would
		// mislead the operator for the rest of the session.
		w.emit(types.WorkerEvent{Kind: types.EvtChannelState, Channel: s})
	})

	if err := ch.Open(ctx); err != nil {
		w.resolver.Discard(cmd.Handle)
		w.emit(types.WorkerEvent{
			Kind:    types.EvtCaptureResult,
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	src, err := w.resolver.Redeem(ctx, cmd.Handle)
	if err != nil {
		_ = ch.Close()
		w.emit(types.WorkerEvent{
			Kind:    types.EvtCaptureResult,
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	captureCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- w.captureLoop(captureCtx, src, ch)
	}()

	w.active = true
	w.captureStop = cancel
	w.captureDone = done
	w.src = src
	w.ch = ch

	w.metrics.ActiveSessions.Add(ctx, 1)
	slog.Info("capture session started", "endpoint", cmd.EndpointURL)
	w.emit(types.WorkerEvent{Kind: types.EvtCaptureResult, Success: true})
}

func (w *Worker) handleStop() {
	if !w.active {
		// Stop is idempotent: acknowledge even with nothing running.
		w.emit(types.WorkerEvent{Kind: types.EvtCaptureResult, Success: true})
		return
	}

	w.teardown()
	w.metrics.RecordSessionOutcome(context.Background(), "completed")
	slog.Info("capture session stopped")
	w.emit(types.WorkerEvent{Kind: types.EvtCaptureResult, Success: true})
}

// teardown stops the capture loop, waits for it to finish, and releases
// the source and channel. Safe to call with no active session.
func (w *Worker) teardown() {
	if !w.active {
		return
	}
	w.captureStop()
	<-w.captureDone
	w.releaseSession()
}

// releaseSession closes the session resources and clears the worker's
// session fields. The capture loop must already have exited.
func (w *Worker) releaseSession() {
	if err := w.src.Close(); err != nil {
		slog.Warn("failed to close capture source", "error", err)
	}
	_ = w.ch.Close()

	w.metrics.ActiveSessions.Add(context.Background(), -1)
	w.active = false
	w.captureStop = nil
	w.captureDone = nil
	w.src = nil
	w.ch = nil
}

// captureLoop runs one tick per audio block: read samples, measure
// loudness, encode, hand the frame to the channel, report the volume. The
// blocking read paces the loop at real time. Returns nil when cancelled,
// or the read error when the source fails.
func (w *Worker) captureLoop(ctx context.Context, src source.Source, ch Channel) error {
	samples := make([]float32, types.BlockSamples)

	for {
		if err := src.ReadBlock(ctx, samples); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		start := time.Now()
		vol := codec.RMS(samples)

		// The frame is allocated per tick because ownership transfers to
		// the channel's write queue on Send.
		frame := make([]byte, types.FrameBytes)
		codec.EncodeS16LE(samples, frame)

		if w.sink != nil {
			w.sink.WriteFrame(frame)
		}

		if ch.State() == types.ChannelOpen {
			ch.Send(frame)
			w.metrics.FramesSent.Add(ctx, 1)
		} else {
			w.metrics.FramesDropped.Add(ctx, 1)
		}

		w.metrics.Volume.Record(ctx, vol)
		w.emitLossy(types.WorkerEvent{Kind: types.EvtVolumeUpdate, Volume: vol})
		w.metrics.TickDuration.Record(ctx, time.Since(start).Seconds())
	}
}

// emit delivers an event, blocking until the owner accepts it. Used for
// results the orchestrator must see.
func (w *Worker) emit(ev types.WorkerEvent) {
	w.events <- ev
}

// emitLossy delivers an event only if the owner is keeping up. Volume
// updates and remote messages are advisory; a slow consumer must never
// stall the capture tick.
func (w *Worker) emitLossy(ev types.WorkerEvent) {
	select {
	case w.events <- ev:
	default:
	}
}
