// Package orchestrator owns the capture session. It is the only component
// that mutates session state; the capture worker, the control surface and
// the HTTP layer all go through it. The orchestrator talks to the worker
// purely over its command mailbox and event stream, so a wedged worker can
// never corrupt session state, only time out.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tapcast/tapcast/internal/channel"
	"github.com/tapcast/tapcast/internal/source"
	"github.com/tapcast/tapcast/internal/types"
	"github.com/tapcast/tapcast/internal/worker"
)

// CaptureWorker is the actor interface the orchestrator drives. The
// production implementation is worker.Worker.
type CaptureWorker interface {
	Commands() chan<- types.WorkerCommand
	Events() <-chan types.WorkerEvent
	Run(ctx context.Context)
}

// SessionHook is notified when a streaming session begins and ends. The
// archive recorder attaches through this.
type SessionHook interface {
	SessionStarted(endpoint string)
	SessionEnded()
}

// Config wires the orchestrator's collaborators.
type Config struct {
	// Resolver issues stream handles for capture devices.
	Resolver *source.Resolver

	// SpawnWorker creates the capture worker. Defaults to the production
	// worker when nil.
	SpawnWorker func() CaptureWorker

	// Hook receives session begin/end notifications. Optional.
	Hook SessionHook

	// OnChannelState is called on every channel state transition with the
	// session's endpoint. The outage notifier attaches through this.
	// Optional.
	OnChannelState func(endpoint string, state types.ChannelState)

	// AckTimeout bounds how long a start or stop waits for the worker.
	// Defaults to types.WorkerAckTimeout.
	AckTimeout time.Duration
}

// pendingOp is a command sent to the worker whose result has not arrived
// yet. The worker answers commands in order, so results resolve pending
// ops FIFO.
type pendingOp struct {
	kind     types.CommandKind
	deadline time.Time

	// ack, when set, receives the outcome once the op resolves. Used by
	// StartWait; fire-and-forget callers leave it nil.
	ack chan<- error
}

// resolve delivers the outcome to a waiting caller, if any.
func (p pendingOp) resolve(err error) {
	if p.ack == nil {
		return
	}
	select {
	case p.ack <- err:
	default:
	}
}

// Orchestrator is the session state machine. All exported methods are safe
// for concurrent use.
type Orchestrator struct {
	resolver       *source.Resolver
	spawn          func() CaptureWorker
	hook           SessionHook
	onChannelState func(endpoint string, state types.ChannelState)
	ackWait        time.Duration

	mu      sync.RWMutex
	session types.CaptureSession
	events  []types.RemoteEvent
	pending []pendingOp

	// stopAfterStart records that a stop arrived while a start was still
	// in flight. Stop wins: the session is torn down the moment the start
	// resolves.
	stopAfterStart bool

	w CaptureWorker
}

// New creates an orchestrator in the idle state.
func New(cfg Config) *Orchestrator {
	spawn := cfg.SpawnWorker
	if spawn == nil {
		spawn = func() CaptureWorker {
			return worker.New(cfg.Resolver, nil, nil)
		}
	}
	ackWait := cfg.AckTimeout
	if ackWait <= 0 {
		ackWait = types.WorkerAckTimeout
	}
	return &Orchestrator{
		resolver:       cfg.Resolver,
		spawn:          spawn,
		hook:           cfg.Hook,
		onChannelState: cfg.OnChannelState,
		ackWait:        ackWait,
		session:        types.CaptureSession{State: types.StateIdle},
		w:              spawn(),
	}
}

// Run drives the worker and processes its events until ctx is cancelled.
// Start and Stop queue commands at any time; they only make progress while
// Run is active.
func (o *Orchestrator) Run(ctx context.Context) {
	w := o.w
	go w.Run(ctx)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.Events():
			o.handleEvent(ev)
		case <-ticker.C:
			o.expirePending()
		}
	}
}

// Start begins a capture session toward the given endpoint using the given
// input device. Idempotent: starting while a session is acquiring or
// streaming is a no-op. The call returns once the request is handed to the
// worker; the outcome lands in session state asynchronously.
func (o *Orchestrator) Start(endpointURL, device string) error {
	return o.start(endpointURL, device, nil)
}

// StartWait behaves like Start but additionally blocks until the worker
// acknowledges the start or the ack window passes, so the caller learns
// the real outcome. The REST API uses this.
func (o *Orchestrator) StartWait(endpointURL, device string) error {
	ack := make(chan error, 1)
	if err := o.start(endpointURL, device, ack); err != nil {
		return err
	}
	select {
	case err := <-ack:
		return err
	case <-time.After(o.ackWait + time.Second):
		return errors.New("start did not resolve in time")
	}
}

func (o *Orchestrator) start(endpointURL, device string, ack chan<- error) error {
	if err := channel.ValidateURL(endpointURL); err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.session.State {
	case types.StateAcquiring, types.StateStreaming:
		// Already underway.
		pendingOp{ack: ack}.resolve(nil)
		return nil
	case types.StateStopping:
		return errors.New("session is stopping, try again")
	}

	handle, err := o.resolver.Resolve(device)
	if err != nil {
		o.session.LastError = err.Error()
		o.session.State = types.StateIdle
		return fmt.Errorf("acquire capture source: %w", err)
	}

	o.session = types.CaptureSession{
		State:       types.StateAcquiring,
		EndpointURL: endpointURL,
	}
	o.stopAfterStart = false
	o.pending = append(o.pending, pendingOp{
		kind:     types.CmdStartCapture,
		deadline: time.Now().Add(o.ackWait),
		ack:      ack,
	})

	// The mailbox send must not block while the session lock is held; a
	// full mailbox means the worker is wedged and the ack timeout will
	// surface it.
	select {
	case o.w.Commands() <- types.WorkerCommand{
		Kind:        types.CmdStartCapture,
		EndpointURL: endpointURL,
		Handle:      handle,
	}:
	default:
		o.resolver.Discard(handle)
		slog.Error("worker mailbox full, start not delivered")
	}
	slog.Info("capture start requested", "endpoint", endpointURL, "device", device)
	return nil
}

// Stop ends the capture session. Idempotent: stopping an idle session is a
// no-op. A stop that races an in-flight start wins; the session is torn
// down as soon as the start resolves.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.session.State {
	case types.StateIdle, types.StateStopping:
		return nil
	case types.StateAcquiring:
		o.stopAfterStart = true
		o.session.State = types.StateStopping
		slog.Info("capture stop requested during acquisition, stop wins")
		return nil
	}

	o.session.State = types.StateStopping
	o.sendStopLocked()
	slog.Info("capture stop requested")
	return nil
}

// sendStopLocked queues a stop command and its pending op. Caller holds mu.
func (o *Orchestrator) sendStopLocked() {
	o.pending = append(o.pending, pendingOp{
		kind:     types.CmdStopCapture,
		deadline: time.Now().Add(o.ackWait),
	})
	select {
	case o.w.Commands() <- types.WorkerCommand{Kind: types.CmdStopCapture}:
	default:
		slog.Error("worker mailbox full, stop not delivered")
	}
}

// Status returns a snapshot of the capture session.
func (o *Orchestrator) Status() types.CaptureSession {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.session
}

// StatusReply returns the compact status shape the control surface polls.
func (o *Orchestrator) StatusReply() types.StatusReply {
	o.mu.RLock()
	defer o.mu.RUnlock()
	capturing := o.session.State == types.StateAcquiring ||
		o.session.State == types.StateStreaming
	return types.StatusReply{
		Capturing: capturing,
		Connected: o.session.Connected,
		Volume:    o.session.LastVolume,
	}
}

// RemoteEvents returns the retained endpoint messages, oldest first.
func (o *Orchestrator) RemoteEvents() []types.RemoteEvent {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]types.RemoteEvent, len(o.events))
	copy(out, o.events)
	return out
}

// handleEvent applies one worker event to session state.
func (o *Orchestrator) handleEvent(ev types.WorkerEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch ev.Kind {
	case types.EvtVolumeUpdate:
		o.session.LastVolume = ev.Volume
		if o.session.Connected {
			o.session.FramesSent++
		} else {
			o.session.FramesLost++
		}

	case types.EvtChannelState:
		o.session.Connected = ev.Channel == types.ChannelOpen
		if o.onChannelState != nil {
			// Outside the lock: the notifier may block on I/O.
			endpoint := o.session.EndpointURL
			state := ev.Channel
			go o.onChannelState(endpoint, state)
		}

	case types.EvtRemoteMessage:
		o.events = append(o.events, types.RemoteEvent{
			ReceivedAt: time.Now(),
			Payload:    string(ev.Payload),
		})
		if len(o.events) > types.RemoteEventBuffer {
			o.events = o.events[len(o.events)-types.RemoteEventBuffer:]
		}

	case types.EvtCaptureResult:
		o.handleResultLocked(ev)
	}
}

// handleResultLocked resolves a capture result against the oldest pending
// op. Caller holds mu.
func (o *Orchestrator) handleResultLocked(ev types.WorkerEvent) {
	if len(o.pending) == 0 {
		// Unsolicited result: the source failed mid-session.
		if ev.Success {
			return
		}
		slog.Error("capture session failed", "error", ev.Error)
		wasStreaming := o.session.State == types.StateStreaming
		o.session.LastError = ev.Error
		o.session.State = types.StateIdle
		o.session.Connected = false
		o.session.LastVolume = 0
		if wasStreaming && o.hook != nil {
			o.hook.SessionEnded()
		}
		return
	}

	op := o.pending[0]
	o.pending = o.pending[1:]

	switch op.kind {
	case types.CmdStartCapture:
		o.resolveStartLocked(op, ev)
	case types.CmdStopCapture:
		op.resolve(nil)
		o.session.State = types.StateIdle
		o.session.Connected = false
		o.session.LastVolume = 0
		slog.Info("capture session ended",
			"frames_sent", o.session.FramesSent,
			"frames_dropped", o.session.FramesLost)
		if o.hook != nil {
			o.hook.SessionEnded()
		}
	}
}

// resolveStartLocked applies a start result. A failure is recorded in
// LastError and the session returns to idle, ready for another start.
// Caller holds mu.
func (o *Orchestrator) resolveStartLocked(op pendingOp, ev types.WorkerEvent) {
	if !ev.Success {
		slog.Error("capture start failed", "error", ev.Error)
		op.resolve(errors.New(ev.Error))
		if o.stopAfterStart {
			// The operator already asked for teardown, so a failed start
			// is the desired outcome.
			o.stopAfterStart = false
			o.session.State = types.StateIdle
			return
		}
		o.session.LastError = ev.Error
		o.session.State = types.StateIdle
		return
	}

	op.resolve(nil)
	if o.stopAfterStart {
		// The operator stopped before acquisition finished. Tear the
		// fresh session straight down.
		o.stopAfterStart = false
		o.sendStopLocked()
		return
	}

	o.session.State = types.StateStreaming
	o.session.StartedAt = time.Now()
	slog.Info("capture session streaming", "endpoint", o.session.EndpointURL)
	if o.hook != nil {
		o.hook.SessionStarted(o.session.EndpointURL)
	}
}

// expirePending fails pending ops whose deadline passed. A worker that
// does not answer within the ack window is treated as failed; a late
// answer is reconciled when it eventually arrives.
func (o *Orchestrator) expirePending() {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now()
	for len(o.pending) > 0 && now.After(o.pending[0].deadline) {
		op := o.pending[0]
		o.pending = o.pending[1:]

		slog.Error("worker did not acknowledge in time", "command", op.kind)
		o.session.LastError = fmt.Sprintf("worker did not acknowledge %s within %s", op.kind, o.ackWait)
		o.session.State = types.StateIdle
		o.session.Connected = false
		o.session.LastVolume = 0
		o.stopAfterStart = false
		op.resolve(errors.New(o.session.LastError))

		// If the worker completes the start after the timeout, the
		// session is no longer wanted. Ask for teardown so the source is
		// not held hostage.
		if op.kind == types.CmdStartCapture {
			select {
			case o.w.Commands() <- types.WorkerCommand{Kind: types.CmdStopCapture}:
				o.pending = append(o.pending, pendingOp{
					kind:     types.CmdStopCapture,
					deadline: now.Add(o.ackWait),
				})
			default:
			}
		}
	}
}
