package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/tapcast/tapcast/internal/observe"
	"github.com/tapcast/tapcast/internal/source"
	"github.com/tapcast/tapcast/internal/types"
)

// scriptedSource yields a fixed number of blocks filled with a constant
// sample value, then blocks until cancelled (or fails, when failAfter is
// set).
type scriptedSource struct {
	blocks    int
	value     float32
	failAfter bool

	mu     sync.Mutex
	reads  int
	closed bool
}

func (s *scriptedSource) ReadBlock(ctx context.Context, dst []float32) error {
	s.mu.Lock()
	n := s.reads
	s.reads++
	s.mu.Unlock()

	if n >= s.blocks {
		if s.failAfter {
			return io.ErrUnexpectedEOF
		}
		<-ctx.Done()
		return ctx.Err()
	}
	for i := range dst[:types.BlockSamples] {
		dst[i] = s.value
	}
	return nil
}

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type scriptedOpener struct {
	src     source.Source
	openErr error
}

func (o *scriptedOpener) Open(_ context.Context, _ string) (source.Source, error) {
	if o.openErr != nil {
		return nil, o.openErr
	}
	return o.src, nil
}

// fakeChannel records sent frames and lets tests flip the reported state.
type fakeChannel struct {
	mu      sync.Mutex
	state   types.ChannelState
	frames  [][]byte
	openErr error
	closed  bool

	onMessage func([]byte)
	onState   func(types.ChannelState)
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{state: types.ChannelConnecting}
}

func (c *fakeChannel) Open(_ context.Context) error {
	if c.openErr != nil {
		return c.openErr
	}
	c.setState(types.ChannelOpen)
	return nil
}

func (c *fakeChannel) Send(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, msg)
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.setState(types.ChannelClosed)
	return nil
}

func (c *fakeChannel) State() types.ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeChannel) OnMessage(fn func([]byte))                { c.onMessage = fn }
func (c *fakeChannel) OnStateChange(fn func(types.ChannelState)) { c.onState = fn }

func (c *fakeChannel) setState(s types.ChannelState) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (c *fakeChannel) sentFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.frames))
	copy(out, c.frames)
	return out
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// startWorker spins up a worker with the given source and channel and
// returns it along with a resolved handle ready to redeem.
func startWorker(t *testing.T, src source.Source, ch Channel, openErr error) (*Worker, types.StreamHandle, context.CancelFunc) {
	t.Helper()
	resolver := source.NewResolver(&scriptedOpener{src: src, openErr: openErr})
	handle, err := resolver.Resolve("test-device")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	w := New(resolver, func(string) Channel { return ch }, testMetrics(t))
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	t.Cleanup(cancel)
	return w, handle, cancel
}

// nextEvent waits for the next event of the given kind, discarding others.
func nextEvent(t *testing.T, w *Worker, kind types.EventKind) types.WorkerEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", kind)
		}
	}
}

func TestStartCaptureStreamsFrames(t *testing.T) {
	const blocks = 10
	src := &scriptedSource{blocks: blocks, value: 0}
	ch := newFakeChannel()
	w, handle, _ := startWorker(t, src, ch, nil)

	w.Commands() <- types.WorkerCommand{
		Kind:        types.CmdStartCapture,
		EndpointURL: "ws://endpoint/audio",
		Handle:      handle,
	}

	ev := nextEvent(t, w, types.EvtCaptureResult)
	if !ev.Success {
		t.Fatalf("start failed: %s", ev.Error)
	}

	// Silence in means ten volume updates of exactly zero.
	for i := 0; i < blocks; i++ {
		vol := nextEvent(t, w, types.EvtVolumeUpdate)
		if vol.Volume != 0 {
			t.Errorf("volume update %d = %v, want 0", i, vol.Volume)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(ch.sentFrames()) < blocks {
		time.Sleep(5 * time.Millisecond)
	}
	frames := ch.sentFrames()
	if len(frames) != blocks {
		t.Fatalf("channel received %d frames, want %d", len(frames), blocks)
	}
	for i, f := range frames {
		if len(f) != types.FrameBytes {
			t.Errorf("frame %d is %d bytes, want %d", i, len(f), types.FrameBytes)
		}
	}
}

func TestStopCaptureReleasesSource(t *testing.T) {
	src := &scriptedSource{blocks: 2}
	ch := newFakeChannel()
	w, handle, _ := startWorker(t, src, ch, nil)

	w.Commands() <- types.WorkerCommand{
		Kind:        types.CmdStartCapture,
		EndpointURL: "ws://endpoint/audio",
		Handle:      handle,
	}
	if ev := nextEvent(t, w, types.EvtCaptureResult); !ev.Success {
		t.Fatalf("start failed: %s", ev.Error)
	}

	w.Commands() <- types.WorkerCommand{Kind: types.CmdStopCapture}
	if ev := nextEvent(t, w, types.EvtCaptureResult); !ev.Success {
		t.Fatalf("stop failed: %s", ev.Error)
	}

	src.mu.Lock()
	closed := src.closed
	src.mu.Unlock()
	if !closed {
		t.Error("source not closed after stop")
	}
	ch.mu.Lock()
	chClosed := ch.closed
	ch.mu.Unlock()
	if !chClosed {
		t.Error("channel not closed after stop")
	}
}

func TestStopWithoutSessionStillAcks(t *testing.T) {
	w, _, _ := startWorker(t, &scriptedSource{}, newFakeChannel(), nil)

	w.Commands() <- types.WorkerCommand{Kind: types.CmdStopCapture}
	if ev := nextEvent(t, w, types.EvtCaptureResult); !ev.Success {
		t.Errorf("idle stop must ack success, got error %q", ev.Error)
	}
}

func TestChannelOpenFailureReportsError(t *testing.T) {
	ch := newFakeChannel()
	ch.openErr = errors.New("connection refused")
	w, handle, _ := startWorker(t, &scriptedSource{}, ch, nil)

	w.Commands() <- types.WorkerCommand{
		Kind:        types.CmdStartCapture,
		EndpointURL: "ws://endpoint/audio",
		Handle:      handle,
	}

	ev := nextEvent(t, w, types.EvtCaptureResult)
	if ev.Success {
		t.Fatal("start succeeded despite channel failure")
	}
	if ev.Error == "" {
		t.Error("failure event carries no error description")
	}
}

func TestSourceAcquisitionFailureClosesChannel(t *testing.T) {
	ch := newFakeChannel()
	w, handle, _ := startWorker(t, nil, ch, errors.New("device busy"))

	w.Commands() <- types.WorkerCommand{
		Kind:        types.CmdStartCapture,
		EndpointURL: "ws://endpoint/audio",
		Handle:      handle,
	}

	ev := nextEvent(t, w, types.EvtCaptureResult)
	if ev.Success {
		t.Fatal("start succeeded despite source failure")
	}
	ch.mu.Lock()
	closed := ch.closed
	ch.mu.Unlock()
	if !closed {
		t.Error("channel left open after source acquisition failed")
	}
}

func TestSourceFailureMidSessionTearsDown(t *testing.T) {
	src := &scriptedSource{blocks: 3, failAfter: true}
	ch := newFakeChannel()
	w, handle, _ := startWorker(t, src, ch, nil)

	w.Commands() <- types.WorkerCommand{
		Kind:        types.CmdStartCapture,
		EndpointURL: "ws://endpoint/audio",
		Handle:      handle,
	}
	if ev := nextEvent(t, w, types.EvtCaptureResult); !ev.Success {
		t.Fatalf("start failed: %s", ev.Error)
	}

	// After three blocks the source errors; the worker must report a
	// failed capture result and release everything.
	ev := nextEvent(t, w, types.EvtCaptureResult)
	if ev.Success {
		t.Fatal("expected failure result after source error")
	}
	if ev.Error == "" {
		t.Error("failure result carries no error description")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		src.mu.Lock()
		closed := src.closed
		src.mu.Unlock()
		if closed {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("source not closed after mid-session failure")
}

func TestDuplicateStartAcksWithoutSecondSession(t *testing.T) {
	src := &scriptedSource{blocks: 1}
	ch := newFakeChannel()
	w, handle, _ := startWorker(t, src, ch, nil)

	w.Commands() <- types.WorkerCommand{
		Kind:        types.CmdStartCapture,
		EndpointURL: "ws://endpoint/audio",
		Handle:      handle,
	}
	if ev := nextEvent(t, w, types.EvtCaptureResult); !ev.Success {
		t.Fatalf("start failed: %s", ev.Error)
	}

	w.Commands() <- types.WorkerCommand{
		Kind:        types.CmdStartCapture,
		EndpointURL: "ws://endpoint/audio",
		Handle:      types.StreamHandle("unused"),
	}
	if ev := nextEvent(t, w, types.EvtCaptureResult); !ev.Success {
		t.Errorf("duplicate start must ack success, got error %q", ev.Error)
	}
}

func TestChannelStateEventsReachOwner(t *testing.T) {
	src := &scriptedSource{blocks: 1}
	ch := newFakeChannel()
	w, handle, _ := startWorker(t, src, ch, nil)

	w.Commands() <- types.WorkerCommand{
		Kind:        types.CmdStartCapture,
		EndpointURL: "ws://endpoint/audio",
		Handle:      handle,
	}
	if ev := nextEvent(t, w, types.EvtCaptureResult); !ev.Success {
		t.Fatalf("start failed: %s", ev.Error)
	}

	ch.setState(types.ChannelReconnecting)

	ev := nextEvent(t, w, types.EvtChannelState)
	for ev.Channel != types.ChannelReconnecting {
		ev = nextEvent(t, w, types.EvtChannelState)
	}
}
