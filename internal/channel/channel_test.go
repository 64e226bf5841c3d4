package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tapcast/tapcast/internal/types"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoServer accepts websocket connections and records every binary
// message it receives. Each accepted connection is also kept so tests can
// force a server-side drop.
type echoServer struct {
	*httptest.Server

	mu       sync.Mutex
	conns    []*websocket.Conn
	received [][]byte
	accepted chan struct{}
}

func newEchoServer(t *testing.T) *echoServer {
	t.Helper()
	s := &echoServer{accepted: make(chan struct{}, 8)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		s.accepted <- struct{}{}

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.received = append(s.received, msg)
			s.mu.Unlock()
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *echoServer) url() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

func (s *echoServer) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
}

func (s *echoServer) receivedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

// waitForState polls until the channel reaches the wanted state or the
// deadline passes.
func waitForState(t *testing.T, c *Channel, want types.ChannelState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("channel state = %q, want %q", c.State(), want)
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid ws", "ws://example.com/audio", false},
		{"valid wss", "wss://example.com:8443/audio", false},
		{"http scheme", "http://example.com/audio", true},
		{"empty", "", true},
		{"no host", "ws:///audio", true},
		{"garbage", "://nope", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestOpenAndSend(t *testing.T) {
	srv := newEchoServer(t)
	c := New(Config{URL: srv.url()})
	defer c.Close()

	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	waitForState(t, c, types.ChannelOpen)

	frame := make([]byte, types.FrameBytes)
	c.Send(frame)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && srv.receivedCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if got := srv.receivedCount(); got != 1 {
		t.Fatalf("server received %d messages, want 1", got)
	}
}

func TestOpenFailsFast(t *testing.T) {
	// A port with nothing listening: connection is refused immediately.
	srv := newEchoServer(t)
	url := srv.url()
	srv.Close()

	c := New(Config{URL: url, ConnectTimeout: 500 * time.Millisecond})
	if err := c.Open(context.Background()); err == nil {
		t.Fatal("Open() succeeded against a closed server")
	}
	if got := c.State(); got != types.ChannelClosed {
		t.Errorf("state after failed open = %q, want %q", got, types.ChannelClosed)
	}
}

func TestReconnectAfterServerDrop(t *testing.T) {
	srv := newEchoServer(t)

	var mu sync.Mutex
	var transitions []types.ChannelState

	c := New(Config{URL: srv.url(), RetryDelay: 20 * time.Millisecond})
	defer c.Close()
	c.OnStateChange(func(s types.ChannelState) {
		mu.Lock()
		transitions = append(transitions, s)
		mu.Unlock()
	})

	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	waitForState(t, c, types.ChannelOpen)
	<-srv.accepted

	srv.dropAll()

	// The channel must come back on its own.
	select {
	case <-srv.accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not reconnect after server drop")
	}
	waitForState(t, c, types.ChannelOpen)

	mu.Lock()
	defer mu.Unlock()
	var sawReconnecting bool
	for _, s := range transitions {
		if s == types.ChannelReconnecting {
			sawReconnecting = true
		}
	}
	if !sawReconnecting {
		t.Errorf("state transitions %v missing %q", transitions, types.ChannelReconnecting)
	}
}

func TestSendDropsWhenNotOpen(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1/never"})

	// Must not block or panic before Open.
	done := make(chan struct{})
	go func() {
		c.Send(make([]byte, types.FrameBytes))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a channel that was never opened")
	}
}

func TestCloseIsTerminal(t *testing.T) {
	srv := newEchoServer(t)
	c := New(Config{URL: srv.url(), RetryDelay: 10 * time.Millisecond})

	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	waitForState(t, c, types.ChannelOpen)
	<-srv.accepted

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	waitForState(t, c, types.ChannelClosed)

	// No reconnect may happen after Close.
	select {
	case <-srv.accepted:
		t.Fatal("channel reconnected after Close")
	case <-time.After(100 * time.Millisecond):
	}

	if err := c.Open(context.Background()); err == nil {
		t.Fatal("Open() after Close() should fail")
	}
}

func TestCloseImmediatelyAfterOpen(t *testing.T) {
	srv := newEchoServer(t)

	// Close lands before the connection goroutine publishes the conn; the
	// channel must still end up Closed, never flip back to Open.
	for i := 0; i < 25; i++ {
		c := New(Config{URL: srv.url()})
		if err := c.Open(context.Background()); err != nil {
			t.Fatalf("iteration %d: Open() error = %v", i, err)
		}
		if err := c.Close(); err != nil {
			t.Fatalf("iteration %d: Close() error = %v", i, err)
		}

		deadline := time.Now().Add(20 * time.Millisecond)
		for time.Now().Before(deadline) {
			if got := c.State(); got != types.ChannelClosed {
				t.Fatalf("iteration %d: state = %q after Close, want %q", i, got, types.ChannelClosed)
			}
			time.Sleep(time.Millisecond)
		}
	}
}

func TestQueuedFramesDoNotSurviveReconnect(t *testing.T) {
	srv := newEchoServer(t)
	c := New(Config{URL: srv.url(), RetryDelay: 20 * time.Millisecond})
	defer c.Close()

	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	waitForState(t, c, types.ChannelOpen)
	<-srv.accepted

	srv.dropAll()

	// The drop takes a moment to observe; frames pushed in that window
	// land in the write queue and must die with the old connection.
	for i := 0; i < sendQueueSize/2 && c.State() == types.ChannelOpen; i++ {
		c.Send(make([]byte, types.FrameBytes))
	}

	select {
	case <-srv.accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not reconnect after server drop")
	}
	waitForState(t, c, types.ChannelOpen)

	// Give any (wrongly) surviving queue time to flush, then send a live
	// frame.
	time.Sleep(100 * time.Millisecond)
	fresh := []byte("fresh")
	c.Send(fresh)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && srv.receivedCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.received) != 1 {
		t.Fatalf("server received %d messages after reconnect, want only the live frame", len(srv.received))
	}
	if string(srv.received[0]) != string(fresh) {
		t.Errorf("first message after reconnect = %d bytes, want the live frame", len(srv.received[0]))
	}
}

func TestOnMessageDelivery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello"}`))
		// Keep the connection alive until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	got := make(chan []byte, 1)
	c := New(Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	defer c.Close()
	c.OnMessage(func(msg []byte) {
		select {
		case got <- msg:
		default:
		}
	})

	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	select {
	case msg := <-got:
		if string(msg) != `{"type":"hello"}` {
			t.Errorf("received %q, want hello payload", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered to handler")
	}
}
