// Package types provides shared type definitions used across tapcast.
package types

import "time"

// SessionState represents the current state of the capture session.
type SessionState string

const (
	// StateIdle indicates no capture is active.
	StateIdle SessionState = "idle"
	// StateAcquiring indicates a capture source is being acquired.
	StateAcquiring SessionState = "acquiring"
	// StateStreaming indicates audio is being captured and streamed.
	StateStreaming SessionState = "streaming"
	// StateStopping indicates the session is shutting down.
	StateStopping SessionState = "stopping"
	// StateError marks a failed start or a dead session. The state is
	// transient: the failure lands in LastError and the session settles
	// back in StateIdle, ready for another start.
	StateError SessionState = "error"
)

// ChannelState represents the lifecycle state of the streaming channel.
type ChannelState string

const (
	// ChannelConnecting indicates a connection attempt is in progress.
	ChannelConnecting ChannelState = "connecting"
	// ChannelOpen indicates the channel is ready to carry frames.
	ChannelOpen ChannelState = "open"
	// ChannelReconnecting indicates the connection dropped and a retry is pending.
	ChannelReconnecting ChannelState = "reconnecting"
	// ChannelClosed indicates the channel was explicitly closed. Terminal.
	ChannelClosed ChannelState = "closed"
)

// StreamHandle is an opaque token granting one-time access to a capture
// source. Handles are issued by a source resolver and redeemed exactly once.
type StreamHandle string

// CaptureSession is the single record of an active or inactive capture
// attempt. It is owned exclusively by the orchestrator; workers only ever
// see the parameters passed to them.
type CaptureSession struct {
	State       SessionState `json:"state"`                  // Current session state
	EndpointURL string       `json:"endpoint_url,omitzero"`  // Remote processing endpoint
	LastVolume  float64      `json:"last_volume"`            // Most recent loudness, 0..1
	LastError   string       `json:"last_error,omitzero"`    // Most recent failure
	Connected   bool         `json:"connected"`              // Channel is open right now
	StartedAt   time.Time    `json:"started_at,omitzero"`    // When streaming began
	FramesSent  uint64       `json:"frames_sent,omitzero"`   // Frames delivered this session
	FramesLost  uint64       `json:"frames_dropped,omitzero"` // Frames dropped this session
}

// Audio format constants for PCM capture and encoding.
const (
	// SampleRate is the capture sample rate in Hz.
	SampleRate = 16000
	// Channels is the number of audio channels (mono).
	Channels = 1
	// BlockSamples is the number of samples processed per tick.
	BlockSamples = 4096
	// BytesPerSample is the size of one S16LE sample.
	BytesPerSample = 2
	// FrameBytes is the wire size of one encoded audio frame.
	FrameBytes = BlockSamples * BytesPerSample
)

// BlockDuration is the wall-clock length of one audio block.
const BlockDuration = time.Second * BlockSamples / SampleRate

// Timing constants for session and channel management.
const (
	// WorkerAckTimeout bounds how long a start request waits for the worker.
	WorkerAckTimeout = 5 * time.Second
	// ConnectTimeout bounds the initial channel connection attempt.
	ConnectTimeout = 5 * time.Second
	// ReconnectDelay is the fixed wait between reconnection attempts. The
	// channel serves a single operator session, so prompt recovery beats
	// backoff-driven load shedding.
	ReconnectDelay = 5 * time.Second
	// StatusInterval is the cadence at which the control surface receives
	// session status.
	StatusInterval = 500 * time.Millisecond
	// ShutdownTimeout is the duration to wait for graceful shutdown.
	ShutdownTimeout = 3 * time.Second
)

// RemoteEventBuffer is the number of recent endpoint events retained for the
// control surface.
const RemoteEventBuffer = 50

// RemoteEvent is one JSON message pushed back by the processing endpoint
// (status, recognition text, alerts). The payload is opaque to tapcast.
type RemoteEvent struct {
	ReceivedAt time.Time `json:"received_at"` // When the message arrived
	Payload    string    `json:"payload"`     // Raw JSON from the endpoint
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}
