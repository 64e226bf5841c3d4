package types

// CommandKind identifies a control message sent to the capture worker.
type CommandKind string

const (
	// CmdStartCapture instructs the worker to begin a capture session.
	CmdStartCapture CommandKind = "start_capture"
	// CmdStopCapture instructs the worker to tear down the active session.
	CmdStopCapture CommandKind = "stop_capture"
)

// WorkerCommand is a control message from the orchestrator to the capture
// worker. The worker has no callable interface; commands on its mailbox are
// the only way to interact with it.
type WorkerCommand struct {
	Kind        CommandKind  // Which operation to perform
	EndpointURL string       // Remote endpoint (start only)
	Handle      StreamHandle // One-shot source handle (start only)
}

// EventKind identifies a control message emitted by the capture worker.
type EventKind string

const (
	// EvtVolumeUpdate carries the loudness of the most recent block.
	EvtVolumeUpdate EventKind = "volume_update"
	// EvtCaptureResult reports the outcome of a start request, or a failure
	// that ended an active session.
	EvtCaptureResult EventKind = "capture_result"
	// EvtChannelState reports a change in the streaming channel's state.
	EvtChannelState EventKind = "channel_state"
	// EvtRemoteMessage carries a JSON message pushed by the endpoint.
	EvtRemoteMessage EventKind = "remote_message"
)

// WorkerEvent is a control message from the capture worker to the
// orchestrator. Each variant is self-contained; no ordering is guaranteed
// between volume updates and frame delivery.
type WorkerEvent struct {
	Kind    EventKind    // Which event occurred
	Volume  float64      // Loudness 0..1 (volume updates only)
	Success bool         // Start outcome (capture results only)
	Error   string       // Failure description (capture results only)
	Channel ChannelState // New channel state (channel state only)
	Payload []byte       // Raw endpoint message (remote messages only)
}

// StatusReply is the session snapshot delivered to the control surface.
// Connected reflects the channel's live state and is deliberately decoupled
// from Capturing: a delivery outage is visible to the operator while capture
// keeps running.
type StatusReply struct {
	Capturing bool    `json:"capturing"` // Audio is being captured
	Connected bool    `json:"connected"` // Channel is open
	Volume    float64 `json:"volume"`    // Current loudness, 0..1
}
