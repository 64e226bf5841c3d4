package types

// WSStatusResponse is sent to control-surface clients with full session and
// runtime status.
type WSStatusResponse struct {
	Type         string         `json:"type"`                    // Message type identifier
	Status       StatusReply    `json:"status"`                  // Capture status snapshot
	Session      CaptureSession `json:"session"`                 // Full session record
	Uptime       string         `json:"uptime,omitzero"`         // Time since streaming began
	Endpoint     string         `json:"endpoint"`                // Configured endpoint URL
	CaptureInput string         `json:"capture_input"`           // Configured capture device
	ArchiveState string         `json:"archive_state,omitempty"` // Session archive state
	Events       []RemoteEvent  `json:"events"`                  // Recent endpoint messages
	Version      VersionInfo    `json:"version"`                 // Version information
}

// WSCommandResult is the standard response for command execution.
type WSCommandResult struct {
	Type    string           `json:"type"`            // "<command>_result"
	Success bool             `json:"success"`         // Command succeeded
	Error   *ValidationError `json:"error,omitempty"` // Validation errors if failed
	Data    any              `json:"data,omitempty"`  // Optional response data
}

// WSTestResult is the response to a notification test command.
type WSTestResult struct {
	Type     string `json:"type"`            // "test_result"
	TestType string `json:"test_type"`       // "webhook", "log" or "email"
	Success  bool   `json:"success"`         // Test succeeded
	Error    string `json:"error,omitempty"` // Failure detail
}

// WSConfigResponse is sent in response to config/get. Contains the full
// configuration without runtime state.
type WSConfigResponse struct {
	Type   string `json:"type"` // "config"
	Config any    `json:"config"`
}
