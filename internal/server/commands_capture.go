package server

import (
	"fmt"

	"github.com/tapcast/tapcast/internal/channel"
	"github.com/tapcast/tapcast/internal/source"
)

// handleCaptureStart begins a capture session. Endpoint and input fall back
// to the configured values when the request omits them.
func (h *CommandHandler) handleCaptureStart(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(data *CaptureStartRequest) error {
		if !h.ffmpegAvailable {
			return fmt.Errorf("no capture backend available on this system")
		}

		endpoint := data.Endpoint
		if endpoint == "" {
			endpoint = h.cfg.Endpoint()
		}
		if endpoint == "" {
			return fmt.Errorf("no processing endpoint configured")
		}

		input := data.Input
		if input == "" {
			input = h.cfg.AudioInput()
		}

		return h.orch.Start(endpoint, input)
	})
}

// handleCaptureStop ends the capture session. Stopping an idle session is
// not an error.
func (h *CommandHandler) handleCaptureStop(cmd WSCommand, send chan<- any) {
	if err := h.orch.Stop(); err != nil {
		SendError(send, cmd.Type, err)
		return
	}
	SendSuccess(send, cmd.Type, nil)
}

// handleCaptureUpdate persists capture settings.
func (h *CommandHandler) handleCaptureUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(data *CaptureUpdateRequest) error {
		if data.Endpoint != nil {
			if *data.Endpoint != "" {
				if err := channel.ValidateURL(*data.Endpoint); err != nil {
					return err
				}
			}
			if err := h.cfg.SetEndpoint(*data.Endpoint); err != nil {
				return err
			}
		}
		if data.Input != nil {
			if err := h.cfg.SetAudioInput(*data.Input); err != nil {
				return err
			}
		}
		if data.Playback != nil {
			if err := h.cfg.SetPlayback(*data.Playback); err != nil {
				return err
			}
		}
		return nil
	})
}

// handleCaptureGet returns the persisted capture settings.
func (h *CommandHandler) handleCaptureGet(send chan<- any) {
	snap := h.cfg.Snapshot()
	SendSuccess(send, "capture/get", map[string]any{
		"endpoint": snap.Endpoint,
		"input":    snap.AudioInput,
		"playback": snap.Playback,
	})
}

// handleCaptureDevices lists audio input devices known to the platform.
func (h *CommandHandler) handleCaptureDevices(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		return source.Devices(), nil
	})
}
