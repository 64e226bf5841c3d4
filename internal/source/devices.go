package source

import (
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
)

// Device describes an available audio input.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// captureConfig defines platform-specific capture settings.
type captureConfig struct {
	// Command is the capture executable ("arecord" or "ffmpeg").
	Command string

	// DefaultDevice is used when none is configured. Empty means
	// auto-detect.
	DefaultDevice string

	// UsesFFmpeg indicates the platform captures through FFmpeg, so a
	// configured FFmpeg path overrides Command.
	UsesFFmpeg bool

	// BuildArgs returns the capture command arguments for a device.
	BuildArgs func(device string) []string
}

// Devices returns the audio input devices detected on this machine.
func Devices() []Device {
	cfg := getPlatformConfig()
	return cfg.devices()
}

// BackendAvailable reports whether the platform capture executable can be
// found. On platforms that capture through FFmpeg a configured path takes
// precedence over PATH lookup.
func BackendAvailable(ffmpegPath string) bool {
	cfg := getPlatformConfig()
	command := cfg.Command
	if cfg.UsesFFmpeg && ffmpegPath != "" {
		command = ffmpegPath
	}
	_, err := exec.LookPath(command)
	return err == nil
}

// deviceListConfig defines how to enumerate devices on a platform.
type deviceListConfig struct {
	// Command and args to list devices.
	Command []string

	// AudioStartMarker and AudioStopMarker delimit the audio section of
	// the command output. Empty start marker means parse every line.
	AudioStartMarker string
	AudioStopMarker  string

	// DevicePattern extracts device info from a line.
	DevicePattern *regexp.Regexp

	// ParseDevice converts regex matches to a Device.
	ParseDevice func(matches []string) *Device

	// FallbackDevices are returned if detection fails.
	FallbackDevices []Device
}

func parseDeviceList(cfg deviceListConfig) []Device {
	if len(cfg.Command) == 0 {
		return cfg.FallbackDevices
	}

	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil && len(output) == 0 {
		slog.Error("failed to list audio devices", "error", err)
		return cfg.FallbackDevices
	}

	var devices []Device
	inAudioSection := cfg.AudioStartMarker == ""

	for _, line := range strings.Split(string(output), "\n") {
		if cfg.AudioStartMarker != "" && strings.Contains(line, cfg.AudioStartMarker) {
			inAudioSection = true
			continue
		}
		if cfg.AudioStopMarker != "" && strings.Contains(line, cfg.AudioStopMarker) {
			inAudioSection = false
			continue
		}
		if !inAudioSection {
			continue
		}

		// DirectShow prints an alternative name line per device.
		if strings.Contains(line, "Alternative name") {
			continue
		}

		if cfg.DevicePattern == nil {
			continue
		}
		matches := cfg.DevicePattern.FindStringSubmatch(line)
		if len(matches) > 0 && cfg.ParseDevice != nil {
			if dev := cfg.ParseDevice(matches); dev != nil {
				devices = append(devices, *dev)
			}
		}
	}

	if len(devices) == 0 {
		return cfg.FallbackDevices
	}
	return devices
}
