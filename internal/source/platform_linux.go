//go:build linux

package source

import (
	"fmt"
	"regexp"

	"github.com/tapcast/tapcast/internal/types"
)

func getPlatformConfig() captureConfig {
	return captureConfig{
		Command:       "arecord",
		DefaultDevice: "default",
		BuildArgs:     buildLinuxArgs,
	}
}

func buildLinuxArgs(device string) []string {
	return []string{
		"-D", device,
		"-f", "S16_LE",
		"-r", fmt.Sprintf("%d", types.SampleRate),
		"-c", fmt.Sprintf("%d", types.Channels),
		"-t", "raw",
		"-q",
		"-",
	}
}

func (cfg *captureConfig) devices() []Device {
	return parseDeviceList(deviceListConfig{
		Command:       []string{"arecord", "-l"},
		DevicePattern: regexp.MustCompile(`card\s+(\d+):\s+(\w+)\s+\[([^\]]+)\]`),
		ParseDevice: func(matches []string) *Device {
			if len(matches) < 4 {
				return nil
			}
			return &Device{
				ID:   "default:CARD=" + matches[2],
				Name: matches[3],
			}
		},
		FallbackDevices: []Device{
			{ID: "default", Name: "ALSA default input"},
		},
	})
}
