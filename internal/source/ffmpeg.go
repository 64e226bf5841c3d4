//go:build !linux

package source

import (
	"fmt"

	"github.com/tapcast/tapcast/internal/types"
)

// buildFFmpegCaptureArgs constructs FFmpeg arguments for raw PCM capture
// on platforms without arecord.
func buildFFmpegCaptureArgs(inputFormat, device string) []string {
	return []string{
		"-f", inputFormat,
		"-i", device,
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-vn",
		"-f", "s16le",
		"-ac", fmt.Sprintf("%d", types.Channels),
		"-ar", fmt.Sprintf("%d", types.SampleRate),
		"pipe:1",
	}
}
