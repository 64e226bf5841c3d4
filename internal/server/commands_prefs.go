package server

import "github.com/tapcast/tapcast/internal/types"

// handlePrefsUpdate persists control-surface branding.
func (h *CommandHandler) handlePrefsUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(data *BrandingUpdateRequest) error {
		snap := h.cfg.Snapshot()

		name := data.InstanceName
		if name == "" {
			name = snap.InstanceName
		}
		light := data.ColorLight
		if light == "" {
			light = snap.InstanceColorLight
		}
		dark := data.ColorDark
		if dark == "" {
			dark = snap.InstanceColorDark
		}

		return h.cfg.SetWebBranding(name, light, dark)
	})
}

// handleConfigGet returns the full configuration without secrets or runtime
// state.
func (h *CommandHandler) handleConfigGet(send chan<- any) {
	snap := h.cfg.Snapshot()

	resp := types.WSConfigResponse{
		Type: "config",
		Config: map[string]any{
			"instance_name":    snap.InstanceName,
			"color_light":      snap.InstanceColorLight,
			"color_dark":       snap.InstanceColorDark,
			"endpoint":         snap.Endpoint,
			"input":            snap.AudioInput,
			"playback":         snap.Playback,
			"archive_enabled":  snap.ArchiveEnabled,
			"archive_path":     snap.ArchivePath,
			"retention_days":   snap.ArchiveRetentionDays,
			"webhook_set":      snap.HasWebhook(),
			"log_path":         snap.LogPath,
			"email_configured": snap.HasGraph(),
			"s3_configured":    snap.HasS3(),
		},
	}
	trySend(send, "config/get", resp)
}
