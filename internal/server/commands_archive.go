package server

import (
	"github.com/tapcast/tapcast/internal/archive"
	"github.com/tapcast/tapcast/internal/config"
)

// handleArchiveUpdate persists archive settings. Omitted fields keep their
// current values.
func (h *CommandHandler) handleArchiveUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(data *ArchiveUpdateRequest) error {
		snap := h.cfg.Snapshot()

		next := config.ArchiveConfig{
			Enabled:       snap.ArchiveEnabled,
			Path:          snap.ArchivePath,
			RetentionDays: snap.ArchiveRetentionDays,
			S3Endpoint:    snap.S3Endpoint,
			S3Region:      snap.S3Region,
			S3Bucket:      snap.S3Bucket,
			S3AccessKey:   snap.S3AccessKey,
			S3SecretKey:   snap.S3SecretKey,
		}

		if data.Enabled != nil {
			next.Enabled = *data.Enabled
		}
		if data.Path != "" {
			next.Path = data.Path
		}
		if data.RetentionDays != 0 {
			next.RetentionDays = data.RetentionDays
		}
		if data.S3Endpoint != "" {
			next.S3Endpoint = data.S3Endpoint
		}
		if data.S3Region != "" {
			next.S3Region = data.S3Region
		}
		if data.S3Bucket != "" {
			next.S3Bucket = data.S3Bucket
		}
		if data.S3AccessKey != "" {
			next.S3AccessKey = data.S3AccessKey
		}
		if data.S3SecretKey != "" {
			next.S3SecretKey = data.S3SecretKey
		}

		return h.cfg.SetArchive(next)
	})
}

// handleArchiveGet returns the persisted archive settings. The S3 secret is
// never echoed back to the client.
func (h *CommandHandler) handleArchiveGet(send chan<- any) {
	snap := h.cfg.Snapshot()
	SendSuccess(send, "archive/get", map[string]any{
		"enabled":        snap.ArchiveEnabled,
		"path":           snap.ArchivePath,
		"retention_days": snap.ArchiveRetentionDays,
		"s3_endpoint":    snap.S3Endpoint,
		"s3_region":      snap.S3Region,
		"s3_bucket":      snap.S3Bucket,
		"s3_access_key":  snap.S3AccessKey,
		"s3_configured":  snap.HasS3(),
	})
}

// handleTestS3 validates S3 credentials by uploading and deleting a probe
// object. Runs async because the round trip can take seconds.
func (h *CommandHandler) handleTestS3(cmd WSCommand, send chan<- any) {
	var data S3TestRequest
	if !DecodeAndValidate(cmd, send, &data) {
		return
	}

	HandleActionAsync(cmd, send, func() (any, error) {
		probe := config.Snapshot{
			S3Endpoint:  data.Endpoint,
			S3Region:    data.Region,
			S3Bucket:    data.Bucket,
			S3AccessKey: data.AccessKey,
			S3SecretKey: data.SecretKey,
		}
		if err := archive.TestS3Connection(&probe); err != nil {
			return nil, err
		}
		return map[string]string{"message": "S3 connection verified"}, nil
	})
}
