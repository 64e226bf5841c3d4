package server

// Request types for WebSocket commands with validation tags.
// These types define the expected input for each command and use
// go-playground/validator struct tags for automatic validation.

// --- Capture ---

// CaptureStartRequest is the request body for capture/start. Empty fields
// fall back to the configured values.
type CaptureStartRequest struct {
	Endpoint string `json:"endpoint" validate:"omitempty,max=2048,startswith=ws"`
	Input    string `json:"input" validate:"omitempty,max=256"`
}

// CaptureUpdateRequest is the request body for capture/update.
type CaptureUpdateRequest struct {
	Endpoint *string `json:"endpoint" validate:"omitempty,max=2048"`
	Input    *string `json:"input" validate:"omitempty,max=256"`
	Playback *bool   `json:"playback"`
}

// --- Archive settings ---

// ArchiveUpdateRequest is the request body for archive/update.
type ArchiveUpdateRequest struct {
	Enabled       *bool  `json:"enabled"`
	Path          string `json:"path" validate:"omitempty,max=4096"`
	RetentionDays int    `json:"retention_days" validate:"omitempty,gte=1,lte=3650"`
	S3Endpoint    string `json:"s3_endpoint" validate:"omitempty,max=2048"`
	S3Region      string `json:"s3_region" validate:"omitempty,max=64"`
	S3Bucket      string `json:"s3_bucket" validate:"omitempty,max=63"`
	S3AccessKey   string `json:"s3_access_key" validate:"omitempty,max=128"`
	S3SecretKey   string `json:"s3_secret_key" validate:"omitempty,max=256"`
}

// S3TestRequest is the request body for archive/test-s3.
type S3TestRequest struct {
	Endpoint  string `json:"s3_endpoint" validate:"omitempty,max=2048"`
	Region    string `json:"s3_region" validate:"omitempty,max=64"`
	Bucket    string `json:"s3_bucket" validate:"required,max=63"`
	AccessKey string `json:"s3_access_key" validate:"required,max=128"`
	SecretKey string `json:"s3_secret_key" validate:"required,max=256"`
}

// --- Notification settings ---

// WebhookUpdateRequest is the request body for notifications/webhook/update.
type WebhookUpdateRequest struct {
	URL string `json:"url" validate:"omitempty,max=2048,url"`
}

// LogUpdateRequest is the request body for notifications/log/update.
type LogUpdateRequest struct {
	Path string `json:"path" validate:"omitempty,max=4096"`
}

// EmailUpdateRequest is the request body for notifications/email/update.
type EmailUpdateRequest struct {
	TenantID     string `json:"tenant_id" validate:"omitempty,max=100"`
	ClientID     string `json:"client_id" validate:"omitempty,max=100"`
	ClientSecret string `json:"client_secret" validate:"omitempty,max=500"`
	FromAddress  string `json:"from_address" validate:"omitempty,max=254,email"`
	Recipients   string `json:"recipients" validate:"omitempty,max=1000"`
}

// --- Branding ---

// BrandingUpdateRequest is the request body for prefs/update.
type BrandingUpdateRequest struct {
	InstanceName string `json:"instance_name" validate:"omitempty,max=50"`
	ColorLight   string `json:"color_light" validate:"omitempty,hexcolor"`
	ColorDark    string `json:"color_dark" validate:"omitempty,hexcolor"`
}
