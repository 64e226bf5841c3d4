// Package config provides application configuration management.
package config

import (
	"cmp"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/tapcast/tapcast/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort             = 8080
	DefaultWebUsername         = "admin"
	DefaultWebPassword         = "tapcast"
	DefaultInstanceName        = "Tapcast"
	DefaultInstanceColorLight  = "#1D4ED8"
	DefaultInstanceColorDark   = "#3B82F6"
	DefaultArchiveRetentionDays = 30
)

// Validation patterns define regular expressions for configuration value validation.
var (
	// Instance name: any printable characters except control chars (blocks CRLF injection in emails)
	instanceNamePattern = regexp.MustCompile(`^[^\x00-\x1F\x7F]+$`)
	colorPattern        = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	FFmpegPath string `json:"ffmpeg_path"` // Path to FFmpeg binary (empty = use PATH)
	Port       int    `json:"port"`        // HTTP server port
	Username   string `json:"username"`    // Login username
	Password   string `json:"password"`    // Login password
	APIKey     string `json:"api_key"`     // Key for the capture REST API (generated on first run)
}

// WebConfig holds control surface branding settings.
type WebConfig struct {
	InstanceName string `json:"instance_name"` // Display name in the web UI
	ColorLight   string `json:"color_light"`   // Theme color for light mode (#RRGGBB)
	ColorDark    string `json:"color_dark"`    // Theme color for dark mode (#RRGGBB)
}

// CaptureConfig holds capture session settings.
type CaptureConfig struct {
	Endpoint string `json:"endpoint"` // Remote processing endpoint (ws:// or wss://)
	Input    string `json:"input"`    // Audio input device identifier
	Playback bool   `json:"playback"` // Monitor captured audio in the web UI
}

// ArchiveConfig holds local session archiving and S3 upload settings.
type ArchiveConfig struct {
	Enabled       bool   `json:"enabled"`        // Write session WAV files
	Path          string `json:"path"`           // Local directory for session files
	RetentionDays int    `json:"retention_days"` // Days to keep local files
	S3Endpoint    string `json:"s3_endpoint"`    // S3-compatible endpoint (empty = no upload)
	S3Region      string `json:"s3_region"`      // S3 region
	S3Bucket      string `json:"s3_bucket"`      // S3 bucket name
	S3AccessKey   string `json:"s3_access_key"`  // S3 access key ID
	S3SecretKey   string `json:"s3_secret_key"`  // S3 secret access key
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url"` // Webhook URL for outage alerts
}

// LogConfig holds log file notification settings.
type LogConfig struct {
	Path string `json:"path"` // Log file path for outage events
}

// EmailConfig holds Microsoft Graph email notification settings.
type EmailConfig struct {
	TenantID     string `json:"tenant_id"`     // Azure AD tenant ID
	ClientID     string `json:"client_id"`     // App registration client ID
	ClientSecret string `json:"client_secret"` // App registration client secret
	FromAddress  string `json:"from_address"`  // Shared mailbox sender address
	Recipients   string `json:"recipients"`    // Comma-separated recipient addresses
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig `json:"webhook"` // Webhook settings
	Log     LogConfig     `json:"log"`     // Log file settings
	Email   EmailConfig   `json:"email"`   // Email settings
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System        SystemConfig        `json:"system"`
	Web           WebConfig           `json:"web"`
	Capture       CaptureConfig       `json:"capture"`
	Archive       ArchiveConfig       `json:"archive"`
	Notifications NotificationsConfig `json:"notifications"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{
			Port:     DefaultWebPort,
			Username: DefaultWebUsername,
			Password: DefaultWebPassword,
		},
		Web: WebConfig{
			InstanceName: DefaultInstanceName,
			ColorLight:   DefaultInstanceColorLight,
			ColorDark:    DefaultInstanceColorDark,
		},
		filePath: filePath,
	}
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		c.applyDefaults()
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	// Persist so a generated API key survives restarts.
	c.applyDefaults()
	if err := c.saveLocked(); err != nil {
		return err
	}

	return c.validate()
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	name := c.Web.InstanceName
	if name == "" || len(name) > 30 || !instanceNamePattern.MatchString(name) {
		return fmt.Errorf("invalid instance_name %q: must be 1-30 printable characters", name)
	}
	if !colorPattern.MatchString(c.Web.ColorLight) {
		return fmt.Errorf("invalid color_light %q: must be hex format (#RRGGBB)", c.Web.ColorLight)
	}
	if !colorPattern.MatchString(c.Web.ColorDark) {
		return fmt.Errorf("invalid color_dark %q: must be hex format (#RRGGBB)", c.Web.ColorDark)
	}
	if c.Archive.Enabled {
		if err := util.ValidatePath("archive.path", c.Archive.Path); err != nil {
			return err
		}
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.System.Port == 0 {
		c.System.Port = DefaultWebPort
	}
	if c.System.Username == "" {
		c.System.Username = DefaultWebUsername
	}
	if c.System.Password == "" {
		c.System.Password = DefaultWebPassword
	}
	if c.Web.InstanceName == "" {
		c.Web.InstanceName = DefaultInstanceName
	}
	if c.Web.ColorLight == "" {
		c.Web.ColorLight = DefaultInstanceColorLight
	}
	if c.Web.ColorDark == "" {
		c.Web.ColorDark = DefaultInstanceColorDark
	}
	if c.System.APIKey == "" {
		c.System.APIKey = generateAPIKey()
	}
}

// generateAPIKey returns a random 64-character hex key.
func generateAPIKey() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// --- Getters for individual settings ---

// Endpoint returns the configured processing endpoint URL.
func (c *Config) Endpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Capture.Endpoint
}

// AudioInput returns the configured audio input device.
func (c *Config) AudioInput() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Capture.Input
}

// GetFFmpegPath returns the configured FFmpeg binary path.
func (c *Config) GetFFmpegPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.System.FFmpegPath
}

// LogPath returns the configured log file path for notifications.
func (c *Config) LogPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Notifications.Log.Path
}

// GetAPIKey returns the REST API key.
func (c *Config) GetAPIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.System.APIKey
}

// RegenerateAPIKey replaces the REST API key and saves the configuration.
func (c *Config) RegenerateAPIKey() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := generateAPIKey()
	if key == "" {
		return "", fmt.Errorf("failed to generate API key")
	}
	c.System.APIKey = key
	return key, c.saveLocked()
}

// --- Setters for individual settings ---

// SetEndpoint updates the processing endpoint and saves the configuration.
func (c *Config) SetEndpoint(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Capture.Endpoint = url
	return c.saveLocked()
}

// SetAudioInput updates the audio input device and saves the configuration.
func (c *Config) SetAudioInput(input string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Capture.Input = input
	return c.saveLocked()
}

// SetPlayback updates the UI playback preference and saves the configuration.
func (c *Config) SetPlayback(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Capture.Playback = enabled
	return c.saveLocked()
}

// SetWebhookURL updates the webhook URL and saves the configuration.
func (c *Config) SetWebhookURL(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Webhook.URL = url
	return c.saveLocked()
}

// SetLogPath updates the log file path and saves the configuration.
func (c *Config) SetLogPath(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Log.Path = path
	return c.saveLocked()
}

// SetGraphConfig updates all Microsoft Graph/Email configuration fields and saves.
func (c *Config) SetGraphConfig(tenantID, clientID, clientSecret, fromAddress, recipients string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Email.TenantID = tenantID
	c.Notifications.Email.ClientID = clientID
	c.Notifications.Email.ClientSecret = clientSecret
	c.Notifications.Email.FromAddress = fromAddress
	c.Notifications.Email.Recipients = recipients
	return c.saveLocked()
}

// SetArchive updates the archive settings and saves the configuration.
func (c *Config) SetArchive(a ArchiveConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a.Enabled {
		if err := util.ValidatePath("archive.path", a.Path); err != nil {
			return err
		}
	}
	c.Archive = a
	return c.saveLocked()
}

// SetWebBranding updates the web UI branding and saves the configuration.
func (c *Config) SetWebBranding(name, colorLight, colorDark string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name == "" || len(name) > 30 || !instanceNamePattern.MatchString(name) {
		return fmt.Errorf("invalid instance_name %q: must be 1-30 printable characters", name)
	}
	if !colorPattern.MatchString(colorLight) {
		return fmt.Errorf("invalid color_light %q: must be hex format (#RRGGBB)", colorLight)
	}
	if !colorPattern.MatchString(colorDark) {
		return fmt.Errorf("invalid color_dark %q: must be hex format (#RRGGBB)", colorDark)
	}
	c.Web.InstanceName = name
	c.Web.ColorLight = colorLight
	c.Web.ColorDark = colorDark
	return c.saveLocked()
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	WebPort     int
	WebUser     string
	WebPassword string
	FFmpegPath  string

	// Web/Branding
	InstanceName       string
	InstanceColorLight string
	InstanceColorDark  string

	// Capture
	Endpoint   string
	AudioInput string
	Playback   bool

	// Archive
	ArchiveEnabled       bool
	ArchivePath          string
	ArchiveRetentionDays int
	S3Endpoint           string
	S3Region             string
	S3Bucket             string
	S3AccessKey          string
	S3SecretKey          string

	// Notifications
	WebhookURL        string
	LogPath           string
	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string
	GraphFromAddress  string
	GraphRecipients   string
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		// System
		WebPort:     c.System.Port,
		WebUser:     c.System.Username,
		WebPassword: c.System.Password,
		FFmpegPath:  c.System.FFmpegPath,

		// Web/Branding
		InstanceName:       c.Web.InstanceName,
		InstanceColorLight: c.Web.ColorLight,
		InstanceColorDark:  c.Web.ColorDark,

		// Capture
		Endpoint:   c.Capture.Endpoint,
		AudioInput: c.Capture.Input,
		Playback:   c.Capture.Playback,

		// Archive (with defaults)
		ArchiveEnabled:       c.Archive.Enabled,
		ArchivePath:          c.Archive.Path,
		ArchiveRetentionDays: cmp.Or(c.Archive.RetentionDays, DefaultArchiveRetentionDays),
		S3Endpoint:           c.Archive.S3Endpoint,
		S3Region:             c.Archive.S3Region,
		S3Bucket:             c.Archive.S3Bucket,
		S3AccessKey:          c.Archive.S3AccessKey,
		S3SecretKey:          c.Archive.S3SecretKey,

		// Notifications
		WebhookURL:        c.Notifications.Webhook.URL,
		LogPath:           c.Notifications.Log.Path,
		GraphTenantID:     c.Notifications.Email.TenantID,
		GraphClientID:     c.Notifications.Email.ClientID,
		GraphClientSecret: c.Notifications.Email.ClientSecret,
		GraphFromAddress:  c.Notifications.Email.FromAddress,
		GraphRecipients:   c.Notifications.Email.Recipients,
	}
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasGraph reports whether Microsoft Graph email notifications are configured.
func (s *Snapshot) HasGraph() bool {
	return s.GraphTenantID != "" && s.GraphClientID != "" && s.GraphClientSecret != "" &&
		s.GraphFromAddress != "" && s.GraphRecipients != ""
}

// HasLogPath reports whether a log path is configured.
func (s *Snapshot) HasLogPath() bool {
	return s.LogPath != ""
}

// HasS3 reports whether S3 upload is fully configured.
func (s *Snapshot) HasS3() bool {
	return s.S3Bucket != "" && s.S3AccessKey != "" && s.S3SecretKey != ""
}
