package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tapcast/tapcast/internal/util"
)

// WebhookPayload represents the data sent to webhook endpoints.
type WebhookPayload struct {
	Event            string `json:"event"`
	Endpoint         string `json:"endpoint,omitempty"`
	OutageDurationMs int64  `json:"outage_duration_ms,omitempty"`
	Message          string `json:"message,omitempty"`
	Timestamp        string `json:"timestamp"`
}

// SendOutageWebhook notifies the configured webhook that frame delivery
// stopped.
func SendOutageWebhook(webhookURL, endpoint string) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "delivery_outage",
		Endpoint:  endpoint,
		Timestamp: timestampUTC(),
	})
}

// SendRecoveryWebhook notifies the configured webhook that frame delivery
// resumed.
func SendRecoveryWebhook(webhookURL, endpoint string, durationMs int64) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:            "delivery_recovered",
		Endpoint:         endpoint,
		OutageDurationMs: durationMs,
		Timestamp:        timestampUTC(),
	})
}

// SendTestWebhook sends a test webhook notification.
func SendTestWebhook(webhookURL, instanceName string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "test",
		Message:   "This is a test notification from " + instanceName,
		Timestamp: timestampUTC(),
	})
}

// sendWebhook delivers a notification to the configured webhook endpoint.
func sendWebhook(webhookURL string, payload *WebhookPayload) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "webhook response body")()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
