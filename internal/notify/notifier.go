package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/tapcast/tapcast/internal/config"
	"github.com/tapcast/tapcast/internal/types"
	"github.com/tapcast/tapcast/internal/util"
)

// OutageNotifier watches the streaming channel and alerts operators when
// frame delivery is interrupted and when it recovers.
type OutageNotifier struct {
	cfg *config.Config

	// mu protects the notification state fields below
	mu sync.Mutex

	inOutage    bool
	outageStart time.Time

	// Track which notifications have been sent for the current outage
	webhookSent bool
	emailSent   bool
	logSent     bool

	// Cached Graph client for email notifications
	graphClient *GraphClient
}

// NewOutageNotifier returns an OutageNotifier reading channel settings
// from cfg.
func NewOutageNotifier(cfg *config.Config) *OutageNotifier {
	return &OutageNotifier{cfg: cfg}
}

// InvalidateGraphClient clears the cached Graph client.
// Call this when Graph configuration changes.
func (n *OutageNotifier) InvalidateGraphClient() {
	n.mu.Lock()
	n.graphClient = nil
	n.mu.Unlock()
}

// HandleChannelState processes a channel state transition and triggers
// notifications on outage boundaries.
func (n *OutageNotifier) HandleChannelState(endpoint string, state types.ChannelState) {
	switch state {
	case types.ChannelReconnecting:
		n.handleOutageStart(endpoint)
	case types.ChannelOpen:
		n.handleOutageEnd(endpoint)
	case types.ChannelClosed:
		// Session teardown is not an outage.
		n.Reset()
	}
}

func (n *OutageNotifier) handleOutageStart(endpoint string) {
	n.mu.Lock()
	if n.inOutage {
		n.mu.Unlock()
		return
	}
	n.inOutage = true
	n.outageStart = time.Now()
	n.mu.Unlock()

	snap := n.cfg.Snapshot()
	n.trySend(&n.webhookSent, snap.HasWebhook(), func() {
		util.LogNotifyResult(func() error { return SendOutageWebhook(snap.WebhookURL, endpoint) }, "Outage webhook")
	})
	n.trySend(&n.emailSent, snap.HasGraph(), func() {
		util.LogNotifyResult(func() error { return n.sendOutageEmail(&snap, endpoint) }, "Outage email")
	})
	n.trySend(&n.logSent, snap.HasLogPath(), func() {
		util.LogNotifyResult(func() error { return LogOutageStart(snap.LogPath, endpoint) }, "Outage log")
	})
}

func (n *OutageNotifier) handleOutageEnd(endpoint string) {
	n.mu.Lock()
	if !n.inOutage {
		n.mu.Unlock()
		return
	}
	durationMs := time.Since(n.outageStart).Milliseconds()
	sendWebhookRecovery := n.webhookSent
	sendEmailRecovery := n.emailSent
	sendLogRecovery := n.logSent
	n.inOutage = false
	n.webhookSent = false
	n.emailSent = false
	n.logSent = false
	n.mu.Unlock()

	snap := n.cfg.Snapshot()
	if sendWebhookRecovery {
		go util.LogNotifyResult(func() error {
			return SendRecoveryWebhook(snap.WebhookURL, endpoint, durationMs)
		}, "Recovery webhook")
	}
	if sendEmailRecovery {
		go util.LogNotifyResult(func() error {
			return n.sendRecoveryEmail(&snap, endpoint, durationMs)
		}, "Recovery email")
	}
	if sendLogRecovery {
		go util.LogNotifyResult(func() error {
			return LogOutageEnd(snap.LogPath, endpoint, durationMs)
		}, "Recovery log")
	}
}

// trySend sends a notification if the condition is met and not already sent.
func (n *OutageNotifier) trySend(sent *bool, condition bool, sender func()) {
	n.mu.Lock()
	shouldSend := !*sent && condition
	if shouldSend {
		*sent = true
	}
	n.mu.Unlock()
	if shouldSend {
		go sender()
	}
}

// Reset clears the outage state without sending recovery notifications.
func (n *OutageNotifier) Reset() {
	n.mu.Lock()
	n.inOutage = false
	n.webhookSent = false
	n.emailSent = false
	n.logSent = false
	n.mu.Unlock()
}

// BuildGraphConfig creates a GraphConfig from the config snapshot.
func BuildGraphConfig(snap *config.Snapshot) *GraphConfig {
	return &GraphConfig{
		TenantID:     snap.GraphTenantID,
		ClientID:     snap.GraphClientID,
		ClientSecret: snap.GraphClientSecret,
		FromAddress:  snap.GraphFromAddress,
		Recipients:   snap.GraphRecipients,
	}
}

// getOrCreateGraphClient returns the cached Graph client, creating it if needed.
func (n *OutageNotifier) getOrCreateGraphClient(cfg *GraphConfig) (*GraphClient, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.graphClient != nil {
		return n.graphClient, nil
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return nil, err
	}
	n.graphClient = client
	return client, nil
}

// sendEmail handles the common email sending infrastructure.
func (n *OutageNotifier) sendEmail(cfg *GraphConfig, subject, body string) error {
	if !IsGraphConfigured(cfg) {
		return nil
	}

	client, err := n.getOrCreateGraphClient(cfg)
	if err != nil {
		return util.WrapError("create Graph client", err)
	}

	recipients := ParseRecipients(cfg.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	if err := client.SendMail(recipients, subject, body); err != nil {
		return util.WrapError("send email via Graph", err)
	}

	return nil
}

func (n *OutageNotifier) sendOutageEmail(snap *config.Snapshot, endpoint string) error {
	subject := "[ALERT] Delivery Outage - " + snap.InstanceName
	body := fmt.Sprintf(
		"Frame delivery to the processing endpoint was interrupted.\n\n"+
			"Endpoint: %s\n"+
			"Time:     %s\n\n"+
			"Capture continues; audio recorded during the outage is not delivered.",
		endpoint, util.HumanTime(),
	)
	return n.sendEmail(BuildGraphConfig(snap), subject, body)
}

func (n *OutageNotifier) sendRecoveryEmail(snap *config.Snapshot, endpoint string, durationMs int64) error {
	subject := "[OK] Delivery Recovered - " + snap.InstanceName
	body := fmt.Sprintf(
		"Frame delivery to the processing endpoint resumed.\n\n"+
			"Endpoint:      %s\n"+
			"Outage lasted: %s\n"+
			"Time:          %s",
		endpoint, util.FormatDuration(durationMs), util.HumanTime(),
	)
	return n.sendEmail(BuildGraphConfig(snap), subject, body)
}
