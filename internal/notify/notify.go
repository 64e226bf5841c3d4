// Package notify alerts operators when frame delivery to the processing
// endpoint is interrupted. Three channels are supported: webhook, JSONL
// log file, and email via Microsoft Graph. Channels fire independently;
// one failing never blocks the others.
package notify

import "time"

// timestampUTC returns the current UTC time in RFC3339 format.
func timestampUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
