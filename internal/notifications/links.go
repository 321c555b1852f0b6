// Package notifications turns alert messages into outbound notifications:
// signed action links, the SQS hand-off to the email worker, direct
// SendGrid delivery and job metrics.
package notifications

import (
	"net/url"
	"strings"

	"scholarwatch/internal/types"
)

// LinkBuilder builds the action URLs placed in notifications.
type LinkBuilder struct {
	apiBase string
}

// NewLinkBuilder creates a LinkBuilder rooted at apiBaseURL, the public base
// of this service.
func NewLinkBuilder(apiBaseURL string) *LinkBuilder {
	return &LinkBuilder{apiBase: strings.TrimSuffix(apiBaseURL, "/")}
}

// ActionURL returns {apiBase}/actions/{action}?token={token}.
func (b *LinkBuilder) ActionURL(action types.AlertAction, token string) string {
	return b.apiBase + "/actions/" + url.PathEscape(string(action)) + "?token=" + url.QueryEscape(token)
}

// redactEmail masks an address for logs: "ana@example.edu" becomes
// "a***@example.edu".
func redactEmail(email string) string {
	if email == "" {
		return ""
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "***"
	}
	if local == "" {
		return "***@" + domain
	}
	return local[:1] + "***@" + domain
}
