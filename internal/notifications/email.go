package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"scholarwatch/internal/types"
)

// EmailSender is the provider call EmailDispatcher makes. SendGridClient
// implements it.
type EmailSender interface {
	Send(ctx context.Context, input types.SendInput) (string, error)
}

// EmailDispatcher sends notifications directly through the email provider,
// one dynamic template per alert kind.
type EmailDispatcher struct {
	sender    EmailSender
	templates map[types.AlertKind]string
	from      types.SenderIdentity
	logger    *slog.Logger
}

// NewEmailDispatcher creates an EmailDispatcher. templates maps alert kind
// names to provider template ids; every key must be a known kind.
func NewEmailDispatcher(sender EmailSender, templates map[string]string, from types.SenderIdentity, logger *slog.Logger) (*EmailDispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	byKind := make(map[types.AlertKind]string, len(templates))
	for name, id := range templates {
		kind, err := types.ParseAlertKind(name)
		if err != nil {
			return nil, fmt.Errorf("email templates: %w", err)
		}
		byKind[kind] = id
	}
	return &EmailDispatcher{sender: sender, templates: byKind, from: from, logger: logger}, nil
}

// Dispatch sends msg. A kind without a configured template fails without
// calling the provider.
func (d *EmailDispatcher) Dispatch(ctx context.Context, msg types.NotificationMessage) error {
	templateID, ok := d.templates[msg.Kind]
	if !ok {
		return types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("no email template configured for %s", msg.Kind), nil)
	}

	id, err := d.sender.Send(ctx, types.SendInput{
		To:           msg.Recipient.Email,
		From:         d.from,
		TemplateID:   templateID,
		TemplateData: templateData(msg),
		ReferenceID:  msg.AlertID,
	})
	if err != nil {
		d.logger.WarnContext(ctx, "email send failed",
			"alert_id", msg.AlertID,
			"recipient", redactEmail(msg.Recipient.Email),
			"code", string(types.CodeOf(err)),
		)
		return err
	}

	d.logger.InfoContext(ctx, "notification emailed",
		"alert_id", msg.AlertID,
		"kind", string(msg.Kind),
		"provider_message_id", id,
	)
	return nil
}

// templateData flattens the message for the template engine: the payload,
// one {action}_url per link and a display form of the deadline.
func templateData(msg types.NotificationMessage) map[string]interface{} {
	data := make(map[string]interface{}, len(msg.Payload)+len(msg.Links)+2)
	for k, v := range msg.Payload {
		data[k] = v
	}
	for action, link := range msg.Links {
		data[string(action)+"_url"] = link
	}
	if msg.Recipient.Name != "" {
		data["student_name"] = msg.Recipient.Name
	}
	if s, ok := data["deadline"].(string); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			data["deadline_formatted"] = t.UTC().Format("Mon, Jan 2, 2006")
		}
	}
	return data
}
