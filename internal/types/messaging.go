package types

import "time"

// NotificationMessage is the envelope handed to a notification transport. It
// carries the alert context and fully formed action links; rendering and
// delivery belong to the email worker or the provider template.
type NotificationMessage struct {
	AlertID   string    `json:"alert_id"`
	Kind      AlertKind `json:"kind"`
	Job       JobName   `json:"job"`
	Recipient Recipient `json:"recipient"`

	// Links maps an action ("snooze", "dismiss", "upload") to its signed URL.
	Links map[AlertAction]string `json:"links"`

	// Payload is the template context: scholarship name, amount, deadline,
	// risk reason and so on.
	Payload map[string]interface{} `json:"payload"`

	CreatedAt time.Time `json:"created_at"`
	TraceID   string    `json:"trace_id,omitempty"`
}
