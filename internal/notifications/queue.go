package notifications

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"scholarwatch/internal/types"
)

// SQSSender is the SendMessage subset of *sqs.Client.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// QueueDispatcher hands messages to the email worker through SQS. The body is
// the JSON NotificationMessage; kind and job are copied into message
// attributes so the worker can route without decoding.
type QueueDispatcher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewQueueDispatcher creates a QueueDispatcher for queueURL.
func NewQueueDispatcher(client SQSSender, queueURL string, logger *slog.Logger) *QueueDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueDispatcher{client: client, queueURL: queueURL, logger: logger}
}

// Dispatch publishes msg. Failures are ErrCodeUpstreamQueue.
func (d *QueueDispatcher) Dispatch(ctx context.Context, msg types.NotificationMessage) error {
	if msg.TraceID == "" {
		msg.TraceID = types.GetRequestID(ctx)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode notification", err)
	}

	out, err := d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"kind": {DataType: aws.String("String"), StringValue: aws.String(string(msg.Kind))},
			"job":  {DataType: aws.String("String"), StringValue: aws.String(string(msg.Job))},
		},
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue, "failed to enqueue notification", err)
	}

	d.logger.InfoContext(ctx, "notification enqueued",
		"alert_id", msg.AlertID,
		"kind", string(msg.Kind),
		"message_id", aws.ToString(out.MessageId),
		"recipient", redactEmail(msg.Recipient.Email),
	)
	return nil
}
