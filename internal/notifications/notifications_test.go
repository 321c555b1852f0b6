package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"scholarwatch/internal/types"
)

func sampleMessage() types.NotificationMessage {
	return types.NotificationMessage{
		AlertID:   "alert-1",
		Kind:      types.KindDeadline3Day,
		Job:       types.JobDeadlineAlerts,
		Recipient: types.Recipient{StudentID: "student-1", Email: "ana@example.edu", Name: "Ana"},
		Links: map[types.AlertAction]string{
			types.ActionSnooze:  "https://api.example.test/actions/snooze?token=a",
			types.ActionDismiss: "https://api.example.test/actions/dismiss?token=b",
		},
		Payload: map[string]interface{}{
			"scholarship_name": "Gates",
			"deadline":         "2026-05-13T23:59:00Z",
		},
		CreatedAt: time.Date(2026, 5, 10, 6, 0, 0, 0, time.UTC),
	}
}

// --- LinkBuilder ---

func TestLinkBuilder_ActionURL(t *testing.T) {
	b := NewLinkBuilder("https://api.scholarwatch.app/")
	got := b.ActionURL(types.ActionDismiss, "abc.def+/=")
	assert.Equal(t, "https://api.scholarwatch.app/actions/dismiss?token=abc.def%2B%2F%3D", got)
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "a***@example.edu", redactEmail("ana@example.edu"))
	assert.Equal(t, "***@example.edu", redactEmail("@example.edu"))
	assert.Equal(t, "***", redactEmail("not-an-address"))
	assert.Equal(t, "", redactEmail(""))
}

// --- QueueDispatcher ---

type mockSQS struct {
	mock.Mock
}

func (m *mockSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sqs.SendMessageOutput)
	return out, args.Error(1)
}

func TestQueueDispatcher_Dispatch(t *testing.T) {
	client := new(mockSQS)
	var sent *sqs.SendMessageInput
	client.On("SendMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*sqs.SendMessageInput) }).
		Return(&sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil)

	ctx := types.WithRequestID(context.Background(), "req-9")
	d := NewQueueDispatcher(client, "https://sqs.us-east-1.amazonaws.com/123/alerts", nil)
	require.NoError(t, d.Dispatch(ctx, sampleMessage()))

	require.NotNil(t, sent)
	assert.Equal(t, "https://sqs.us-east-1.amazonaws.com/123/alerts", aws.ToString(sent.QueueUrl))
	assert.Equal(t, "deadline-3d", aws.ToString(sent.MessageAttributes["kind"].StringValue))
	assert.Equal(t, "deadline-alerts", aws.ToString(sent.MessageAttributes["job"].StringValue))

	var body types.NotificationMessage
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(sent.MessageBody)), &body))
	assert.Equal(t, "alert-1", body.AlertID)
	assert.Equal(t, "req-9", body.TraceID)
	assert.Equal(t, "https://api.example.test/actions/snooze?token=a", body.Links[types.ActionSnooze])
}

func TestQueueDispatcher_SendError(t *testing.T) {
	client := new(mockSQS)
	client.On("SendMessage", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	err := NewQueueDispatcher(client, "q", nil).Dispatch(context.Background(), sampleMessage())
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeUpstreamQueue, types.CodeOf(err))
}

// --- EmailDispatcher ---

type fakeSender struct {
	got types.SendInput
	err error
}

func (f *fakeSender) Send(_ context.Context, in types.SendInput) (string, error) {
	f.got = in
	return "sg-1", f.err
}

func TestEmailDispatcher_Dispatch(t *testing.T) {
	sender := &fakeSender{}
	from := types.SenderIdentity{Name: "Scholarwatch", Address: "alerts@scholarwatch.app"}
	d, err := NewEmailDispatcher(sender, map[string]string{"deadline-3d": "d-123"}, from, nil)
	require.NoError(t, err)

	require.NoError(t, d.Dispatch(context.Background(), sampleMessage()))

	assert.Equal(t, "ana@example.edu", sender.got.To)
	assert.Equal(t, "d-123", sender.got.TemplateID)
	assert.Equal(t, from, sender.got.From)
	assert.Equal(t, "alert-1", sender.got.ReferenceID)
	assert.Equal(t, "Gates", sender.got.TemplateData["scholarship_name"])
	assert.Equal(t, "https://api.example.test/actions/dismiss?token=b", sender.got.TemplateData["dismiss_url"])
	assert.Equal(t, "Wed, May 13, 2026", sender.got.TemplateData["deadline_formatted"])
	assert.Equal(t, "Ana", sender.got.TemplateData["student_name"])
}

func TestEmailDispatcher_MissingTemplate(t *testing.T) {
	sender := &fakeSender{}
	d, err := NewEmailDispatcher(sender, map[string]string{"goal-completion": "d-9"}, types.SenderIdentity{}, nil)
	require.NoError(t, err)

	err = d.Dispatch(context.Background(), sampleMessage())
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeUpstreamEmailProvider, types.CodeOf(err))
	assert.Empty(t, sender.got.To, "provider must not be called")
}

func TestEmailDispatcher_ProviderError(t *testing.T) {
	blocked := types.NewAppError(types.ErrCodeEmailBlocked, "suppressed", nil)
	d, err := NewEmailDispatcher(&fakeSender{err: blocked}, map[string]string{"deadline-3d": "d-1"}, types.SenderIdentity{}, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, d.Dispatch(context.Background(), sampleMessage()), blocked)
}

func TestNewEmailDispatcher_UnknownKind(t *testing.T) {
	_, err := NewEmailDispatcher(&fakeSender{}, map[string]string{"deadline-1d": "d-1"}, types.SenderIdentity{}, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeValidationUnknownKind, types.CodeOf(err))
}

// --- JobMetrics ---

type mockCloudWatch struct {
	mock.Mock
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	args := m.Called(ctx, params)
	return &cloudwatch.PutMetricDataOutput{}, args.Error(0)
}

func datum(t *testing.T, in *cloudwatch.PutMetricDataInput, name string) cwtypes.MetricDatum {
	t.Helper()
	for _, d := range in.MetricData {
		if aws.ToString(d.MetricName) == name {
			return d
		}
	}
	t.Fatalf("metric %s not found", name)
	return cwtypes.MetricDatum{}
}

func dimension(d cwtypes.MetricDatum, name string) string {
	for _, dim := range d.Dimensions {
		if aws.ToString(dim.Name) == name {
			return aws.ToString(dim.Value)
		}
	}
	return ""
}

func TestJobMetrics_RecordJobRun(t *testing.T) {
	cw := new(mockCloudWatch)
	var in *cloudwatch.PutMetricDataInput
	cw.On("PutMetricData", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { in = args.Get(1).(*cloudwatch.PutMetricDataInput) }).
		Return(nil)

	NewJobMetrics(cw, "Scholarwatch", nil).RecordJobRun(context.Background(), types.JobResult{
		Job:          types.JobAtRisk,
		Success:      true,
		CreatedCount: 4,
		SentCount:    3,
		Failures:     []types.EntityError{{EntityID: "app-1"}},
	}, 1500*time.Millisecond)

	require.NotNil(t, in)
	assert.Equal(t, "Scholarwatch", aws.ToString(in.Namespace))
	assert.Len(t, in.MetricData, 5)

	run := datum(t, in, MetricJobRun)
	assert.Equal(t, "at-risk", dimension(run, DimJob))
	assert.Equal(t, "success", dimension(run, DimResult))
	assert.Equal(t, 4.0, aws.ToFloat64(datum(t, in, MetricAlertsCreated).Value))
	assert.Equal(t, 3.0, aws.ToFloat64(datum(t, in, MetricNotificationsSent).Value))
	assert.Equal(t, 1.0, aws.ToFloat64(datum(t, in, MetricEntityFailures).Value))

	dur := datum(t, in, MetricJobDuration)
	assert.Equal(t, 1500.0, aws.ToFloat64(dur.Value))
	assert.Equal(t, cwtypes.StandardUnitMilliseconds, dur.Unit)
}

func TestJobMetrics_ErrorsAreSwallowed(t *testing.T) {
	cw := new(mockCloudWatch)
	cw.On("PutMetricData", mock.Anything, mock.Anything).Return(errors.New("cloudwatch down"))

	assert.NotPanics(t, func() {
		NewJobMetrics(cw, "Scholarwatch", nil).RecordJobRun(context.Background(),
			types.JobResult{Job: types.JobGoalCompletion}, time.Second)
	})
	cw.AssertNumberOfCalls(t, "PutMetricData", 1)
}
