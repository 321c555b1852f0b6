package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"scholarwatch/internal/types"
)

// CloudWatch metric and dimension names.
const (
	MetricJobRun            = "JobRun"
	MetricAlertsCreated     = "AlertsCreated"
	MetricNotificationsSent = "NotificationsSent"
	MetricEntityFailures    = "EntityFailures"
	MetricJobDuration       = "JobDuration"

	DimJob    = "Job"
	DimResult = "Result"
)

// CloudWatchClient is the PutMetricData subset of *cloudwatch.Client.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// JobMetrics publishes one batch of metrics per job run. Publishing errors
// are logged and never returned.
type JobMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewJobMetrics creates JobMetrics publishing under namespace.
func NewJobMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *JobMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobMetrics{client: client, namespace: namespace, logger: logger}
}

// RecordJobRun emits JobRun (by Job and Result), the created, sent and
// failure counts, and the run duration in milliseconds.
func (m *JobMetrics) RecordJobRun(ctx context.Context, result types.JobResult, duration time.Duration) {
	job := cwtypes.Dimension{Name: aws.String(DimJob), Value: aws.String(string(result.Job))}
	outcome := "success"
	if !result.Success {
		outcome = "failed"
	}

	count := func(name string, v int) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(float64(v)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{job},
		}
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricJobRun),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					job,
					{Name: aws.String(DimResult), Value: aws.String(outcome)},
				},
			},
			count(MetricAlertsCreated, result.CreatedCount),
			count(MetricNotificationsSent, result.SentCount),
			count(MetricEntityFailures, len(result.Failures)),
			{
				MetricName: aws.String(MetricJobDuration),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{job},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record job metrics",
			"job", string(result.Job),
			"error", err,
		)
	}
}
