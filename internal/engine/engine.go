// Package engine assembles the alert engine from configuration. The HTTP
// API, the scheduler Lambda and the job-runner CLI all build the same Engine,
// so a job behaves the same however it is triggered.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"scholarwatch/internal/actiontoken"
	"scholarwatch/internal/alerts"
	"scholarwatch/internal/auth"
	"scholarwatch/internal/config"
	"scholarwatch/internal/core"
	"scholarwatch/internal/db/sqlite"
	"scholarwatch/internal/external"
	"scholarwatch/internal/notifications"
	"scholarwatch/internal/scheduler"
	"scholarwatch/internal/types"
)

// Scope is the application data the engine reads: the detector scans plus
// the scholarship lookup used by action redirects.
type Scope interface {
	scheduler.ScopeReader
	ScholarshipName(ctx context.Context, applicationID string) (string, error)
}

// JobHistory records and lists job runs.
type JobHistory interface {
	scheduler.RunRecorder
	Recent(ctx context.Context, job types.JobName, limit int) ([]types.JobRun, error)
}

// Engine holds the wired components. Close releases the storage backend.
type Engine struct {
	Config   *config.Config
	Alerts   *alerts.Service
	Tokens   *actiontoken.Codec
	Sessions *auth.SessionVerifier
	Runner   *scheduler.Runner
	Scope    Scope
	History  JobHistory
	Probes   []core.HealthProbe

	storage *storage
}

// Option configures New.
type Option func(*options)

type options struct {
	clock      types.Clock
	dispatcher scheduler.Dispatcher
}

// WithClock fixes the engine's notion of now, used by backfills that replay
// a past reference time.
func WithClock(c types.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithDispatcher overrides the configured notification transport.
func WithDispatcher(d scheduler.Dispatcher) Option {
	return func(o *options) { o.dispatcher = d }
}

// New opens storage and wires every component described by cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{clock: types.RealClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	st, err := openStorage(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	e, err := build(ctx, cfg, st, o, logger)
	if err != nil {
		st.close()
		return nil, err
	}
	return e, nil
}

func build(ctx context.Context, cfg *config.Config, st *storage, o options, logger *slog.Logger) (*Engine, error) {
	codec, err := actiontoken.NewCodec(cfg.Security.ActionTokenSecret, actiontoken.WithClock(o.clock))
	if err != nil {
		return nil, fmt.Errorf("action token codec: %w", err)
	}
	sessions, err := auth.NewSessionVerifier(cfg.Security.SessionTokenSecret, auth.WithSessionClock(o.clock))
	if err != nil {
		return nil, fmt.Errorf("session verifier: %w", err)
	}

	sdk := &lazyAWS{cfg: cfg.AWS}
	dispatcher := o.dispatcher
	if dispatcher == nil {
		dispatcher, err = newDispatcher(ctx, cfg, sdk, logger)
		if err != nil {
			return nil, err
		}
	}

	svc := alerts.NewService(st.alerts, o.clock, logger)
	jobs, err := scheduler.BuildJobs(st.scope, scheduler.PipelineDeps{
		Alerts:     svc,
		Tokens:     codec,
		Links:      notifications.NewLinkBuilder(cfg.App.APIBaseURL),
		Dispatcher: dispatcher,
		Logger:     logger,
	}, cfg.Jobs, cfg.Security.ActionTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("building jobs: %w", err)
	}

	runnerOpts := []scheduler.RunnerOption{
		scheduler.WithRunRecorder(st.history),
		scheduler.WithRunnerClock(o.clock),
	}
	if cfg.Observability.MetricsEnabled {
		awsCfg, err := sdk.load(ctx)
		if err != nil {
			return nil, err
		}
		runnerOpts = append(runnerOpts, scheduler.WithMetrics(
			notifications.NewJobMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger),
		))
	}

	return &Engine{
		Config:   cfg,
		Alerts:   svc,
		Tokens:   codec,
		Sessions: sessions,
		Runner:   scheduler.NewRunner(jobs, logger, runnerOpts...),
		Scope:    st.scope,
		History:  st.history,
		Probes:   []core.HealthProbe{st.probe},
		storage:  st,
	}, nil
}

// Migrate applies pending schema migrations and returns how many ran.
func (e *Engine) Migrate(ctx context.Context) (int, error) {
	return e.storage.migrate(ctx)
}

// Seed loads a fixture into the local SQLite database.
func (e *Engine) Seed(ctx context.Context, f sqlite.Fixture) error {
	if e.storage.seed == nil {
		return fmt.Errorf("seeding requires DATABASE_DRIVER=sqlite")
	}
	return e.storage.seed(ctx, f)
}

// Close releases the storage backend.
func (e *Engine) Close() {
	e.storage.close()
}

// newDispatcher builds the transport selected by NOTIFICATION_TRANSPORT.
func newDispatcher(ctx context.Context, cfg *config.Config, sdk *lazyAWS, logger *slog.Logger) (scheduler.Dispatcher, error) {
	n := cfg.Notifications
	switch n.Transport {
	case "queue":
		awsCfg, err := sdk.load(ctx)
		if err != nil {
			return nil, err
		}
		return notifications.NewQueueDispatcher(sqs.NewFromConfig(awsCfg), n.QueueURL, logger), nil
	case "email":
		client := external.NewSendGridClient(&http.Client{Timeout: cfg.Jobs.DispatchTimeout}, external.SendGridConfig{
			APIKey:  n.SendGridAPIKey,
			BaseURL: n.SendGridURL,
			Logger:  logger,
		})
		d, err := notifications.NewEmailDispatcher(client, n.Templates,
			types.SenderIdentity{Name: n.FromName, Address: n.FromAddress}, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	case "log":
		return notifications.NewLogDispatcher(logger), nil
	default:
		return nil, fmt.Errorf("unknown notification transport %q", n.Transport)
	}
}

// lazyAWS loads the SDK configuration on first use so local runs without
// AWS credentials never touch the default chain.
type lazyAWS struct {
	cfg    config.AWSConfig
	loaded *aws.Config
}

func (l *lazyAWS) load(ctx context.Context) (aws.Config, error) {
	if l.loaded != nil {
		return *l.loaded, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(l.cfg.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	if l.cfg.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(l.cfg.EndpointURL)
	}
	l.loaded = &awsCfg
	return awsCfg, nil
}
