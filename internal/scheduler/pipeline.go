package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"scholarwatch/internal/alerts"
	"scholarwatch/internal/types"
)

// Job is one runnable detection job.
type Job interface {
	Name() types.JobName
	Run(ctx context.Context, now time.Time) (types.JobResult, error)
}

// PipelineConfig tunes a pipeline run.
type PipelineConfig struct {
	Concurrency     int
	DispatchTimeout time.Duration
	TokenTTL        time.Duration
}

// Pipeline runs one Detector over its scope. Entities are processed
// concurrently; an entity's failure is recorded and never stops the scan.
type Pipeline[E any] struct {
	detector   Detector[E]
	alerts     AlertService
	tokens     TokenIssuer
	links      LinkBuilder
	dispatcher Dispatcher
	cfg        PipelineConfig
	logger     *slog.Logger
}

// PipelineDeps are the collaborators shared by every pipeline.
type PipelineDeps struct {
	Alerts     AlertService
	Tokens     TokenIssuer
	Links      LinkBuilder
	Dispatcher Dispatcher
	Logger     *slog.Logger
}

// NewPipeline creates a pipeline for detector.
func NewPipeline[E any](detector Detector[E], deps PipelineDeps, cfg PipelineConfig) *Pipeline[E] {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline[E]{
		detector:   detector,
		alerts:     deps.Alerts,
		tokens:     deps.Tokens,
		links:      deps.Links,
		dispatcher: deps.Dispatcher,
		cfg:        cfg,
		logger:     logger.With("job", string(detector.Name())),
	}
}

// Name returns the detector's job name.
func (p *Pipeline[E]) Name() types.JobName {
	return p.detector.Name()
}

// outcome is the result of processing one entity.
type outcome struct {
	created bool
	sent    bool
	failure *types.EntityError
}

// Run scans the detector's scope once. The returned error is non-nil only
// when the scope could not be read; entity failures are in the result.
func (p *Pipeline[E]) Run(ctx context.Context, now time.Time) (types.JobResult, error) {
	result := types.JobResult{Job: p.Name(), Failures: []types.EntityError{}}

	entities, err := p.detector.Scope(ctx, now)
	if err != nil {
		if !types.IsCode(err, types.ErrCodeInternalScopeRead) {
			err = types.NewAppError(types.ErrCodeInternalScopeRead, "failed to read job scope", err)
		}
		return result, err
	}

	p.logger.InfoContext(ctx, "job scope loaded", "entities", len(entities))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(p.cfg.Concurrency)

	for _, e := range entities {
		g.Go(func() error {
			out := p.process(ctx, e, now)

			mu.Lock()
			defer mu.Unlock()
			if out.created {
				result.CreatedCount++
			}
			if out.sent {
				result.SentCount++
			}
			if out.failure != nil {
				result.Failures = append(result.Failures, *out.failure)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].EntityID < result.Failures[j].EntityID
	})
	result.Success = true
	return result, nil
}

func (p *Pipeline[E]) process(ctx context.Context, e E, now time.Time) outcome {
	entityID := p.detector.EntityID(e)
	fail := func(err error, fallback types.ErrorCode) outcome {
		code := types.CodeOf(err)
		if code == "" {
			code = fallback
		}
		p.logger.WarnContext(ctx, "entity failed",
			"entity_id", entityID,
			"code", string(code),
			"error", err,
		)
		return outcome{failure: &types.EntityError{EntityID: entityID, Code: code, Message: err.Error()}}
	}

	cand, ok := p.detector.Evaluate(e, now)
	if !ok {
		return outcome{}
	}

	alert, created, err := p.resolveAlert(ctx, cand, now)
	if err != nil {
		return fail(err, types.ErrCodeInternalDB)
	}
	if alert == nil {
		return outcome{}
	}
	out := outcome{created: created}

	msg, err := p.buildMessage(alert, cand, now)
	if err != nil {
		f := fail(err, types.ErrCodeInternalTokenSigning)
		f.created = created
		return f
	}

	dctx, cancel := context.WithTimeout(ctx, p.cfg.DispatchTimeout)
	err = p.dispatcher.Dispatch(dctx, msg)
	cancel()
	if err != nil {
		f := fail(types.NewAppError(types.ErrCodeUpstreamDispatch, "notification dispatch failed", err),
			types.ErrCodeUpstreamDispatch)
		f.created = created
		return f
	}
	out.sent = true

	if err := p.alerts.MarkSent(ctx, alert.ID); err != nil {
		f := fail(err, types.ErrCodeInternalDB)
		f.created, f.sent = created, true
		return f
	}
	return out
}

// resolveAlert returns the alert to notify about, or nil when nothing should
// be sent. created reports whether the alert was inserted by this call.
func (p *Pipeline[E]) resolveAlert(ctx context.Context, cand Candidate, now time.Time) (*types.Alert, bool, error) {
	subject := cand.SubjectKey()

	active, err := p.alerts.FindActive(ctx, subject, cand.Kind)
	if err != nil {
		return nil, false, err
	}
	if active != nil {
		if active.SnoozedAt(now) {
			return nil, false, nil
		}
		switch {
		case active.LastSentAt == nil:
			// An earlier dispatch failed.
			return active, false, nil
		case cand.ResendAfter != nil && active.LastSentAt.Before(*cand.ResendAfter):
			return active, false, nil
		default:
			return nil, false, nil
		}
	}

	seen, err := p.alerts.HasAlerted(ctx, subject, cand.Kind, cand.CauseKey)
	if err != nil {
		return nil, false, err
	}
	if seen {
		return nil, false, nil
	}

	alert, err := p.alerts.Create(ctx, alerts.CreateInput{
		StudentID:     cand.StudentID,
		ApplicationID: cand.ApplicationID,
		Kind:          cand.Kind,
		CauseKey:      cand.CauseKey,
	})
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeConflictDuplicateActive {
			// Another run created it first.
			return nil, false, nil
		}
		return nil, false, err
	}
	return alert, true, nil
}

func (p *Pipeline[E]) buildMessage(alert *types.Alert, cand Candidate, now time.Time) (types.NotificationMessage, error) {
	links := make(map[types.AlertAction]string, len(cand.Actions))
	for _, action := range cand.Actions {
		token, err := p.tokens.Issue(alert.ID, action, p.cfg.TokenTTL)
		if err != nil {
			return types.NotificationMessage{}, fmt.Errorf("issuing %s token: %w", action, err)
		}
		links[action] = p.links.ActionURL(action, token)
	}

	return types.NotificationMessage{
		AlertID:   alert.ID,
		Kind:      alert.Kind,
		Job:       p.Name(),
		Recipient: cand.Recipient,
		Links:     links,
		Payload:   cand.Payload,
		CreatedAt: now,
	}, nil
}
