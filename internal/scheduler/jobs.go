package scheduler

import (
	"time"

	"scholarwatch/internal/config"
)

// BuildJobs assembles the four detection pipelines from configuration.
func BuildJobs(scope ScopeReader, deps PipelineDeps, cfg config.JobsConfig, tokenTTL time.Duration) ([]Job, error) {
	pcfg := PipelineConfig{
		Concurrency:     cfg.Concurrency,
		DispatchTimeout: cfg.DispatchTimeout,
		TokenTTL:        tokenTTL,
	}

	deadline, err := NewDeadlineDetector(scope, cfg.DeadlineThresholds)
	if err != nil {
		return nil, err
	}
	recommendations, err := NewRecommendationDetector(scope, cfg.RecommendationWindows)
	if err != nil {
		return nil, err
	}
	risk := RiskPolicy{
		Horizon:      cfg.AtRiskHorizon,
		UrgentWithin: days(cfg.AtRiskUrgentDays),
		StaleAfter:   cfg.AtRiskStaleAfter,
	}

	return []Job{
		NewPipeline(deadline, deps, pcfg),
		NewPipeline(recommendations, deps, pcfg),
		NewPipeline(NewGoalDetector(scope), deps, pcfg),
		NewPipeline(NewAtRiskDetector(scope, risk), deps, pcfg),
	}, nil
}
