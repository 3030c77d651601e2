package analysis

import (
	"context"
	"fmt"
	"time"

	"boletin-backend/internal/faults"
	"boletin-backend/internal/shared/metrics"
	"boletin-backend/internal/shared/telemetry"
)

// Budget floors: below these remaining-time thresholds the corresponding
// phase is not started at all.
const (
	defaultAnalyzeFloor = 60 * time.Second
	defaultOpinionFloor = 50 * time.Second
)

// methodDirectURL records how the source material was obtained.
const methodDirectURL = "direct_url"

// Analyzer produces analyses and expert opinions for a bulletin date.
type Analyzer interface {
	Analyze(ctx context.Context, date string) Outcome
	ExpertOpinions(ctx context.Context, summary string, changes []Change, date string) []Opinion
}

// Repository is the slice of the store the orchestrator needs.
type Repository interface {
	Get(ctx context.Context, date string) (*Record, error)
	Put(ctx context.Context, rec Record) error
	UpdateExpertOpinions(ctx context.Context, date string, opinions []Opinion) (bool, error)
}

// Service orchestrates one analysis request: cache lookup, budget checks,
// fresh analysis, opinion collection and persistence.
type Service struct {
	Store           Repository
	Engine          Analyzer
	AnalysisVersion string
	Model           string
	SourceReference string

	// Zero values fall back to the documented floors.
	AnalyzeFloor time.Duration
	OpinionFloor time.Duration
}

// Result is the orchestrator's answer. Exactly one of Record or ErrorBody
// is set; Failure accompanies ErrorBody with the classified failure.
type Result struct {
	Record    *Record
	ErrorBody *Body
	Failure   *faults.Envelope
}

func (s *Service) analyzeFloor() time.Duration {
	if s.AnalyzeFloor > 0 {
		return s.AnalyzeFloor
	}
	return defaultAnalyzeFloor
}

func (s *Service) opinionFloor() time.Duration {
	if s.OpinionFloor > 0 {
		return s.OpinionFloor
	}
	return defaultOpinionFloor
}

// Handle serves one analysis request. Cache-read failures degrade to a
// miss, persistence failures degrade to a warning: a computed analysis is
// returned to the caller even when the store is unhealthy.
func (s *Service) Handle(ctx context.Context, req Request) Result {
	start := time.Now()
	metrics.IncAnalysisStarted()

	if req.ForceRefresh {
		telemetry.Info("analysis.force_refresh", map[string]any{"date": req.Date})
	} else {
		cached, err := s.Store.Get(ctx, req.Date)
		if err != nil {
			telemetry.Warn("analysis.cache_read_failed", map[string]any{
				"date":  req.Date,
				"error": err.Error(),
			})
		}
		if cached != nil {
			cached.Metadata.FromCache = true
			metrics.IncAnalysisCacheHit()
			telemetry.Info("analysis.cache_hit", map[string]any{"date": req.Date})
			return Result{Record: cached}
		}
	}

	if remaining, bounded := remainingBudget(ctx); bounded && remaining < s.analyzeFloor() {
		env := faults.New(faults.KindBudgetExhausted,
			fmt.Sprintf("%.0fs remaining, %.0fs required", remaining.Seconds(), s.analyzeFloor().Seconds()),
			map[string]any{"date": req.Date, "phase": "analysis"})
		metrics.IncAnalysisFailed()
		body := ErrorBody(env.Message)
		return Result{ErrorBody: &body, Failure: env}
	}

	outcome := s.Engine.Analyze(ctx, req.Date)
	if outcome.Failed() {
		metrics.IncAnalysisFailed()
		return Result{ErrorBody: &outcome.Body, Failure: outcome.Err}
	}

	var opinions []Opinion
	if remaining, bounded := remainingBudget(ctx); bounded && remaining < s.opinionFloor() {
		telemetry.Warn("analysis.opinions_skipped", map[string]any{
			"date":              req.Date,
			"remaining_seconds": remaining.Seconds(),
		})
		opinions = []Opinion{}
	} else {
		opinions = s.Engine.ExpertOpinions(ctx, outcome.Body.Summary, outcome.Body.Changes, req.Date)
	}

	rec := Record{
		Date:            req.Date,
		Section:         SectionLegislation,
		SourceReference: s.SourceReference,
		Analysis:        outcome.Body,
		ExpertOpinions:  opinions,
		Metadata: Metadata{
			CreatedAt:         time.Now().UTC(),
			AnalysisVersion:   s.AnalysisVersion,
			ModelUsed:         s.Model,
			ProcessingSeconds: time.Since(start).Seconds(),
			Status:            StatusCompleted,
			Method:            methodDirectURL,
		},
	}

	if err := s.Store.Put(ctx, rec); err != nil {
		telemetry.Warn("analysis.persist_failed", map[string]any{
			"date":  req.Date,
			"error": err.Error(),
		})
	}

	metrics.IncAnalysisCompleted()
	metrics.ObserveAnalysisDurationMs(float64(time.Since(start).Milliseconds()))
	telemetry.Info("analysis.completed", map[string]any{
		"date":               req.Date,
		"changes_count":      len(rec.Analysis.Changes),
		"opinions_count":     len(rec.ExpertOpinions),
		"processing_seconds": rec.Metadata.ProcessingSeconds,
	})
	return Result{Record: &rec}
}

// RefreshOpinions re-collects expert opinions for a stored record and
// persists them. A missing record is a failure; an empty opinion list from
// the engine is not.
func (s *Service) RefreshOpinions(ctx context.Context, date string) ([]Opinion, *faults.Envelope) {
	rec, err := s.Store.Get(ctx, date)
	if err != nil {
		if env, ok := err.(*faults.Envelope); ok {
			return nil, env
		}
		return nil, faults.Classify(faults.OriginStore, err, map[string]any{"date": date})
	}
	if rec == nil {
		return nil, faults.New(faults.KindSourceNotFound,
			fmt.Sprintf("no stored analysis for %s", date), map[string]any{"date": date})
	}

	opinions := s.Engine.ExpertOpinions(ctx, rec.Analysis.Summary, rec.Analysis.Changes, date)

	if _, err := s.Store.UpdateExpertOpinions(ctx, date, opinions); err != nil {
		if env, ok := err.(*faults.Envelope); ok {
			return nil, env
		}
		return nil, faults.Classify(faults.OriginStore, err, map[string]any{"date": date})
	}
	telemetry.Info("analysis.opinions_refreshed", map[string]any{
		"date":           date,
		"opinions_count": len(opinions),
	})
	return opinions, nil
}

// remainingBudget reports the time left before the request deadline. A
// context without a deadline is unbounded and passes every floor.
func remainingBudget(ctx context.Context) (time.Duration, bool) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0, false
	}
	return time.Until(deadline), true
}
