// Package engine produces structured bulletin analyses and expert-opinion
// summaries by driving the generative backend.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"boletin-backend/internal/analysis"
	"boletin-backend/internal/faults"
	"boletin-backend/internal/llm"
	"boletin-backend/internal/shared/telemetry"
	"boletin-backend/internal/source"
)

const (
	defaultAnalyzeAttempts = 3
	defaultOpinionAttempts = 2
	retryBaseDelay         = 300 * time.Millisecond
	maxOpinions            = 10
)

// Default values substituted when the model omits a required field.
const (
	defaultSummary     = "no summary could be generated"
	defaultImpact      = "impact could not be estimated"
	defaultArea        = "other"
	defaultChangeKind  = "other"
	defaultChangeField = "not specified"
	defaultOpinionText = "not available"
)

// Engine calls the generative backend to analyze one bulletin date and,
// separately, to collect expert opinions.
type Engine struct {
	LLM             llm.Client
	Source          source.Fetcher
	AnalyzeAttempts int
	OpinionAttempts int
}

func (e *Engine) analyzeAttempts() int {
	if e.AnalyzeAttempts > 0 {
		return e.AnalyzeAttempts
	}
	return defaultAnalyzeAttempts
}

func (e *Engine) opinionAttempts() int {
	if e.OpinionAttempts > 0 {
		return e.OpinionAttempts
	}
	return defaultOpinionAttempts
}

// Analyze produces the structured analysis for a bulletin date. Every
// attempt is a full re-attempt: a new source fetch and a new generation
// call. When all attempts fail the returned outcome carries a sentinel
// error body; callers must check Failed before using the body.
func (e *Engine) Analyze(ctx context.Context, date string) analysis.Outcome {
	attempts := e.analyzeAttempts()
	var lastEnv *faults.Envelope

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, time.Duration(attempt-1)*retryBaseDelay); err != nil {
				lastEnv = faults.Classify(faults.OriginEngine, err, map[string]any{"date": date, "attempt": attempt})
				break
			}
		}
		telemetry.Info("engine.analyze.attempt", map[string]any{
			"date":    date,
			"attempt": attempt,
		})

		pdf, err := e.Source.Fetch(ctx, date)
		if err != nil {
			lastEnv = faults.Classify(faults.OriginSource, err, map[string]any{"date": date, "attempt": attempt})
			if !lastEnv.Retryable {
				break
			}
			continue
		}

		text, err := e.LLM.Generate(ctx, llm.Request{
			Prompt: analysisPrompt(date),
			Attachments: []llm.Attachment{
				{MIMEType: "application/pdf", Data: pdf},
			},
			Temperature: 0,
			WebSearch:   true,
			URLContext:  true,
		})
		if err != nil {
			lastEnv = faults.Classify(faults.OriginEngine, err, map[string]any{"date": date, "attempt": attempt})
			if lastEnv.Kind == faults.KindAIQuotaExceeded {
				// Quota failures never recover within a request; stop burning attempts.
				break
			}
			continue
		}

		raw, ok := extractJSONObject(text)
		if !ok {
			lastEnv = faults.Classify(faults.OriginEngine,
				fmt.Errorf("no JSON object found in response (%d chars)", len(text)),
				map[string]any{"date": date, "attempt": attempt})
			continue
		}

		var parsed rawBody
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			lastEnv = faults.Classify(faults.OriginEngine,
				fmt.Errorf("response JSON parse: %w", err),
				map[string]any{"date": date, "attempt": attempt})
			continue
		}

		body := normalizeBody(parsed)
		telemetry.Info("engine.analyze.completed", map[string]any{
			"date":           date,
			"attempt":        attempt,
			"changes_count":  len(body.Changes),
			"areas_affected": len(body.AffectedAreas),
		})
		return analysis.Succeeded(body)
	}

	if lastEnv == nil {
		lastEnv = faults.Classify(faults.OriginEngine,
			fmt.Errorf("analysis failed after %d attempts", attempts), map[string]any{"date": date})
	}
	return analysis.Failure(lastEnv, lastEnv.Message)
}

// ExpertOpinions collects opinion summaries about the bulletin of the
// given date. It is best-effort: any failure degrades to an empty slice
// and never propagates past this boundary.
func (e *Engine) ExpertOpinions(ctx context.Context, summary string, changes []analysis.Change, date string) []analysis.Opinion {
	if date == "" {
		telemetry.Warn("engine.opinions.skipped", map[string]any{"reason": "missing bulletin date"})
		return []analysis.Opinion{}
	}

	attempts := e.opinionAttempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, time.Duration(attempt-1)*retryBaseDelay); err != nil {
				break
			}
		}
		telemetry.Info("engine.opinions.attempt", map[string]any{
			"date":    date,
			"attempt": attempt,
		})

		text, err := e.LLM.Generate(ctx, llm.Request{
			Prompt:      opinionsPrompt(date, summary, formatChanges(changes)),
			Temperature: 1,
			WebSearch:   true,
		})
		if err != nil {
			faults.Classify(faults.OriginEngine, err, map[string]any{
				"date":    date,
				"attempt": attempt,
				"action":  "expert_opinions",
			})
			continue
		}

		opinions := parseOpinions(text)
		telemetry.Info("engine.opinions.completed", map[string]any{
			"date":           date,
			"opinions_count": len(opinions),
		})
		return opinions
	}

	telemetry.Warn("engine.opinions.exhausted", map[string]any{
		"date":     date,
		"attempts": attempts,
	})
	return []analysis.Opinion{}
}

// rawBody mirrors the model's JSON so that absent fields are detectable.
type rawBody struct {
	Summary         *string     `json:"summary"`
	Changes         []rawChange `json:"changes"`
	EstimatedImpact *string     `json:"estimated_impact"`
	AffectedAreas   []string    `json:"affected_areas"`
}

type rawChange struct {
	Kind                string `json:"kind"`
	Number              string `json:"number"`
	Label               string `json:"label"`
	Title               string `json:"title"`
	Description         string `json:"description"`
	Impact              string `json:"impact"`
	ImpactJustification string `json:"impact_justification"`
}

// normalizeBody fills documented defaults for any field the model omitted.
// A structurally-almost-valid response is never rejected.
func normalizeBody(raw rawBody) analysis.Body {
	body := analysis.Body{
		Summary:         defaultSummary,
		Changes:         []analysis.Change{},
		EstimatedImpact: defaultImpact,
		AffectedAreas:   []string{defaultArea},
	}
	if raw.Summary != nil && strings.TrimSpace(*raw.Summary) != "" {
		body.Summary = *raw.Summary
	}
	if raw.EstimatedImpact != nil && strings.TrimSpace(*raw.EstimatedImpact) != "" {
		body.EstimatedImpact = *raw.EstimatedImpact
	}
	if len(raw.AffectedAreas) > 0 {
		areas := make([]string, 0, len(raw.AffectedAreas))
		for _, area := range raw.AffectedAreas {
			if trimmed := strings.TrimSpace(area); trimmed != "" {
				areas = append(areas, strings.ToLower(trimmed))
			}
		}
		if len(areas) > 0 {
			body.AffectedAreas = areas
		}
	}
	for _, change := range raw.Changes {
		body.Changes = append(body.Changes, normalizeChange(change))
	}
	return body
}

func normalizeChange(raw rawChange) analysis.Change {
	return analysis.Change{
		Kind:                orDefault(raw.Kind, defaultChangeKind),
		Number:              orDefault(raw.Number, defaultChangeField),
		Label:               orDefault(raw.Label, defaultChangeField),
		Title:               orDefault(raw.Title, defaultChangeField),
		Description:         orDefault(raw.Description, defaultChangeField),
		Impact:              normalizeImpact(raw.Impact),
		ImpactJustification: orDefault(raw.ImpactJustification, defaultChangeField),
	}
}

// parseOpinions extracts the first balanced JSON array from the response.
// Malformed or non-array content yields an empty slice.
func parseOpinions(text string) []analysis.Opinion {
	raw, ok := extractJSONArray(text)
	if !ok {
		telemetry.Warn("engine.opinions.no_array", map[string]any{"chars": len(text)})
		return []analysis.Opinion{}
	}

	var parsed []struct {
		Outlet      string `json:"outlet"`
		URL         string `json:"url"`
		Author      string `json:"author"`
		Title       string `json:"title"`
		Summary     string `json:"summary"`
		PublishedAt string `json:"published_at"`
		Relevance   string `json:"relevance"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		telemetry.Warn("engine.opinions.parse_failed", map[string]any{"error": err.Error()})
		return []analysis.Opinion{}
	}

	opinions := make([]analysis.Opinion, 0, len(parsed))
	for _, op := range parsed {
		opinions = append(opinions, analysis.Opinion{
			Outlet:      orDefault(op.Outlet, defaultChangeField),
			URL:         op.URL,
			Author:      orDefault(op.Author, defaultChangeField),
			Title:       orDefault(op.Title, defaultChangeField),
			Summary:     orDefault(op.Summary, defaultOpinionText),
			PublishedAt: orDefault(op.PublishedAt, defaultChangeField),
			Relevance:   normalizeImpact(op.Relevance),
		})
		if len(opinions) == maxOpinions {
			break
		}
	}
	return opinions
}

func formatChanges(changes []analysis.Change) string {
	if len(changes) == 0 {
		return "(none identified)"
	}
	limit := len(changes)
	if limit > 5 {
		limit = 5
	}
	lines := make([]string, 0, limit)
	for _, change := range changes[:limit] {
		lines = append(lines, fmt.Sprintf("- %s %s: %s - %s", change.Kind, change.Number, change.Title, change.Description))
	}
	return strings.Join(lines, "\n")
}

func normalizeImpact(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case analysis.ImpactHigh:
		return analysis.ImpactHigh
	case analysis.ImpactLow:
		return analysis.ImpactLow
	default:
		return analysis.ImpactMedium
	}
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
