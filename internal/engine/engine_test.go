package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"boletin-backend/internal/analysis"
	"boletin-backend/internal/faults"
	"boletin-backend/internal/llm"
)

type llmStep struct {
	text string
	err  error
}

type scriptedLLM struct {
	steps    []llmStep
	calls    int
	lastReq  llm.Request
	requests []llm.Request
}

func (s *scriptedLLM) Generate(ctx context.Context, req llm.Request) (string, error) {
	s.lastReq = req
	s.requests = append(s.requests, req)
	step := s.steps[len(s.steps)-1]
	if s.calls < len(s.steps) {
		step = s.steps[s.calls]
	}
	s.calls++
	return step.text, step.err
}

type staticSource struct {
	pdf   []byte
	err   error
	calls int
}

func (s *staticSource) Fetch(ctx context.Context, date string) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.pdf, nil
}

func newEngine(llmClient llm.Client, src *staticSource) *Engine {
	return &Engine{LLM: llmClient, Source: src}
}

const validResponse = `{
	"summary": "Se publicaron dos decretos",
	"changes": [{
		"kind": "decreto",
		"number": "123/2025",
		"label": "Decreto 123/2025",
		"title": "Desregulacion",
		"description": "Cambios al regimen",
		"impact": "high",
		"impact_justification": "Alcance amplio"
	}],
	"estimated_impact": "Alto impacto general",
	"affected_areas": ["Laboral", "  TRIBUTARIO "]
}`

func TestAnalyzeSuccess(t *testing.T) {
	client := &scriptedLLM{steps: []llmStep{{text: "prefix " + validResponse}}}
	src := &staticSource{pdf: []byte("%PDF-fake")}
	eng := newEngine(client, src)

	out := eng.Analyze(context.Background(), "2025-03-10")
	if out.Failed() {
		t.Fatalf("expected success, got failure: %v", out.Err)
	}
	if out.Body.Summary != "Se publicaron dos decretos" {
		t.Fatalf("unexpected summary %q", out.Body.Summary)
	}
	if len(out.Body.Changes) != 1 || out.Body.Changes[0].Impact != analysis.ImpactHigh {
		t.Fatalf("unexpected changes %+v", out.Body.Changes)
	}
	if out.Body.AffectedAreas[0] != "laboral" || out.Body.AffectedAreas[1] != "tributario" {
		t.Fatalf("expected lowercased trimmed areas, got %v", out.Body.AffectedAreas)
	}
	if client.calls != 1 || src.calls != 1 {
		t.Fatalf("expected one fetch and one generation, got %d/%d", src.calls, client.calls)
	}
}

func TestAnalyzeSendsAttachmentAndTools(t *testing.T) {
	client := &scriptedLLM{steps: []llmStep{{text: validResponse}}}
	src := &staticSource{pdf: []byte("%PDF-fake")}
	eng := newEngine(client, src)

	if out := eng.Analyze(context.Background(), "2025-03-10"); out.Failed() {
		t.Fatalf("expected success, got failure: %v", out.Err)
	}
	req := client.lastReq
	if len(req.Attachments) != 1 || req.Attachments[0].MIMEType != "application/pdf" {
		t.Fatalf("expected one pdf attachment, got %+v", req.Attachments)
	}
	if !req.WebSearch || !req.URLContext {
		t.Fatal("expected web search and url context enabled for analysis")
	}
	if req.Temperature != 0 {
		t.Fatalf("expected temperature 0, got %v", req.Temperature)
	}
	if !strings.Contains(req.Prompt, "2025-03-10") {
		t.Fatal("expected the date in the prompt")
	}
}

func TestAnalyzeFillsDefaults(t *testing.T) {
	client := &scriptedLLM{steps: []llmStep{{text: `{"changes":[{"title":"algo"}]}`}}}
	eng := newEngine(client, &staticSource{pdf: []byte("pdf")})

	out := eng.Analyze(context.Background(), "2025-03-10")
	if out.Failed() {
		t.Fatalf("expected success, got failure: %v", out.Err)
	}
	if out.Body.Summary != defaultSummary {
		t.Fatalf("expected default summary, got %q", out.Body.Summary)
	}
	if out.Body.EstimatedImpact != defaultImpact {
		t.Fatalf("expected default impact, got %q", out.Body.EstimatedImpact)
	}
	if len(out.Body.AffectedAreas) != 1 || out.Body.AffectedAreas[0] != defaultArea {
		t.Fatalf("expected default area, got %v", out.Body.AffectedAreas)
	}
	change := out.Body.Changes[0]
	if change.Title != "algo" {
		t.Fatalf("expected provided title kept, got %q", change.Title)
	}
	if change.Kind != defaultChangeKind || change.Number != defaultChangeField {
		t.Fatalf("expected change defaults, got %+v", change)
	}
	if change.Impact != analysis.ImpactMedium {
		t.Fatalf("expected medium impact default, got %q", change.Impact)
	}
}

func TestAnalyzeRetriesFullPipeline(t *testing.T) {
	client := &scriptedLLM{steps: []llmStep{
		{err: errors.New("upstream hiccup")},
		{text: "not json at all"},
		{text: validResponse},
	}}
	src := &staticSource{pdf: []byte("pdf")}
	eng := newEngine(client, src)

	out := eng.Analyze(context.Background(), "2025-03-10")
	if out.Failed() {
		t.Fatalf("expected success on third attempt, got failure: %v", out.Err)
	}
	if client.calls != 3 {
		t.Fatalf("expected 3 generation calls, got %d", client.calls)
	}
	if src.calls != 3 {
		t.Fatalf("expected a fresh fetch per attempt, got %d", src.calls)
	}
}

func TestAnalyzeSentinelAfterExhaustion(t *testing.T) {
	client := &scriptedLLM{steps: []llmStep{{err: errors.New("upstream down")}}}
	eng := newEngine(client, &staticSource{pdf: []byte("pdf")})

	out := eng.Analyze(context.Background(), "2025-03-10")
	if !out.Failed() {
		t.Fatal("expected failure")
	}
	if client.calls != defaultAnalyzeAttempts {
		t.Fatalf("expected %d attempts, got %d", defaultAnalyzeAttempts, client.calls)
	}
	if out.Err.Kind != faults.KindAICallFailed {
		t.Fatalf("expected ai_call_failed, got %s", out.Err.Kind)
	}
	if !out.Body.Error || !strings.HasPrefix(out.Body.Summary, "Error in analysis: ") {
		t.Fatalf("expected sentinel body, got %+v", out.Body)
	}
	if len(out.Body.Changes) != 0 || out.Body.AffectedAreas[0] != "error" {
		t.Fatalf("unexpected sentinel body %+v", out.Body)
	}
}

func TestAnalyzeQuotaStopsRetries(t *testing.T) {
	client := &scriptedLLM{steps: []llmStep{{err: errors.New("gemini error 429: quota exceeded")}}}
	eng := newEngine(client, &staticSource{pdf: []byte("pdf")})

	out := eng.Analyze(context.Background(), "2025-03-10")
	if !out.Failed() {
		t.Fatal("expected failure")
	}
	if client.calls != 1 {
		t.Fatalf("expected quota failure to stop after 1 call, got %d", client.calls)
	}
	if out.Err.Kind != faults.KindAIQuotaExceeded {
		t.Fatalf("expected ai_quota_exceeded, got %s", out.Err.Kind)
	}
}

func TestAnalyzeMissingEditionStopsRetries(t *testing.T) {
	client := &scriptedLLM{steps: []llmStep{{text: validResponse}}}
	src := &staticSource{err: fmt.Errorf("source material unavailable: edition not found for 2025-03-10")}
	eng := newEngine(client, src)

	out := eng.Analyze(context.Background(), "2025-03-10")
	if !out.Failed() {
		t.Fatal("expected failure")
	}
	if out.Err.Kind != faults.KindSourceNotFound {
		t.Fatalf("expected source_not_found, got %s", out.Err.Kind)
	}
	if src.calls != 1 {
		t.Fatalf("expected a single fetch for a missing edition, got %d", src.calls)
	}
	if client.calls != 0 {
		t.Fatalf("expected no generation calls, got %d", client.calls)
	}
}

func TestExpertOpinionsSkipsWithoutDate(t *testing.T) {
	client := &scriptedLLM{steps: []llmStep{{text: "[]"}}}
	eng := newEngine(client, &staticSource{})

	opinions := eng.ExpertOpinions(context.Background(), "summary", nil, "")
	if len(opinions) != 0 {
		t.Fatalf("expected no opinions, got %d", len(opinions))
	}
	if client.calls != 0 {
		t.Fatalf("expected no generation calls, got %d", client.calls)
	}
}

func TestExpertOpinionsCapsAndCoerces(t *testing.T) {
	var entries []string
	for i := 0; i < 12; i++ {
		entries = append(entries, fmt.Sprintf(`{"outlet":"outlet-%d","title":"t","summary":"s","relevance":"critical"}`, i))
	}
	client := &scriptedLLM{steps: []llmStep{{text: "[" + strings.Join(entries, ",") + "]"}}}
	eng := newEngine(client, &staticSource{})

	opinions := eng.ExpertOpinions(context.Background(), "summary", nil, "2025-03-10")
	if len(opinions) != maxOpinions {
		t.Fatalf("expected cap at %d opinions, got %d", maxOpinions, len(opinions))
	}
	for _, op := range opinions {
		if op.Relevance != analysis.ImpactMedium {
			t.Fatalf("expected unknown relevance coerced to medium, got %q", op.Relevance)
		}
	}
	if opinions[0].Author != defaultChangeField {
		t.Fatalf("expected missing author default, got %q", opinions[0].Author)
	}
}

func TestExpertOpinionsMalformedYieldsEmpty(t *testing.T) {
	client := &scriptedLLM{steps: []llmStep{{text: `[{"outlet": }`}}}
	eng := newEngine(client, &staticSource{})

	opinions := eng.ExpertOpinions(context.Background(), "summary", nil, "2025-03-10")
	if len(opinions) != 0 {
		t.Fatalf("expected empty opinions for malformed payload, got %d", len(opinions))
	}
}

func TestExpertOpinionsFailuresNeverPropagate(t *testing.T) {
	client := &scriptedLLM{steps: []llmStep{{err: errors.New("upstream down")}}}
	eng := newEngine(client, &staticSource{})

	opinions := eng.ExpertOpinions(context.Background(), "summary", nil, "2025-03-10")
	if opinions == nil || len(opinions) != 0 {
		t.Fatalf("expected an empty slice, got %v", opinions)
	}
	if client.calls != defaultOpinionAttempts {
		t.Fatalf("expected %d attempts, got %d", defaultOpinionAttempts, client.calls)
	}
}

func TestExpertOpinionsUsesSearchWithoutAttachment(t *testing.T) {
	client := &scriptedLLM{steps: []llmStep{{text: `[{"outlet":"La Nacion","title":"t","summary":"s","relevance":"high"}]`}}}
	eng := newEngine(client, &staticSource{})

	opinions := eng.ExpertOpinions(context.Background(), "resumen", []analysis.Change{{Kind: "decreto", Number: "1", Title: "t", Description: "d"}}, "2025-03-10")
	if len(opinions) != 1 || opinions[0].Relevance != analysis.ImpactHigh {
		t.Fatalf("unexpected opinions %+v", opinions)
	}
	req := client.lastReq
	if len(req.Attachments) != 0 {
		t.Fatal("expected no attachments for opinion search")
	}
	if !req.WebSearch {
		t.Fatal("expected web search enabled")
	}
	if req.Temperature != 1 {
		t.Fatalf("expected temperature 1, got %v", req.Temperature)
	}
	if !strings.Contains(req.Prompt, "resumen") {
		t.Fatal("expected the summary in the prompt")
	}
}

func TestParseOpinionsMalformedEntriesWholeArray(t *testing.T) {
	opinions := parseOpinions("no array in sight")
	if len(opinions) != 0 {
		t.Fatalf("expected empty opinions, got %d", len(opinions))
	}
}
