// Package faults maps arbitrary failures onto a fixed taxonomy of error
// kinds, each with a stable message, HTTP status and retryable flag.
package faults

import (
	"fmt"
	"strings"
	"time"

	"boletin-backend/internal/shared/telemetry"
)

// Kind identifies a classified failure.
type Kind string

const (
	KindSourceNotFound    Kind = "source_not_found"
	KindSourceUnavailable Kind = "source_unavailable"
	KindSourceExtraction  Kind = "source_extraction_failed"
	KindAICallFailed      Kind = "ai_call_failed"
	KindAITimeout         Kind = "ai_timeout"
	KindAIQuotaExceeded   Kind = "ai_quota_exceeded"
	KindAIUnparsable      Kind = "ai_response_unparsable"
	KindStoreConnection   Kind = "store_connection_lost"
	KindStoreQuery        Kind = "store_query_failed"
	KindStoreValidation   Kind = "store_validation_failed"
	KindInputValidation   Kind = "input_validation_failed"
	KindBudgetExhausted   Kind = "budget_exhausted"
	KindUnknown           Kind = "unknown"
)

// Origin is the caller's coarse hint about where a failure happened.
type Origin string

const (
	OriginSource Origin = "source"
	OriginEngine Origin = "engine"
	OriginStore  Origin = "store"
	OriginInput  Origin = "input"
	OriginBudget Origin = "budget"
)

type definition struct {
	message   string
	status    int
	retryable bool
}

// table is the single source of truth for failure semantics. The same
// kind always yields the same message, status and retryable flag.
var table = map[Kind]definition{
	KindSourceNotFound:    {"no bulletin was published for the requested date", 404, false},
	KindSourceUnavailable: {"the bulletin source is unavailable", 503, true},
	KindSourceExtraction:  {"failed to extract content from the bulletin source", 500, false},
	KindAICallFailed:      {"the AI analysis service failed", 503, true},
	KindAITimeout:         {"the AI analysis service timed out", 504, true},
	KindAIQuotaExceeded:   {"AI service quota exceeded", 429, false},
	KindAIUnparsable:      {"the AI service returned an unparsable response", 500, false},
	KindStoreConnection:   {"lost connection to the analysis store", 500, true},
	KindStoreQuery:        {"analysis store query failed", 500, true},
	KindStoreValidation:   {"analysis record failed validation", 400, false},
	KindInputValidation:   {"invalid request input", 400, false},
	KindBudgetExhausted:   {"insufficient time remaining to process the request", 504, true},
	KindUnknown:           {"unexpected internal error", 500, false},
}

// Message returns the fixed human-readable message for the kind.
func (k Kind) Message() string { return table[k].message }

// HTTPStatus returns the fixed HTTP status for the kind.
func (k Kind) HTTPStatus() int { return table[k].status }

// Retryable reports whether the caller may retry a failure of this kind.
func (k Kind) Retryable() bool { return table[k].retryable }

// Envelope is a classified failure. It is returned to callers and
// serialized into HTTP error responses; it is never persisted.
type Envelope struct {
	Kind       Kind           `json:"kind"`
	Message    string         `json:"message"`
	Details    string         `json:"details,omitempty"`
	Retryable  bool           `json:"retryable"`
	HTTPStatus int            `json:"-"`
	Timestamp  time.Time      `json:"timestamp"`
	Context    map[string]any `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *Envelope) Error() string {
	if e.Details == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Details)
}

// New builds an Envelope of the given kind without keyword refinement.
func New(kind Kind, details string, ctx map[string]any) *Envelope {
	env := &Envelope{
		Kind:       kind,
		Message:    kind.Message(),
		Details:    details,
		Retryable:  kind.Retryable(),
		HTTPStatus: kind.HTTPStatus(),
		Timestamp:  time.Now().UTC(),
		Context:    ctx,
	}
	logEnvelope(env, nil)
	return env
}

// Classify maps a raised failure plus an origin hint onto a Kind and wraps
// it in an Envelope. It never fails; unrecognized errors resolve to
// KindUnknown. Every classification emits one structured log record.
func Classify(origin Origin, err error, ctx map[string]any) *Envelope {
	if env, ok := err.(*Envelope); ok && env != nil {
		// Already classified; keep the original kind and record the pass-through.
		logEnvelope(env, err)
		return env
	}

	kind := refine(origin, err)
	env := &Envelope{
		Kind:       kind,
		Message:    kind.Message(),
		Details:    sanitize(err),
		Retryable:  kind.Retryable(),
		HTTPStatus: kind.HTTPStatus(),
		Timestamp:  time.Now().UTC(),
		Context:    ctx,
	}
	logEnvelope(env, err)
	return env
}

// refine narrows the origin hint by inspecting the failure message.
// Keyword matching lives only here; callers branch on kinds, not strings.
func refine(origin Origin, err error) Kind {
	msg := ""
	if err != nil {
		msg = strings.ToLower(err.Error())
	}

	switch origin {
	case OriginSource:
		switch {
		case strings.Contains(msg, "not found"), strings.Contains(msg, "404"):
			return KindSourceNotFound
		case strings.Contains(msg, "extract"), strings.Contains(msg, "parse"):
			return KindSourceExtraction
		default:
			return KindSourceUnavailable
		}
	case OriginEngine:
		switch {
		case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
			return KindAITimeout
		case strings.Contains(msg, "quota"), strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"):
			return KindAIQuotaExceeded
		case strings.Contains(msg, "parse"), strings.Contains(msg, "json"), strings.Contains(msg, "schema"):
			return KindAIUnparsable
		default:
			return KindAICallFailed
		}
	case OriginStore:
		switch {
		case strings.Contains(msg, "validation"), strings.Contains(msg, "schema"):
			return KindStoreValidation
		case strings.Contains(msg, "connection"), strings.Contains(msg, "connect"),
			strings.Contains(msg, "server selection"), strings.Contains(msg, "timeout"):
			return KindStoreConnection
		default:
			return KindStoreQuery
		}
	case OriginInput:
		return KindInputValidation
	case OriginBudget:
		return KindBudgetExhausted
	default:
		return KindUnknown
	}
}

func logEnvelope(env *Envelope, err error) {
	fields := map[string]any{
		"kind":      string(env.Kind),
		"message":   env.Message,
		"retryable": env.Retryable,
		"status":    env.HTTPStatus,
	}
	if err != nil {
		fields["error"] = err.Error()
		fields["error_type"] = fmt.Sprintf("%T", err)
	} else if env.Details != "" {
		fields["error"] = env.Details
	}
	for k, v := range env.Context {
		fields[k] = v
	}
	telemetry.Error("failure.classified", fields)
}

func sanitize(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
