package faults

import (
	"errors"
	"strings"
	"testing"
)

func TestTableCoversEveryKind(t *testing.T) {
	kinds := []Kind{
		KindSourceNotFound,
		KindSourceUnavailable,
		KindSourceExtraction,
		KindAICallFailed,
		KindAITimeout,
		KindAIQuotaExceeded,
		KindAIUnparsable,
		KindStoreConnection,
		KindStoreQuery,
		KindStoreValidation,
		KindInputValidation,
		KindBudgetExhausted,
		KindUnknown,
	}
	for _, kind := range kinds {
		if kind.Message() == "" {
			t.Errorf("kind %s has no message", kind)
		}
		if kind.HTTPStatus() < 400 || kind.HTTPStatus() > 599 {
			t.Errorf("kind %s has status %d outside the error range", kind, kind.HTTPStatus())
		}
	}
}

func TestKindSemantics(t *testing.T) {
	cases := []struct {
		kind      Kind
		status    int
		retryable bool
	}{
		{KindSourceNotFound, 404, false},
		{KindSourceUnavailable, 503, true},
		{KindAITimeout, 504, true},
		{KindAIQuotaExceeded, 429, false},
		{KindAIUnparsable, 500, false},
		{KindStoreConnection, 500, true},
		{KindStoreValidation, 400, false},
		{KindInputValidation, 400, false},
		{KindBudgetExhausted, 504, true},
		{KindUnknown, 500, false},
	}
	for _, tc := range cases {
		if got := tc.kind.HTTPStatus(); got != tc.status {
			t.Errorf("%s: expected status %d, got %d", tc.kind, tc.status, got)
		}
		if got := tc.kind.Retryable(); got != tc.retryable {
			t.Errorf("%s: expected retryable %v, got %v", tc.kind, tc.retryable, got)
		}
	}
}

func TestClassifyRefinement(t *testing.T) {
	cases := []struct {
		name   string
		origin Origin
		err    error
		want   Kind
	}{
		{"source 404", OriginSource, errors.New("http status 404 not found"), KindSourceNotFound},
		{"source extraction", OriginSource, errors.New("failed to extract pdf text"), KindSourceExtraction},
		{"source default", OriginSource, errors.New("connection refused"), KindSourceUnavailable},
		{"engine timeout", OriginEngine, errors.New("context deadline exceeded"), KindAITimeout},
		{"engine quota", OriginEngine, errors.New("gemini error 429: quota exceeded"), KindAIQuotaExceeded},
		{"engine rate limit", OriginEngine, errors.New("rate limit hit"), KindAIQuotaExceeded},
		{"engine parse", OriginEngine, errors.New("response JSON parse: unexpected end"), KindAIUnparsable},
		{"engine default", OriginEngine, errors.New("boom"), KindAICallFailed},
		{"store validation", OriginStore, errors.New("record validation: date is required"), KindStoreValidation},
		{"store connection", OriginStore, errors.New("server selection error"), KindStoreConnection},
		{"store default", OriginStore, errors.New("duplicate key"), KindStoreQuery},
		{"input", OriginInput, errors.New("anything"), KindInputValidation},
		{"budget", OriginBudget, errors.New("anything"), KindBudgetExhausted},
		{"unknown origin", Origin("elsewhere"), errors.New("anything"), KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := Classify(tc.origin, tc.err, nil)
			if env.Kind != tc.want {
				t.Fatalf("expected kind %s, got %s", tc.want, env.Kind)
			}
			if env.Message != tc.want.Message() {
				t.Fatalf("expected message %q, got %q", tc.want.Message(), env.Message)
			}
			if env.Retryable != tc.want.Retryable() {
				t.Fatalf("expected retryable %v, got %v", tc.want.Retryable(), env.Retryable)
			}
			if env.Timestamp.IsZero() {
				t.Fatal("expected a timestamp")
			}
		})
	}
}

func TestClassifyPassesThroughEnvelopes(t *testing.T) {
	original := New(KindAIQuotaExceeded, "quota", nil)
	env := Classify(OriginStore, original, nil)
	if env != original {
		t.Fatal("expected the original envelope to pass through unchanged")
	}
	if env.Kind != KindAIQuotaExceeded {
		t.Fatalf("expected kind to survive pass-through, got %s", env.Kind)
	}
}

func TestClassifyNeverFails(t *testing.T) {
	env := Classify(OriginEngine, nil, nil)
	if env == nil {
		t.Fatal("expected an envelope for a nil error")
	}
	if env.Kind != KindAICallFailed {
		t.Fatalf("expected engine default kind, got %s", env.Kind)
	}
}

func TestClassifySanitizesDetails(t *testing.T) {
	raw := "line one\nline two\r\n" + strings.Repeat("x", 600)
	env := Classify(OriginStore, errors.New(raw), nil)
	if strings.ContainsAny(env.Details, "\n\r") {
		t.Fatal("expected newlines stripped from details")
	}
	if len(env.Details) > 500 {
		t.Fatalf("expected details capped at 500 chars, got %d", len(env.Details))
	}
}

func TestEnvelopeError(t *testing.T) {
	env := New(KindStoreQuery, "count failed", nil)
	msg := env.Error()
	if !strings.Contains(msg, KindStoreQuery.Message()) || !strings.Contains(msg, "count failed") {
		t.Fatalf("unexpected error string %q", msg)
	}
}
