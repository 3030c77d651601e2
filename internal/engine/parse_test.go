package engine

import "testing"

func TestExtractJSONObject(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, true},
		{"wrapped in prose", `Here is the result: {"a":1} hope it helps`, `{"a":1}`, true},
		{"markdown fence", "```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"nested braces", `{"a":{"b":{"c":1}}}`, `{"a":{"b":{"c":1}}}`, true},
		{"brace inside string", `{"a":"}"}`, `{"a":"}"}`, true},
		{"escaped quote inside string", `{"a":"say \"}\" now"}`, `{"a":"say \"}\" now"}`, true},
		{"first of two objects", `{"a":1} {"b":2}`, `{"a":1}`, true},
		{"unterminated", `{"a":1`, "", false},
		{"no object", "plain text", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := extractJSONObject(tc.in)
			if ok != tc.ok {
				t.Fatalf("expected ok=%v, got %v", tc.ok, ok)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestExtractJSONArray(t *testing.T) {
	got, ok := extractJSONArray(`The sources: [{"outlet":"x"},{"outlet":"y"}] end`)
	if !ok {
		t.Fatal("expected an array")
	}
	if got != `[{"outlet":"x"},{"outlet":"y"}]` {
		t.Fatalf("unexpected array %q", got)
	}

	if _, ok := extractJSONArray("no array here"); ok {
		t.Fatal("expected no array")
	}
}
