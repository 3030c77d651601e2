package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"boletin-backend/internal/llm"
)

func sseChunk(texts ...string) string {
	parts := make([]string, 0, len(texts))
	for _, text := range texts {
		encoded, _ := json.Marshal(text)
		parts = append(parts, fmt.Sprintf(`{"text":%s}`, encoded))
	}
	return fmt.Sprintf(`data: {"candidates":[{"content":{"parts":[%s]}}]}`, strings.Join(parts, ","))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("GEMINI_BASE_URL", srv.URL)

	client, err := NewClient("test-key", "test-model")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, srv
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient("", "model"); err == nil {
		t.Fatal("expected an error for a missing api key")
	}
	if _, err := NewClient("key", ""); err == nil {
		t.Fatal("expected an error for a missing model")
	}
}

func TestGenerateAccumulatesStream(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("expected api key header, got %q", got)
		}
		if !strings.Contains(r.URL.Path, "test-model:streamGenerateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintln(w, sseChunk("Hola "))
		fmt.Fprintln(w)
		fmt.Fprintln(w, sseChunk("mundo"))
	})

	text, err := client.Generate(context.Background(), llm.Request{Prompt: "hola"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Hola mundo" {
		t.Fatalf("expected accumulated text, got %q", text)
	}
}

func TestGenerateSendsAttachmentsAndTools(t *testing.T) {
	var captured generateRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprintln(w, sseChunk("ok"))
	})

	_, err := client.Generate(context.Background(), llm.Request{
		Prompt: "analyze",
		Attachments: []llm.Attachment{
			{MIMEType: "application/pdf", Data: []byte("%PDF")},
		},
		Temperature: 0,
		WebSearch:   true,
		URLContext:  true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(captured.Contents) != 1 || len(captured.Contents[0].Parts) != 2 {
		t.Fatalf("expected attachment and prompt parts, got %+v", captured.Contents)
	}
	first := captured.Contents[0].Parts[0]
	if first.InlineData == nil || first.InlineData.MIMEType != "application/pdf" {
		t.Fatalf("expected inline pdf first, got %+v", first)
	}
	if len(captured.Tools) != 2 {
		t.Fatalf("expected search and url context tools, got %+v", captured.Tools)
	}
}

func TestGenerateQuotaError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Generate(context.Background(), llm.Request{Prompt: "hola"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected a quota error, got %v", err)
	}
}

func TestGenerateSurfacesStreamError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `data: {"error":{"code":500,"message":"internal","status":"INTERNAL"}}`)
	})

	_, err := client.Generate(context.Background(), llm.Request{Prompt: "hola"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "INTERNAL") {
		t.Fatalf("expected the stream error surfaced, got %v", err)
	}
}

func TestGenerateRejectsEmptyResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `data: {"candidates":[]}`)
	})

	_, err := client.Generate(context.Background(), llm.Request{Prompt: "hola"})
	if err == nil {
		t.Fatal("expected an error for empty text")
	}
}
