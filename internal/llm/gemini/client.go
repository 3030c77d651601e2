package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"boletin-backend/internal/llm"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client implements llm.Client using the Gemini streaming generate API.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a Gemini client.
func NewClient(apiKey, model string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for Gemini")
	}
	timeout := 120 * time.Second
	if raw := strings.TrimSpace(os.Getenv("GEMINI_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	baseURL := defaultBaseURL
	if raw := strings.TrimSpace(os.Getenv("GEMINI_BASE_URL")); raw != "" {
		baseURL = strings.TrimRight(raw, "/")
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type generatePart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generateContent struct {
	Role  string         `json:"role,omitempty"`
	Parts []generatePart `json:"parts"`
}

type generateTool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
	URLContext   *struct{} `json:"urlContext,omitempty"`
}

type generationConfig struct {
	Temperature float32 `json:"temperature"`
}

type generateRequest struct {
	Contents         []generateContent `json:"contents"`
	Tools            []generateTool    `json:"tools,omitempty"`
	GenerationConfig generationConfig  `json:"generationConfig"`
}

type generateChunk struct {
	Candidates []struct {
		Content generateContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Generate issues a streamed generation call and accumulates the response
// text across chunks.
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	parts := make([]generatePart, 0, len(req.Attachments)+1)
	for _, att := range req.Attachments {
		parts = append(parts, generatePart{
			InlineData: &inlineData{
				MIMEType: att.MIMEType,
				Data:     base64.StdEncoding.EncodeToString(att.Data),
			},
		})
	}
	parts = append(parts, generatePart{Text: req.Prompt})

	body := generateRequest{
		Contents: []generateContent{
			{Role: "user", Parts: parts},
		},
		GenerationConfig: generationConfig{Temperature: req.Temperature},
	}
	if req.WebSearch {
		body.Tools = append(body.Tools, generateTool{GoogleSearch: &struct{}{}})
	}
	if req.URLContext {
		body.Tools = append(body.Tools, generateTool{URLContext: &struct{}{}})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return "", fmt.Errorf("gemini request timeout: %w", err)
		}
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeAPIError(resp)
	}

	text, err := accumulateStream(resp)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini response empty")
	}
	return text, nil
}

// accumulateStream concatenates the text parts of each SSE data chunk.
func accumulateStream(resp *http.Response) (string, error) {
	var b strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}
		var chunk generateChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", fmt.Errorf("gemini stream parse: %w", err)
		}
		if chunk.Error != nil {
			return "", fmt.Errorf("gemini error: %s (%s)", chunk.Error.Message, chunk.Error.Status)
		}
		for _, cand := range chunk.Candidates {
			for _, part := range cand.Content.Parts {
				b.WriteString(part.Text)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("gemini stream read: %w", err)
	}
	return b.String(), nil
}

func decodeAPIError(resp *http.Response) error {
	var chunk generateChunk
	if err := json.NewDecoder(resp.Body).Decode(&chunk); err == nil && chunk.Error != nil {
		return fmt.Errorf("gemini error %d: %s (%s)", chunk.Error.Code, chunk.Error.Message, chunk.Error.Status)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("gemini error 429: quota exceeded")
	}
	return fmt.Errorf("gemini http status %d", resp.StatusCode)
}

var _ llm.Client = (*Client)(nil)
