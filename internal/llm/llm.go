package llm

import "context"

// Client abstracts the generative backend used for bulletin analysis.
// Generate issues one completion request and returns the accumulated text
// of the streamed response.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Request captures one generation call.
type Request struct {
	Prompt      string
	Attachments []Attachment
	Temperature float32
	// WebSearch enables search grounding for the call.
	WebSearch bool
	// URLContext lets the model fetch URLs referenced in the prompt.
	URLContext bool
}

// Attachment is inline binary content sent alongside the prompt.
type Attachment struct {
	MIMEType string
	Data     []byte
}
