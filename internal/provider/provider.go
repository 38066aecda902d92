// Package provider is the boundary between step handlers and LLM backends.
// Handlers build a Request and call Provider.Invoke exactly once per step;
// everything behind the interface (routing by provider id, rate limiting,
// circuit breaking, pricing) is composed from middleware.
package provider

import (
	"context"
	"strings"

	"github.com/AgentsPilot/neuronforge-sub017/internal/budget"
)

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Image is a base64 encoded image attached to a message for vision requests.
type Image struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// Message is one conversation turn.
type Message struct {
	Role    Role    `json:"role"`
	Content string  `json:"content"`
	Images  []Image `json:"images,omitempty"`
}

// Request is a single completion request.
type Request struct {
	Model       string    `json:"model"`
	Provider    string    `json:"provider"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// HasImages reports whether any message carries an image.
func (r *Request) HasImages() bool {
	for _, m := range r.Messages {
		if len(m.Images) > 0 {
			return true
		}
	}
	return false
}

// EstimatedTokens approximates the tokens the request will consume: its
// prompt text plus the full output ceiling.
func (r *Request) EstimatedTokens() int {
	var b strings.Builder
	b.WriteString(r.System)
	for _, m := range r.Messages {
		b.WriteString(m.Content)
	}
	return budget.EstimateTokens(b.String()) + r.MaxTokens
}

// Response is the provider's answer. Token counts are zero when the backend
// does not report usage.
type Response struct {
	Text         string  `json:"text"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
	Model        string  `json:"model"`
	StopReason   string  `json:"stop_reason,omitempty"`
}

// Provider invokes a language model.
type Provider interface {
	Invoke(ctx context.Context, req *Request) (*Response, error)
}

// Func adapts a function to the Provider interface.
type Func func(ctx context.Context, req *Request) (*Response, error)

// Invoke calls f.
func (f Func) Invoke(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware decorates a Provider.
type Middleware func(Provider) Provider

// Chain wraps p with mws. The first middleware is the outermost.
func Chain(p Provider, mws ...Middleware) Provider {
	for i := len(mws) - 1; i >= 0; i-- {
		p = mws[i](p)
	}
	return p
}
