package provider

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicID is the provider id the Anthropic backend is registered under.
const AnthropicID = "anthropic"

const defaultAnthropicMaxTokens = 1024

// MessagesClient is the subset of the Anthropic SDK used by the adapter. It
// is satisfied by *sdk.MessageService and by stubs in tests.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicOptions configures the Anthropic adapter.
type AnthropicOptions struct {
	// DefaultModel is used when a request names no model.
	DefaultModel string
	// MaxTokens is used when a request sets no ceiling.
	MaxTokens int
	// Prices overrides DefaultAnthropicPrices entries.
	Prices PriceTable
}

// Anthropic invokes Claude models through the Messages API.
type Anthropic struct {
	msg          MessagesClient
	defaultModel string
	maxTokens    int
	prices       PriceTable
}

// NewAnthropic builds the adapter around an existing Messages client.
func NewAnthropic(msg MessagesClient, opts AnthropicOptions) (*Anthropic, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return &Anthropic{
		msg:          msg,
		defaultModel: opts.DefaultModel,
		maxTokens:    maxTokens,
		prices:       DefaultAnthropicPrices.Merge(opts.Prices),
	}, nil
}

// NewAnthropicFromAPIKey builds the adapter on the default SDK HTTP client.
func NewAnthropicFromAPIKey(apiKey string, opts AnthropicOptions) (*Anthropic, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropic(&ac.Messages, opts)
}

// Invoke sends req as a single Messages.New call.
func (a *Anthropic) Invoke(ctx context.Context, req *Request) (*Response, error) {
	params, err := a.params(req)
	if err != nil {
		return nil, err
	}

	msg, err := a.msg.New(ctx, *params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, NewProviderError(AnthropicID, "messages.new", 0, KindUnavailable, ctxErr.Error(), err)
		}
		status := 0
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return nil, NewProviderError(AnthropicID, "messages.new", status, "", err.Error(), err)
	}
	if msg == nil {
		return nil, NewProviderError(AnthropicID, "messages.new", 0, KindUnknown, "empty response", nil)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	model := string(msg.Model)
	if model == "" {
		model = string(params.Model)
	}
	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return &Response{
		Text:         text.String(),
		InputTokens:  in,
		OutputTokens: out,
		Cost:         a.prices.Cost(model, in, out),
		Model:        model,
		StopReason:   string(msg.StopReason),
	}, nil
}

func (a *Anthropic) params(req *Request) (*sdk.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}
	if model == "" {
		return nil, NewProviderError(AnthropicID, "messages.new", 0, KindInvalidRequest, "model is required", nil)
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}

	messages := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Images)+1)
		for _, img := range m.Images {
			blocks = append(blocks, sdk.NewImageBlockBase64(img.MediaType, img.Data))
		}
		if m.Content != "" {
			blocks = append(blocks, sdk.NewTextBlock(m.Content))
		}
		if len(blocks) == 0 {
			continue
		}
		if m.Role == RoleAssistant {
			messages = append(messages, sdk.NewAssistantMessage(blocks...))
		} else {
			messages = append(messages, sdk.NewUserMessage(blocks...))
		}
	}
	if len(messages) == 0 {
		return nil, NewProviderError(AnthropicID, "messages.new", 0, KindInvalidRequest, "request has no content", nil)
	}

	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  messages,
		Model:     sdk.Model(model),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}
	return &params, nil
}

var _ Provider = (*Anthropic)(nil)
