package provider

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIID is the provider id the OpenAI backend is registered under.
const OpenAIID = "openai"

const defaultOpenAIMaxTokens = 1024

// ChatCompletionsClient is the subset of the OpenAI SDK used by the
// adapter. It is satisfied by *openai.ChatCompletionService.
type ChatCompletionsClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIOptions configures the OpenAI adapter.
type OpenAIOptions struct {
	DefaultModel string
	MaxTokens    int
	// Prices overrides DefaultOpenAIPrices entries.
	Prices PriceTable
}

// OpenAI invokes chat models through the Chat Completions API.
type OpenAI struct {
	chat         ChatCompletionsClient
	defaultModel string
	maxTokens    int
	prices       PriceTable
}

// NewOpenAI builds the adapter around an existing Chat Completions client.
func NewOpenAI(chat ChatCompletionsClient, opts OpenAIOptions) (*OpenAI, error) {
	if chat == nil {
		return nil, errors.New("openai: chat completions client is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultOpenAIMaxTokens
	}
	return &OpenAI{
		chat:         chat,
		defaultModel: opts.DefaultModel,
		maxTokens:    maxTokens,
		prices:       DefaultOpenAIPrices.Merge(opts.Prices),
	}, nil
}

// NewOpenAIFromAPIKey builds the adapter on the default SDK HTTP client.
func NewOpenAIFromAPIKey(apiKey string, opts OpenAIOptions) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return NewOpenAI(&client.Chat.Completions, opts)
}

// Invoke sends req as a single chat completion.
func (o *OpenAI) Invoke(ctx context.Context, req *Request) (*Response, error) {
	params, err := o.params(req)
	if err != nil {
		return nil, err
	}

	completion, err := o.chat.New(ctx, *params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, NewProviderError(OpenAIID, "chat.completions", 0, KindUnavailable, ctxErr.Error(), err)
		}
		status := 0
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return nil, NewProviderError(OpenAIID, "chat.completions", status, "", err.Error(), err)
	}
	if completion == nil || len(completion.Choices) == 0 {
		return nil, NewProviderError(OpenAIID, "chat.completions", 0, KindUnknown, "empty response", nil)
	}

	choice := completion.Choices[0]
	model := completion.Model
	if model == "" {
		model = string(params.Model)
	}
	in, out := int(completion.Usage.PromptTokens), int(completion.Usage.CompletionTokens)
	return &Response{
		Text:         choice.Message.Content,
		InputTokens:  in,
		OutputTokens: out,
		Cost:         o.prices.Cost(model, in, out),
		Model:        model,
		StopReason:   string(choice.FinishReason),
	}, nil
}

func (o *OpenAI) params(req *Request) (*openai.ChatCompletionNewParams, error) {
	model := req.Model
	if model == "" {
		model = o.defaultModel
	}
	if model == "" {
		return nil, NewProviderError(OpenAIID, "chat.completions", 0, KindInvalidRequest, "model is required", nil)
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = o.maxTokens
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch {
		case m.Role == RoleAssistant && m.Content != "":
			messages = append(messages, openai.AssistantMessage(m.Content))
		case len(m.Images) > 0:
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(m.Images)+1)
			for _, img := range m.Images {
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: "data:" + img.MediaType + ";base64," + img.Data,
				}))
			}
			if m.Content != "" {
				parts = append(parts, openai.TextContentPart(m.Content))
			}
			messages = append(messages, openai.UserMessage(parts))
		case m.Content != "":
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	if len(messages) == 0 || (len(messages) == 1 && req.System != "") {
		return nil, NewProviderError(OpenAIID, "chat.completions", 0, KindInvalidRequest, "request has no content", nil)
	}

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	return &params, nil
}

var _ Provider = (*OpenAI)(nil)
