package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChatClient struct {
	last  openai.ChatCompletionNewParams
	calls int
	resp  *openai.ChatCompletion
	err   error
}

func (s *stubChatClient) New(_ context.Context, body openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	s.last = body
	s.calls++
	return s.resp, s.err
}

func TestOpenAI_Invoke(t *testing.T) {
	stub := &stubChatClient{resp: &openai.ChatCompletion{
		Model: "gpt-4o-mini-2024-07-18",
		Choices: []openai.ChatCompletionChoice{{
			FinishReason: "stop",
			Message:      openai.ChatCompletionMessage{Content: `{"items": []}`},
		}},
		Usage: openai.CompletionUsage{PromptTokens: 2000, CompletionTokens: 1000},
	}}
	o, err := NewOpenAI(stub, OpenAIOptions{})
	require.NoError(t, err)

	resp, err := o.Invoke(context.Background(), &Request{
		Provider:    OpenAIID,
		Model:       "gpt-4o-mini",
		System:      "You filter lists.",
		Messages:    []Message{{Role: RoleUser, Content: "keep the big ones"}},
		Temperature: 0.2,
		MaxTokens:   800,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"items": []}`, resp.Text)
	assert.Equal(t, 2000, resp.InputTokens)
	assert.Equal(t, 1000, resp.OutputTokens)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", resp.Model)
	assert.InDelta(t, 0.0009, resp.Cost, 1e-9)
	assert.Equal(t, "stop", resp.StopReason)

	assert.Equal(t, "gpt-4o-mini", string(stub.last.Model))
	// System prompt travels as the first message.
	assert.Len(t, stub.last.Messages, 2)
}

func TestOpenAI_ImagesBecomeContentParts(t *testing.T) {
	stub := &stubChatClient{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "ok"}}},
	}}
	o, err := NewOpenAI(stub, OpenAIOptions{DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	resp, err := o.Invoke(context.Background(), &Request{
		Messages: []Message{{
			Role:    RoleUser,
			Content: "read the receipt",
			Images:  []Image{{MediaType: "image/jpeg", Data: "/9j/4AAQ"}},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", resp.Model)
	require.Len(t, stub.last.Messages, 1)
	assert.NotNil(t, stub.last.Messages[0].OfUser)
}

func TestOpenAI_Errors(t *testing.T) {
	t.Run("missing model", func(t *testing.T) {
		o, err := NewOpenAI(&stubChatClient{}, OpenAIOptions{})
		require.NoError(t, err)
		_, err = o.Invoke(context.Background(), userRequest(OpenAIID, "", "hi"))
		pe, ok := AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, KindInvalidRequest, pe.Kind())
	})

	t.Run("system only", func(t *testing.T) {
		stub := &stubChatClient{}
		o, err := NewOpenAI(stub, OpenAIOptions{DefaultModel: "gpt-4o"})
		require.NoError(t, err)
		_, err = o.Invoke(context.Background(), &Request{System: "policy", Messages: []Message{{Role: RoleUser}}})
		require.Error(t, err)
		assert.Zero(t, stub.calls)
	})

	t.Run("no choices", func(t *testing.T) {
		o, err := NewOpenAI(&stubChatClient{resp: &openai.ChatCompletion{}}, OpenAIOptions{})
		require.NoError(t, err)
		_, err = o.Invoke(context.Background(), userRequest(OpenAIID, "gpt-4o", "hi"))
		pe, ok := AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, KindUnknown, pe.Kind())
	})

	t.Run("sdk failure", func(t *testing.T) {
		cause := errors.New("dial tcp: refused")
		o, err := NewOpenAI(&stubChatClient{err: cause}, OpenAIOptions{})
		require.NoError(t, err)
		_, err = o.Invoke(context.Background(), userRequest(OpenAIID, "gpt-4o", "hi"))
		require.ErrorIs(t, err, cause)
		pe, ok := AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, "chat.completions", pe.Operation())
	})

	t.Run("api key required", func(t *testing.T) {
		_, err := NewOpenAIFromAPIKey("", OpenAIOptions{})
		assert.Error(t, err)
	})
}
