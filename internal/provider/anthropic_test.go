package provider

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMessagesClient struct {
	last sdk.MessageNewParams
	resp *sdk.Message
	err  error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.last = body
	return s.resp, s.err
}

func TestAnthropic_Invoke(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Model: sdk.Model("claude-sonnet-4-20250514"),
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: `{"emails":`},
			{Type: "text", Text: `[]}`},
		},
		StopReason: sdk.StopReasonEndTurn,
		Usage:      sdk.Usage{InputTokens: 1000, OutputTokens: 500},
	}}
	a, err := NewAnthropic(stub, AnthropicOptions{})
	require.NoError(t, err)

	resp, err := a.Invoke(context.Background(), &Request{
		Provider:    AnthropicID,
		Model:       "claude-sonnet-4-20250514",
		System:      "You extract data.",
		Messages:    []Message{{Role: RoleUser, Content: "find emails"}},
		Temperature: 0.2,
		MaxTokens:   2000,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"emails":[]}`, resp.Text)
	assert.Equal(t, 1000, resp.InputTokens)
	assert.Equal(t, 500, resp.OutputTokens)
	assert.InDelta(t, 0.0105, resp.Cost, 1e-9)
	assert.Equal(t, "end_turn", resp.StopReason)

	assert.Equal(t, sdk.Model("claude-sonnet-4-20250514"), stub.last.Model)
	assert.Equal(t, int64(2000), stub.last.MaxTokens)
	require.Len(t, stub.last.System, 1)
	assert.Equal(t, "You extract data.", stub.last.System[0].Text)
	assert.Len(t, stub.last.Messages, 1)
}

func TestAnthropic_VisionBlocks(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{Content: []sdk.ContentBlockUnion{{Type: "text", Text: "ok"}}}}
	a, err := NewAnthropic(stub, AnthropicOptions{DefaultModel: "claude-haiku-4-5"})
	require.NoError(t, err)

	_, err = a.Invoke(context.Background(), &Request{
		Messages: []Message{{
			Role:    RoleUser,
			Content: "describe",
			Images:  []Image{{MediaType: "image/png", Data: "iVBORw0KGgo="}},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, sdk.Model("claude-haiku-4-5"), stub.last.Model)
	assert.Equal(t, int64(defaultAnthropicMaxTokens), stub.last.MaxTokens)
	require.Len(t, stub.last.Messages, 1)
	content := stub.last.Messages[0].Content
	require.Len(t, content, 2)
	assert.NotNil(t, content[0].OfImage)
	require.NotNil(t, content[1].OfText)
	assert.Equal(t, "describe", content[1].OfText.Text)
}

func TestAnthropic_Errors(t *testing.T) {
	t.Run("missing model", func(t *testing.T) {
		a, err := NewAnthropic(&stubMessagesClient{}, AnthropicOptions{})
		require.NoError(t, err)
		_, err = a.Invoke(context.Background(), userRequest(AnthropicID, "", "hi"))
		pe, ok := AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, KindInvalidRequest, pe.Kind())
	})

	t.Run("empty content", func(t *testing.T) {
		a, err := NewAnthropic(&stubMessagesClient{}, AnthropicOptions{DefaultModel: "m"})
		require.NoError(t, err)
		_, err = a.Invoke(context.Background(), &Request{Messages: []Message{{Role: RoleUser}}})
		require.Error(t, err)
	})

	t.Run("sdk failure", func(t *testing.T) {
		cause := errors.New("dial tcp: refused")
		a, err := NewAnthropic(&stubMessagesClient{err: cause}, AnthropicOptions{})
		require.NoError(t, err)
		_, err = a.Invoke(context.Background(), userRequest(AnthropicID, "m", "hi"))
		require.ErrorIs(t, err, cause)
		pe, ok := AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, "messages.new", pe.Operation())
		assert.Equal(t, KindUnknown, pe.Kind())
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		a, err := NewAnthropic(&stubMessagesClient{err: context.Canceled}, AnthropicOptions{})
		require.NoError(t, err)
		_, err = a.Invoke(ctx, userRequest(AnthropicID, "m", "hi"))
		pe, ok := AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, KindUnavailable, pe.Kind())
	})

	t.Run("nil client", func(t *testing.T) {
		_, err := NewAnthropic(nil, AnthropicOptions{})
		assert.Error(t, err)
	})

	t.Run("api key required", func(t *testing.T) {
		_, err := NewAnthropicFromAPIKey("", AnthropicOptions{})
		assert.Error(t, err)
	})
}
