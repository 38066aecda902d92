package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

type sendBehavior struct{}

// NewSendHandler returns the handler for send steps. It composes the
// message; delivery belongs to the caller. The returned message is a short
// status and the composed content lives in the output metadata only.
func NewSendHandler(deps *Deps) *IntentHandler {
	return newIntentHandler(schema.IntentSend, deps, sendBehavior{})
}

func (sendBehavior) prepare(_ context.Context, c *call) error {
	hint := c.instruction + " " + stringOpt(c.input, "channel") + " " + stringOpt(c.input, "recipient")

	tone := stringOpt(c.input, "tone")
	if tone == "" {
		tone = classifyFormality(hint)
	}
	c.variant = tone
	c.meta["formality"] = tone

	kind := stringOpt(c.input, "channel")
	if kind == "" {
		kind = classifyMessage(hint)
	}
	c.meta["message_type"] = kind
	return nil
}

func (sendBehavior) system(c *call) string {
	tone := "clear and neutral"
	switch c.variant {
	case toneFormal:
		tone = "formal and professional"
	case toneCasual:
		tone = "warm and casual"
	}
	return fmt.Sprintf("You compose %s messages. The tone is %s. Write the complete message ready to send. "+
		`%s Use the shape {"subject": string, "body": string}.`, c.meta["message_type"], tone, jsonOnly)
}

func (sendBehavior) user(c *call) string {
	instruction := c.instruction
	if instruction == "" {
		instruction = "Compose a message about the following data."
	}
	var to string
	if r := stringOpt(c.input, "recipient"); r != "" {
		to = "Recipient: " + r
	}
	return userPrompt(instruction, c.data, to)
}

func (sendBehavior) finish(c *call) (any, error) {
	var subject, body string
	if obj, ok := asObject(c.norm.Value); ok && c.norm.Structured() {
		subject = firstString(obj, "subject", "title")
		body = firstString(obj, "body", "content", "message", "text")
	}
	if body == "" {
		body = strings.TrimSpace(responseText(c.norm.Value))
	}

	messageType, _ := c.meta["message_type"].(string)
	recipient := stringOpt(c.input, "recipient")

	status := fmt.Sprintf("%s composed (%d characters)", messageType, len([]rune(body)))
	if recipient != "" {
		status = fmt.Sprintf("%s composed for %s (%d characters)", messageType, recipient, len([]rune(body)))
	}

	meta := map[string]any{
		"content":        body,
		"formality":      c.variant,
		"characterCount": len([]rune(body)),
	}
	if subject != "" {
		meta["subject"] = subject
	}
	if recipient != "" {
		meta["recipient"] = recipient
	}
	return map[string]any{
		"message":     status,
		"messageType": messageType,
		"metadata":    meta,
	}, nil
}
