package llm

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/PabloGalante/farum-chat/internal/domain"
)

const defaultAnthropicModel = "claude-3-5-haiku-latest"

type AnthropicClient struct {
	client *anthropic.Client
	params Params
}

// NewAnthropicClient creates a client for the Anthropic messages API. An
// empty baseURL keeps the SDK default.
func NewAnthropicClient(apiKey, baseURL string, params Params) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("FARUM_ANTHROPIC_API_KEY must be set")
	}

	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}

	return &AnthropicClient{
		client: anthropic.NewClient(apiKey, opts...),
		params: params.withDefaults(defaultAnthropicModel),
	}, nil
}

func (c *AnthropicClient) Complete(ctx context.Context, sessionID domain.SessionID, systemPrompt, conversation string) (domain.Completion, error) {
	resp, err := c.messages(ctx, systemPrompt, conversation)
	if err != nil {
		return domain.Completion{}, err
	}

	return domain.Completion{
		SessionID:        sessionID,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		Text:             responseText(resp),
	}, nil
}

func (c *AnthropicClient) Summarize(ctx context.Context, sessionID domain.SessionID, text string) (string, error) {
	resp, err := c.messages(ctx, summarizeInstruction, text)
	if err != nil {
		return "", err
	}
	return cleanLabel(responseText(resp)), nil
}

func (c *AnthropicClient) messages(ctx context.Context, system, userText string) (anthropic.MessagesResponse, error) {
	temp := *c.params.Temperature
	topP := c.params.TopP

	req := anthropic.MessagesRequest{
		Model: anthropic.Model(c.params.Model),
		MultiSystem: []anthropic.MessageSystemPart{
			{Type: "text", Text: system},
		},
		Messages: []anthropic.Message{
			{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(userText)},
			},
		},
		MaxTokens:   c.params.MaxTokens,
		Temperature: &temp,
		TopP:        &topP,
	}

	resp, err := c.client.CreateMessages(ctx, req)
	if err != nil {
		return anthropic.MessagesResponse{}, fmt.Errorf("anthropic create messages: %w", err)
	}
	return resp, nil
}

func responseText(resp anthropic.MessagesResponse) string {
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			b.WriteString(*block.Text)
		}
	}
	return b.String()
}
