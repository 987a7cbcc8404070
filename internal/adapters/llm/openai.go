package llm

import (
	"context"
	"fmt"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/PabloGalante/farum-chat/internal/domain"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient calls the OpenAI chat completions API, or any compatible
// endpoint when a base URL is given.
type OpenAIClient struct {
	client *openai.Client
	params Params
}

func NewOpenAIClient(apiKey, baseURL string, params Params) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("FARUM_OPENAI_API_KEY must be set")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		params: params.withDefaults(defaultOpenAIModel),
	}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, sessionID domain.SessionID, systemPrompt, conversation string) (domain.Completion, error) {
	resp, err := c.chat(ctx, sessionID, systemPrompt, conversation)
	if err != nil {
		return domain.Completion{}, err
	}

	return domain.Completion{
		SessionID:        sessionID,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		Text:             resp.Choices[0].Message.Content,
	}, nil
}

func (c *OpenAIClient) Summarize(ctx context.Context, sessionID domain.SessionID, text string) (string, error) {
	resp, err := c.chat(ctx, sessionID, summarizeInstruction, text)
	if err != nil {
		return "", err
	}
	return cleanLabel(resp.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) chat(ctx context.Context, sessionID domain.SessionID, system, userText string) (openai.ChatCompletionResponse, error) {
	temp := *c.params.Temperature

	req := openai.ChatCompletionRequest{
		Model: c.params.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: userText},
		},
		MaxTokens:   c.params.MaxTokens,
		Temperature: &temp,
		TopP:        c.params.TopP,
		User:        string(sessionID),
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return openai.ChatCompletionResponse{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionResponse{}, fmt.Errorf("empty response from OpenAI")
	}
	return resp, nil
}
