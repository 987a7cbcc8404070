package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/PabloGalante/farum-chat/internal/domain"
)

const defaultVertexModel = "gemini-2.5-flash"

type VertexClient struct {
	client *genai.Client
	params Params
}

// NewVertexClient creates a CompletionClient based on Vertex AI (Gemini).
func NewVertexClient(ctx context.Context, projectID, location string, params Params) (*VertexClient, error) {
	if projectID == "" || location == "" {
		return nil, fmt.Errorf("FARUM_GCP_PROJECT and FARUM_GCP_LOCATION must be set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Vertex AI client: %w", err)
	}

	return &VertexClient{
		client: client,
		params: params.withDefaults(defaultVertexModel),
	}, nil
}

func (v *VertexClient) Complete(ctx context.Context, sessionID domain.SessionID, systemPrompt, conversation string) (domain.Completion, error) {
	res, err := v.generate(ctx, systemPrompt, conversation)
	if err != nil {
		return domain.Completion{}, err
	}

	text := res.Text()
	if text == "" {
		return domain.Completion{}, fmt.Errorf("vertex returned empty text")
	}

	completion := domain.Completion{SessionID: sessionID, Text: text}
	if u := res.UsageMetadata; u != nil {
		completion.PromptTokens = int(u.PromptTokenCount)
		completion.CompletionTokens = int(u.CandidatesTokenCount)
	}
	return completion, nil
}

func (v *VertexClient) Summarize(ctx context.Context, sessionID domain.SessionID, text string) (string, error) {
	res, err := v.generate(ctx, summarizeInstruction, text)
	if err != nil {
		return "", err
	}
	return cleanLabel(res.Text()), nil
}

func (v *VertexClient) generate(ctx context.Context, system, userText string) (*genai.GenerateContentResponse, error) {
	contents := []*genai.Content{genai.NewContentFromText(userText, genai.RoleUser)}

	temp := *v.params.Temperature
	topP := v.params.TopP

	cfg := &genai.GenerateContentConfig{
		// genai expects the system instruction content under RoleUser.
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       &temp,
		TopP:              &topP,
		MaxOutputTokens:   int32(v.params.MaxTokens),
	}

	res, err := v.client.Models.GenerateContent(ctx, v.params.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("vertex generate content: %w", err)
	}
	return res, nil
}
