package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PabloGalante/farum-chat/internal/domain"
)

// MockLLM answers without calling any provider. Token usage counts one token
// per character.
type MockLLM struct{}

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

func (m *MockLLM) Complete(ctx context.Context, sessionID domain.SessionID, systemPrompt, conversation string) (domain.Completion, error) {
	if err := ctx.Err(); err != nil {
		return domain.Completion{}, err
	}

	lines := strings.Split(conversation, "\n")
	reply := fmt.Sprintf("You said %q. Tell me more.", lines[len(lines)-1])

	return domain.Completion{
		SessionID:        sessionID,
		PromptTokens:     utf8.RuneCountInString(systemPrompt) + utf8.RuneCountInString(conversation),
		CompletionTokens: utf8.RuneCountInString(reply),
		Text:             reply,
	}, nil
}

// Summarize returns the first two words of text.
func (m *MockLLM) Summarize(ctx context.Context, sessionID domain.SessionID, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return domain.DefaultSessionName, nil
	}
	if len(words) > 2 {
		words = words[:2]
	}
	return strings.Join(words, " "), nil
}
