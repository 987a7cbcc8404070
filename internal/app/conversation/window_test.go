package conversation

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/PabloGalante/farum-chat/internal/domain"
)

func textMessages(texts ...string) []domain.Message {
	out := make([]domain.Message, 0, len(texts))
	for _, t := range texts {
		out = append(out, domain.Message{Text: t})
	}
	return out
}

func TestBuildConversation(t *testing.T) {
	history := textMessages("hi", "hello there")

	tests := []struct {
		name   string
		budget int
		want   string
	}{
		{name: "fits", budget: 100, want: "hi\nhello there\nnext"},
		{name: "exact", budget: 19, want: "hi\nhello there\nnext"},
		{name: "cuts oldest", budget: 10, want: "there\nnext"},
		{name: "prompt only", budget: 4, want: "next"},
		{name: "inside prompt", budget: 2, want: "xt"},
		{name: "unbounded", budget: 0, want: "hi\nhello there\nnext"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildConversation(history, "next", tt.budget))
		})
	}
}

func TestBuildConversation_EmptyHistory(t *testing.T) {
	assert.Equal(t, "prompt", BuildConversation(nil, "prompt", 2000))
	assert.Equal(t, "", BuildConversation(nil, "", 10))
}

func TestBuildConversation_CountsCharactersNotBytes(t *testing.T) {
	history := textMessages("¿qué tal?", "muy bien, ¿y tú?")
	got := BuildConversation(history, "genial ñandú", 12)

	assert.Equal(t, 12, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "genial ñandú", got)
}

func TestBuildConversation_IsSuffixOfFullText(t *testing.T) {
	history := textMessages(strings.Repeat("a", 50), strings.Repeat("b", 50), "c")
	full := BuildConversation(history, "prompt", 0)

	for _, budget := range []int{1, 7, 60, 103, 500} {
		got := BuildConversation(history, "prompt", budget)
		assert.True(t, strings.HasSuffix(full, got))
		assert.LessOrEqual(t, utf8.RuneCountInString(got), budget)
	}
}

func TestBudgetFromMaxTokens(t *testing.T) {
	assert.Equal(t, 2000, BudgetFromMaxTokens(4000))
	assert.Equal(t, 1, BudgetFromMaxTokens(3))
	assert.Equal(t, 1, BudgetFromMaxTokens(1))
	assert.Equal(t, 0, BudgetFromMaxTokens(0))
}

func TestBuildConversation_SmallestAllowanceStaysBounded(t *testing.T) {
	history := textMessages("a long earlier message", "another one")

	got := BuildConversation(history, "prompt", BudgetFromMaxTokens(1))
	assert.Equal(t, "t", got)
}
