package conversation

import (
	"strings"
	"unicode/utf8"

	"github.com/PabloGalante/farum-chat/internal/domain"
)

// BuildConversation joins every message text followed by a newline, then
// prompt. When the result is longer than budget characters only the last
// budget characters are kept, so the oldest text is dropped first and may be
// cut mid-message. A budget <= 0 disables the bound.
func BuildConversation(history []domain.Message, prompt string, budget int) string {
	var b strings.Builder
	for _, m := range history {
		b.WriteString(m.Text)
		b.WriteByte('\n')
	}
	b.WriteString(prompt)

	return suffixRunes(b.String(), budget)
}

// BudgetFromMaxTokens splits the token allowance evenly between the submitted
// context and the reply, counting one character per token. A positive
// allowance always yields a bound of at least one character.
func BudgetFromMaxTokens(maxTokens int) int {
	if maxTokens <= 0 {
		return 0
	}
	return max(maxTokens/2, 1)
}

func suffixRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	extra := utf8.RuneCountInString(s) - n
	if extra <= 0 {
		return s
	}
	i := 0
	for extra > 0 {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
		extra--
	}
	return s[i:]
}
