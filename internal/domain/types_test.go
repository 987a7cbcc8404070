package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-chat/internal/domain"
)

func TestNewSessionDefaults(t *testing.T) {
	a := domain.NewSession()
	b := domain.NewSession()

	assert.Equal(t, domain.DefaultSessionName, a.Name)
	assert.Equal(t, domain.KindSession, a.Kind)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID, "each session gets a distinct identity")
}

func TestNewMessage(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	m := domain.NewMessage("s1", domain.SenderAssistant, 42, "hello", now)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, domain.SessionID("s1"), m.SessionID)
	assert.Equal(t, domain.KindMessage, m.Kind)
	assert.Equal(t, domain.SenderAssistant, m.Sender)
	assert.Equal(t, 42, m.Tokens)
	assert.Equal(t, now, m.CreatedAt)
}

func TestParseSender(t *testing.T) {
	s, err := domain.ParseSender("User")
	require.NoError(t, err)
	assert.Equal(t, domain.SenderUser, s)

	_, err = domain.ParseSender("system")
	assert.Error(t, err)
}
