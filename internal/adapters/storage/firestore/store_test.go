package firestore

import (
	"context"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-chat/internal/domain"
)

func TestToMessageDoc(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 1000, time.UTC)
	msg := domain.NewMessage("s1", domain.SenderAssistant, 12, "hello", at)

	doc := toMessageDoc(msg)
	assert.Equal(t, "s1", doc.SessionID)
	assert.Equal(t, "ChatMessage", doc.Type)
	assert.Equal(t, "Assistant", doc.Sender)
	assert.Equal(t, 12, doc.Tokens)
	assert.Equal(t, at, doc.CreatedAt)
}

func TestToSessionDoc(t *testing.T) {
	doc := toSessionDoc(domain.Session{ID: "s1", Name: "Recipes"})
	assert.Equal(t, sessionDoc{Type: "ChatSession", Name: "Recipes"}, doc)
	assert.True(t, doc.CreatedAt.IsZero(), "creation time is stamped by the server")
}

// newEmulatorStore connects to the Firestore emulator, skipping the test
// when FIRESTORE_EMULATOR_HOST is not set.
func newEmulatorStore(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	s, err := NewStore(context.Background(), "farum-chat-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Emulator_PairAndDelete(t *testing.T) {
	s := newEmulatorStore(t)
	ctx := context.Background()

	session, err := s.InsertSession(ctx, domain.NewSession())
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Microsecond)
	prompt := domain.NewMessage(session.ID, domain.SenderUser, 2, "hi", now)
	reply := domain.NewMessage(session.ID, domain.SenderAssistant, 3, "hello", now.Add(time.Microsecond))
	require.NoError(t, s.InsertMessagePair(ctx, prompt, reply))

	msgs, err := s.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, prompt.ID, msgs[0].ID)
	assert.Equal(t, reply.ID, msgs[1].ID)

	session.Name = "Greeting"
	_, err = s.UpdateSession(ctx, session)
	require.NoError(t, err)

	require.NoError(t, s.DeleteSessionAndMessages(ctx, session.ID))
	msgs, err = s.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestStore_Emulator_ListsInCreationOrder(t *testing.T) {
	s := newEmulatorStore(t)
	ctx := context.Background()

	var want []domain.SessionID
	for i := 0; i < 5; i++ {
		session, err := s.InsertSession(ctx, domain.NewSession())
		require.NoError(t, err)
		want = append(want, session.ID)
		t.Cleanup(func() { _ = s.DeleteSessionAndMessages(context.Background(), session.ID) })
	}

	renamed := domain.Session{ID: want[0], Kind: domain.KindSession, Name: "Renamed"}
	_, err := s.UpdateSession(ctx, renamed)
	require.NoError(t, err)

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)

	var got []domain.SessionID
	for _, session := range sessions {
		if slices.Contains(want, session.ID) {
			got = append(got, session.ID)
		}
	}
	assert.Equal(t, want, got)
	assert.Equal(t, "Renamed", sessions[slices.Index(sessionIDs(sessions), want[0])].Name)
}

func TestStore_Emulator_UpdateUnknownSession(t *testing.T) {
	s := newEmulatorStore(t)

	_, err := s.UpdateSession(context.Background(), domain.Session{ID: "missing", Name: "x"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func sessionIDs(sessions []domain.Session) []domain.SessionID {
	out := make([]domain.SessionID, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, session.ID)
	}
	return out
}
