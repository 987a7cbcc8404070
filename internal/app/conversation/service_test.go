package conversation_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-chat/internal/adapters/storage/memory"
	"github.com/PabloGalante/farum-chat/internal/app/conversation"
	"github.com/PabloGalante/farum-chat/internal/domain"
)

// scriptedLLM answers every Complete with reply and records what it was sent.
type scriptedLLM struct {
	mu            sync.Mutex
	reply         string
	summary       string
	promptTokens  int
	replyTokens   int
	err           error
	conversations []string
}

func (l *scriptedLLM) Complete(ctx context.Context, id domain.SessionID, system, conversation string) (domain.Completion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.conversations = append(l.conversations, conversation)
	if l.err != nil {
		return domain.Completion{}, l.err
	}
	return domain.Completion{
		SessionID:        id,
		PromptTokens:     l.promptTokens,
		CompletionTokens: l.replyTokens,
		Text:             l.reply,
	}, nil
}

func (l *scriptedLLM) Summarize(ctx context.Context, id domain.SessionID, text string) (string, error) {
	if l.err != nil {
		return "", l.err
	}
	return l.summary, nil
}

func (l *scriptedLLM) last() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conversations[len(l.conversations)-1]
}

// countingStore wraps the memory store, counting reads and optionally
// failing pair writes.
type countingStore struct {
	*memory.Store

	mu        sync.Mutex
	listCalls map[domain.SessionID]int
	pairErr   error
}

func newCountingStore() *countingStore {
	return &countingStore{
		Store:     memory.NewStore(),
		listCalls: make(map[domain.SessionID]int),
	}
}

func (s *countingStore) ListMessages(ctx context.Context, id domain.SessionID) ([]domain.Message, error) {
	s.mu.Lock()
	s.listCalls[id]++
	s.mu.Unlock()
	return s.Store.ListMessages(ctx, id)
}

func (s *countingStore) InsertMessagePair(ctx context.Context, prompt, completion domain.Message) error {
	if s.pairErr != nil {
		return s.pairErr
	}
	return s.Store.InsertMessagePair(ctx, prompt, completion)
}

func (s *countingStore) reads(id domain.SessionID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls[id]
}

func newTestService(t *testing.T, opts ...conversation.Option) (*conversation.Service, *scriptedLLM, *countingStore) {
	t.Helper()

	llm := &scriptedLLM{reply: "sure", summary: "  Greetings \n", promptTokens: 7, replyTokens: 11}
	store := newCountingStore()
	return conversation.NewService(llm, store, nil, opts...), llm, store
}

func TestListSessions_BootstrapsDefaultSession(t *testing.T) {
	ctx := context.Background()
	svc, _, store := newTestService(t)

	sessions, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, domain.DefaultSessionName, sessions[0].Name)
	assert.Equal(t, domain.KindSession, sessions[0].Kind)

	stored, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, sessions[0].ID, stored[0].ID)

	// The bootstrap only happens on an empty store.
	again, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, again, 1)
}

func TestListSessions_ReturnsStoredSessions(t *testing.T) {
	ctx := context.Background()
	svc, _, store := newTestService(t)

	a, err := store.InsertSession(ctx, domain.NewSession())
	require.NoError(t, err)
	b, err := store.InsertSession(ctx, domain.NewSession())
	require.NoError(t, err)

	sessions, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, a.ID, sessions[0].ID)
	assert.Equal(t, b.ID, sessions[1].ID)
	assert.Equal(t, conversation.Stats{Sessions: 2}, svc.Stats())
}

func TestGetSessionMessages_ReadsStoreOnce(t *testing.T) {
	ctx := context.Background()
	svc, _, store := newTestService(t)

	session, err := store.InsertSession(ctx, domain.NewSession())
	require.NoError(t, err)
	_, err = svc.ListSessions(ctx)
	require.NoError(t, err)

	first, err := svc.GetSessionMessages(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, first)

	second, err := svc.GetSessionMessages(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, second)

	assert.Equal(t, 1, store.reads(session.ID))
	assert.Equal(t, 1, svc.Stats().LoadedHistories)
}

func TestGetSessionMessages_UnknownSession(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.GetSessionMessages(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestCreateSession_IsLoadedAndDistinct(t *testing.T) {
	ctx := context.Background()
	svc, _, store := newTestService(t)

	a, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	b, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, domain.DefaultSessionName, a.Name)

	msgs, err := svc.GetSessionMessages(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Zero(t, store.reads(a.ID), "a new session needs no store read")
}

func TestAsk_StoresPairInOrder(t *testing.T) {
	ctx := context.Background()
	svc, llm, store := newTestService(t)

	session, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	reply, err := svc.Ask(ctx, session.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, "sure", reply)
	assert.Equal(t, "hello", llm.last())

	msgs, err := svc.GetSessionMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, domain.SenderUser, msgs[0].Sender)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, 7, msgs[0].Tokens)
	assert.Equal(t, domain.SenderAssistant, msgs[1].Sender)
	assert.Equal(t, "sure", msgs[1].Text)
	assert.Equal(t, 11, msgs[1].Tokens)
	assert.True(t, msgs[1].CreatedAt.After(msgs[0].CreatedAt))
	assert.Equal(t, domain.KindMessage, msgs[0].Kind)

	persisted, err := store.Store.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, msgs, persisted)
}

func TestAsk_SendsHistoryThenPrompt(t *testing.T) {
	ctx := context.Background()
	svc, llm, _ := newTestService(t)

	session, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	_, err = svc.Ask(ctx, session.ID, "one")
	require.NoError(t, err)
	_, err = svc.Ask(ctx, session.ID, "two")
	require.NoError(t, err)

	assert.Equal(t, "one\nsure\ntwo", llm.last())
}

func TestAsk_WindowKeepsNewestText(t *testing.T) {
	ctx := context.Background()
	svc, llm, _ := newTestService(t, conversation.WithMaxTokens(20))

	session, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	for _, p := range []string{"first question", "second question", "third"} {
		_, err := svc.Ask(ctx, session.ID, p)
		require.NoError(t, err)
	}

	sent := llm.last()
	assert.Equal(t, 10, utf8.RuneCountInString(sent))
	assert.True(t, strings.HasSuffix(sent, "third"))
	assert.Equal(t, "sure\nthird", sent)
}

func TestAsk_LoadsUnloadedHistoryFirst(t *testing.T) {
	ctx := context.Background()
	svc, llm, store := newTestService(t)

	session, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	_, err = svc.Ask(ctx, session.ID, "earlier")
	require.NoError(t, err)

	// A refresh drops every cached history.
	_, err = svc.ListSessions(ctx)
	require.NoError(t, err)

	_, err = svc.Ask(ctx, session.ID, "later")
	require.NoError(t, err)
	assert.Equal(t, "earlier\nsure\nlater", llm.last())
	assert.Equal(t, 1, store.reads(session.ID))

	msgs, err := svc.GetSessionMessages(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

func TestAsk_PersistFailureLeavesCacheUntouched(t *testing.T) {
	ctx := context.Background()
	svc, _, store := newTestService(t)

	session, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	store.pairErr = errors.New("write refused")
	_, err = svc.Ask(ctx, session.ID, "hello")

	var unsaved *conversation.UnsavedReplyError
	require.ErrorAs(t, err, &unsaved)
	assert.Equal(t, "sure", unsaved.Reply)
	assert.Equal(t, session.ID, unsaved.SessionID)
	assert.ErrorIs(t, err, store.pairErr)

	msgs, err := svc.GetSessionMessages(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestAsk_CompletionFailure(t *testing.T) {
	ctx := context.Background()
	svc, llm, _ := newTestService(t)

	session, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	llm.err = errors.New("quota exceeded")
	_, err = svc.Ask(ctx, session.ID, "hello")
	assert.ErrorIs(t, err, llm.err)

	msgs, err := svc.GetSessionMessages(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRenameSession_VisibleInCacheAndStore(t *testing.T) {
	ctx := context.Background()
	svc, _, store := newTestService(t)

	session, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.RenameSession(ctx, session.ID, "Travel plans"))

	stored, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Travel plans", stored[0].Name)

	sessions, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Travel plans", sessions[0].Name)

	assert.ErrorIs(t, svc.RenameSession(ctx, "nope", "x"), domain.ErrSessionNotFound)
}

func TestDeleteSession(t *testing.T) {
	ctx := context.Background()
	svc, _, store := newTestService(t)

	keep, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	gone, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	_, err = svc.Ask(ctx, gone.ID, "hello")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSession(ctx, gone.ID))

	_, err = svc.GetSessionMessages(ctx, gone.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = svc.Ask(ctx, gone.ID, "again")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, svc.DeleteSession(ctx, gone.ID), domain.ErrSessionNotFound)

	left, err := store.Store.ListMessages(ctx, gone.ID)
	require.NoError(t, err)
	assert.Empty(t, left)

	sessions, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, keep.ID, sessions[0].ID)
}

func TestSummarizeSessionName(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	session, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	name, err := svc.SummarizeSessionName(ctx, session.ID, "hi there, how are you?")
	require.NoError(t, err)
	assert.Equal(t, "Greetings", name)

	sessions, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Greetings", sessions[0].Name)

	_, err = svc.SummarizeSessionName(ctx, "nope", "x")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestAsk_ConcurrentAsksKeepPairsTogether(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	session, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Ask(ctx, session.ID, "ping")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	msgs, err := svc.GetSessionMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 16)
	for i := 0; i < len(msgs); i += 2 {
		assert.Equal(t, domain.SenderUser, msgs[i].Sender)
		assert.Equal(t, domain.SenderAssistant, msgs[i+1].Sender)
	}
}

func TestListSessions_ConcurrentWithRename(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	session, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sessions, err := svc.ListSessions(ctx)
			if assert.NoError(t, err) {
				assert.Len(t, sessions, 1)
			}
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.RenameSession(ctx, session.ID, "renamed"))
		}()
	}
	wg.Wait()

	sessions, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "renamed", sessions[0].Name)
}
