package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/PabloGalante/farum-chat/internal/domain"
	"github.com/PabloGalante/farum-chat/internal/observability"
)

const tracerName = "github.com/PabloGalante/farum-chat/internal/app/conversation"

// DefaultMaxTokens is used when no max token setting is given.
const DefaultMaxTokens = 4000

// Service is the only entry point to chat state. It mirrors sessions and
// messages in its Cache and decides when the store must be consulted.
type Service struct {
	llm   domain.CompletionClient
	store domain.ChatStore
	cache *Cache
	clock *clock

	systemPrompt string
	budget       int
	tracer       trace.Tracer
}

type Option func(*Service)

// WithMaxTokens sets the completion token allowance; half of it, counted in
// characters, bounds the conversation window.
func WithMaxTokens(n int) Option {
	return func(s *Service) {
		s.budget = BudgetFromMaxTokens(n)
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(s *Service) {
		s.systemPrompt = prompt
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.clock = newClock(now)
	}
}

func NewService(llm domain.CompletionClient, store domain.ChatStore, cache *Cache, opts ...Option) *Service {
	if cache == nil {
		cache = NewCache()
	}

	s := &Service{
		llm:          llm,
		store:        store,
		cache:        cache,
		clock:        newClock(time.Now),
		systemPrompt: DefaultSystemPrompt,
		budget:       BudgetFromMaxTokens(DefaultMaxTokens),
		tracer:       otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListSessions reloads the session list from the store, replacing the cache
// (and dropping every cached history). On first run, when the store has no
// sessions, a default session is created and returned alone.
func (s *Service) ListSessions(ctx context.Context) ([]domain.Session, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.ListSessions")
	defer span.End()

	log := observability.LoggerFromContext(ctx)

	sessions, err := s.store.ListSessions(ctx)
	if err != nil && !errors.Is(err, domain.ErrNoSessions) {
		log.Error("failed to list sessions", "error", err)
		return nil, fail(span, fmt.Errorf("list sessions: %w", err))
	}

	if len(sessions) == 0 {
		session, err := s.store.InsertSession(ctx, domain.NewSession())
		if err != nil {
			log.Error("failed to insert default session", "error", err)
			return nil, fail(span, fmt.Errorf("insert default session: %w", err))
		}
		log.Info("no sessions in store, created default session", "session_id", session.ID)
		sessions = []domain.Session{session}
	}

	s.cache.Replace(sessions)
	span.SetAttributes(attribute.Int("sessions.count", len(sessions)))
	log.Info("sessions refreshed", "count", len(sessions))

	return s.cache.Sessions(), nil
}

// GetSessionMessages returns the full message history of a session, reading
// it from the store only the first time.
func (s *Service) GetSessionMessages(ctx context.Context, id domain.SessionID) ([]domain.Message, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.GetSessionMessages",
		trace.WithAttributes(attribute.String("session.id", string(id))))
	defer span.End()

	e, err := s.cache.acquire(id)
	if err != nil {
		return nil, fail(span, err)
	}
	defer e.mu.Unlock()

	if err := s.fill(ctx, e); err != nil {
		return nil, fail(span, err)
	}
	return e.history.Messages(), nil
}

// fill loads the history of e from the store when it is not loaded yet.
// The caller holds e.mu.
func (s *Service) fill(ctx context.Context, e *entry) error {
	if e.history.Loaded() {
		return nil
	}

	id := e.Session().ID
	log := observability.LoggerFromContext(ctx).With("session_id", id)

	msgs, err := s.store.ListMessages(ctx, id)
	if err != nil {
		log.Error("failed to load messages", "error", err)
		return fmt.Errorf("load messages of session %s: %w", id, err)
	}

	e.setHistory(LoadedHistory(msgs))
	log.Info("messages cached", "message_count", len(msgs))
	return nil
}

// CreateSession starts a new default-named session. Every call creates a
// distinct session.
func (s *Service) CreateSession(ctx context.Context) (domain.Session, error) {
	log := observability.LoggerFromContext(ctx)

	session, err := s.store.InsertSession(ctx, domain.NewSession())
	if err != nil {
		log.Error("failed to create session", "error", err)
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}

	// Nothing to fetch for a brand new session.
	s.cache.Insert(session, LoadedHistory(nil))

	log.Info("session created", "session_id", session.ID)
	return session, nil
}

// RenameSession persists a new name for the session, then applies it to the
// cache. The name is not validated.
func (s *Service) RenameSession(ctx context.Context, id domain.SessionID, name string) error {
	log := observability.LoggerFromContext(ctx).With("session_id", id)

	e, err := s.cache.acquire(id)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	updated := e.Session()
	updated.Name = name

	stored, err := s.store.UpdateSession(ctx, updated)
	if err != nil {
		log.Error("failed to rename session", "error", err)
		return fmt.Errorf("rename session %s: %w", id, err)
	}
	e.setSession(stored)

	log.Info("session renamed", "name", name)
	return nil
}

// DeleteSession removes the session from the cache, then deletes it and all
// its messages from the store. A store failure is reported, but the session
// stays out of the cache.
func (s *Service) DeleteSession(ctx context.Context, id domain.SessionID) error {
	log := observability.LoggerFromContext(ctx).With("session_id", id)

	e, err := s.cache.acquire(id)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	s.cache.remove(id, e)

	if err := s.store.DeleteSessionAndMessages(ctx, id); err != nil {
		log.Error("failed to delete session from store", "error", err)
		return fmt.Errorf("delete session %s: %w", id, err)
	}

	log.Info("session deleted")
	return nil
}

// Ask sends prompt, with as much of the session history as fits the window,
// to the completion service. The prompt and the reply are stored together as
// one atomic write before they are added to the cache.
func (s *Service) Ask(ctx context.Context, id domain.SessionID, prompt string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.Ask",
		trace.WithAttributes(attribute.String("session.id", string(id))))
	defer span.End()

	log := observability.LoggerFromContext(ctx).With("session_id", id)

	e, err := s.cache.acquire(id)
	if err != nil {
		return "", fail(span, err)
	}
	defer e.mu.Unlock()

	if err := s.fill(ctx, e); err != nil {
		return "", fail(span, err)
	}

	conversation := BuildConversation(e.history.messages, prompt, s.budget)
	log.Info("asking completion", "history_count", len(e.history.messages), "conversation_chars", utf8.RuneCountInString(conversation))

	completion, err := s.llm.Complete(ctx, id, s.systemPrompt, conversation)
	if err != nil {
		log.Error("completion failed", "error", err)
		return "", fail(span, fmt.Errorf("complete session %s: %w", id, err))
	}

	promptMsg := domain.NewMessage(id, domain.SenderUser, completion.PromptTokens, prompt, s.clock.Now())
	replyMsg := domain.NewMessage(id, domain.SenderAssistant, completion.CompletionTokens, completion.Text, s.clock.Now())

	if err := s.store.InsertMessagePair(ctx, promptMsg, replyMsg); err != nil {
		log.Error("failed to persist prompt and completion", "error", err)
		return "", fail(span, &UnsavedReplyError{SessionID: id, Reply: completion.Text, Err: err})
	}
	e.history.append(promptMsg, replyMsg)

	span.SetAttributes(
		attribute.Int("tokens.prompt", completion.PromptTokens),
		attribute.Int("tokens.completion", completion.CompletionTokens),
	)
	log.Info("completion stored",
		"prompt_tokens", completion.PromptTokens,
		"completion_tokens", completion.CompletionTokens)

	return completion.Text, nil
}

// SummarizeSessionName asks the completion service for a short label of
// prompt and renames the session with it.
func (s *Service) SummarizeSessionName(ctx context.Context, id domain.SessionID, prompt string) (string, error) {
	log := observability.LoggerFromContext(ctx).With("session_id", id)

	if _, err := s.cache.lookup(id); err != nil {
		return "", err
	}

	name, err := s.llm.Summarize(ctx, id, prompt)
	if err != nil {
		log.Error("summarize failed", "error", err)
		return "", fmt.Errorf("summarize session %s: %w", id, err)
	}
	name = strings.TrimSpace(name)

	if err := s.RenameSession(ctx, id, name); err != nil {
		return "", err
	}
	return name, nil
}

// Stats describes the cache content.
type Stats struct {
	Sessions        int `json:"sessions"`
	LoadedHistories int `json:"loaded_histories"`
}

func (s *Service) Stats() Stats {
	return Stats{
		Sessions:        s.cache.Len(),
		LoadedHistories: s.cache.loadedCount(),
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
