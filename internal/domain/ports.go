package domain

import "context"

// CompletionClient defines how the core application interacts with an LLM service.
type CompletionClient interface {
	// Complete runs a chat completion of conversation under systemPrompt.
	// sessionID is forwarded so the provider can attribute usage per session.
	Complete(ctx context.Context, sessionID SessionID, systemPrompt, conversation string) (Completion, error)

	// Summarize returns a one or two word label for text.
	Summarize(ctx context.Context, sessionID SessionID, text string) (string, error)
}

// SessionStore defines session persistence.
type SessionStore interface {
	// ListSessions returns every session record, without messages.
	// It returns ErrNoSessions when the store holds none.
	ListSessions(ctx context.Context) ([]Session, error)
	InsertSession(ctx context.Context, session Session) (Session, error)
	// UpdateSession replaces the whole record keyed by ID.
	UpdateSession(ctx context.Context, session Session) (Session, error)
	// DeleteSessionAndMessages removes the session and every message in its partition.
	DeleteSessionAndMessages(ctx context.Context, id SessionID) error
}

// MessageStore defines message persistence.
type MessageStore interface {
	// ListMessages returns every message of the session in insertion order.
	ListMessages(ctx context.Context, id SessionID) ([]Message, error)
	// InsertMessagePair persists both messages in one transaction or neither.
	InsertMessagePair(ctx context.Context, prompt, completion Message) error
}

// ChatStore is the full Store Gateway. One backend implements both halves.
type ChatStore interface {
	SessionStore
	MessageStore
}
