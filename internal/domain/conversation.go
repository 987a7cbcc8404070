package domain

import "github.com/google/uuid"

// Session is one conversation thread. Its ID doubles as the partition key
// for the session record and all of its messages.
type Session struct {
	ID   SessionID
	Kind RecordKind
	Name string
}

// NewSession builds a default-named session with a fresh identity.
func NewSession() Session {
	return Session{
		ID:   SessionID(uuid.NewString()),
		Kind: KindSession,
		Name: DefaultSessionName,
	}
}

// Message is one turn of a conversation, authored by the user or the assistant.
type Message struct {
	ID        MessageID
	SessionID SessionID
	Kind      RecordKind
	CreatedAt Timestamp
	Sender    Sender
	Tokens    int
	Text      string
}

// NewMessage builds a message with a fresh identity.
func NewMessage(sessionID SessionID, sender Sender, tokens int, text string, createdAt Timestamp) Message {
	return Message{
		ID:        MessageID(uuid.NewString()),
		SessionID: sessionID,
		Kind:      KindMessage,
		CreatedAt: createdAt,
		Sender:    sender,
		Tokens:    tokens,
		Text:      text,
	}
}

// Completion is the result of one chat completion call. It is never stored
// as such: it becomes a User message and an Assistant message.
type Completion struct {
	SessionID        SessionID
	PromptTokens     int
	CompletionTokens int
	Text             string
}
