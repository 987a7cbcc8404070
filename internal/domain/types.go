package domain

import (
	"fmt"
	"time"
)

type SessionID string
type MessageID string

// RecordKind tags a record among the heterogeneous contents of a session partition.
type RecordKind string

const (
	KindSession RecordKind = "ChatSession"
	KindMessage RecordKind = "ChatMessage"
)

type Sender string

const (
	SenderUser      Sender = "User"
	SenderAssistant Sender = "Assistant"
)

// ParseSender accepts only the closed set of senders.
func ParseSender(s string) (Sender, error) {
	switch Sender(s) {
	case SenderUser, SenderAssistant:
		return Sender(s), nil
	default:
		return "", fmt.Errorf("unknown sender %q", s)
	}
}

// DefaultSessionName is the name given to every new session until renamed.
const DefaultSessionName = "New Chat"

type Timestamp = time.Time
