package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/farum-chat/internal/adapters/storage/fanout"
	"github.com/PabloGalante/farum-chat/internal/domain"
	"github.com/PabloGalante/farum-chat/internal/observability"
)

type Store struct {
	client      *firestore.Client
	deleteLimit int
}

// NewStore creates a Firestore store.
// Uses the project passed (FARUM_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client, deleteLimit: fanout.DefaultLimit}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection("sessions")
}

func (s *Store) sessionDoc(id domain.SessionID) *firestore.DocumentRef {
	return s.sessionsCol().Doc(string(id))
}

func (s *Store) messagesCol(sessionID domain.SessionID) *firestore.CollectionRef {
	return s.sessionDoc(sessionID).Collection("messages")
}

func (s *Store) messageDoc(sessionID domain.SessionID, msgID domain.MessageID) *firestore.DocumentRef {
	return s.messagesCol(sessionID).Doc(string(msgID))
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

// CreatedAt is left zero on write so the server stamps it; listings order
// by it.
type sessionDoc struct {
	Type      string    `firestore:"type"`
	Name      string    `firestore:"name"`
	CreatedAt time.Time `firestore:"created_at,serverTimestamp"`
}

type messageDoc struct {
	SessionID string    `firestore:"session_id"`
	Type      string    `firestore:"type"`
	Sender    string    `firestore:"sender"`
	Tokens    int       `firestore:"tokens"`
	Text      string    `firestore:"text"`
	CreatedAt time.Time `firestore:"created_at"`
}

func toSessionDoc(session domain.Session) sessionDoc {
	return sessionDoc{Type: string(domain.KindSession), Name: session.Name}
}

func toMessageDoc(msg domain.Message) messageDoc {
	return messageDoc{
		SessionID: string(msg.SessionID),
		Type:      string(domain.KindMessage),
		Sender:    string(msg.Sender),
		Tokens:    msg.Tokens,
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt,
	}
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

// ListSessions returns every session record in creation order. A missing or
// empty collection is reported as domain.ErrNoSessions.
func (s *Store) ListSessions(ctx context.Context) ([]domain.Session, error) {
	// Filtering on type in the query would need a composite index with the
	// ordering, so foreign documents are skipped below.
	q := s.sessionsCol().
		OrderBy("created_at", firestore.Asc).
		Select("type", "name", "created_at")

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []domain.Session
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			if status.Code(err) == codes.NotFound {
				return nil, domain.ErrNoSessions
			}
			return nil, fmt.Errorf("firestore ListSessions: %w", err)
		}

		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode sessionDoc: %w", err)
		}
		if doc.Type != string(domain.KindSession) {
			continue
		}

		out = append(out, domain.Session{
			ID:   domain.SessionID(snap.Ref.ID),
			Kind: domain.RecordKind(doc.Type),
			Name: doc.Name,
		})
	}

	if len(out) == 0 {
		return nil, domain.ErrNoSessions
	}
	return out, nil
}

func (s *Store) InsertSession(ctx context.Context, session domain.Session) (domain.Session, error) {
	if _, err := s.sessionDoc(session.ID).Create(ctx, toSessionDoc(session)); err != nil {
		return domain.Session{}, fmt.Errorf("firestore InsertSession: %w", err)
	}
	session.Kind = domain.KindSession
	return session, nil
}

// UpdateSession replaces every field of the session record. The creation
// stamp is kept.
func (s *Store) UpdateSession(ctx context.Context, session domain.Session) (domain.Session, error) {
	doc := toSessionDoc(session)
	_, err := s.sessionDoc(session.ID).Update(ctx, []firestore.Update{
		{Path: "type", Value: doc.Type},
		{Path: "name", Value: doc.Name},
	})
	if status.Code(err) == codes.NotFound {
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, session.ID)
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("firestore UpdateSession: %w", err)
	}
	session.Kind = domain.KindSession
	return session, nil
}

// DeleteSessionAndMessages deletes every message of the session concurrently,
// then the session document. Every failed delete is reported.
func (s *Store) DeleteSessionAndMessages(ctx context.Context, id domain.SessionID) error {
	log := observability.LoggerFromContext(ctx).With("session_id", id)

	refs, err := s.messageRefs(ctx, id)
	if err != nil {
		return err
	}

	errMessages := fanout.Run(ctx, refs, s.deleteLimit, func(ctx context.Context, ref *firestore.DocumentRef) error {
		if _, err := ref.Delete(ctx); err != nil {
			return fmt.Errorf("delete message %s: %w", ref.ID, err)
		}
		return nil
	})

	var errSession error
	if _, err := s.sessionDoc(id).Delete(ctx); err != nil {
		errSession = fmt.Errorf("delete session document: %w", err)
	}

	if err := errors.Join(errMessages, errSession); err != nil {
		log.Error("firestore delete incomplete", "message_count", len(refs), "error", err)
		return fmt.Errorf("firestore DeleteSessionAndMessages: %w", err)
	}

	log.Info("firestore session deleted", "message_count", len(refs))
	return nil
}

func (s *Store) messageRefs(ctx context.Context, id domain.SessionID) ([]*firestore.DocumentRef, error) {
	iter := s.messagesCol(id).DocumentRefs(ctx)

	var refs []*firestore.DocumentRef
	for {
		ref, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("firestore list message refs: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// ─────────────────────────────────────────
// MessageStore implementation
// ─────────────────────────────────────────

// ListMessages returns the messages of a session, oldest first.
func (s *Store) ListMessages(ctx context.Context, sessionID domain.SessionID) ([]domain.Message, error) {
	iter := s.messagesCol(sessionID).OrderBy("created_at", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	out := []domain.Message{}
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("firestore ListMessages: %w", err)
		}

		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode messageDoc: %w", err)
		}
		sender, err := domain.ParseSender(doc.Sender)
		if err != nil {
			return nil, fmt.Errorf("decode messageDoc %s: %w", snap.Ref.ID, err)
		}

		out = append(out, domain.Message{
			ID:        domain.MessageID(snap.Ref.ID),
			SessionID: sessionID,
			Kind:      domain.KindMessage,
			CreatedAt: doc.CreatedAt,
			Sender:    sender,
			Tokens:    doc.Tokens,
			Text:      doc.Text,
		})
	}
	return out, nil
}

// InsertMessagePair creates both message documents in one transaction.
func (s *Store) InsertMessagePair(ctx context.Context, prompt, completion domain.Message) error {
	if prompt.SessionID != completion.SessionID {
		return fmt.Errorf("message pair spans partitions %s and %s", prompt.SessionID, completion.SessionID)
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(s.messageDoc(prompt.SessionID, prompt.ID), toMessageDoc(prompt)); err != nil {
			return err
		}
		return tx.Create(s.messageDoc(completion.SessionID, completion.ID), toMessageDoc(completion))
	})
	if err != nil {
		return fmt.Errorf("firestore InsertMessagePair: %w", err)
	}
	return nil
}
