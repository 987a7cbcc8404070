package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/PabloGalante/farum-chat/internal/domain"
)

var errSessionExists = errors.New("session already exists")

// partition holds a session record and every message sharing its key.
type partition struct {
	session  domain.Session
	messages []domain.Message
}

// Store is an in-memory domain.ChatStore. It is NOT persistent and is only
// suitable for development / local mode.
type Store struct {
	mu         sync.RWMutex
	order      []domain.SessionID
	partitions map[domain.SessionID]*partition
}

func NewStore() *Store {
	return &Store{
		partitions: make(map[domain.SessionID]*partition),
	}
}

func (s *Store) ListSessions(ctx context.Context) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.order) == 0 {
		return nil, domain.ErrNoSessions
	}

	out := make([]domain.Session, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.partitions[id].session)
	}
	return out, nil
}

func (s *Store) InsertSession(ctx context.Context, session domain.Session) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.partitions[session.ID]; exists {
		return domain.Session{}, fmt.Errorf("%w: %s", errSessionExists, session.ID)
	}

	s.partitions[session.ID] = &partition{session: session}
	s.order = append(s.order, session.ID)
	return session, nil
}

func (s *Store) UpdateSession(ctx context.Context, session domain.Session) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.partitions[session.ID]
	if !exists {
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, session.ID)
	}

	p.session = session
	return session, nil
}

func (s *Store) DeleteSessionAndMessages(ctx context.Context, id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.partitions, id)
	s.order = slices.DeleteFunc(s.order, func(x domain.SessionID) bool { return x == id })
	return nil
}

func (s *Store) ListMessages(ctx context.Context, id domain.SessionID) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.partitions[id]
	if !ok {
		return []domain.Message{}, nil
	}
	return slices.Clone(p.messages), nil
}

// InsertMessagePair appends both messages under one lock, so readers see
// either none or both.
func (s *Store) InsertMessagePair(ctx context.Context, prompt, completion domain.Message) error {
	if prompt.SessionID != completion.SessionID {
		return fmt.Errorf("message pair spans partitions %s and %s", prompt.SessionID, completion.SessionID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.partitions[prompt.SessionID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, prompt.SessionID)
	}
	p.messages = append(p.messages, prompt, completion)
	return nil
}
