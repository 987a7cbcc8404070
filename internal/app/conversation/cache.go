package conversation

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/PabloGalante/farum-chat/internal/domain"
)

type historyState int

const (
	historyUnloaded historyState = iota
	historyLoaded
)

// History is the cached message sequence of one session. It is either
// unloaded (never fetched) or loaded with every persisted message.
type History struct {
	state    historyState
	messages []domain.Message
}

// LoadedHistory returns a loaded history holding msgs.
func LoadedHistory(msgs []domain.Message) History {
	return History{state: historyLoaded, messages: append([]domain.Message{}, msgs...)}
}

func (h History) Loaded() bool {
	return h.state == historyLoaded
}

// Messages returns a copy of the cached messages. It is nil when unloaded.
func (h History) Messages() []domain.Message {
	if !h.Loaded() {
		return nil
	}
	return append([]domain.Message{}, h.messages...)
}

func (h *History) append(msgs ...domain.Message) {
	h.messages = append(h.messages, msgs...)
}

// entry is one cached session. mu serializes every mutation of the session.
type entry struct {
	mu      sync.Mutex
	history History

	// readable without mu; listings take the session from here
	session atomic.Pointer[domain.Session]
	loaded  atomic.Bool
	removed atomic.Bool
}

func newEntry(session domain.Session, history History) *entry {
	e := &entry{}
	e.setSession(session)
	e.setHistory(history)
	return e
}

// Session returns the current record of the entry.
func (e *entry) Session() domain.Session {
	return *e.session.Load()
}

// setSession publishes a new record. The caller holds e.mu.
func (e *entry) setSession(s domain.Session) {
	e.session.Store(&s)
}

func (e *entry) setHistory(h History) {
	e.history = h
	e.loaded.Store(h.Loaded())
}

// Cache is the in-process view of all sessions. It has no eviction and no
// expiry; it lives as long as the Service that owns it.
type Cache struct {
	mu      sync.RWMutex
	order   []domain.SessionID
	entries map[domain.SessionID]*entry
}

func NewCache() *Cache {
	return &Cache{
		entries: make(map[domain.SessionID]*entry),
	}
}

// Replace swaps the whole content for sessions. Every history becomes unloaded.
func (c *Cache) Replace(sessions []domain.Session) {
	entries := make(map[domain.SessionID]*entry, len(sessions))
	order := make([]domain.SessionID, 0, len(sessions))
	for _, s := range sessions {
		if _, dup := entries[s.ID]; dup {
			continue
		}
		entries[s.ID] = newEntry(s, History{})
		order = append(order, s.ID)
	}

	c.mu.Lock()
	old := c.entries
	c.entries = entries
	c.order = order
	c.mu.Unlock()

	// Operations still holding an old entry must not act on it again.
	for _, e := range old {
		e.removed.Store(true)
	}
}

// Insert adds a session with the given history at the end of the list.
func (c *Cache) Insert(session domain.Session, history History) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[session.ID]; !exists {
		c.order = append(c.order, session.ID)
	}
	c.entries[session.ID] = newEntry(session, history)
}

// Sessions returns the cached sessions in list order.
func (c *Cache) Sessions() []domain.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Session, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id].Session())
	}
	return out
}

// Len reports the number of cached sessions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// lookup returns the entry for id or ErrSessionNotFound.
func (c *Cache) lookup(id domain.SessionID) (*entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return e, nil
}

// acquire looks up id and locks its entry. The caller must unlock e.mu.
func (c *Cache) acquire(id domain.SessionID) (*entry, error) {
	for {
		e, err := c.lookup(id)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		if !e.removed.Load() {
			return e, nil
		}
		// Replaced or deleted while we waited: a removed entry is never
		// reachable from the map again, so the next lookup settles it.
		e.mu.Unlock()
	}
}

// remove drops id from the list. The caller holds e.mu.
func (c *Cache) remove(id domain.SessionID, e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries[id] == e {
		delete(c.entries, id)
		c.order = slices.DeleteFunc(c.order, func(x domain.SessionID) bool { return x == id })
	}
	e.removed.Store(true)
}

// loadedCount reports how many sessions have a loaded history.
func (c *Cache) loadedCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, e := range c.entries {
		if e.loaded.Load() {
			n++
		}
	}
	return n
}
