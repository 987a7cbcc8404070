// Package sqlite stores sessions and messages in a local SQLite file.
//
// Two drivers are registered: "sqlite" (modernc.org/sqlite, pure Go) and
// "sqlite3" (github.com/mattn/go-sqlite3, requires cgo).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/PabloGalante/farum-chat/internal/domain"
)

const (
	DriverModernc = "sqlite"
	DriverCGO     = "sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id   TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	session_id TEXT NOT NULL,
	type       TEXT NOT NULL,
	sender     TEXT NOT NULL,
	tokens     INTEGER NOT NULL,
	text       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(session_id) REFERENCES sessions(id)
);

CREATE INDEX IF NOT EXISTS messages_session ON messages(session_id, seq);
`

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path with the given
// driver and applies the schema. An empty driver selects DriverModernc.
func Open(ctx context.Context, driver, path string) (*Store, error) {
	if driver == "" {
		driver = DriverModernc
	}
	if driver != DriverModernc && driver != DriverCGO {
		return nil, fmt.Errorf("unknown sqlite driver %q", driver)
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases whole.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, name FROM sessions WHERE type = ? ORDER BY rowid`, string(domain.KindSession))
	if err != nil {
		return nil, fmt.Errorf("sqlite ListSessions: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		var (
			session domain.Session
			kind    string
		)
		if err := rows.Scan(&session.ID, &kind, &session.Name); err != nil {
			return nil, fmt.Errorf("sqlite ListSessions scan: %w", err)
		}
		session.Kind = domain.RecordKind(kind)
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite ListSessions: %w", err)
	}

	if len(out) == 0 {
		return nil, domain.ErrNoSessions
	}
	return out, nil
}

func (s *Store) InsertSession(ctx context.Context, session domain.Session) (domain.Session, error) {
	session.Kind = domain.KindSession
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, type, name) VALUES (?, ?, ?)`,
		string(session.ID), string(session.Kind), session.Name)
	if err != nil {
		return domain.Session{}, fmt.Errorf("sqlite InsertSession: %w", err)
	}
	return session, nil
}

func (s *Store) UpdateSession(ctx context.Context, session domain.Session) (domain.Session, error) {
	session.Kind = domain.KindSession
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET type = ?, name = ? WHERE id = ?`,
		string(session.Kind), session.Name, string(session.ID))
	if err != nil {
		return domain.Session{}, fmt.Errorf("sqlite UpdateSession: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return domain.Session{}, fmt.Errorf("sqlite UpdateSession: %w", err)
	}
	if n == 0 {
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, session.ID)
	}
	return session, nil
}

// DeleteSessionAndMessages removes the session row and its messages in one
// transaction.
func (s *Store) DeleteSessionAndMessages(ctx context.Context, id domain.SessionID) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, string(id)); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, string(id)); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
}

func (s *Store) ListMessages(ctx context.Context, id domain.SessionID) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, tokens, text, created_at FROM messages
		 WHERE session_id = ? ORDER BY seq`, string(id))
	if err != nil {
		return nil, fmt.Errorf("sqlite ListMessages: %w", err)
	}
	defer rows.Close()

	out := []domain.Message{}
	for rows.Next() {
		var (
			msg       domain.Message
			sender    string
			createdAt int64
		)
		if err := rows.Scan(&msg.ID, &sender, &msg.Tokens, &msg.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite ListMessages scan: %w", err)
		}
		if msg.Sender, err = domain.ParseSender(sender); err != nil {
			return nil, fmt.Errorf("sqlite ListMessages: message %s: %w", msg.ID, err)
		}
		msg.SessionID = id
		msg.Kind = domain.KindMessage
		msg.CreatedAt = time.UnixMicro(createdAt).UTC()
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite ListMessages: %w", err)
	}
	return out, nil
}

// InsertMessagePair inserts prompt then completion in one transaction.
func (s *Store) InsertMessagePair(ctx context.Context, prompt, completion domain.Message) error {
	if prompt.SessionID != completion.SessionID {
		return fmt.Errorf("message pair spans partitions %s and %s", prompt.SessionID, completion.SessionID)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, string(prompt.SessionID)).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, prompt.SessionID)
		}
		if err != nil {
			return err
		}

		for _, msg := range []domain.Message{prompt, completion} {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO messages (id, session_id, type, sender, tokens, text, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				string(msg.ID), string(msg.SessionID), string(domain.KindMessage),
				string(msg.Sender), msg.Tokens, msg.Text, msg.CreatedAt.UnixMicro())
			if err != nil {
				return fmt.Errorf("insert message %s: %w", msg.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("sqlite: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	return nil
}
