package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a session identifier is unknown to the cache.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoSessions is the store-level signal that no session exists yet (first run).
	ErrNoSessions = errors.New("no sessions in store")
)
