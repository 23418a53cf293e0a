// Package store defines the SessionStore interface for persisting generated
// sessions and their trial tables.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nvandessel/refback/internal/session"
)

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = errors.New("session not found")

// SessionSummary is a list view of a stored session.
type SessionSummary struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject,omitempty"`
	Seed      uint64    `json:"seed"`
	CreatedAt time.Time `json:"created_at"`
	Blocks    int       `json:"blocks"`
	Trials    int       `json:"trials"`
}

// SessionStore defines the interface for storing and querying sessions.
type SessionStore interface {
	// SaveSession stores a session and all of its blocks. Saving an id
	// that already exists replaces it.
	SaveSession(ctx context.Context, s *session.Session) error

	// GetSession loads a session by id. Returns ErrNotFound for unknown ids.
	GetSession(ctx context.Context, id string) (*session.Session, error)

	// ListSessions returns summaries, newest first. An empty subject
	// matches every session.
	ListSessions(ctx context.Context, subject string) ([]SessionSummary, error)

	// DeleteSession removes a session. Returns ErrNotFound for unknown ids.
	DeleteSession(ctx context.Context, id string) error

	Close() error
}
