// Package store persists review sessions.
//
// Every backend implements the same optimistic-concurrency contract:
// CompareAndSave writes a session only if its Version still equals the
// stored version, so writers in unrelated processes never need a shared
// lock. A losing writer gets a *errors.ConflictError and is expected to
// reload, re-apply its transition and try again.
//
// Backends:
//   - FileStore: one directory per session, one immutable file per version
//   - SQLStore: one row per session in SQLite or MySQL
//   - MemoryStore: process-local, for tests and embedding
package store

import (
	"context"
	"time"

	"github.com/Iron-Ham/duo/internal/errors"
	"github.com/Iron-Ham/duo/internal/logging"
	"github.com/Iron-Ham/duo/internal/session"
)

// Store is durable, process-external storage of sessions keyed by ID.
type Store interface {
	// Create persists a new session at version 1. It fails with
	// ErrSessionExists if the ID is taken.
	Create(ctx context.Context, id, task string) (*session.Session, error)

	// Load returns the latest persisted version. It fails with
	// ErrSessionNotFound if the ID is unknown.
	Load(ctx context.Context, id string) (*session.Session, error)

	// CompareAndSave persists s if s.Version equals the stored version and
	// returns a copy carrying the new version. On mismatch it returns a
	// *errors.ConflictError and writes nothing.
	CompareAndSave(ctx context.Context, s *session.Session) (*session.Session, error)

	// Exists reports whether a session with the ID has been persisted.
	Exists(ctx context.Context, id string) (bool, error)

	// List returns a summary of every persisted session, ordered by ID.
	List(ctx context.Context) ([]Summary, error)

	Close() error
}

// Notifier is implemented by stores that can signal that a session may have
// changed. Signals are hints: receivers must still reload.
type Notifier interface {
	// Watch delivers a value on the returned channel after writes to the
	// session. The channel is closed when ctx ends.
	Watch(ctx context.Context, id string) (<-chan struct{}, error)
}

// Summary is the listing view of a session.
type Summary = session.Summary

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Option configures a store.
type Option func(*options)

type options struct {
	logger       *logging.Logger
	now          func() time.Time
	keepVersions int
}

func defaultOptions() options {
	return options{
		logger: logging.NopLogger(),
		now:    time.Now,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger used for conflicts and maintenance messages.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source used for CreatedAt and UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithKeepVersions limits how many versions the file store retains per
// session. 0 keeps every version; other values must be at least 2.
// Row-based stores keep only the latest version and ignore it.
func WithKeepVersions(n int) Option {
	return func(o *options) {
		o.keepVersions = n
	}
}

func notFound(id string) error {
	return errors.NewNotFoundError("session", id).WithCause(errors.ErrSessionNotFound)
}

func alreadyExists(id string) error {
	return errors.NewAlreadyExistsError("session", id).WithCause(errors.ErrSessionExists)
}

// checkSave validates a session before any backend writes it.
func checkSave(s *session.Session) error {
	if s == nil {
		return errors.NewValidationError("session must not be nil")
	}
	if s.Version < 1 {
		return errors.NewValidationError("session has never been persisted").
			WithField("version").
			WithValue(s.Version)
	}
	if err := s.Validate(); err != nil {
		return errors.Wrap(err, "refusing to save")
	}
	return nil
}

// nextVersion returns the value CompareAndSave persists on success.
func nextVersion(s *session.Session, now time.Time) *session.Session {
	next := s.Clone()
	next.Version = s.Version + 1
	next.UpdatedAt = now.UTC()
	return next
}
