package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/Iron-Ham/duo/internal/errors"
	"github.com/Iron-Ham/duo/internal/session"
)

// MemoryStore is a process-local Store. It keeps only the latest version of
// each session and hands out deep copies, so callers can never mutate stored
// state. It also implements Notifier.
type MemoryStore struct {
	opts options

	mu       sync.RWMutex
	sessions map[string]*session.Session
	watchers map[string]map[chan struct{}]struct{}
	closed   bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		opts:     applyOptions(opts),
		sessions: make(map[string]*session.Session),
		watchers: make(map[string]map[chan struct{}]struct{}),
	}
}

// Create implements Store.
func (m *MemoryStore) Create(ctx context.Context, id, task string) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sess, err := session.New(id, task, m.opts.now())
	if err != nil {
		return nil, err
	}
	sess.Version = 1

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if _, ok := m.sessions[id]; ok {
		return nil, alreadyExists(id)
	}
	m.sessions[id] = sess.Clone()
	m.notifyLocked(id)
	return sess, nil
}

// Load implements Store.
func (m *MemoryStore) Load(ctx context.Context, id string) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	sess, ok := m.sessions[id]
	if !ok {
		return nil, notFound(id)
	}
	return sess.Clone(), nil
}

// CompareAndSave implements Store.
func (m *MemoryStore) CompareAndSave(ctx context.Context, sess *session.Session) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkSave(sess); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	current, ok := m.sessions[sess.ID]
	if !ok {
		return nil, notFound(sess.ID)
	}
	if current.Version != sess.Version {
		return nil, errors.NewConflictError(sess.ID, sess.Version, current.Version)
	}

	next := nextVersion(sess, m.opts.now())
	m.sessions[sess.ID] = next.Clone()
	m.notifyLocked(sess.ID)
	return next, nil
}

// Exists implements Store.
func (m *MemoryStore) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.sessions[id]
	return ok, nil
}

// List implements Store.
func (m *MemoryStore) List(ctx context.Context) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]Summary, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess.Summary())
	}
	slices.SortFunc(out, func(a, b Summary) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Watch implements Notifier.
func (m *MemoryStore) Watch(ctx context.Context, id string) (<-chan struct{}, error) {
	m.mu.Lock()
	if _, ok := m.sessions[id]; !ok {
		m.mu.Unlock()
		return nil, notFound(id)
	}
	signal := make(chan struct{}, 1)
	if m.watchers[id] == nil {
		m.watchers[id] = make(map[chan struct{}]struct{})
	}
	m.watchers[id][signal] = struct{}{}
	m.mu.Unlock()

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer func() {
			m.mu.Lock()
			delete(m.watchers[id], signal)
			m.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}

// notifyLocked signals watchers of id. The caller must hold m.mu.
func (m *MemoryStore) notifyLocked(id string) {
	for ch := range m.watchers[id] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
