// Package testutil provides shared fixtures for duo tests.
package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/duo/internal/agent"
	"github.com/Iron-Ham/duo/internal/bridge"
	"github.com/Iron-Ham/duo/internal/errors"
	"github.com/Iron-Ham/duo/internal/session"
	"github.com/Iron-Ham/duo/internal/store"
)

// FastPoll is the poll interval used by test bridges.
const FastPoll = 5 * time.Millisecond

// NewBridge creates a Bridge over a fresh in-memory store with a short
// poll interval. Later options override the defaults.
func NewBridge(t *testing.T, opts ...bridge.Option) (*bridge.Bridge, *store.MemoryStore) {
	t.Helper()

	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })

	all := append([]bridge.Option{
		bridge.WithPollInterval(FastPoll),
		bridge.WithDefaultTimeout(5 * time.Second),
	}, opts...)
	return bridge.New(st, all...), st
}

// ConflictStore wraps a Store and fails the first N CompareAndSave calls
// with a version conflict, as if another writer had won each race.
type ConflictStore struct {
	store.Store

	remaining atomic.Int64
	calls     atomic.Int64
}

// NewConflictStore wraps st so that the next n saves conflict.
func NewConflictStore(st store.Store, n int) *ConflictStore {
	c := &ConflictStore{Store: st}
	c.remaining.Store(int64(n))
	return c
}

// CompareAndSave implements store.Store.
func (c *ConflictStore) CompareAndSave(ctx context.Context, s *session.Session) (*session.Session, error) {
	c.calls.Add(1)
	if c.remaining.Add(-1) >= 0 {
		return nil, errors.NewConflictError(s.ID, s.Version, s.Version+1)
	}
	return c.Store.CompareAndSave(ctx, s)
}

// Calls returns the number of CompareAndSave calls seen so far.
func (c *ConflictStore) Calls() int {
	return int(c.calls.Load())
}

// StubAgent is an agent.Agent that replays scripted responses.
type StubAgent struct {
	AgentName agent.Name
	Available bool

	mu          sync.Mutex
	responses   []string
	err         error
	invocations []agent.Invocation
}

// NewStubAgent returns an available agent that answers with responses in
// order. Once exhausted it repeats the last response.
func NewStubAgent(name agent.Name, responses ...string) *StubAgent {
	return &StubAgent{AgentName: name, Available: true, responses: responses}
}

// FailWith makes every later invocation return err.
func (a *StubAgent) FailWith(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

// Name implements agent.Agent.
func (a *StubAgent) Name() agent.Name { return a.AgentName }

// IsAvailable implements agent.Agent.
func (a *StubAgent) IsAvailable() bool { return a.Available }

// Invoke implements agent.Agent.
func (a *StubAgent) Invoke(ctx context.Context, _ string, inv agent.Invocation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Canceled("invoke stub", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.invocations = append(a.invocations, inv)
	if a.err != nil {
		return "", a.err
	}
	if len(a.responses) == 0 {
		return "", errors.NewAgentError(string(a.AgentName), errors.ErrAgentInvocation).WithDetail("no scripted response")
	}
	resp := a.responses[0]
	if len(a.responses) > 1 {
		a.responses = a.responses[1:]
	}
	return resp, nil
}

// Invocations returns a copy of every invocation seen so far.
func (a *StubAgent) Invocations() []agent.Invocation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]agent.Invocation(nil), a.invocations...)
}
