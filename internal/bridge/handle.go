package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/duo/internal/errors"
	"github.com/Iron-Ham/duo/internal/session"
)

// Handle is a caller's view of one session. It caches the latest snapshot
// it has seen; mutations start from that snapshot and fall back to the
// store when it turns out to be stale.
type Handle struct {
	bridge *Bridge
	id     string

	mu   sync.RWMutex
	snap *session.Session
}

func newHandle(b *Bridge, sess *session.Session) *Handle {
	return &Handle{bridge: b, id: sess.ID, snap: sess}
}

// ID returns the session ID.
func (h *Handle) ID() string {
	return h.id
}

// Status returns the status of the cached snapshot.
func (h *Handle) Status() session.Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap.Status
}

// CurrentRound returns the round of the cached snapshot.
func (h *Handle) CurrentRound() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap.CurrentRound
}

// Exchanges returns a copy of the cached exchanges in append order.
func (h *Handle) Exchanges() []session.Exchange {
	return h.Snapshot().Exchanges
}

// Snapshot returns a deep copy of the cached session.
func (h *Handle) Snapshot() *session.Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap.Clone()
}

// Refresh reloads the session from the store.
func (h *Handle) Refresh(ctx context.Context) error {
	sess, err := h.bridge.store.Load(ctx, h.id)
	if err != nil {
		return err
	}
	h.update(sess)
	return nil
}

// SubmitCode appends a code submission and updates the snapshot.
func (h *Handle) SubmitCode(ctx context.Context, sub CodeSubmission) error {
	saved, err := h.bridge.submitCode(ctx, h.id, h.Snapshot(), sub)
	if err != nil {
		return err
	}
	h.update(saved)
	return nil
}

// SubmitReview appends a review and updates the snapshot.
func (h *Handle) SubmitReview(ctx context.Context, rev Review) error {
	saved, err := h.bridge.submitReview(ctx, h.id, h.Snapshot(), rev)
	if err != nil {
		return err
	}
	h.update(saved)
	return nil
}

// WaitForReview waits for the review of the most recent code submission in
// the snapshot, then refreshes the snapshot.
func (h *Handle) WaitForReview(ctx context.Context, timeout time.Duration) (*session.Exchange, error) {
	round, ok := h.lastRound(session.KindCodeSubmission)
	if !ok {
		return nil, errors.NewTransitionError("wait_for_review", string(h.Status())).
			WithSessionID(h.id).
			WithReason("no code has been submitted")
	}
	return h.waitAndRefresh(ctx, round, session.KindReview, timeout)
}

// WaitForCode waits for the code submission of the snapshot's current
// round, then refreshes the snapshot.
func (h *Handle) WaitForCode(ctx context.Context, timeout time.Duration) (*session.Exchange, error) {
	return h.waitAndRefresh(ctx, h.CurrentRound(), session.KindCodeSubmission, timeout)
}

func (h *Handle) waitAndRefresh(ctx context.Context, round int, kind session.Kind, timeout time.Duration) (*session.Exchange, error) {
	ex, err := h.bridge.WaitForExchange(ctx, h.id, round, kind, timeout)
	if err != nil {
		return nil, err
	}
	if err := h.Refresh(ctx); err != nil {
		return nil, err
	}
	return ex, nil
}

func (h *Handle) lastRound(kind session.Kind) (int, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for i := len(h.snap.Exchanges) - 1; i >= 0; i-- {
		if h.snap.Exchanges[i].Kind == kind {
			return h.snap.Exchanges[i].Round, true
		}
	}
	return 0, false
}

// update replaces the snapshot unless it would move backwards.
func (h *Handle) update(sess *session.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sess.Version >= h.snap.Version {
		h.snap = sess
	}
}
