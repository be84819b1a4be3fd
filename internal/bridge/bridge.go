package bridge

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/duo/internal/errors"
	"github.com/Iron-Ham/duo/internal/event"
	"github.com/Iron-Ham/duo/internal/session"
	"github.com/Iron-Ham/duo/internal/store"
)

// CodeSubmission is the submitter's contribution to a round.
type CodeSubmission struct {
	Payload string
	Files   []string
	Author  string
}

// Review is the reviewer's contribution to a round.
type Review struct {
	Payload string
	Verdict session.Verdict
	Author  string
}

// Bridge coordinates sessions held in a Store.
type Bridge struct {
	store store.Store
	settings
}

// New creates a Bridge over st. The store must be non-nil; passing nil
// panics early to surface wiring bugs.
func New(st store.Store, opts ...Option) *Bridge {
	if st == nil {
		panic("bridge: store must not be nil")
	}
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return &Bridge{store: st, settings: s}
}

// Store returns the store the bridge operates on.
func (b *Bridge) Store() store.Store {
	return b.store
}

// CreateSession persists a new session and returns a handle to it.
func (b *Bridge) CreateSession(ctx context.Context, id, task string) (h *Handle, err error) {
	ctx, span := b.startSpan(ctx, "CreateSession", id)
	defer func() { endSpan(span, err) }()

	sess, err := b.store.Create(ctx, id, task)
	if err != nil {
		return nil, err
	}

	b.logger.WithSession(id).Info("session created", "version", sess.Version)
	b.publish(event.NewSessionCreatedEvent(id, task))
	return newHandle(b, sess), nil
}

// LoadSession returns a handle holding the latest persisted snapshot.
func (b *Bridge) LoadSession(ctx context.Context, id string) (h *Handle, err error) {
	ctx, span := b.startSpan(ctx, "LoadSession", id)
	defer func() { endSpan(span, err) }()

	sess, err := b.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("session.round", sess.CurrentRound))
	return newHandle(b, sess), nil
}

// ListSessions returns a summary of every session in the store.
func (b *Bridge) ListSessions(ctx context.Context) ([]store.Summary, error) {
	return b.store.List(ctx)
}

// SubmitCode appends a code submission to the latest version of the
// session.
func (b *Bridge) SubmitCode(ctx context.Context, id string, sub CodeSubmission) (*session.Session, error) {
	return b.submitCode(ctx, id, nil, sub)
}

// SubmitReview appends a review to the latest version of the session.
func (b *Bridge) SubmitReview(ctx context.Context, id string, rev Review) (*session.Session, error) {
	return b.submitReview(ctx, id, nil, rev)
}

func (b *Bridge) submitCode(ctx context.Context, id string, base *session.Session, sub CodeSubmission) (saved *session.Session, err error) {
	ctx, span := b.startSpan(ctx, "SubmitCode", id)
	defer func() { endSpan(span, err) }()

	saved, err = b.mutate(ctx, id, base, session.OpSubmitCode, func(cur *session.Session) (*session.Session, error) {
		return cur.SubmitCode(sub.Payload, sub.Files, sub.Author, b.now())
	})
	if saved != nil {
		span.SetAttributes(attribute.Int("session.round", saved.CurrentRound))
	}
	return saved, err
}

func (b *Bridge) submitReview(ctx context.Context, id string, base *session.Session, rev Review) (saved *session.Session, err error) {
	ctx, span := b.startSpan(ctx, "SubmitReview", id)
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("review.verdict", string(rev.Verdict)))

	// Reject unknown verdicts before touching the store.
	if !rev.Verdict.Valid() {
		return nil, errors.NewValidationError("unknown verdict").WithField("verdict").WithValue(string(rev.Verdict))
	}

	saved, err = b.mutate(ctx, id, base, session.OpSubmitReview, func(cur *session.Session) (*session.Session, error) {
		return cur.SubmitReview(rev.Payload, rev.Verdict, rev.Author, b.now())
	})
	if saved != nil {
		span.SetAttributes(attribute.Int("session.round", saved.CurrentRound))
	}
	return saved, err
}

// mutate runs the compare-and-save loop. It starts from base when given,
// otherwise from a fresh load, and reloads after every conflict.
func (b *Bridge) mutate(
	ctx context.Context,
	id string,
	base *session.Session,
	op string,
	apply func(*session.Session) (*session.Session, error),
) (*session.Session, error) {
	logger := b.logger.WithSession(id)
	cur := base

	for attempt := 1; ; attempt++ {
		if cur == nil {
			loaded, err := b.store.Load(ctx, id)
			if err != nil {
				return nil, err
			}
			cur = loaded
		}

		next, err := apply(cur)
		if err != nil {
			// A cached snapshot may be behind the store; judge the
			// transition against persisted state before failing.
			if cur == base && errors.Is(err, errors.ErrInvalidState) {
				cur, base = nil, nil
				attempt--
				continue
			}
			return nil, err
		}

		saved, err := b.store.CompareAndSave(ctx, next)
		if err == nil {
			b.recordMutation(cur, saved)
			return saved, nil
		}
		if !errors.Is(err, errors.ErrConflict) {
			return nil, err
		}

		b.metrics.RecordConflict(op)
		if attempt > b.maxRetries {
			b.metrics.RecordConflictsExhausted(op)
			logger.Error("conflict retries exhausted", "operation", op, "attempts", attempt)
			return nil, errors.NewConcurrentModificationError(id, op, attempt, err)
		}

		logger.Warn("version conflict, reloading", "operation", op, "attempt", attempt, "error", err)
		b.publish(event.NewConflictRetriedEvent(id, op, attempt))
		cur = nil
	}
}

// recordMutation logs, counts and publishes a persisted transition.
func (b *Bridge) recordMutation(prev, saved *session.Session) {
	ex, ok := saved.LastExchange()
	if !ok {
		return
	}
	b.logger.WithSession(saved.ID).WithRound(ex.Round).Info("exchange appended",
		"kind", string(ex.Kind),
		"verdict", string(ex.Verdict),
		"status", string(saved.Status),
		"version", saved.Version,
	)
	b.metrics.RecordExchange(string(ex.Kind))
	b.publish(event.NewExchangeAppendedEvent(saved.ID, ex, saved.Version))
	if prev.Status != saved.Status {
		b.publish(event.NewStatusChangedEvent(saved.ID, prev.Status, saved.Status, saved.CurrentRound))
	}
}

func (b *Bridge) publish(e event.Event) {
	if b.bus != nil {
		b.bus.Publish(e)
	}
}

func (b *Bridge) startSpan(ctx context.Context, op, id string) (context.Context, trace.Span) {
	return b.tracer.Start(ctx, "bridge."+op, trace.WithAttributes(attribute.String("session.id", id)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
