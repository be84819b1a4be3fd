package bridge

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Iron-Ham/duo/internal/errors"
	"github.com/Iron-Ham/duo/internal/event"
	"github.com/Iron-Ham/duo/internal/session"
	"github.com/Iron-Ham/duo/internal/store"
	"github.com/Iron-Ham/duo/internal/wait"
)

// WaitForExchange blocks until an exchange of kind is persisted for round,
// and returns it. A non-positive timeout uses the bridge default.
//
// Errors:
//   - *TimeoutError (ErrTimeout) when timeout elapses first.
//   - *TransitionError (ErrInvalidState) as soon as the session is approved
//     or rejected without the exchange, which can then never appear.
//   - ErrCanceled wrapping ctx.Err() when ctx is done.
//   - *ValidationError (ErrInvalidInput) for an unknown kind.
//   - Store errors such as ErrSessionNotFound, unchanged.
func (b *Bridge) WaitForExchange(ctx context.Context, id string, round int, kind session.Kind, timeout time.Duration) (ex *session.Exchange, err error) {
	if !kind.Valid() {
		return nil, errors.NewValidationError("unknown exchange kind").WithField("kind").WithValue(string(kind))
	}
	if timeout <= 0 {
		timeout = b.defaultTimeout
	}

	ctx, span := b.startSpan(ctx, "WaitForExchange", id)
	span.SetAttributes(
		attribute.Int("session.round", round),
		attribute.String("exchange.kind", string(kind)),
	)
	defer func() { endSpan(span, err) }()

	logger := b.logger.WithSession(id).WithRound(round)
	op := fmt.Sprintf("waiting for %s in round %d of session %s", kind, round, id)
	start := time.Now()

	// The watch lives exactly as long as this wait.
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()

	var found session.Exchange
	err = wait.Until(ctx, wait.Options{
		Interval:  b.pollInterval,
		Timeout:   timeout,
		Wake:      b.watchSession(watchCtx, id),
		Operation: op,
	}, func(ctx context.Context) (bool, error) {
		sess, err := b.store.Load(ctx, id)
		if err != nil {
			return false, err
		}
		if got, ok := sess.FindExchange(round, kind); ok {
			found = got
			return true, nil
		}
		if sess.IsTerminal() {
			return false, errors.NewTransitionError("wait_for_"+string(kind), string(sess.Status)).
				WithSessionID(id).
				WithReason(fmt.Sprintf("session closed before a %s for round %d", kind, round))
		}
		return false, nil
	})
	if err != nil && ctx.Err() != nil && !errors.Is(err, errors.ErrCanceled) {
		// The store saw the cancellation first.
		err = errors.Canceled(op, ctx.Err())
	}

	elapsed := time.Since(start)
	outcome := waitOutcome(err)
	b.metrics.ObserveWait(string(outcome), elapsed)
	b.publish(event.NewWaitFinishedEvent(id, round, kind, outcome, elapsed))

	if err != nil {
		logger.Info("wait ended without exchange", "kind", string(kind), "outcome", string(outcome), "elapsed", elapsed, "error", err)
		return nil, err
	}
	logger.Info("wait satisfied", "kind", string(kind), "elapsed", elapsed)
	return &found, nil
}

// WaitForReview waits for the review of round.
func (b *Bridge) WaitForReview(ctx context.Context, id string, round int, timeout time.Duration) (*session.Exchange, error) {
	return b.WaitForExchange(ctx, id, round, session.KindReview, timeout)
}

// WaitForCode waits for the code submission of round.
func (b *Bridge) WaitForCode(ctx context.Context, id string, round int, timeout time.Duration) (*session.Exchange, error) {
	return b.WaitForExchange(ctx, id, round, session.KindCodeSubmission, timeout)
}

// watchSession returns a wake channel when the store can signal changes.
// Failures only cost the early wake-up, so they are logged and ignored.
func (b *Bridge) watchSession(ctx context.Context, id string) <-chan struct{} {
	if !b.watch {
		return nil
	}
	notifier, ok := b.store.(store.Notifier)
	if !ok {
		return nil
	}
	ch, err := notifier.Watch(ctx, id)
	if err != nil {
		b.logger.WithSession(id).Debug("session watch unavailable, polling only", "error", err)
		return nil
	}
	return ch
}

func waitOutcome(err error) event.WaitOutcome {
	switch {
	case err == nil:
		return event.WaitFound
	case errors.Is(err, errors.ErrTimeout):
		return event.WaitTimeout
	case errors.Is(err, errors.ErrCanceled):
		return event.WaitCanceled
	default:
		return event.WaitError
	}
}
