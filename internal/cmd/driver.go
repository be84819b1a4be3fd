package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/duo/internal/agent"
	"github.com/Iron-Ham/duo/internal/bridge"
	"github.com/Iron-Ham/duo/internal/errors"
	"github.com/Iron-Ham/duo/internal/logging"
	"github.com/Iron-Ham/duo/internal/session"
)

// driver plays one or both roles of a session by invoking agents.
type driver struct {
	bridge    *bridge.Bridge
	submitter agent.Agent
	reviewer  agent.Agent
	maxRounds int
	dir       string
	timeout   time.Duration
	logger    *logging.Logger
}

// run drives h until the session closes, the round limit is reached or an
// error occurs. Both roles run concurrently when both agents are set.
func (d *driver) run(ctx context.Context, h *bridge.Handle) error {
	switch {
	case d.submitter != nil && d.reviewer != nil:
		// Each role needs its own snapshot.
		reviewerHandle, err := d.bridge.LoadSession(ctx, h.ID())
		if err != nil {
			return err
		}
		p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
		p.Go(func(ctx context.Context) error { return d.runSubmitter(ctx, h) })
		p.Go(func(ctx context.Context) error { return d.runReviewer(ctx, reviewerHandle) })
		return p.Wait()
	case d.submitter != nil:
		return d.runSubmitter(ctx, h)
	case d.reviewer != nil:
		return d.runReviewer(ctx, h)
	default:
		return errors.NewValidationError("no role to play")
	}
}

// runSubmitter alternates between producing code and waiting for review.
func (d *driver) runSubmitter(ctx context.Context, h *bridge.Handle) error {
	logger := d.logger.WithSession(h.ID()).WithRole(string(session.RoleSubmitter))
	for {
		if err := h.Refresh(ctx); err != nil {
			return err
		}
		snap := h.Snapshot()
		if snap.IsTerminal() {
			return nil
		}
		if err := d.checkRounds(snap); err != nil {
			return err
		}

		if snap.CanSubmitCode() {
			logger.WithRound(snap.CurrentRound).Info("invoking submitter", "agent", string(d.submitter.Name()))
			out, err := d.submitter.Invoke(ctx, snap.TaskDescription, agent.Invocation{
				SessionID: snap.ID,
				Role:      session.RoleSubmitter,
				Round:     snap.CurrentRound,
				History:   snap.Exchanges,
				Dir:       d.dir,
			})
			if err != nil {
				return err
			}
			err = h.SubmitCode(ctx, bridge.CodeSubmission{
				Payload: out,
				Files:   agent.ParseFiles(out),
				Author:  string(d.submitter.Name()),
			})
			if err != nil {
				return err
			}
		}

		if _, err := h.WaitForReview(ctx, d.timeout); err != nil {
			return err
		}
	}
}

// runReviewer alternates between waiting for code and reviewing it.
func (d *driver) runReviewer(ctx context.Context, h *bridge.Handle) error {
	logger := d.logger.WithSession(h.ID()).WithRole(string(session.RoleReviewer))
	for {
		if err := h.Refresh(ctx); err != nil {
			return err
		}
		snap := h.Snapshot()
		if snap.IsTerminal() {
			return nil
		}
		if err := d.checkRounds(snap); err != nil {
			return err
		}

		if !snap.CanSubmitReview() {
			if _, err := h.WaitForCode(ctx, d.timeout); err != nil {
				return err
			}
			continue
		}

		roundLogger := logger.WithRound(snap.CurrentRound)
		roundLogger.Info("invoking reviewer", "agent", string(d.reviewer.Name()))
		out, err := d.reviewer.Invoke(ctx, snap.TaskDescription, agent.Invocation{
			SessionID: snap.ID,
			Role:      session.RoleReviewer,
			Round:     snap.CurrentRound,
			History:   snap.Exchanges,
			Dir:       d.dir,
		})
		if err != nil {
			return err
		}

		verdict, err := agent.ParseVerdict(out)
		if err != nil {
			// Without a verdict the submitter is asked to clarify.
			roundLogger.Warn("reviewer output has no verdict", "error", err)
			verdict = session.VerdictNeedsClarification
		}
		err = h.SubmitReview(ctx, bridge.Review{
			Payload: out,
			Verdict: verdict,
			Author:  string(d.reviewer.Name()),
		})
		if err != nil {
			return err
		}
	}
}

// checkRounds stops the loop once the round limit is reached.
func (d *driver) checkRounds(snap *session.Session) error {
	if d.maxRounds > 0 && snap.CurrentRound >= d.maxRounds {
		return errors.NewSessionError(fmt.Sprintf("stopped after %d rounds without a final verdict", d.maxRounds), errors.ErrRoundLimit).
			WithSessionID(snap.ID)
	}
	return nil
}
