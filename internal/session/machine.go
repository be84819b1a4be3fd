package session

import (
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/duo/internal/errors"
)

// Operation names used in TransitionError.
const (
	OpSubmitCode   = "submit_code"
	OpSubmitReview = "submit_review"
)

// CanSubmitCode reports whether a code submission is valid in the current status.
func (s *Session) CanSubmitCode() bool {
	return s.Status == StatusCreated || s.Status == StatusReviewed
}

// CanSubmitReview reports whether a review is valid in the current status.
func (s *Session) CanSubmitReview() bool {
	return s.Status == StatusAwaitingReview
}

// SubmitCode returns a copy of s with a code submission appended at
// CurrentRound and status StatusAwaitingReview. It fails with a
// TransitionError when a review is pending or the session is terminal.
func (s *Session) SubmitCode(payload string, files []string, author string, now time.Time) (*Session, error) {
	if !s.CanSubmitCode() {
		err := errors.NewTransitionError(OpSubmitCode, string(s.Status)).WithSessionID(s.ID)
		switch {
		case s.Status == StatusAwaitingReview:
			err = err.WithReason("a submission for this round is awaiting review")
		case s.IsTerminal():
			err = err.WithReason("session is closed")
		}
		return nil, err
	}

	normalized, err := NormalizeFiles(files)
	if err != nil {
		return nil, err
	}

	next := s.Clone()
	now = now.UTC()
	next.Exchanges = append(next.Exchanges, Exchange{
		ID:            uuid.NewString(),
		Round:         s.CurrentRound,
		Role:          RoleSubmitter,
		Kind:          KindCodeSubmission,
		Payload:       payload,
		FilesModified: normalized,
		Author:        author,
		Timestamp:     now,
	})
	next.Status = StatusAwaitingReview
	next.UpdatedAt = now
	return next, nil
}

// SubmitReview returns a copy of s with a review appended at CurrentRound.
// A terminal verdict closes the session; any other verdict advances
// CurrentRound by one and sets StatusReviewed.
func (s *Session) SubmitReview(payload string, verdict Verdict, author string, now time.Time) (*Session, error) {
	if !verdict.Valid() {
		return nil, errors.NewValidationError("unknown verdict").WithField("verdict").WithValue(string(verdict))
	}
	if !s.CanSubmitReview() {
		err := errors.NewTransitionError(OpSubmitReview, string(s.Status)).WithSessionID(s.ID)
		switch {
		case s.IsTerminal():
			err = err.WithReason("session is closed")
		default:
			err = err.WithReason("no code submission is awaiting review")
		}
		return nil, err
	}

	next := s.Clone()
	now = now.UTC()
	next.Exchanges = append(next.Exchanges, Exchange{
		ID:        uuid.NewString(),
		Round:     s.CurrentRound,
		Role:      RoleReviewer,
		Kind:      KindReview,
		Payload:   payload,
		Verdict:   verdict,
		Author:    author,
		Timestamp: now,
	})
	next.Status = verdict.Status()
	if !verdict.IsTerminal() {
		next.CurrentRound++
	}
	next.UpdatedAt = now
	return next, nil
}

// NormalizeFiles cleans each path to slash-separated form, drops
// duplicates and sorts the result. Empty entries are rejected.
func NormalizeFiles(files []string) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		trimmed := strings.TrimSpace(f)
		if trimmed == "" {
			return nil, errors.NewValidationError("file path must not be empty").WithField("files_modified")
		}
		out = append(out, path.Clean(strings.ReplaceAll(trimmed, `\`, "/")))
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
