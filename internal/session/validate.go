package session

import (
	"fmt"
	"slices"

	"github.com/Iron-Ham/duo/internal/errors"
)

// Validate checks the structural invariants of a session as read back from
// storage. The error wraps ErrSessionCorrupted.
func (s *Session) Validate() error {
	if err := s.validate(); err != nil {
		return errors.NewSessionError(err.Error(), errors.ErrSessionCorrupted).WithSessionID(s.ID)
	}
	return nil
}

func (s *Session) validate() error {
	if err := ValidateID(s.ID); err != nil {
		return err
	}
	if !s.Status.Valid() {
		return fmt.Errorf("unknown status %q", s.Status)
	}
	if s.CurrentRound < 0 {
		return fmt.Errorf("negative current_round %d", s.CurrentRound)
	}

	// Replay the exchanges through the transition rules.
	status := StatusCreated
	round := 0
	for i, ex := range s.Exchanges {
		if ex.Round != round {
			return fmt.Errorf("exchange %d: round %d, expected %d", i, ex.Round, round)
		}
		if ex.Kind.Role() != ex.Role || !ex.Kind.Valid() {
			return fmt.Errorf("exchange %d: kind %q with role %q", i, ex.Kind, ex.Role)
		}
		switch ex.Kind {
		case KindCodeSubmission:
			if status != StatusCreated && status != StatusReviewed {
				return fmt.Errorf("exchange %d: code submission while %s", i, status)
			}
			if ex.Verdict != "" {
				return fmt.Errorf("exchange %d: code submission carries a verdict", i)
			}
			if !slices.IsSorted(ex.FilesModified) || len(slices.Compact(slices.Clone(ex.FilesModified))) != len(ex.FilesModified) {
				return fmt.Errorf("exchange %d: files_modified not normalized", i)
			}
			status = StatusAwaitingReview
		case KindReview:
			if status != StatusAwaitingReview {
				return fmt.Errorf("exchange %d: review without a pending submission", i)
			}
			if !ex.Verdict.Valid() {
				return fmt.Errorf("exchange %d: unknown verdict %q", i, ex.Verdict)
			}
			if len(ex.FilesModified) > 0 {
				return fmt.Errorf("exchange %d: review lists modified files", i)
			}
			status = ex.Verdict.Status()
			if !ex.Verdict.IsTerminal() {
				round++
			}
		}
	}

	if status != s.Status {
		return fmt.Errorf("status %q does not match exchanges (expected %q)", s.Status, status)
	}
	if round != s.CurrentRound {
		return fmt.Errorf("current_round %d does not match exchanges (expected %d)", s.CurrentRound, round)
	}
	return nil
}
