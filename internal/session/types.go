// Package session defines the review session data model and the state
// machine that governs how exchanges are appended to it.
//
// A Session is a value: transitions return a new *Session and never modify
// the receiver, so a caller holding a snapshot can always retry an operation
// against a freshly loaded copy. Persistence and version checks belong to
// package store.
package session

import (
	"regexp"
	"strings"
	"time"

	"github.com/Iron-Ham/duo/internal/errors"
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusCreated - no code has been submitted yet
	StatusCreated Status = "created"
	// StatusAwaitingReview - a code submission is pending review
	StatusAwaitingReview Status = "awaiting_review"
	// StatusReviewed - the last round was reviewed and more work was requested
	StatusReviewed Status = "reviewed"
	// StatusApproved - terminal, the reviewer approved the submission
	StatusApproved Status = "approved"
	// StatusRejected - terminal, the reviewer rejected the submission
	StatusRejected Status = "rejected"
)

// IsTerminal reports whether no further exchanges may be appended.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusAwaitingReview, StatusReviewed, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Verdict is the reviewer's disposition for a round.
type Verdict string

const (
	VerdictApproved           Verdict = "approved"
	VerdictChangesRequested   Verdict = "changes_requested"
	VerdictRejected           Verdict = "rejected"
	VerdictNeedsClarification Verdict = "needs_clarification"
)

// Verdicts returns every valid verdict.
func Verdicts() []Verdict {
	return []Verdict{VerdictApproved, VerdictChangesRequested, VerdictRejected, VerdictNeedsClarification}
}

// Valid reports whether v is a known verdict.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictApproved, VerdictChangesRequested, VerdictRejected, VerdictNeedsClarification:
		return true
	}
	return false
}

// IsTerminal reports whether the verdict ends the session.
func (v Verdict) IsTerminal() bool {
	return v == VerdictApproved || v == VerdictRejected
}

// Status returns the status a session moves to after a review with this verdict.
func (v Verdict) Status() Status {
	switch v {
	case VerdictApproved:
		return StatusApproved
	case VerdictRejected:
		return StatusRejected
	default:
		return StatusReviewed
	}
}

// ParseVerdict accepts the canonical lowercase form as well as upper-case
// and hyphenated spellings ("CHANGES_REQUESTED", "changes-requested").
func ParseVerdict(s string) (Verdict, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	v := Verdict(normalized)
	if !v.Valid() {
		return "", errors.NewValidationError("unknown verdict").WithField("verdict").WithValue(s)
	}
	return v, nil
}

// Role identifies which side of the review produced an exchange.
type Role string

const (
	RoleSubmitter Role = "submitter"
	RoleReviewer  Role = "reviewer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleSubmitter || r == RoleReviewer
}

// Kind is the type of contribution an exchange carries.
type Kind string

const (
	KindCodeSubmission Kind = "code_submission"
	KindReview         Kind = "review"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindCodeSubmission || k == KindReview
}

// Role returns the role that produces exchanges of this kind.
func (k Kind) Role() Role {
	if k == KindReview {
		return RoleReviewer
	}
	return RoleSubmitter
}

// Exchange is a single contribution within a round.
type Exchange struct {
	ID    string `json:"id"`
	Round int    `json:"round"`
	Role  Role   `json:"role"`
	Kind  Kind   `json:"kind"`
	// Payload is opaque to the engine: a diff, source text or review prose.
	Payload string `json:"payload"`
	// FilesModified is sorted, deduplicated and slash-separated. Only set on code submissions.
	FilesModified []string `json:"files_modified,omitempty"`
	// Verdict is only set on reviews.
	Verdict Verdict `json:"verdict,omitempty"`
	// Author is the agent that produced the exchange, if known.
	Author    string    `json:"author,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is one durable review conversation between a submitter and a reviewer.
type Session struct {
	ID              string     `json:"session_id"`
	TaskDescription string     `json:"task_description"`
	Status          Status     `json:"status"`
	CurrentRound    int        `json:"current_round"`
	Exchanges       []Exchange `json:"exchanges"`
	// Version is assigned by the store; 0 means never persisted.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary is the listing view of a session.
type Summary struct {
	ID              string    `json:"session_id"`
	TaskDescription string    `json:"task_description"`
	Status          Status    `json:"status"`
	CurrentRound    int       `json:"current_round"`
	ExchangeCount   int       `json:"exchange_count"`
	Version         int64     `json:"version"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// idPattern keeps IDs usable as a single path component and as a primary key.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateID checks that id is a well-formed session identifier.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return errors.NewValidationError("session id must start with a letter or digit and contain only letters, digits, '.', '_' or '-' (max 128)").
			WithField("session_id").
			WithValue(id)
	}
	return nil
}

// New returns an unpersisted session in StatusCreated.
func New(id, task string, now time.Time) (*Session, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if strings.TrimSpace(task) == "" {
		return nil, errors.NewValidationError("task description must not be empty").WithField("task_description")
	}
	now = now.UTC()
	return &Session{
		ID:              id,
		TaskDescription: task,
		Status:          StatusCreated,
		CurrentRound:    0,
		Exchanges:       []Exchange{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Exchanges = make([]Exchange, len(s.Exchanges))
	for i, ex := range s.Exchanges {
		c.Exchanges[i] = ex
		if ex.FilesModified != nil {
			c.Exchanges[i].FilesModified = append([]string(nil), ex.FilesModified...)
		}
	}
	return &c
}

// Summary returns the listing view of s.
func (s *Session) Summary() Summary {
	return Summary{
		ID:              s.ID,
		TaskDescription: s.TaskDescription,
		Status:          s.Status,
		CurrentRound:    s.CurrentRound,
		ExchangeCount:   len(s.Exchanges),
		Version:         s.Version,
		UpdatedAt:       s.UpdatedAt,
	}
}

// FindExchange returns the exchange of kind appended in round, if any.
func (s *Session) FindExchange(round int, kind Kind) (Exchange, bool) {
	for _, ex := range s.Exchanges {
		if ex.Round == round && ex.Kind == kind {
			return ex, true
		}
	}
	return Exchange{}, false
}

// LastExchange returns the most recently appended exchange, if any.
func (s *Session) LastExchange() (Exchange, bool) {
	if len(s.Exchanges) == 0 {
		return Exchange{}, false
	}
	return s.Exchanges[len(s.Exchanges)-1], true
}

// IsTerminal reports whether the session has been approved or rejected.
func (s *Session) IsTerminal() bool {
	return s.Status.IsTerminal()
}
