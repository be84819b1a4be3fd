package event

import (
	"time"

	"github.com/Iron-Ham/duo/internal/session"
)

// Event type identifiers, "category.action".
const (
	TypeSessionCreated   = "session.created"
	TypeExchangeAppended = "exchange.appended"
	TypeStatusChanged    = "session.status_changed"
	TypeConflictRetried  = "session.conflict_retried"
	TypeWaitFinished     = "wait.finished"
)

// Event is the interface that all events implement.
type Event interface {
	EventType() string
	Timestamp() time.Time
}

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// SessionCreatedEvent is published after a session is first persisted.
type SessionCreatedEvent struct {
	baseEvent
	SessionID string
	Task      string
}

// NewSessionCreatedEvent creates a SessionCreatedEvent.
func NewSessionCreatedEvent(sessionID, task string) SessionCreatedEvent {
	return SessionCreatedEvent{
		baseEvent: newBaseEvent(TypeSessionCreated),
		SessionID: sessionID,
		Task:      task,
	}
}

// ExchangeAppendedEvent is published after a code submission or review is
// persisted.
type ExchangeAppendedEvent struct {
	baseEvent
	SessionID  string
	ExchangeID string
	Round      int
	Kind       session.Kind
	Verdict    session.Verdict // empty for code submissions
	Version    int64           // store version that contains the exchange
}

// NewExchangeAppendedEvent creates an ExchangeAppendedEvent.
func NewExchangeAppendedEvent(sessionID string, ex session.Exchange, version int64) ExchangeAppendedEvent {
	return ExchangeAppendedEvent{
		baseEvent:  newBaseEvent(TypeExchangeAppended),
		SessionID:  sessionID,
		ExchangeID: ex.ID,
		Round:      ex.Round,
		Kind:       ex.Kind,
		Verdict:    ex.Verdict,
		Version:    version,
	}
}

// StatusChangedEvent is published when a persisted mutation changes the
// session status.
type StatusChangedEvent struct {
	baseEvent
	SessionID string
	Previous  session.Status
	Current   session.Status
	Round     int
}

// NewStatusChangedEvent creates a StatusChangedEvent.
func NewStatusChangedEvent(sessionID string, previous, current session.Status, round int) StatusChangedEvent {
	return StatusChangedEvent{
		baseEvent: newBaseEvent(TypeStatusChanged),
		SessionID: sessionID,
		Previous:  previous,
		Current:   current,
		Round:     round,
	}
}

// IsTerminal reports whether the session reached a final status.
func (e StatusChangedEvent) IsTerminal() bool {
	return e.Current.IsTerminal()
}

// ConflictRetriedEvent is published when a compare-and-save lost to
// another writer and the operation is about to reload and retry.
type ConflictRetriedEvent struct {
	baseEvent
	SessionID string
	Operation string
	Attempt   int
}

// NewConflictRetriedEvent creates a ConflictRetriedEvent.
func NewConflictRetriedEvent(sessionID, operation string, attempt int) ConflictRetriedEvent {
	return ConflictRetriedEvent{
		baseEvent: newBaseEvent(TypeConflictRetried),
		SessionID: sessionID,
		Operation: operation,
		Attempt:   attempt,
	}
}

// WaitOutcome describes how a wait ended.
type WaitOutcome string

const (
	WaitFound    WaitOutcome = "found"
	WaitTimeout  WaitOutcome = "timeout"
	WaitCanceled WaitOutcome = "canceled"
	WaitError    WaitOutcome = "error"
)

// WaitFinishedEvent is published when a wait for an exchange returns.
type WaitFinishedEvent struct {
	baseEvent
	SessionID string
	Round     int
	Kind      session.Kind
	Outcome   WaitOutcome
	Elapsed   time.Duration
}

// NewWaitFinishedEvent creates a WaitFinishedEvent.
func NewWaitFinishedEvent(sessionID string, round int, kind session.Kind, outcome WaitOutcome, elapsed time.Duration) WaitFinishedEvent {
	return WaitFinishedEvent{
		baseEvent: newBaseEvent(TypeWaitFinished),
		SessionID: sessionID,
		Round:     round,
		Kind:      kind,
		Outcome:   outcome,
		Elapsed:   elapsed,
	}
}
