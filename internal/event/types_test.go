package event

import (
	"testing"
	"time"

	"github.com/Iron-Ham/duo/internal/session"
)

func TestEventTypes(t *testing.T) {
	ex := session.Exchange{
		ID:      "ex-1",
		Round:   2,
		Kind:    session.KindReview,
		Verdict: session.VerdictApproved,
	}

	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"created", NewSessionCreatedEvent("s1", "task"), TypeSessionCreated},
		{"appended", NewExchangeAppendedEvent("s1", ex, 5), TypeExchangeAppended},
		{"status", NewStatusChangedEvent("s1", session.StatusAwaitingReview, session.StatusApproved, 2), TypeStatusChanged},
		{"conflict", NewConflictRetriedEvent("s1", "submit_code", 1), TypeConflictRetried},
		{"wait", NewWaitFinishedEvent("s1", 2, session.KindReview, WaitFound, time.Second), TypeWaitFinished},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.EventType(); got != tt.want {
				t.Errorf("EventType() = %q, want %q", got, tt.want)
			}
			if tt.event.Timestamp().IsZero() {
				t.Error("Timestamp() should be set")
			}
		})
	}
}

func TestExchangeAppendedEvent_CopiesExchange(t *testing.T) {
	ex := session.Exchange{ID: "ex-1", Round: 3, Kind: session.KindReview, Verdict: session.VerdictChangesRequested}
	e := NewExchangeAppendedEvent("s1", ex, 9)

	if e.ExchangeID != "ex-1" || e.Round != 3 || e.Kind != session.KindReview {
		t.Errorf("unexpected event: %+v", e)
	}
	if e.Verdict != session.VerdictChangesRequested || e.Version != 9 {
		t.Errorf("verdict/version = %q/%d", e.Verdict, e.Version)
	}
}

func TestStatusChangedEvent_IsTerminal(t *testing.T) {
	tests := []struct {
		current session.Status
		want    bool
	}{
		{session.StatusAwaitingReview, false},
		{session.StatusReviewed, false},
		{session.StatusApproved, true},
		{session.StatusRejected, true},
	}
	for _, tt := range tests {
		e := NewStatusChangedEvent("s1", session.StatusCreated, tt.current, 0)
		if got := e.IsTerminal(); got != tt.want {
			t.Errorf("IsTerminal() for %s = %v, want %v", tt.current, got, tt.want)
		}
	}
}
