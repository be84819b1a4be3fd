package session

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/duo/internal/errors"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func mustNew(t *testing.T, id, task string) *Session {
	t.Helper()
	s, err := New(id, task, t0)
	if err != nil {
		t.Fatalf("New(%q) failed: %v", id, err)
	}
	return s
}

// -----------------------------------------------------------------------------
// Construction
// -----------------------------------------------------------------------------

func TestNew(t *testing.T) {
	s := mustNew(t, "s1", "add retry logic")

	if s.Status != StatusCreated {
		t.Errorf("Status = %q, want %q", s.Status, StatusCreated)
	}
	if s.CurrentRound != 0 {
		t.Errorf("CurrentRound = %d, want 0", s.CurrentRound)
	}
	if len(s.Exchanges) != 0 {
		t.Errorf("Exchanges = %d, want 0", len(s.Exchanges))
	}
	if s.Version != 0 {
		t.Errorf("Version = %d, want 0 before persistence", s.Version)
	}
	if !s.CreatedAt.Equal(t0) || !s.UpdatedAt.Equal(t0) {
		t.Errorf("timestamps = %v/%v, want %v", s.CreatedAt, s.UpdatedAt, t0)
	}
}

func TestNew_RejectsEmptyTask(t *testing.T) {
	_, err := New("s1", "   ", t0)
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("New with blank task: err = %v, want ErrInvalidInput", err)
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"s1", true},
		{"example_auth", true},
		{"review-1a2b3c4d", true},
		{"a.b-c_d", true},
		{strings.Repeat("x", 128), true},
		{strings.Repeat("x", 129), false},
		{"", false},
		{".hidden", false},
		{"-flag", false},
		{"a/b", false},
		{"..", false},
		{"has space", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateID(tt.id)
			if (err == nil) != tt.valid {
				t.Errorf("ValidateID(%q) = %v, want valid=%v", tt.id, err, tt.valid)
			}
			if err != nil && !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("ValidateID(%q) error should match ErrInvalidInput", tt.id)
			}
		})
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		in      string
		want    Verdict
		wantErr bool
	}{
		{"approved", VerdictApproved, false},
		{"APPROVED", VerdictApproved, false},
		{"changes-requested", VerdictChangesRequested, false},
		{" CHANGES_REQUESTED ", VerdictChangesRequested, false},
		{"needs clarification", VerdictNeedsClarification, false},
		{"rejected", VerdictRejected, false},
		{"lgtm", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVerdict(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseVerdict(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseVerdict(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestVerdict_Status(t *testing.T) {
	tests := []struct {
		verdict  Verdict
		status   Status
		terminal bool
	}{
		{VerdictApproved, StatusApproved, true},
		{VerdictRejected, StatusRejected, true},
		{VerdictChangesRequested, StatusReviewed, false},
		{VerdictNeedsClarification, StatusReviewed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.verdict), func(t *testing.T) {
			if got := tt.verdict.Status(); got != tt.status {
				t.Errorf("Status() = %q, want %q", got, tt.status)
			}
			if got := tt.verdict.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// Transitions
// -----------------------------------------------------------------------------

func TestSubmitCode_FromCreated(t *testing.T) {
	s := mustNew(t, "s1", "task")
	later := t0.Add(time.Minute)

	next, err := s.SubmitCode("diff --git", []string{"b.go", "./a.go", "b.go"}, "claude", later)
	if err != nil {
		t.Fatalf("SubmitCode failed: %v", err)
	}

	if next.Status != StatusAwaitingReview {
		t.Errorf("Status = %q, want %q", next.Status, StatusAwaitingReview)
	}
	if next.CurrentRound != 0 {
		t.Errorf("CurrentRound = %d, want 0", next.CurrentRound)
	}
	if len(next.Exchanges) != 1 {
		t.Fatalf("Exchanges = %d, want 1", len(next.Exchanges))
	}
	ex := next.Exchanges[0]
	if ex.Kind != KindCodeSubmission || ex.Role != RoleSubmitter || ex.Round != 0 {
		t.Errorf("exchange = %+v, want round 0 code submission by submitter", ex)
	}
	if !reflect.DeepEqual(ex.FilesModified, []string{"a.go", "b.go"}) {
		t.Errorf("FilesModified = %v, want [a.go b.go]", ex.FilesModified)
	}
	if ex.ID == "" {
		t.Error("exchange ID should be assigned")
	}
	if ex.Author != "claude" {
		t.Errorf("Author = %q, want claude", ex.Author)
	}
	if !next.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", next.UpdatedAt, later)
	}

	// Receiver is untouched
	if s.Status != StatusCreated || len(s.Exchanges) != 0 {
		t.Error("SubmitCode mutated its receiver")
	}
}

func TestSubmitCode_TwiceFails(t *testing.T) {
	s := mustNew(t, "s1", "task")
	s, err := s.SubmitCode("v1", nil, "", t0)
	if err != nil {
		t.Fatalf("first SubmitCode failed: %v", err)
	}

	_, err = s.SubmitCode("v2", nil, "", t0)
	if !errors.Is(err, errors.ErrInvalidState) {
		t.Fatalf("second SubmitCode err = %v, want ErrInvalidState", err)
	}
	var te *errors.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("error type = %T, want *TransitionError", err)
	}
	if te.Status != string(StatusAwaitingReview) || te.Operation != OpSubmitCode {
		t.Errorf("TransitionError = %+v", te)
	}
}

func TestSubmitReview_RequiresPendingSubmission(t *testing.T) {
	s := mustNew(t, "s1", "task")

	_, err := s.SubmitReview("nothing to review", VerdictApproved, "", t0)
	if !errors.Is(err, errors.ErrInvalidState) {
		t.Errorf("SubmitReview from created: err = %v, want ErrInvalidState", err)
	}
}

func TestSubmitReview_UnknownVerdict(t *testing.T) {
	s := mustNew(t, "s1", "task")
	s, _ = s.SubmitCode("code", nil, "", t0)

	_, err := s.SubmitReview("hmm", Verdict("maybe"), "", t0)
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestSubmitReview_NonTerminalAdvancesRound(t *testing.T) {
	for _, v := range []Verdict{VerdictChangesRequested, VerdictNeedsClarification} {
		t.Run(string(v), func(t *testing.T) {
			s := mustNew(t, "s1", "task")
			s, _ = s.SubmitCode("code", []string{"a.go"}, "", t0)

			next, err := s.SubmitReview("please fix", v, "codex", t0)
			if err != nil {
				t.Fatalf("SubmitReview failed: %v", err)
			}
			if next.Status != StatusReviewed {
				t.Errorf("Status = %q, want %q", next.Status, StatusReviewed)
			}
			if next.CurrentRound != s.CurrentRound+1 {
				t.Errorf("CurrentRound = %d, want %d", next.CurrentRound, s.CurrentRound+1)
			}
			review := next.Exchanges[len(next.Exchanges)-1]
			if review.Round != 0 || review.Verdict != v || review.Kind != KindReview {
				t.Errorf("review = %+v", review)
			}
		})
	}
}

func TestSubmitReview_TerminalBlocksFurtherMutation(t *testing.T) {
	for _, v := range []Verdict{VerdictApproved, VerdictRejected} {
		t.Run(string(v), func(t *testing.T) {
			s := mustNew(t, "s1", "task")
			s, _ = s.SubmitCode("code", nil, "", t0)

			closed, err := s.SubmitReview("final", v, "", t0)
			if err != nil {
				t.Fatalf("SubmitReview failed: %v", err)
			}
			if closed.Status != v.Status() {
				t.Errorf("Status = %q, want %q", closed.Status, v.Status())
			}
			if closed.CurrentRound != 0 {
				t.Errorf("CurrentRound = %d, want 0 (terminal verdicts do not advance)", closed.CurrentRound)
			}

			if _, err := closed.SubmitCode("more", nil, "", t0); !errors.Is(err, errors.ErrInvalidState) {
				t.Errorf("SubmitCode after %s: err = %v, want ErrInvalidState", v, err)
			}
			if _, err := closed.SubmitReview("more", VerdictApproved, "", t0); !errors.Is(err, errors.ErrInvalidState) {
				t.Errorf("SubmitReview after %s: err = %v, want ErrInvalidState", v, err)
			}
		})
	}
}

func TestExchangesAreAppendOnly(t *testing.T) {
	s := mustNew(t, "s1", "task")
	history := []Exchange{}

	steps := []func(*Session) (*Session, error){
		func(s *Session) (*Session, error) { return s.SubmitCode("r0", []string{"a.go"}, "", t0) },
		func(s *Session) (*Session, error) { return s.SubmitReview("fix", VerdictNeedsClarification, "", t0) },
		func(s *Session) (*Session, error) { return s.SubmitCode("r1", []string{"a.go"}, "", t0) },
		func(s *Session) (*Session, error) { return s.SubmitReview("fix", VerdictChangesRequested, "", t0) },
		func(s *Session) (*Session, error) { return s.SubmitCode("r2", nil, "", t0) },
		func(s *Session) (*Session, error) { return s.SubmitReview("ok", VerdictApproved, "", t0) },
	}

	for i, step := range steps {
		next, err := step(s)
		if err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
		if len(next.Exchanges) != len(history)+1 {
			t.Fatalf("step %d: %d exchanges, want %d", i, len(next.Exchanges), len(history)+1)
		}
		if !reflect.DeepEqual(next.Exchanges[:len(history)], history) {
			t.Fatalf("step %d rewrote earlier exchanges", i)
		}
		history = next.Exchanges
		s = next
	}

	if err := s.Validate(); err != nil {
		t.Errorf("final session fails Validate: %v", err)
	}
}

// End-to-end lifecycle of session s1.
func TestLifecycle_S1(t *testing.T) {
	s := mustNew(t, "s1", "add retry logic")

	s, err := s.SubmitCode("def retry(): ...", []string{"a.py"}, "", t0)
	if err != nil {
		t.Fatalf("round 0 SubmitCode: %v", err)
	}
	if s.Status != StatusAwaitingReview || s.CurrentRound != 0 {
		t.Fatalf("after round 0 submit: %s round %d", s.Status, s.CurrentRound)
	}

	s, err = s.SubmitReview("looks risky", VerdictChangesRequested, "", t0)
	if err != nil {
		t.Fatalf("round 0 SubmitReview: %v", err)
	}
	if s.Status != StatusReviewed || s.CurrentRound != 1 {
		t.Fatalf("after round 0 review: %s round %d", s.Status, s.CurrentRound)
	}

	s, err = s.SubmitCode("def retry(backoff): ...", []string{"a.py"}, "", t0)
	if err != nil {
		t.Fatalf("round 1 SubmitCode: %v", err)
	}
	if s.Status != StatusAwaitingReview || s.CurrentRound != 1 {
		t.Fatalf("after round 1 submit: %s round %d", s.Status, s.CurrentRound)
	}

	s, err = s.SubmitReview("ship it", VerdictApproved, "", t0)
	if err != nil {
		t.Fatalf("round 1 SubmitReview: %v", err)
	}
	if s.Status != StatusApproved {
		t.Fatalf("final status = %s, want approved", s.Status)
	}
	if _, err := s.SubmitCode("x", nil, "", t0); !errors.Is(err, errors.ErrInvalidState) {
		t.Errorf("mutation after approval: err = %v, want ErrInvalidState", err)
	}

	if ex, ok := s.FindExchange(1, KindReview); !ok || ex.Verdict != VerdictApproved {
		t.Errorf("FindExchange(1, review) = %+v, %v", ex, ok)
	}
	if _, ok := s.FindExchange(2, KindCodeSubmission); ok {
		t.Error("FindExchange(2, code) should not find anything")
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func TestNormalizeFiles(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    []string
		wantErr bool
	}{
		{name: "nil", in: nil, want: nil},
		{name: "dedupe and sort", in: []string{"z.go", "a.go", "z.go"}, want: []string{"a.go", "z.go"}},
		{name: "clean", in: []string{"./pkg/../pkg/x.go", `win\path.go`}, want: []string{"pkg/x.go", "win/path.go"}},
		{name: "empty entry", in: []string{"a.go", " "}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeFiles(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeFiles error = %v, wantErr %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeFiles = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClone_IsDeep(t *testing.T) {
	s := mustNew(t, "s1", "task")
	s, _ = s.SubmitCode("code", []string{"a.go"}, "", t0)

	c := s.Clone()
	c.Exchanges[0].FilesModified[0] = "changed.go"
	c.Exchanges[0].Payload = "changed"

	if s.Exchanges[0].FilesModified[0] != "a.go" || s.Exchanges[0].Payload != "code" {
		t.Error("Clone shares exchange storage with the original")
	}
	if (*Session)(nil).Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestSummary(t *testing.T) {
	s := mustNew(t, "s1", "task")
	s, _ = s.SubmitCode("code", nil, "", t0)
	s.Version = 2

	sum := s.Summary()
	if sum.ID != "s1" || sum.ExchangeCount != 1 || sum.Version != 2 || sum.Status != StatusAwaitingReview {
		t.Errorf("Summary() = %+v", sum)
	}
}
