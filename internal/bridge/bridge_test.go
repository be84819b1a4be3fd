package bridge_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/duo/internal/bridge"
	"github.com/Iron-Ham/duo/internal/errors"
	"github.com/Iron-Ham/duo/internal/session"
	"github.com/Iron-Ham/duo/internal/store"
	"github.com/Iron-Ham/duo/internal/testutil"
)

func TestNew_NilStorePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("New(nil) should panic")
		}
	}()
	bridge.New(nil)
}

func TestBridge_ReviewLoop(t *testing.T) {
	b, _ := testutil.NewBridge(t)
	ctx := context.Background()

	submitter, err := b.CreateSession(ctx, "s1", "add retry logic to the HTTP client")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	reviewer, err := b.LoadSession(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}

	// Round 0: submit, review with changes requested
	if err := submitter.SubmitCode(ctx, bridge.CodeSubmission{Payload: "v1", Files: []string{"client.go"}, Author: "claude"}); err != nil {
		t.Fatalf("SubmitCode(round 0) failed: %v", err)
	}
	code, err := reviewer.WaitForCode(ctx, time.Second)
	if err != nil {
		t.Fatalf("WaitForCode(round 0) failed: %v", err)
	}
	if code.Payload != "v1" || code.Round != 0 {
		t.Errorf("code = %+v, want v1 in round 0", code)
	}
	if err := reviewer.SubmitReview(ctx, bridge.Review{Payload: "add jitter", Verdict: session.VerdictChangesRequested, Author: "codex"}); err != nil {
		t.Fatalf("SubmitReview(round 0) failed: %v", err)
	}

	review, err := submitter.WaitForReview(ctx, time.Second)
	if err != nil {
		t.Fatalf("WaitForReview(round 0) failed: %v", err)
	}
	if review.Verdict != session.VerdictChangesRequested || review.Payload != "add jitter" {
		t.Errorf("review = %+v", review)
	}
	if submitter.CurrentRound() != 1 || submitter.Status() != session.StatusReviewed {
		t.Errorf("submitter sees round %d, %s; want 1, reviewed", submitter.CurrentRound(), submitter.Status())
	}

	// Round 1: submit, approve
	if err := submitter.SubmitCode(ctx, bridge.CodeSubmission{Payload: "v2", Files: []string{"client.go", "client_test.go"}}); err != nil {
		t.Fatalf("SubmitCode(round 1) failed: %v", err)
	}
	code, err = reviewer.WaitForCode(ctx, time.Second)
	if err != nil {
		t.Fatalf("WaitForCode(round 1) failed: %v", err)
	}
	if code.Payload != "v2" || code.Round != 1 {
		t.Errorf("code = %+v, want v2 in round 1", code)
	}
	if err := reviewer.SubmitReview(ctx, bridge.Review{Payload: "lgtm", Verdict: session.VerdictApproved}); err != nil {
		t.Fatalf("SubmitReview(round 1) failed: %v", err)
	}

	review, err = submitter.WaitForReview(ctx, time.Second)
	if err != nil {
		t.Fatalf("WaitForReview(round 1) failed: %v", err)
	}
	if review.Verdict != session.VerdictApproved || review.Round != 1 {
		t.Errorf("review = %+v, want approved in round 1", review)
	}
	if submitter.Status() != session.StatusApproved {
		t.Errorf("Status() = %s, want approved", submitter.Status())
	}

	exchanges := submitter.Exchanges()
	if len(exchanges) != 4 {
		t.Fatalf("got %d exchanges, want 4", len(exchanges))
	}
	wantKinds := []session.Kind{session.KindCodeSubmission, session.KindReview, session.KindCodeSubmission, session.KindReview}
	for i, ex := range exchanges {
		if ex.Kind != wantKinds[i] {
			t.Errorf("exchange[%d].Kind = %s, want %s", i, ex.Kind, wantKinds[i])
		}
	}

	// Closed sessions accept nothing further.
	err = submitter.SubmitCode(ctx, bridge.CodeSubmission{Payload: "v3"})
	if !errors.Is(err, errors.ErrInvalidState) {
		t.Errorf("SubmitCode after approval err = %v, want ErrInvalidState", err)
	}
	if err := reviewer.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if reviewer.Status() != session.StatusApproved {
		t.Errorf("reviewer Status() = %s after refresh", reviewer.Status())
	}
}

func TestBridge_CreateAndLoadErrors(t *testing.T) {
	b, _ := testutil.NewBridge(t)
	ctx := context.Background()

	if _, err := b.CreateSession(ctx, "s1", "task"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"duplicate", func() error { _, err := b.CreateSession(ctx, "s1", "task"); return err }, errors.ErrSessionExists},
		{"invalid id", func() error { _, err := b.CreateSession(ctx, "has space", "task"); return err }, errors.ErrInvalidInput},
		{"empty task", func() error { _, err := b.CreateSession(ctx, "s2", "  "); return err }, errors.ErrInvalidInput},
		{"load missing", func() error { _, err := b.LoadSession(ctx, "missing"); return err }, errors.ErrSessionNotFound},
		{"submit missing", func() error {
			_, err := b.SubmitCode(ctx, "missing", bridge.CodeSubmission{Payload: "x"})
			return err
		}, errors.ErrSessionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBridge_OutOfTurnSubmissions(t *testing.T) {
	b, _ := testutil.NewBridge(t)
	ctx := context.Background()
	if _, err := b.CreateSession(ctx, "s1", "task"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	_, err := b.SubmitReview(ctx, "s1", bridge.Review{Payload: "early", Verdict: session.VerdictApproved})
	if !errors.Is(err, errors.ErrInvalidState) {
		t.Errorf("review before code err = %v, want ErrInvalidState", err)
	}

	if _, err := b.SubmitCode(ctx, "s1", bridge.CodeSubmission{Payload: "v1"}); err != nil {
		t.Fatalf("SubmitCode failed: %v", err)
	}
	_, err = b.SubmitCode(ctx, "s1", bridge.CodeSubmission{Payload: "again"})
	if !errors.Is(err, errors.ErrInvalidState) {
		t.Errorf("second SubmitCode err = %v, want ErrInvalidState", err)
	}
	var transition *errors.TransitionError
	if !errors.As(err, &transition) {
		t.Errorf("err type = %T, want *TransitionError", err)
	}
}

func TestBridge_UnknownVerdictRejectedBeforeStore(t *testing.T) {
	b, st := testutil.NewBridge(t)
	ctx := context.Background()
	if _, err := b.CreateSession(ctx, "s1", "task"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := b.SubmitCode(ctx, "s1", bridge.CodeSubmission{Payload: "v1"}); err != nil {
		t.Fatalf("SubmitCode failed: %v", err)
	}

	_, err := b.SubmitReview(ctx, "s1", bridge.Review{Payload: "hmm", Verdict: "maybe"})
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	sess, _ := st.Load(ctx, "s1")
	if sess.Version != 2 {
		t.Errorf("Version = %d, want 2 (nothing written)", sess.Version)
	}
}

func TestBridge_UsesClock(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b, _ := testutil.NewBridge(t, bridge.WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	if _, err := b.CreateSession(ctx, "s1", "task"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	saved, err := b.SubmitCode(ctx, "s1", bridge.CodeSubmission{Payload: "v1"})
	if err != nil {
		t.Fatalf("SubmitCode failed: %v", err)
	}
	if !saved.Exchanges[0].Timestamp.Equal(fixed) {
		t.Errorf("Timestamp = %v, want %v", saved.Exchanges[0].Timestamp, fixed)
	}
}

func TestBridge_ConflictRetrySucceeds(t *testing.T) {
	mem := store.NewMemoryStore()
	conflicting := testutil.NewConflictStore(mem, 2)
	b := bridge.New(conflicting, bridge.WithPollInterval(testutil.FastPoll))
	ctx := context.Background()

	if _, err := b.CreateSession(ctx, "s1", "task"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	saved, err := b.SubmitCode(ctx, "s1", bridge.CodeSubmission{Payload: "v1"})
	if err != nil {
		t.Fatalf("SubmitCode failed: %v", err)
	}
	if saved.Version != 2 {
		t.Errorf("Version = %d, want 2", saved.Version)
	}
	if conflicting.Calls() != 3 {
		t.Errorf("CompareAndSave calls = %d, want 3", conflicting.Calls())
	}
}

func TestBridge_ConflictRetriesExhausted(t *testing.T) {
	tests := []struct {
		name         string
		retries      int
		wantAttempts int
	}{
		{"no retries", 0, 1},
		{"two retries", 2, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := store.NewMemoryStore()
			conflicting := testutil.NewConflictStore(mem, 100)
			b := bridge.New(conflicting, bridge.WithMaxConflictRetries(tt.retries))
			ctx := context.Background()

			if _, err := b.CreateSession(ctx, "s1", "task"); err != nil {
				t.Fatalf("CreateSession failed: %v", err)
			}
			_, err := b.SubmitCode(ctx, "s1", bridge.CodeSubmission{Payload: "v1"})
			if !errors.Is(err, errors.ErrConcurrentModification) {
				t.Fatalf("err = %v, want ErrConcurrentModification", err)
			}
			var cm *errors.ConcurrentModificationError
			if !errors.As(err, &cm) {
				t.Fatalf("err type = %T", err)
			}
			if cm.Attempts != tt.wantAttempts || cm.Operation != session.OpSubmitCode {
				t.Errorf("Attempts=%d Operation=%q, want %d %q", cm.Attempts, cm.Operation, tt.wantAttempts, session.OpSubmitCode)
			}
			if !errors.Is(err, errors.ErrConflict) {
				t.Error("exhaustion error should wrap the last conflict")
			}
			if conflicting.Calls() != tt.wantAttempts {
				t.Errorf("CompareAndSave calls = %d, want %d", conflicting.Calls(), tt.wantAttempts)
			}

			sess, _ := mem.Load(ctx, "s1")
			if sess.Version != 1 {
				t.Errorf("Version = %d, want 1", sess.Version)
			}
		})
	}
}

func TestHandle_StaleSnapshotReconciles(t *testing.T) {
	b, _ := testutil.NewBridge(t)
	ctx := context.Background()

	submitter, _ := b.CreateSession(ctx, "s1", "task")
	reviewer, _ := b.LoadSession(ctx, "s1")

	if err := submitter.SubmitCode(ctx, bridge.CodeSubmission{Payload: "v1"}); err != nil {
		t.Fatalf("SubmitCode failed: %v", err)
	}

	// The reviewer's snapshot still says "created".
	if err := reviewer.SubmitReview(ctx, bridge.Review{Payload: "ok", Verdict: session.VerdictChangesRequested}); err != nil {
		t.Fatalf("SubmitReview from stale handle failed: %v", err)
	}
	if reviewer.CurrentRound() != 1 || len(reviewer.Exchanges()) != 2 {
		t.Errorf("reviewer sees round %d with %d exchanges", reviewer.CurrentRound(), len(reviewer.Exchanges()))
	}
}

func TestHandle_StaleDuplicateSubmissionFails(t *testing.T) {
	b, _ := testutil.NewBridge(t)
	ctx := context.Background()

	first, _ := b.CreateSession(ctx, "s1", "task")
	second, _ := b.LoadSession(ctx, "s1")

	if err := first.SubmitCode(ctx, bridge.CodeSubmission{Payload: "first"}); err != nil {
		t.Fatalf("SubmitCode failed: %v", err)
	}
	err := second.SubmitCode(ctx, bridge.CodeSubmission{Payload: "second"})
	if !errors.Is(err, errors.ErrInvalidState) {
		t.Fatalf("stale SubmitCode err = %v, want ErrInvalidState", err)
	}
	if err := second.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if got := second.Exchanges()[0].Payload; got != "first" {
		t.Errorf("payload = %q, want first", got)
	}
}

func TestBridge_ConcurrentSubmittersOneWins(t *testing.T) {
	b, st := testutil.NewBridge(t)
	ctx := context.Background()
	if _, err := b.CreateSession(ctx, "s1", "task"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	const submitters = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	start := make(chan struct{})
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := b.SubmitCode(ctx, "s1", bridge.CodeSubmission{Payload: "code"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, errors.ErrInvalidState):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 || rejected != submitters-1 {
		t.Errorf("successes=%d rejected=%d, want 1/%d", successes, rejected, submitters-1)
	}
	sess, _ := st.Load(ctx, "s1")
	if len(sess.Exchanges) != 1 {
		t.Errorf("got %d exchanges, want 1", len(sess.Exchanges))
	}
}

func TestBridge_RacingBridgesOverPrunedFileStore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	open := func() *bridge.Bridge {
		st, err := store.NewFileStore(dir, store.WithKeepVersions(2))
		if err != nil {
			t.Fatalf("NewFileStore failed: %v", err)
		}
		return bridge.New(st, bridge.WithMaxConflictRetries(20))
	}
	if _, err := open().CreateSession(ctx, "s1", "task"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	const (
		bridges     = 6
		perBridge   = 8
		maxAttempts = 200
	)
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded = make(map[string]bool)
		failed    = make(map[string]error)
	)
	for i := 0; i < bridges; i++ {
		b := open()
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for attempt, done := 0, 0; done < perBridge && attempt < maxAttempts; attempt++ {
				payload := fmt.Sprintf("b%d-%d", i, attempt)
				cur, err := b.Store().Load(ctx, "s1")
				if err != nil {
					t.Errorf("Load failed: %v", err)
					return
				}
				if cur.CanSubmitCode() {
					_, err = b.SubmitCode(ctx, "s1", bridge.CodeSubmission{Payload: payload})
				} else {
					_, err = b.SubmitReview(ctx, "s1", bridge.Review{Payload: payload, Verdict: session.VerdictChangesRequested})
				}

				mu.Lock()
				if err == nil {
					succeeded[payload] = true
					done++
				} else {
					failed[payload] = err
				}
				mu.Unlock()
				if err != nil && !errors.Is(err, errors.ErrInvalidState) && !errors.Is(err, errors.ErrConcurrentModification) {
					t.Errorf("unexpected error: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	final, err := open().Store().Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	seen := make(map[string]bool)
	for _, ex := range final.Exchanges {
		if seen[ex.Payload] {
			t.Errorf("payload %q appended twice (round %d %s)", ex.Payload, ex.Round, ex.Kind)
		}
		seen[ex.Payload] = true
		if err, ok := failed[ex.Payload]; ok {
			t.Errorf("payload %q persisted but the caller got: %v", ex.Payload, err)
		}
	}
	if len(seen) != len(succeeded) {
		t.Errorf("%d exchanges persisted, %d submissions succeeded", len(seen), len(succeeded))
	}
}

func TestBridge_ListSessions(t *testing.T) {
	b, _ := testutil.NewBridge(t)
	ctx := context.Background()
	for _, id := range []string{"b", "a"} {
		if _, err := b.CreateSession(ctx, id, "task "+id); err != nil {
			t.Fatalf("CreateSession(%s) failed: %v", id, err)
		}
	}

	list, err := b.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Errorf("ListSessions = %+v", list)
	}
}
