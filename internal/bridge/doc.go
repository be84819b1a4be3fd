// Package bridge is the engine facade of duo: the only way callers create
// sessions, append exchanges and wait for their counterpart.
//
// Every mutation is a read-modify-write loop around the store's
// compare-and-save. The loop applies a session transition to the newest
// snapshot it knows, tries to save it, and on a version conflict reloads,
// re-validates and retries up to a configured budget. The transition is
// re-checked against the reloaded state, so a submission that raced with
// another one fails with a TransitionError instead of being duplicated.
//
// Waits reload the session at a fixed interval (optionally woken early by a
// store that implements store.Notifier) until the awaited exchange is
// persisted, the session closes without it, or the timeout elapses.
//
// Lifecycle:
//
//	st, _ := store.Open(cfg.Store)
//	b := bridge.New(st, bridge.WithLogger(logger))
//
//	h, _ := b.CreateSession(ctx, "s1", "add retry logic")
//	_ = h.SubmitCode(ctx, bridge.CodeSubmission{Payload: diff, Files: []string{"retry.go"}})
//	review, err := h.WaitForReview(ctx, 10*time.Minute)
//
// A Bridge holds no per-session state and is safe for concurrent use. A
// Handle caches one snapshot and may be shared between goroutines, but two
// processes working on the same session coordinate only through the store.
package bridge
