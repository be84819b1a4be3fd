// Package logging provides structured logging for duo.
//
// It wraps Go's log/slog to produce JSON lines carrying persistent context
// (session ID, role, round). Every duo invocation is a short-lived process,
// so logs from many invocations are appended to one file under the store
// directory:
//
//	logger, err := logging.NewLogger(filepath.Join(storeDir, "debug.log"), "info",
//	    logging.RotationConfig{MaxSizeMB: 10, MaxBackups: 3})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	l := logger.WithSession("s1").WithRole("reviewer").WithRound(2)
//	l.Info("review appended", "verdict", "approved")
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"review appended","session_id":"s1","role":"reviewer","round":2,"verdict":"approved"}
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying writer.
package logging
