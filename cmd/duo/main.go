package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Iron-Ham/duo/internal/cmd"
	"github.com/Iron-Ham/duo/internal/errors"
)

// exitTempFail is EX_TEMPFAIL from sysexits.h.
const exitTempFail = 75

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		report(os.Stderr, err)
		stop()
		os.Exit(exitCode(err))
	}
}

// report prints err for the operator. Errors that were not built for display
// are flagged as unexpected, and retryable ones get a hint to run again.
func report(w io.Writer, err error) {
	if errors.IsUserFacing(err) {
		fmt.Fprintln(w, "Error:", err)
	} else {
		fmt.Fprintln(w, "Unexpected error:", err)
	}
	if errors.IsRetryable(err) {
		fmt.Fprintln(w, "The session may have moved on; running the command again may succeed.")
	}
}

// exitCode maps errors to distinct exit statuses for scripts.
func exitCode(err error) int {
	switch {
	case errors.Is(err, errors.ErrTimeout):
		return 2
	case errors.Is(err, errors.ErrCanceled):
		return 130
	case errors.IsRetryable(err):
		return exitTempFail
	default:
		return 1
	}
}
