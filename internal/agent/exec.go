package agent

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/Iron-Ham/duo/internal/errors"
)

// maxStderr bounds how much stderr is kept on an AgentError.
const maxStderr = 2048

// waitDelay bounds how long output pipes are drained after the process is
// killed on cancellation.
const waitDelay = 2 * time.Second

// process runs one agent command line.
type process struct {
	name    Name
	command string
}

func (p process) available() bool {
	_, err := exec.LookPath(p.command)
	return err == nil
}

// run executes the command with args, feeding prompt on stdin. Prompts
// carry the whole review history and would overflow the per-argument
// limit of execve if passed on the command line.
func (p process) run(ctx context.Context, dir string, args []string, prompt string) (string, error) {
	if _, err := exec.LookPath(p.command); err != nil {
		return "", errors.NewAgentError(string(p.name), errors.Join(errors.ErrAgentUnavailable, err)).
			WithDetail(p.command + " not found")
	}

	cmd := exec.CommandContext(ctx, p.command, args...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", errors.Canceled("invoke "+string(p.name), ctxErr)
		}
		agentErr := errors.NewAgentError(string(p.name), errors.Join(errors.ErrAgentInvocation, err)).
			WithDetail("invocation failed").
			WithStderr(tail(stderr.String(), maxStderr))
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			agentErr = agentErr.WithExitCode(exitErr.ExitCode())
		}
		return "", agentErr
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", errors.NewAgentError(string(p.name), errors.ErrAgentInvocation).
			WithDetail("agent produced no output").
			WithExitCode(0).
			WithStderr(tail(stderr.String(), maxStderr))
	}
	return out, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
