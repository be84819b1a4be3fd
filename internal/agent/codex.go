package agent

import (
	"context"
	"strings"

	"github.com/Iron-Ham/duo/internal/config"
)

// Codex runs the Codex CLI non-interactively.
type Codex struct {
	process
	approvalMode string
}

// NewCodex creates a Codex agent from config.
func NewCodex(cfg config.CodexConfig) *Codex {
	command := cfg.Command
	if command == "" {
		command = "codex"
	}
	mode := cfg.ApprovalMode
	if mode == "" {
		mode = "full-auto"
	}
	return &Codex{
		process:      process{name: NameCodex, command: command},
		approvalMode: mode,
	}
}

// Name implements Agent.
func (c *Codex) Name() Name { return NameCodex }

// IsAvailable implements Agent.
func (c *Codex) IsAvailable() bool { return c.available() }

// Invoke implements Agent.
func (c *Codex) Invoke(ctx context.Context, task string, inv Invocation) (string, error) {
	return c.run(ctx, inv.Dir, c.args(), BuildPrompt(task, inv))
}

// args builds the command line; "-" makes codex exec read the prompt from
// stdin.
func (c *Codex) args() []string {
	args := []string{"exec"}
	args = append(args, c.approvalFlags()...)
	return append(args, "-")
}

func (c *Codex) approvalFlags() []string {
	switch strings.ToLower(c.approvalMode) {
	case "bypass":
		return []string{"--dangerously-bypass-approvals-and-sandbox"}
	case "full-auto":
		return []string{"--full-auto"}
	default:
		return nil
	}
}
