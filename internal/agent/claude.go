package agent

import (
	"context"

	"github.com/Iron-Ham/duo/internal/config"
)

// Claude runs Claude Code in print mode.
type Claude struct {
	process
	skipPermissions bool
}

// NewClaude creates a Claude agent from config.
func NewClaude(cfg config.ClaudeConfig) *Claude {
	command := cfg.Command
	if command == "" {
		command = "claude"
	}
	return &Claude{
		process:         process{name: NameClaude, command: command},
		skipPermissions: cfg.SkipPermissions,
	}
}

// Name implements Agent.
func (c *Claude) Name() Name { return NameClaude }

// IsAvailable implements Agent.
func (c *Claude) IsAvailable() bool { return c.available() }

// Invoke implements Agent.
func (c *Claude) Invoke(ctx context.Context, task string, inv Invocation) (string, error) {
	return c.run(ctx, inv.Dir, c.args(), BuildPrompt(task, inv))
}

// args builds the command line. In print mode claude reads the prompt
// from stdin when none is given as an argument.
func (c *Claude) args() []string {
	args := []string{"--print"}
	if c.skipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	return args
}
