// Package agent runs the external coding agents that act as submitter or
// reviewer in a duo session.
//
// The engine never depends on this package: agents are collaborators of
// the run driver, which turns their opaque output into exchanges. Each
// invocation is a short-lived process that receives the full prompt on
// its command line and returns its final answer on stdout.
package agent

import (
	"context"
	"strings"

	"github.com/Iron-Ham/duo/internal/config"
	"github.com/Iron-Ham/duo/internal/errors"
	"github.com/Iron-Ham/duo/internal/session"
)

// Name identifies a supported agent.
type Name string

const (
	NameClaude Name = "claude"
	NameCodex  Name = "codex"
)

// Invocation describes what the agent is asked to do.
type Invocation struct {
	SessionID string
	Role      session.Role
	Round     int
	// History holds the session's exchanges so far, in append order.
	History []session.Exchange
	// Dir is the working directory of the agent process. Empty means the
	// current directory.
	Dir string
}

// Agent is the capability every agent variant provides.
type Agent interface {
	Name() Name
	// IsAvailable reports whether the agent's executable can be found.
	IsAvailable() bool
	// Invoke runs the agent once and returns its output. Failures are
	// *errors.AgentError values matching ErrAgentUnavailable or
	// ErrAgentInvocation.
	Invoke(ctx context.Context, task string, inv Invocation) (string, error)
}

// New builds the agent configured under name.
func New(name string, cfg config.AgentsConfig) (Agent, error) {
	switch Name(strings.ToLower(name)) {
	case NameClaude:
		return NewClaude(cfg.Claude), nil
	case NameCodex:
		return NewCodex(cfg.Codex), nil
	default:
		return nil, errors.NewValidationError("unknown agent").
			WithField("agent").
			WithValue(name)
	}
}

// ForRole builds the agent configured for role.
func ForRole(role session.Role, cfg config.AgentsConfig) (Agent, error) {
	if role == session.RoleReviewer {
		return New(cfg.Reviewer, cfg)
	}
	return New(cfg.Submitter, cfg)
}
