package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/duo/internal/agent"
	"github.com/Iron-Ham/duo/internal/errors"
	"github.com/Iron-Ham/duo/internal/event"
	"github.com/Iron-Ham/duo/internal/session"
	"github.com/Iron-Ham/duo/internal/tui/styles"
)

// Roles accepted by run --role.
const (
	roleSubmitter = "submitter"
	roleReviewer  = "reviewer"
	roleBoth      = "both"
)

// agentFactory builds the agent for a role. Tests replace it.
var agentFactory = agent.ForRole

func registerRunCmd(root *cobra.Command) {
	var (
		role      string
		dir       string
		timeout   time.Duration
		maxRounds int
	)
	cmd := &cobra.Command{
		Use:   "run <id> [task]",
		Short: "Drive a session with the configured agents",
		Long: `Invoke the configured agents until the session is approved or rejected.

As submitter, duo invokes agents.submitter, submits its output and waits for
the review. As reviewer, it waits for code, invokes agents.reviewer and
records the VERDICT line of its answer. Run one role per terminal (or per
machine sharing the store), or both in one process with --role both.

If the session does not exist and a task is given, it is created first.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != roleSubmitter && role != roleReviewer && role != roleBoth {
				return errors.NewValidationError("--role must be submitter, reviewer or both").
					WithField("role").
					WithValue(role)
			}
			return withApp(cmd, func(a *app) error {
				ctx := cmd.Context()
				id := args[0]

				h, err := a.bridge.LoadSession(ctx, id)
				if errors.Is(err, errors.ErrSessionNotFound) && len(args) == 2 {
					h, err = a.bridge.CreateSession(ctx, id, args[1])
				}
				if err != nil {
					return err
				}

				limit := a.cfg.Agents.MaxRounds
				if cmd.Flags().Changed("max-rounds") {
					limit = maxRounds
				}
				d := &driver{
					bridge:    a.bridge,
					maxRounds: limit,
					dir:       dir,
					timeout:   timeout,
					logger:    a.logger,
				}
				if role != roleReviewer {
					if d.submitter, err = readyAgent(session.RoleSubmitter, a); err != nil {
						return err
					}
				}
				if role != roleSubmitter {
					if d.reviewer, err = readyAgent(session.RoleReviewer, a); err != nil {
						return err
					}
				}

				progress := newProgressPrinter(cmd.OutOrStdout())
				a.bus.Subscribe(event.TypeExchangeAppended, progress.handle)
				a.bus.Subscribe(event.TypeStatusChanged, progress.handle)

				fmt.Fprintf(cmd.OutOrStdout(), "Driving %s as %s (round %d, %s)\n", h.ID(), role, h.CurrentRound(), h.Status())
				if err := d.run(ctx, h); err != nil {
					return err
				}
				if err := h.Refresh(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s %s after %d exchanges\n", h.ID(), h.Status(), len(h.Exchanges()))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", roleBoth, "role to play: submitter, reviewer or both")
	cmd.Flags().StringVar(&dir, "dir", "", "working directory for agent processes (default: current directory)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "how long to wait for the other side each round (default coordination.default_timeout)")
	cmd.Flags().IntVar(&maxRounds, "max-rounds", 0, "stop after this many rounds, 0 for no limit (default agents.max_rounds)")
	root.AddCommand(cmd)
}

func readyAgent(role session.Role, a *app) (agent.Agent, error) {
	ag, err := agentFactory(role, a.cfg.Agents)
	if err != nil {
		return nil, err
	}
	if !ag.IsAvailable() {
		return nil, errors.NewAgentError(string(ag.Name()), errors.ErrAgentUnavailable).
			WithDetail(fmt.Sprintf("%s agent %s is not installed", role, ag.Name()))
	}
	return ag, nil
}

// progressPrinter prints one line per event published by the bridge.
type progressPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

func (p *progressPrinter) handle(e event.Event) {
	var line string
	switch e := e.(type) {
	case event.ExchangeAppendedEvent:
		line = fmt.Sprintf("round %d: %s", e.Round, strings.ReplaceAll(string(e.Kind), "_", " "))
		if e.Verdict != "" {
			line += " " + verdictLabel(e.Verdict)
		}
	case event.StatusChangedEvent:
		line = fmt.Sprintf("status: %s -> %s", e.Previous, styles.Badge(string(e.Current)))
	default:
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %s\n", styles.Muted.Render(e.Timestamp().Local().Format(time.TimeOnly)), line)
}

func verdictLabel(v session.Verdict) string {
	return styles.StatusBadge.UnsetPadding().Foreground(styles.VerdictColor(string(v))).Render(strings.ToUpper(string(v)))
}
