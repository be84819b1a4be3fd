package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/duo/internal/agent"
	"github.com/Iron-Ham/duo/internal/config"
	"github.com/Iron-Ham/duo/internal/session"
)

func registerAgentsCmd(root *cobra.Command) {
	root.AddCommand(&cobra.Command{
		Use:   "agents",
		Short: "Show the configured agents and whether they are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ROLE\tAGENT\tCOMMAND\tAVAILABLE")
			for _, role := range []session.Role{session.RoleSubmitter, session.RoleReviewer} {
				a, err := agent.ForRole(role, cfg.Agents)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", role, a.Name(), agentCommand(a.Name(), cfg.Agents), yesNo(a.IsAvailable()))
			}
			return tw.Flush()
		},
	})
}

func agentCommand(name agent.Name, cfg config.AgentsConfig) string {
	if name == agent.NameCodex {
		return cfg.Codex.Command
	}
	return cfg.Claude.Command
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
