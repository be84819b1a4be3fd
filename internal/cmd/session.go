package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/duo/internal/session"
)

// generatedIDPrefix prefixes session IDs created without an explicit ID.
const generatedIDPrefix = "review-"

func registerSessionCmds(root *cobra.Command) {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Create and inspect review sessions",
	}
	sessionCmd.AddCommand(newSessionCreateCmd(), newSessionShowCmd(), newSessionListCmd())
	root.AddCommand(sessionCmd)
}

func newSessionCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create [id] <task>",
		Short: "Create a new review session",
		Long: `Create a new review session for a task.

When no ID is given one is generated (review-<8 hex digits>). The session
ID is printed on stdout so scripts can capture it:

  id=$(duo session create "add retry logic to the HTTP client")`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, task := generateSessionID(), args[0]
			if len(args) == 2 {
				id, task = args[0], args[1]
			}
			return withApp(cmd, func(a *app) error {
				h, err := a.bridge.CreateSession(cmd.Context(), id, task)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), h.ID())
				return nil
			})
		},
	}
}

func generateSessionID() string {
	return generatedIDPrefix + uuid.NewString()[:8]
}

func newSessionShowCmd() *cobra.Command {
	var (
		format string
		files  []string
	)
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a session and its exchanges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			filter, err := compileFileFilter(files)
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app) error {
				h, err := a.bridge.LoadSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				sess := h.Snapshot()
				if format == formatText {
					return writeSessionText(cmd.OutOrStdout(), sess, filter)
				}
				return writeStructured(cmd.OutOrStdout(), format, filterSession(sess, filter))
			})
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", formatText, "output format: text, json, yaml")
	cmd.Flags().StringSliceVar(&files, "files", nil, "only list modified files matching these glob patterns")
	return cmd
}

func newSessionListCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions in the store",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			return withApp(cmd, func(a *app) error {
				list, err := a.bridge.ListSessions(cmd.Context())
				if err != nil {
					return err
				}
				if format != formatText {
					if list == nil {
						list = []session.Summary{}
					}
					return writeStructured(cmd.OutOrStdout(), format, list)
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sessions.")
					return nil
				}
				return writeSummaries(cmd.OutOrStdout(), list)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", formatText, "output format: text, json, yaml")
	return cmd
}
