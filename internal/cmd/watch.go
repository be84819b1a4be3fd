package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/duo/internal/errors"
	"github.com/Iron-Ham/duo/internal/tui"
)

func registerWatchCmd(root *cobra.Command) {
	var files []string
	cmd := &cobra.Command{
		Use:   "watch <id>",
		Short: "Follow a session live in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTerminal(cmd.OutOrStdout()) {
				return errors.NewValidationError("watch needs an interactive terminal; use 'duo wait' or 'duo session show' instead")
			}
			filter, err := compileFileFilter(files)
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app) error {
				if _, err := a.store.Load(cmd.Context(), args[0]); err != nil {
					return err
				}
				return tui.RunWatch(cmd.Context(), a.store, args[0], a.cfg.Coordination.PollInterval, filter)
			})
		},
	}
	cmd.Flags().StringSliceVar(&files, "files", nil, "only list modified files matching these glob patterns")
	root.AddCommand(cmd)
}
