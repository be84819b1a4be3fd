package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/duo/internal/config"
)

func registerConfigCmd(root *cobra.Command) {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "View duo configuration",
	}

	var format string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			// Validate before printing so bad values are reported.
			if _, err := config.Load(); err != nil {
				return err
			}
			if format == formatText {
				// Show where config is being read from
				if used := viper.ConfigFileUsed(); used != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "# Config file: %s\n", used)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "# Config file: (none - using defaults)")
				}
				format = formatYAML
			}
			return writeStructured(cmd.OutOrStdout(), format, printableSettings(viper.AllSettings()))
		},
	}
	showCmd.Flags().StringVarP(&format, "output", "o", formatText, "output format: text, json, yaml")

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Show the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if used := viper.ConfigFileUsed(); used != "" {
				fmt.Fprintln(cmd.OutOrStdout(), used)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), config.ConfigFile())
			return nil
		},
	}

	configCmd.AddCommand(showCmd, pathCmd)
	root.AddCommand(configCmd)
}

// printableSettings renders durations as strings ("500ms") instead of
// nanosecond counts.
func printableSettings(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch v := v.(type) {
		case map[string]any:
			out[k] = printableSettings(v)
		case time.Duration:
			out[k] = v.String()
		default:
			out[k] = v
		}
	}
	return out
}
