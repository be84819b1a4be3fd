// Package cmd implements the duo command line.
package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/duo/internal/config"
	"github.com/Iron-Ham/duo/internal/errors"
)

// NewRootCmd builds the duo command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "duo",
		Short: "Asynchronous two-agent code review",
		Long: `duo coordinates a code review between a submitter agent and a reviewer
agent. Each agent runs as its own short-lived process; sessions are
persisted in a shared store so either side can pick up where the other
left off.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd.Root().PersistentFlags())
		},
	}

	// Global flags
	root.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/duo/config.yaml)")
	root.PersistentFlags().String("store-dir", "", "session store directory (overrides store.dir)")
	root.PersistentFlags().String("backend", "", "session store backend: file, sqlite, mysql, memory (overrides store.backend)")

	registerSessionCmds(root)
	registerExchangeCmds(root)
	registerWaitCmd(root)
	registerAgentsCmd(root)
	registerRunCmd(root)
	registerWatchCmd(root)
	registerConfigCmd(root)
	return root
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func initConfig(flags *pflag.FlagSet) error {
	viper.Reset()

	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	_ = viper.BindPFlag("store.dir", flags.Lookup("store-dir"))
	_ = viper.BindPFlag("store.backend", flags.Lookup("backend"))

	cfgFile, _ := flags.GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/duo")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("DUO")
	// Replace dots with underscores for nested keys in env vars
	// e.g., DUO_COORDINATION_POLL_INTERVAL for coordination.poll_interval
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// A missing default config file is fine; an explicit one must load.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return errors.Wrap(err, "read config")
		}
	}
	return nil
}
