// Package cmd is the slotbot command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/slotbot/internal/config"
	"github.com/example/slotbot/internal/log"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

type globalOptions struct {
	configPath string
	logLevel   string
	pretty     bool
}

func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "slotbot",
		Short:         "Polls the DVSA booking portal for driving test slots and reserves them",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("SLOTBOT_CONFIG"), "path to the YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides config)")
	root.PersistentFlags().BoolVar(&opts.pretty, "pretty", false, "human-readable console logs")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newHistoryCmd(opts))
	root.AddCommand(newVersionCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newEncryptCmd())

	return root
}

// setup loads the config and configures logging from it.
func (o *globalOptions) setup(runID string) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	level := o.logLevel
	if level == "" {
		level = cfg.LogLevel
	}
	log.Configure(log.Config{Level: level, Pretty: o.pretty, RunID: runID})
	return cfg, nil
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
