package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ncbot/pkg/config"
	"ncbot/pkg/logging"
)

const serviceName = "ncbot"

var (
	verbose bool
	output  string
)

// NewRootCmd returns the root command for the ncbot CLI
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ncbot",
		Short:         "Recast fresh posts from newly registered Farcaster accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "output format: text|json|yaml")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// newLogger builds the service logger and loads .env into the process.
func newLogger() logging.Logger {
	logger := logging.NewLoggerWithService(serviceName)
	config.LoadEnv(logger)
	logger.SetLevel(config.GetLogLevel())
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}
