// Package cli implements the sql-gateway command line.
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/txn2/sql-gateway/internal/server"
	"github.com/txn2/sql-gateway/pkg/platform"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
}

// NewRootCommand creates the root command for the gateway CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "sql-gateway",
		Short:         "Run SQL statements against heterogeneous backends",
		Long:          "sql-gateway parses SQL-like statements into canonical operations and dispatches them to relational, key-value, pub/sub and ledger backends.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to configuration file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override logging.level")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))
	cmd.AddCommand(NewParseCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewHashKeyCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// loadConfig reads the configured file, or the defaults when no path was
// given, and validates it.
func loadConfig(opts *RootOptions) (*platform.Config, error) {
	var (
		cfg *platform.Config
		err error
	)
	if opts.ConfigPath == "" {
		cfg, err = platform.ParseConfig([]byte("{}"))
	} else {
		cfg, err = platform.LoadConfig(opts.ConfigPath)
	}
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newPlatform loads config and builds a platform logging to w.
func newPlatform(opts *RootOptions, w io.Writer) (*platform.Platform, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger, err := platform.NewLogger(cfg.Logging, w)
	if err != nil {
		return nil, err
	}
	return platform.New(platform.WithConfig(cfg), platform.WithLogger(logger))
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "sql-gateway version %s\n", server.Version)
			return err
		},
	}
}
