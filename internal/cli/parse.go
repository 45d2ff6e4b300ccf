package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/txn2/sql-gateway/pkg/dispatch"
	"github.com/txn2/sql-gateway/pkg/engine"
	"github.com/txn2/sql-gateway/pkg/parser"
	"github.com/txn2/sql-gateway/pkg/platform"
	"github.com/txn2/sql-gateway/pkg/registry"
)

// NewParseCommand creates the parse command.
func NewParseCommand(rootOpts *RootOptions) *cobra.Command {
	var dialects []string

	cmd := &cobra.Command{
		Use:   "parse <statement>",
		Short: "Print the canonical operation of a statement without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if len(dialects) > 0 {
				cfg.Parser.Dialects = dialects
			}
			logger, err := platform.NewLogger(cfg.Logging, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			p, err := parser.NewFromNames(cfg.Parser.Dialects, parser.WithLogger(logger))
			if err != nil {
				return err
			}
			// No backends: parsing never dispatches.
			e := engine.New(p, dispatch.New(registry.NewRegistry(), nil), engine.WithLogger(logger))

			parsed, err := e.Parse(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return writeJSON(cmd, parsed)
		},
	}

	cmd.Flags().StringSliceVar(&dialects, "dialect", nil, "dialects to try, in order (repeatable)")
	return cmd
}
