package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/txn2/sql-gateway/pkg/engine"
)

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		backendName string
		optionsJSON string
		user        string
	)

	cmd := &cobra.Command{
		Use:   "exec <statement>",
		Short: "Run one statement against a configured backend",
		Long: `Run one statement through the full pipeline and print the response
as JSON. The statement may be split across several arguments.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var options map[string]any
			if optionsJSON != "" {
				if err := json.Unmarshal([]byte(optionsJSON), &options); err != nil {
					return fmt.Errorf("parsing --options: %w", err)
				}
			}
			req := engine.Request{
				Query:   strings.Join(args, " "),
				Backend: backendName,
				Options: options,
				UserID:  user,
			}
			return runExec(cmd.Context(), rootOpts, req, cmd)
		},
	}

	cmd.Flags().StringVarP(&backendName, "backend", "b", "", "backend to run the statement on")
	cmd.Flags().StringVar(&optionsJSON, "options", "", `request options as a JSON object, e.g. '{"timeout":500}'`)
	cmd.Flags().StringVar(&user, "user", "", "user recorded in the audit log")
	_ = cmd.MarkFlagRequired("backend")
	return cmd
}

func runExec(ctx context.Context, opts *RootOptions, req engine.Request, cmd *cobra.Command) (err error) {
	p, err := newPlatform(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if err := p.Start(ctx); err != nil {
		_ = p.Stop(context.Background())
		return err
	}
	defer func() {
		if stopErr := p.Stop(context.WithoutCancel(ctx)); err == nil {
			err = stopErr
		}
	}()

	resp, err := p.Engine().Execute(ctx, req)
	if err != nil {
		return err
	}
	return writeJSON(cmd, resp)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
