package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/txn2/sql-gateway/pkg/auth"
)

// NewHashKeyCommand creates the hash-key command, which prints the bcrypt
// hash to put in auth.api_keys[].hash.
func NewHashKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Hash an API key for the configuration file",
		Long:  "Hash an API key for auth.api_keys[].hash. The key is read from stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading key: %w", err)
				}
				key = strings.TrimSpace(line)
			}

			hashed, err := auth.HashAPIKey(key)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hashed)
			return err
		},
	}
}
