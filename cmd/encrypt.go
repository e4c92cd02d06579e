package cmd

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/slotbot/internal/secrets"
)

func newEncryptCmd() *cobra.Command {
	var key string

	c := &cobra.Command{
		Use:   "encrypt [value]",
		Short: "Seal a credential for the config file (reads stdin when no value is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				return errors.New("no key: pass --key or set SLOTBOT_SECRET_KEY")
			}
			raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(key))
			if err != nil {
				return fmt.Errorf("key: %w", err)
			}
			box, err := secrets.New(raw)
			if err != nil {
				return err
			}

			var value string
			if len(args) == 1 {
				value = args[0]
			} else {
				sc := bufio.NewScanner(cmd.InOrStdin())
				if sc.Scan() {
					value = sc.Text()
				}
				if err := sc.Err(); err != nil {
					return err
				}
			}
			if value == "" {
				return errors.New("nothing to encrypt")
			}

			sealed, err := box.Seal(value)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}

	c.Flags().StringVar(&key, "key", os.Getenv("SLOTBOT_SECRET_KEY"), "base64 secret key")
	return c
}
