package cmd

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/chacha20poly1305"
)

func newKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Generate COOKIE_HASH_KEY, COOKIE_BLOCK_KEY and SLOTBOT_SECRET_KEY values (base64)",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, k := range []struct {
				env  string
				size int
			}{
				{"COOKIE_HASH_KEY", 32},
				{"COOKIE_BLOCK_KEY", 32},
				{"SLOTBOT_SECRET_KEY", chacha20poly1305.KeySize},
			} {
				b := make([]byte, k.size)
				if _, err := rand.Read(b); err != nil {
					return err
				}
				fmt.Fprintf(out, "export %s=%s\n", k.env, base64.StdEncoding.EncodeToString(b))
			}
			return nil
		},
	}
}
