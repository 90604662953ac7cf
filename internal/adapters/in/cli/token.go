package cli

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

const generatedTokenBytes = 24

// newTokenCmd creates the token command group.
func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage upload tokens",
	}
	cmd.AddCommand(newTokenHashCmd())
	return cmd
}

func newTokenHashCmd() *cobra.Command {
	var (
		generate bool
		cost     int
	)

	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Hash an upload token for auth.upload_token_hashes",
		Long: `Read an upload token from stdin (or generate one with --generate) and
print the bcrypt hash to add to auth.upload_token_hashes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if generate {
				buf := make([]byte, generatedTokenBytes)
				if _, err := rand.Read(buf); err != nil {
					return fmt.Errorf("failed to generate token: %w", err)
				}
				token = hex.EncodeToString(buf)
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				token = strings.TrimSpace(line)
				if token == "" {
					if err != nil {
						return fmt.Errorf("failed to read token from stdin: %w", err)
					}
					return fmt.Errorf("empty token")
				}
			}

			hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
			if err != nil {
				return fmt.Errorf("failed to hash token: %w", err)
			}

			out := cmd.OutOrStdout()
			if generate {
				fmt.Fprintf(out, "%s %s\n", color.YellowString("token:"), token)
			}
			fmt.Fprintf(out, "%s %s\n", color.GreenString("hash: "), hash)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&generate, "generate", "g", false, "Generate a random token")
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")

	return cmd
}
