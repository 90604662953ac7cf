package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bnema/catalogd/internal/app"
	"github.com/bnema/catalogd/internal/domain"
	"github.com/bnema/catalogd/pkg/bytesize"
)

// newHashCmd creates the hash command.
func newHashCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "hash <path>",
		Short: "Compute the digests of a file inside the configured roots",
		Long: `Authorize a path against the configured roots and print its MD5 and
SHA-256 digests. The catalog and the digest cache are not touched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.HashFile(cmd.Context(), configPath, args[0])
			if errors.Is(err, domain.ErrPathDenied) {
				return fmt.Errorf("%s is not a readable file inside the configured roots", args[0])
			}
			if err != nil {
				return err
			}
			printDigests(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	return cmd
}

func printDigests(w io.Writer, r app.FileDigests) {
	label := color.New(color.FgHiBlack).SprintFunc()
	value := color.New(color.FgGreen).SprintFunc()

	fmt.Fprintf(w, "%s  %s (%s)\n", label("file  "), r.Path, bytesize.Format(r.Size))
	fmt.Fprintf(w, "%s  %s\n", label("md5   "), value(r.Digests.MD5))
	fmt.Fprintf(w, "%s  %s\n", label("sha256"), value(r.Digests.SHA256))
}
