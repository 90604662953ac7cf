// Package cli implements the CLI adapter for catalogd.
// This package provides Cobra commands that delegate to the app layer.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bnema/catalogd/pkg/version"
)

// NewRootCmd creates the root command for the catalogd CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "catalogd",
		Short: "catalogd - file catalog with background content digests",
		Long: `catalogd serves a catalog of game files stored under a fixed set of
directories. It streams downloads, accepts uploads and computes MD5 and
SHA-256 digests in the background, once per file.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newHashCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute runs the CLI with the given build information.
func Execute(v, commit, date string) {
	version.Set(v, commit, date)

	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Get()
			if short {
				cmd.Println(info.Version)
				return
			}
			cmd.Printf("catalogd %s\n", info.Version)
			cmd.Printf("Commit: %s\n", info.Commit)
			cmd.Printf("Build Date: %s\n", info.BuildDate)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Show only version number")

	return cmd
}
