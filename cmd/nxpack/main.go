// Command nxpack converts ELF executables, directories and metadata
// descriptions into Switch homebrew formats.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	app := newApp()
	root := &cobra.Command{
		Use:           "nxpack",
		Short:         "Build NRO, NSO, PFS0, RomFS and NACP files for Switch homebrew",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup(cmd.ErrOrStderr())
		},
	}
	app.bindFlags(root)

	root.AddCommand(newVersionCmd())
	root.AddCommand(newNROCmd(app))
	root.AddCommand(newNSOCmd(app))
	root.AddCommand(newPFS0Cmd(app))
	root.AddCommand(newNACPCmd(app))
	root.AddCommand(newRomFSCmd(app))
	root.AddCommand(newBuildCmd(app))
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "nxpack", version)
		},
	}
}
