package main

import (
	"github.com/spf13/cobra"

	"github.com/meigma/nxpack"
)

func newRomFSCmd(a *app) *cobra.Command {
	var exclude []string
	cmd := &cobra.Command{
		Use:   "romfs <input-dir> <output.romfs>",
		Short: "Build a RomFS image from a directory tree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			excludeOpt, err := excludeOption(exclude)
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), nxpack.BuildRomFS, args[0], args[1], excludeOpt)
		},
	}
	addExclude(cmd, &exclude)
	return cmd
}
