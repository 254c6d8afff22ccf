package main

import (
	"github.com/spf13/cobra"

	"github.com/meigma/nxpack"
)

func newPFS0Cmd(a *app) *cobra.Command {
	var exclude []string
	cmd := &cobra.Command{
		Use:     "pfs0 <input-dir> <output.pfs0>",
		Aliases: []string{"nsp"},
		Short:   "Pack the files of a directory into a PFS0 archive",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			excludeOpt, err := excludeOption(exclude)
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), nxpack.BuildPFS0, args[0], args[1], excludeOpt)
		},
	}
	addExclude(cmd, &exclude)
	return cmd
}
