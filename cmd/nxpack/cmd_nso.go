package main

import (
	"github.com/spf13/cobra"

	"github.com/meigma/nxpack"
)

func newNSOCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "nso <input.elf> <output.nso>",
		Short: "Convert an ELF into an NSO",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), nxpack.BuildNSO, args[0], args[1])
		},
	}
}
