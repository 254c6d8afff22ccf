package main

import (
	"github.com/spf13/cobra"

	"github.com/meigma/nxpack"
)

func newNACPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "nacp <input.json|input.toml> <output.nacp>",
		Short: "Encode a JSON or TOML description into a NACP",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), nxpack.BuildNACP, args[0], args[1])
		},
	}
}
