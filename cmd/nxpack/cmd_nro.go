package main

import (
	"github.com/spf13/cobra"

	"github.com/meigma/nxpack"
)

func newNROCmd(a *app) *cobra.Command {
	var (
		iconPath  string
		nacpPath  string
		romfsPath string
		exclude   []string
	)
	cmd := &cobra.Command{
		Use:   "nro <input.elf> <output.nro>",
		Short: "Convert an ELF into an NRO, optionally bundling assets",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			excludeOpt, err := excludeOption(exclude)
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), nxpack.BuildNRO, args[0], args[1],
				nxpack.WithIcon(iconPath),
				nxpack.WithNACP(nacpPath),
				nxpack.WithRomFS(romfsPath),
				excludeOpt,
			)
		},
	}
	cmd.Flags().StringVar(&iconPath, "icon-path", "", "256x256 JPEG icon to bundle")
	cmd.Flags().StringVar(&nacpPath, "nacp-path", "", "JSON or TOML description to encode and bundle")
	cmd.Flags().StringVar(&romfsPath, "romfs-path", "", "directory to build into a bundled RomFS")
	addExclude(cmd, &exclude)
	return cmd
}
