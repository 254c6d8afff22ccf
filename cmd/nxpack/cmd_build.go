package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"

	"github.com/meigma/nxpack/manifest"
)

func newBuildCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [manifest]",
		Short: "Build every target listed in a manifest (default " + manifest.DefaultFile + ")",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := manifest.DefaultFile
			if len(args) == 1 {
				path = args[0]
			}
			if a.jobs < 0 {
				return fmt.Errorf("invalid jobs %d", a.jobs)
			}
			m, err := manifest.Load(path)
			if err != nil {
				return err
			}
			err = manifest.Run(cmd.Context(), m,
				manifest.WithLogger(a.logger),
				manifest.WithJobs(a.jobs),
				manifest.WithBuildOptions(a.manifestOptions()...),
			)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "built %d targets\n", len(m.Targets))
			return nil
		},
	}
	cmd.Flags().IntVarP(&a.jobs, "jobs", "j", env.Int(envJobs, 0), "targets to build at once (0 uses the manifest, then the CPU count)")
	return cmd
}
