package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newDoctorCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Probe engine asset sources and report reachability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.buildApp()
			if err != nil {
				return err
			}

			report := app.Checker.Run(cmd.Context())
			for _, check := range report.Assets {
				if check.Reachable {
					fmt.Fprintf(os.Stdout, "ok    %-7s %s\n", check.Role, check.Source)
					continue
				}
				fmt.Fprintf(os.Stdout, "FAIL  %-7s %s\n", check.Role, check.Detail)
			}

			if !report.Ready {
				return fmt.Errorf("one or more engine assets are unreachable")
			}
			fmt.Fprintln(os.Stdout, "all engine assets reachable")
			return nil
		},
	}
}
