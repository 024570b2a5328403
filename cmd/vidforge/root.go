package main

import (
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"vidforge/internal/bootstrap"
)

// globalOptions carries persistent flags shared by all subcommands.
type globalOptions struct {
	configPath string
	verbose    bool
}

// buildApp wires the application using the persistent flags.
func (g *globalOptions) buildApp() (*bootstrap.App, error) {
	level := hclog.Warn
	if g.verbose {
		level = hclog.Debug
	}

	return bootstrap.New(bootstrap.Options{
		ConfigPath: g.configPath,
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:  "vidforge",
			Level: level,
		}),
	})
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "vidforge",
		Short:         "Drive background media conversions through the external codec engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "settings file path")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log engine output and debug detail")

	root.AddCommand(
		newConvertCommand(opts),
		newCompositeCommand(opts),
		newDoctorCommand(opts),
	)
	return root
}
