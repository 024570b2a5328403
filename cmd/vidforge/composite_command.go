package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vidforge/internal/convert"
	"vidforge/internal/domain"
)

func newCompositeCommand(g *globalOptions) *cobra.Command {
	var outputPath string
	var backgroundPath string
	var scale string
	var offset string
	var size string

	cmd := &cobra.Command{
		Use:   "composite <video>",
		Short: "Overlay a video onto a background image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.buildApp()
			if err != nil {
				return err
			}

			background, err := os.ReadFile(backgroundPath)
			if err != nil {
				return fmt.Errorf("read background: %w", err)
			}

			req := convert.Request{
				Kind: domain.JobKindComposite,
				Composite: &domain.CompositeOptions{
					Background: background,
					Scale:      scale,
					Offset:     offset,
					OutputSize: size,
				},
			}
			return runJob(cmd.Context(), g, app, args[0], outputPath, req)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path")
	cmd.Flags().StringVarP(&backgroundPath, "background", "b", "", "background image path")
	cmd.Flags().StringVar(&scale, "scale", "480:640", "foreground scale as width:height")
	cmd.Flags().StringVar(&offset, "offset", "0:0", "overlay offset as x:y")
	cmd.Flags().StringVar(&size, "size", "1080:1920", "output size as width:height")
	_ = cmd.MarkFlagRequired("background")
	return cmd
}
