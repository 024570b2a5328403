package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"vidforge/internal/bootstrap"
	"vidforge/internal/convert"
	"vidforge/internal/domain"
)

func newConvertCommand(g *globalOptions) *cobra.Command {
	var outputPath string
	var autoTrim bool

	cmd := &cobra.Command{
		Use:   "convert <input>",
		Short: "Transcode a recording to MP4",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.buildApp()
			if err != nil {
				return err
			}

			req := convert.Request{
				Kind:                 domain.JobKindTranscode,
				ExperimentalAutoTrim: autoTrim,
			}
			return runJob(cmd.Context(), g, app, args[0], outputPath, req)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path")
	cmd.Flags().BoolVar(&autoTrim, "auto-trim", false, "experimental: trim leading frames before encoding")
	return cmd
}

// runJob executes one conversion or composition end to end: initialize,
// read input, run with progress display, write the artifact.
func runJob(parent context.Context, g *globalOptions, app *bootstrap.App, inputPath, outputPath string, req convert.Request) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer app.Orchestrator.Destroy()

	input, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	req.Input = input

	if err := app.Orchestrator.Initialize(ctx); err != nil {
		return err
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("encoding"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)
	app.Orchestrator.OnProgress(func(percent int, _ float64) {
		_ = bar.Set(percent)
	})
	if g.verbose {
		app.Orchestrator.OnLog(func(message string) {
			fmt.Fprintln(os.Stderr, message)
		})
	}

	// Ctrl-C requests best-effort cancellation; the engine may run on
	// briefly before the session is reclaimed.
	go func() {
		<-ctx.Done()
		app.Orchestrator.Cancel()
	}()

	out, err := app.Orchestrator.Run(ctx, req)
	if err != nil {
		return err
	}
	_ = bar.Finish()

	target := outputPath
	if target == "" {
		base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
		target = filepath.Join(app.Settings.OutputDir, base+".mp4")
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(target, out, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	fmt.Fprintf(os.Stdout, "%s (%d bytes)\n", target, len(out))
	return nil
}
