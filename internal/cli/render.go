package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/forceview/pkg/graph"
	"github.com/matzehuels/forceview/pkg/pipeline"
)

// renderCommand creates the render command for drawing layouts.
func (c *CLI) renderCommand() *cobra.Command {
	var (
		output     string
		formatsStr string
		noCache    bool
		labels     bool
		directed   bool
		scale      float64
		flags      simFlags
	)

	cmd := &cobra.Command{
		Use:   "render [layout.json|graph.json]",
		Short: "Draw a layout as SVG, PNG, PDF or DOT",
		Long: `Draw a layout with Graphviz, every node pinned at its simulated position.

Given a plain graph, render simulates it first (same flags as simulate).
PNG and PDF output requires rsvg-convert on the PATH.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := c.loadConfig()
			if err != nil {
				return err
			}
			opts := settings.Options()
			flags.apply(cmd.Flags(), &opts)
			if formats := parseFormats(formatsStr); formats != nil {
				opts.Formats = formats
			}
			if err := pipeline.ValidateFormats(opts.Formats); err != nil {
				return err
			}
			if cmd.Flags().Changed("labels") {
				opts.Labels = labels
			}
			if cmd.Flags().Changed("directed") {
				opts.Directed = directed
			}
			if cmd.Flags().Changed("scale") {
				opts.Scale = scale
			}

			runner, err := c.newRunner(cmd.Context(), settings, noCache)
			if err != nil {
				return fmt.Errorf("initialize runner: %w", err)
			}
			defer runner.Close()
			return c.runRender(cmd.Context(), runner, args[0], output, opts)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (single format) or base path (multiple)")
	cmd.Flags().StringVarP(&formatsStr, "format", "f", "", "output format(s): svg (default), png, pdf, dot, json (comma-separated)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&labels, "labels", false, "draw node labels")
	cmd.Flags().BoolVar(&directed, "directed", false, "draw edges as arrows")
	cmd.Flags().Float64Var(&scale, "scale", 1, "drawing scale")
	flags.register(cmd.Flags())
	registerInputCompletions(cmd)

	return cmd
}

// runRender loads a layout, simulating plain graphs first, and renders it.
func (c *CLI) runRender(ctx context.Context, runner *pipeline.Runner, input, output string, opts pipeline.Options) error {
	in, err := pipeline.ReadInput(input, os.Stdin)
	if err != nil {
		return fmt.Errorf("load %s: %w", input, err)
	}

	var layout graph.Layout
	if in.Layout != nil {
		layout = *in.Layout
		c.Logger.Debug("rendering layout", "nodes", len(layout.Nodes), "frames", layout.Frames)
	} else {
		res, err := c.simulateInput(ctx, runner, input, opts)
		if err != nil {
			return err
		}
		layout = res.Layout
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	opts.Logger = c.Logger
	spinner := newSpinner(ctx, "Rendering...")
	spinner.Start()
	artifacts, cacheHit, err := runner.RenderWithCacheInfo(ctx, layout, opts)
	if err != nil {
		spinner.StopWithError("Render failed")
		return fmt.Errorf("render: %w", err)
	}
	spinner.Stop()

	base := basePath(output, input)
	if input == "-" && output == "" {
		base = "graph"
	}
	single := ""
	if len(opts.Formats) == 1 {
		single = output
	}
	return writeArtifacts(artifacts, opts.Formats, base, single, cacheHit)
}

// writeArtifacts writes one file per format named base.<format>. A non-empty
// single path replaces the name when exactly one format was rendered.
func writeArtifacts(artifacts map[string][]byte, formats []string, base, single string, cacheHit bool) error {
	for _, format := range formats {
		out := base + "." + format
		if single != "" && len(formats) == 1 {
			out = single
		}
		if err := os.WriteFile(out, artifacts[format], 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		printFile(out)
	}
	if cacheHit {
		printDetail("Rendered from cache")
	}
	return nil
}
