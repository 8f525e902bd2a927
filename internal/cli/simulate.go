package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/matzehuels/forceview/pkg/graph"
	"github.com/matzehuels/forceview/pkg/pipeline"
	"github.com/matzehuels/forceview/pkg/sim"
)

// simFlags are the simulation flags shared by simulate, render and watch.
// They override config file values only when set on the command line.
type simFlags struct {
	params   sim.Params
	strategy string
	frames   int
	settle   float64
	seed     uint64
}

func (f *simFlags) register(fs *pflag.FlagSet) {
	d := sim.DefaultParams()
	fs.Float64Var(&f.params.Dt, "dt", d.Dt, "integration step")
	fs.Float64Var(&f.params.Attraction, "attraction", d.Attraction, "spring strength")
	fs.Float64Var(&f.params.LinkLength, "link-length", d.LinkLength, "resting gap between linked nodes")
	fs.Float64Var(&f.params.Repulsion, "repulsion", d.Repulsion, "repulsion strength")
	fs.Float64Var(&f.params.Central, "central", d.Central, "pull toward the origin")
	fs.Float64Var(&f.params.BatchFraction, "batch-fraction", d.BatchFraction, "fraction of nodes repelled per frame")
	fs.StringVar(&f.strategy, "strategy", sim.Pairwise.String(), "repulsion strategy: pairwise, grid")
	fs.IntVar(&f.frames, "frames", pipeline.DefaultFrames, "frame budget")
	fs.Float64Var(&f.settle, "settle", pipeline.DefaultSettleThreshold, "stop once settleness drops below this")
	fs.Uint64Var(&f.seed, "seed", pipeline.DefaultSeed, "random seed")
}

// apply copies every flag set on the command line into opts.
func (f *simFlags) apply(fs *pflag.FlagSet, opts *pipeline.Options) {
	set := func(name string, fn func()) {
		if fs.Changed(name) {
			fn()
		}
	}
	set("dt", func() { opts.Params.Dt = f.params.Dt })
	set("attraction", func() { opts.Params.Attraction = f.params.Attraction })
	set("link-length", func() { opts.Params.LinkLength = f.params.LinkLength })
	set("repulsion", func() { opts.Params.Repulsion = f.params.Repulsion })
	set("central", func() { opts.Params.Central = f.params.Central })
	set("batch-fraction", func() { opts.Params.BatchFraction = f.params.BatchFraction })
	set("strategy", func() { opts.Strategy = f.strategy })
	set("frames", func() { opts.Frames = f.frames })
	set("settle", func() { opts.SettleThreshold = f.settle })
	set("seed", func() { opts.Seed = f.seed })
}

// simulateCommand creates the simulate command for computing settled layouts.
func (c *CLI) simulateCommand() *cobra.Command {
	var (
		output     string
		formatsStr string
		noCache    bool
		refresh    bool
		resume     bool
		flags      simFlags
	)

	cmd := &cobra.Command{
		Use:   "simulate [graph.json]",
		Short: "Run the force simulation until the layout settles",
		Long: `Run the force simulation headless until the layout settles or the frame
budget is spent, and write the positioned graph as <input>.layout.json.

A layout file may be given instead of a graph to continue from its positions.
With --resume, positions saved by the previous resumed run of the same graph
are loaded first and saved again afterwards.

Results are cached locally for faster subsequent runs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := c.loadConfig()
			if err != nil {
				return err
			}
			opts := settings.Options()
			flags.apply(cmd.Flags(), &opts)
			opts.Resume = resume
			opts.Refresh = refresh
			if formats := parseFormats(formatsStr); formats != nil {
				if err := pipeline.ValidateFormats(formats); err != nil {
					return err
				}
				opts.Formats = formats
			} else {
				opts.Formats = nil
			}

			runner, err := c.newRunner(cmd.Context(), settings, noCache)
			if err != nil {
				return fmt.Errorf("initialize runner: %w", err)
			}
			defer runner.Close()
			return c.runSimulate(cmd.Context(), runner, args[0], output, opts)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: <input>.layout.json)")
	cmd.Flags().StringVarP(&formatsStr, "format", "f", "", "also render: svg, png, pdf, dot (comma-separated)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore cached layouts")
	cmd.Flags().BoolVar(&resume, "resume", false, "start from and save positions of earlier runs")
	flags.register(cmd.Flags())
	registerInputCompletions(cmd)

	return cmd
}

// simulateInput reads input and runs the simulation with a live spinner.
func (c *CLI) simulateInput(ctx context.Context, runner *pipeline.Runner, input string, opts pipeline.Options) (*pipeline.Result, error) {
	in, err := pipeline.ReadInput(input, os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", input, err)
	}
	opts.Start = in.Layout
	opts.Logger = c.Logger

	spinner := newSpinner(ctx, fmt.Sprintf("Simulating %d nodes...", len(in.Graph.Nodes)))
	opts.OnFrame = func(st sim.FrameStats) {
		if st.Frame%10 == 0 {
			spinner.SetMessage("Simulating · frame %d · settleness %.3f", st.Frame, st.Settleness)
		}
	}
	spinner.Start()

	prog := newProgress(c.Logger)
	res, err := runner.SimulateWithCacheInfo(ctx, in.Graph, opts)
	if err != nil {
		spinner.StopWithError("Simulation failed")
		return nil, fmt.Errorf("simulate: %w", err)
	}
	spinner.Stop()
	prog.done("simulated", "frames", res.Layout.Frames, "settleness", res.Layout.Settleness, "cached", res.CacheHit)
	return res, nil
}

// runSimulate simulates input and writes the layout plus any requested renders.
func (c *CLI) runSimulate(ctx context.Context, runner *pipeline.Runner, input, output string, opts pipeline.Options) error {
	res, err := c.simulateInput(ctx, runner, input, opts)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	outputPath := output
	if outputPath == "" {
		if input == "-" {
			return fmt.Errorf("--output is required when reading stdin")
		}
		outputPath = basePath("", input) + ".layout.json"
	}
	if err := graph.WriteLayoutFile(res.Layout, outputPath); err != nil {
		return fmt.Errorf("write output %s: %w", outputPath, err)
	}

	printSuccess("Layout complete")
	printFile(outputPath)
	printStats(layoutStats{
		nodes:      len(res.Layout.Nodes),
		edges:      len(res.Layout.Edges),
		frames:     res.Layout.Frames,
		settleness: res.Layout.Settleness,
		cached:     res.CacheHit,
		resumed:    res.Resumed,
	})

	if len(opts.Formats) > 0 {
		artifacts, cacheHit, err := runner.RenderWithCacheInfo(ctx, res.Layout, opts)
		if err != nil {
			return fmt.Errorf("render: %w", err)
		}
		return writeArtifacts(artifacts, opts.Formats, basePath("", outputPath), "", cacheHit)
	}

	printNewline()
	printNextStep("Render", appName+" render "+outputPath)
	return nil
}
