package pipeline

import (
	"context"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	errs "github.com/matzehuels/forceview/pkg/errors"
	"github.com/matzehuels/forceview/pkg/graph"
	"github.com/matzehuels/forceview/pkg/observability"
	"github.com/matzehuels/forceview/pkg/sim"
)

// Run simulates m without caching. positions seeds the layout; nil starts
// from the spiral. The run stops after opts.Frames frames, once settleness
// drops below opts.SettleThreshold, or when ctx is done.
func Run(ctx context.Context, m *graph.Model, positions []r2.Vec, opts Options) (l graph.Layout, err error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return graph.Layout{}, err
	}
	strategy, err := sim.ParseStrategy(opts.Strategy)
	if err != nil {
		return graph.Layout{}, errs.Wrap(errs.ErrCodeInvalidInput, err, "strategy")
	}

	s, err := sim.New(m.Buffers(positions), opts.Params,
		sim.WithSink(sim.LoggerSink(opts.Logger)),
		sim.WithStrategy(strategy),
		sim.WithSeed(opts.Seed),
	)
	if err != nil {
		return graph.Layout{}, err
	}
	defer s.Close()

	hooks := observability.Simulation()
	hooks.OnRunStart(ctx, s.NodeCount(), s.EdgeCount())
	start := time.Now()
	defer func() {
		hooks.OnRunComplete(ctx, s.Frames(), time.Since(start), err)
	}()

	for f := 0; f < opts.Frames; f++ {
		if err := ctx.Err(); err != nil {
			return graph.Layout{}, errs.Wrap(errs.ErrCodeTimeout, err, "simulation stopped after %d frames", f)
		}
		frameStart := time.Now()
		if _, err := s.AdvanceFrame(r2.Vec{}, sim.NoNode, 1); err != nil {
			return graph.Layout{}, err
		}
		st := s.Stats()
		hooks.OnFrame(ctx, st.Settleness, st.WindowEnd-st.WindowStart, time.Since(frameStart))
		if opts.OnFrame != nil {
			opts.OnFrame(st)
		}
		if st.Settleness < opts.SettleThreshold {
			break
		}
	}

	l = graph.NewLayout(m, s.Positions())
	params := s.Params()
	l.Params = &params
	l.Strategy = strategy.String()
	l.Frames = s.Frames()
	l.Settleness = s.Settleness()

	opts.Logger.Debug("simulation finished",
		"frames", l.Frames,
		"settleness", l.Settleness,
		"duration", time.Since(start))
	return l, nil
}
