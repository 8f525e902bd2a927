package pipeline

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/matzehuels/forceview/pkg/cache"
	"github.com/matzehuels/forceview/pkg/graph"
)

// Runner executes the pipeline with caching.
// Both CLI and API use this to avoid duplicating caching logic.
//
// The Runner holds no per-run state, so multiple goroutines can share one
// Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// GraphHash returns the content hash used in cache keys.
func GraphHash(g graph.Graph) (string, error) {
	data, err := graph.MarshalGraph(g)
	if err != nil {
		return "", fmt.Errorf("hash graph: %w", err)
	}
	return cache.Hash(data), nil
}

// SimulateWithCacheInfo simulates g and reports whether the layout came
// from the cache. Runs seeded by Resume or Start bypass the layout cache
// because their result depends on the seed positions.
func (r *Runner) SimulateWithCacheInfo(ctx context.Context, g graph.Graph, opts Options) (*Result, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	m, err := graph.ToBuffers(g, opts.Radius)
	if err != nil {
		return nil, err
	}
	hash, err := GraphHash(g)
	if err != nil {
		return nil, err
	}
	res := &Result{GraphHash: hash}
	key := r.Keyer.LayoutKey(hash, opts.LayoutKeyOpts())

	seeded := opts.Resume || opts.Start != nil
	if !seeded && !opts.Refresh {
		if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
			if cached, err := graph.UnmarshalLayout(data); err == nil {
				res.Layout, res.CacheHit = cached, true
				return res, nil
			}
		} else if err != nil {
			r.Logger.Warn("layout cache unavailable", "error", err)
		}
	}

	var positions []r2.Vec
	if opts.Start != nil {
		if start, ok := opts.Start.Positions(m); ok {
			positions, res.Resumed = start, true
		} else {
			r.Logger.Warn("start layout does not match graph, seeding on a spiral")
		}
	}
	if opts.Resume && positions == nil {
		saved, ok, err := r.LoadState(ctx, g, m)
		if err != nil {
			r.Logger.Warn("could not load saved state", "error", err)
		}
		if ok {
			positions, res.Resumed = saved, true
			r.Logger.Info("resuming from saved positions", "nodes", len(saved))
		}
	}

	l, err := Run(ctx, m, positions, opts)
	if err != nil {
		return nil, err
	}
	res.Layout = l

	switch {
	case opts.Resume:
		if err := r.SaveState(ctx, g, l); err != nil {
			r.Logger.Warn("could not save state", "error", err)
		}
	case !seeded:
		if data, err := graph.MarshalLayout(l); err == nil {
			_ = r.Cache.Set(ctx, key, data, cache.TTLLayout)
		}
	}
	return res, nil
}

// Simulate is a convenience wrapper around SimulateWithCacheInfo.
func (r *Runner) Simulate(ctx context.Context, g graph.Graph, opts Options) (graph.Layout, error) {
	res, err := r.SimulateWithCacheInfo(ctx, g, opts)
	if err != nil {
		return graph.Layout{}, err
	}
	return res.Layout, nil
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
