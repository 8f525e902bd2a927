package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/matzehuels/forceview/pkg/cache"
	"github.com/matzehuels/forceview/pkg/graph"
	"github.com/matzehuels/forceview/pkg/observability"
	"github.com/matzehuels/forceview/pkg/render/nodelink"
)

// RenderWithCacheInfo renders l in every requested format and reports
// whether all of them came from the cache.
func (r *Runner) RenderWithCacheInfo(ctx context.Context, l graph.Layout, opts Options) (map[string][]byte, bool, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateForRender(); err != nil {
		return nil, false, err
	}

	layoutData, err := graph.MarshalLayout(l)
	if err != nil {
		return nil, false, fmt.Errorf("serialize layout for cache key: %w", err)
	}
	layoutHash := cache.Hash(layoutData)

	artifacts := make(map[string][]byte, len(opts.Formats))
	allCached := true
	for _, format := range opts.Formats {
		key := r.Keyer.ArtifactKey(layoutHash, opts.ArtifactKeyOpts(format))
		if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
			artifacts[format] = data
			continue
		}
		allCached = false

		data, err := renderFormat(ctx, l, format, opts)
		if err != nil {
			return nil, false, err
		}
		artifacts[format] = data
		_ = r.Cache.Set(ctx, key, data, cache.TTLArtifact)
	}
	return artifacts, allCached, nil
}

// Render is a convenience wrapper around RenderWithCacheInfo.
func (r *Runner) Render(ctx context.Context, l graph.Layout, opts Options) (map[string][]byte, error) {
	artifacts, _, err := r.RenderWithCacheInfo(ctx, l, opts)
	return artifacts, err
}

func renderFormat(ctx context.Context, l graph.Layout, format string, opts Options) (data []byte, err error) {
	start := time.Now()
	defer func() {
		observability.Simulation().OnRenderComplete(ctx, format, time.Since(start), err)
	}()

	data, err = nodelink.Render(ctx, l, format, opts.RenderOptions())
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", format, err)
	}
	opts.Logger.Debug("rendered", "format", format, "bytes", len(data), "duration", time.Since(start))
	return data, nil
}
