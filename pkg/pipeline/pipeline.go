// Package pipeline runs headless simulations: graph in, settled layout out.
//
// It is the shared entry point of the CLI and the HTTP host, so both apply
// the same defaults, cache keys and observability hooks.
//
// # Stages
//
//  1. Bind: size nodes and map IDs to simulation indices ([graph.ToBuffers])
//  2. Simulate: advance frames until settled or out of budget
//  3. Render: draw the layout as SVG, PNG, PDF, DOT or JSON
//
// # Usage
//
//	runner := pipeline.NewRunner(c, nil, logger)
//	layout, err := runner.Simulate(ctx, g, pipeline.Options{Frames: 1000})
//	artifacts, err := runner.Render(ctx, layout, pipeline.Options{Formats: []string{"svg"}})
//
// Layouts are cached by graph hash and parameters. With Resume set, the
// runner starts from positions saved by an earlier run of the same graph
// and saves the new positions afterwards.
package pipeline

import (
	"io"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/forceview/pkg/cache"
	errs "github.com/matzehuels/forceview/pkg/errors"
	"github.com/matzehuels/forceview/pkg/graph"
	"github.com/matzehuels/forceview/pkg/render/nodelink"
	"github.com/matzehuels/forceview/pkg/sim"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and API
// =============================================================================

const (
	// DefaultFrames is the frame budget of a headless run.
	DefaultFrames = 2000

	// DefaultSettleThreshold stops a run once settleness drops below it.
	DefaultSettleThreshold = 0.02

	// DefaultSeed makes headless runs repeatable, which keeps cached layouts
	// meaningful.
	DefaultSeed = uint64(42)

	// MaxFrames bounds a single run.
	MaxFrames = 1_000_000
)

// DefaultFormats is used when no render format is requested.
var DefaultFormats = []string{nodelink.FormatSVG}

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options configures a pipeline run. It supports JSON for API requests.
type Options struct {
	// Simulation options
	Params          sim.Params          `json:"params"`
	Strategy        string              `json:"strategy,omitempty" validate:"omitempty,oneof=pairwise grid"`
	Frames          int                 `json:"frames,omitempty" validate:"gte=0,lte=1000000"`
	SettleThreshold float64             `json:"settle_threshold,omitempty" validate:"gte=0,lte=1"`
	Radius          graph.RadiusOptions `json:"radius"`
	Seed            uint64              `json:"seed,omitempty"`
	Resume          bool                `json:"resume,omitempty"`
	Refresh         bool                `json:"refresh,omitempty"`

	// Render options
	Formats  []string `json:"formats,omitempty"`
	Labels   bool     `json:"labels,omitempty"`
	Directed bool     `json:"directed,omitempty"`
	Scale    float64  `json:"scale,omitempty" validate:"gte=0"`

	// Runtime options (not serialized)
	Logger *log.Logger `json:"-"`
	// OnFrame is called after every simulated frame.
	OnFrame func(sim.FrameStats) `json:"-"`
	// Start seeds positions from an earlier layout of the same graph.
	Start *graph.Layout `json:"-"`

	validated bool
}

// Result is a simulated layout plus run information.
type Result struct {
	Layout    graph.Layout
	GraphHash string
	CacheHit  bool
	Resumed   bool
}

// =============================================================================
// Validation Functions
// =============================================================================

// ValidateFormat checks that a render format is supported.
func ValidateFormat(format string) error {
	if !slices.Contains(nodelink.Formats, format) {
		return errs.New(errs.ErrCodeInvalidFormat, "invalid format: %q (must be one of: svg, png, pdf, dot, json)", format)
	}
	return nil
}

// ValidateFormats checks that all formats are supported.
func ValidateFormats(formats []string) error {
	for _, f := range formats {
		if err := ValidateFormat(f); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Options Methods
// =============================================================================

// ValidateAndSetDefaults applies simulation defaults and validates the
// result. It is idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	o.SetSimulationDefaults()
	if err := errs.ValidateStruct(errs.ErrCodeInvalidInput, o); err != nil {
		return err
	}
	if o.Radius.Max < o.Radius.Min {
		return errs.New(errs.ErrCodeInvalidInput, "radius max %v below min %v", o.Radius.Max, o.Radius.Min)
	}
	o.validated = true
	return nil
}

// SetSimulationDefaults fills zero values. An all-zero Params means "not
// given" and becomes sim.DefaultParams.
func (o *Options) SetSimulationDefaults() {
	if o.Params == (sim.Params{}) {
		o.Params = sim.DefaultParams()
	}
	o.Params = o.Params.WithDefaults()
	if o.Strategy == "" {
		o.Strategy = sim.Pairwise.String()
	}
	if o.Frames == 0 {
		o.Frames = DefaultFrames
	}
	if o.SettleThreshold == 0 {
		o.SettleThreshold = DefaultSettleThreshold
	}
	if o.Radius == (graph.RadiusOptions{}) {
		o.Radius = graph.DefaultRadiusOptions()
	}
	if o.Seed == 0 {
		o.Seed = DefaultSeed
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// ValidateForRender sets render defaults and validates formats.
func (o *Options) ValidateForRender() error {
	if len(o.Formats) == 0 {
		o.Formats = slices.Clone(DefaultFormats)
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return ValidateFormats(o.Formats)
}

// LayoutKeyOpts returns cache key options for a simulated layout.
func (o *Options) LayoutKeyOpts() cache.LayoutKeyOpts {
	return cache.LayoutKeyOpts{
		Dt:              o.Params.Dt,
		Attraction:      o.Params.Attraction,
		LinkLength:      o.Params.LinkLength,
		Repulsion:       o.Params.Repulsion,
		Central:         o.Params.Central,
		BatchFraction:   o.Params.BatchFraction,
		Strategy:        o.Strategy,
		Frames:          o.Frames,
		SettleThreshold: o.SettleThreshold,
		MinRadius:       o.Radius.Min,
		MaxRadius:       o.Radius.Max,
		Seed:            o.Seed,
		Resume:          o.Resume,
	}
}

// ArtifactKeyOpts returns cache key options for one rendered format.
func (o *Options) ArtifactKeyOpts(format string) cache.ArtifactKeyOpts {
	return cache.ArtifactKeyOpts{
		Format:   format,
		Labels:   o.Labels,
		Directed: o.Directed,
		Scale:    o.Scale,
	}
}

// RenderOptions returns the drawing options for nodelink.
func (o *Options) RenderOptions() nodelink.Options {
	return nodelink.Options{Labels: o.Labels, Directed: o.Directed, Scale: o.Scale}
}
