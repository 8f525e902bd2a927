// Package config loads forceview settings from TOML or YAML files.
//
// A config file has one table per concern:
//
//	[simulation]
//	repulsion = 80
//	link_length = 15
//	strategy = "pairwise"
//
//	[governor]
//	enabled = true
//	target_fps = 40
//
//	[server]
//	addr = ":8080"
//	tick = "25ms"
//
//	[cache]
//	backend = "redis"
//	[cache.redis]
//	addr = "localhost:6379"
//
// Missing values fall back to the defaults of [Default]. [Watch] reloads the
// file when it changes so running simulations can pick up new parameters.
package config

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/forceview/pkg/cache"
	errs "github.com/matzehuels/forceview/pkg/errors"
	"github.com/matzehuels/forceview/pkg/graph"
	"github.com/matzehuels/forceview/pkg/pipeline"
	"github.com/matzehuels/forceview/pkg/sim"
)

// Supported file formats.
const (
	FormatTOML = "toml"
	FormatYAML = "yaml"
)

// Cache backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendNone  = "none"
)

// DefaultAddr is the listen address of the HTTP host.
const DefaultAddr = ":8080"

// File is the root of a config file.
type File struct {
	Simulation Simulation `toml:"simulation" yaml:"simulation"`
	Governor   Governor   `toml:"governor" yaml:"governor"`
	Server     Server     `toml:"server" yaml:"server"`
	Cache      Cache      `toml:"cache" yaml:"cache"`
	Render     Render     `toml:"render" yaml:"render"`
}

// Simulation holds force parameters and run settings.
type Simulation struct {
	sim.Params `yaml:",inline"`

	Strategy        string              `toml:"strategy" yaml:"strategy" validate:"oneof=pairwise grid"`
	HoverPolicy     string              `toml:"hover_policy" yaml:"hover_policy" validate:"oneof=sticky clear"`
	Frames          int                 `toml:"frames" yaml:"frames" validate:"gt=0,lte=1000000"`
	SettleThreshold float64             `toml:"settle_threshold" yaml:"settle_threshold" validate:"gte=0,lte=1"`
	Seed            uint64              `toml:"seed" yaml:"seed"`
	Radius          graph.RadiusOptions `toml:"radius" yaml:"radius"`
}

// Governor configures the frame-rate governor of live hosts.
type Governor struct {
	Enabled     bool    `toml:"enabled" yaml:"enabled"`
	TargetFPS   float64 `toml:"target_fps" yaml:"target_fps" validate:"gt=0,lte=240"`
	MinFraction float64 `toml:"min_fraction" yaml:"min_fraction" validate:"gt=0,lte=1"`
}

// Server configures the HTTP host.
type Server struct {
	Addr        string        `toml:"addr" yaml:"addr" validate:"required"`
	Tick        time.Duration `toml:"tick" yaml:"tick" validate:"gt=0"`
	SessionTTL  time.Duration `toml:"session_ttl" yaml:"session_ttl" validate:"gte=0"`
	MaxSessions int           `toml:"max_sessions" yaml:"max_sessions" validate:"gt=0"`
	MaxNodes    int           `toml:"max_nodes" yaml:"max_nodes" validate:"gt=0"`
}

// Cache selects and configures the cache backend.
type Cache struct {
	Backend string            `toml:"backend" yaml:"backend" validate:"oneof=file redis none"`
	Dir     string            `toml:"dir" yaml:"dir"`
	Prefix  string            `toml:"prefix" yaml:"prefix"`
	Redis   cache.RedisConfig `toml:"redis" yaml:"redis" validate:"-"`
}

// Render holds default drawing options.
type Render struct {
	Formats  []string `toml:"formats" yaml:"formats"`
	Labels   bool     `toml:"labels" yaml:"labels"`
	Directed bool     `toml:"directed" yaml:"directed"`
	Scale    float64  `toml:"scale" yaml:"scale" validate:"gte=0"`
}

// Default returns the configuration used when no file is given.
func Default() File {
	var f File
	f.SetDefaults()
	return f
}

// SetDefaults fills every zero value with its default.
func (f *File) SetDefaults() {
	s := &f.Simulation
	if s.Params == (sim.Params{}) {
		s.Params = sim.DefaultParams()
	}
	s.Params = s.Params.WithDefaults()
	if s.Strategy == "" {
		s.Strategy = sim.Pairwise.String()
	}
	if s.HoverPolicy == "" {
		s.HoverPolicy = sim.HoverSticky.String()
	}
	if s.Frames == 0 {
		s.Frames = pipeline.DefaultFrames
	}
	if s.SettleThreshold == 0 {
		s.SettleThreshold = pipeline.DefaultSettleThreshold
	}
	if s.Seed == 0 {
		s.Seed = pipeline.DefaultSeed
	}
	if s.Radius == (graph.RadiusOptions{}) {
		s.Radius = graph.DefaultRadiusOptions()
	}

	if f.Governor.TargetFPS == 0 {
		f.Governor.TargetFPS = sim.DefaultTargetFPS
	}
	if f.Governor.MinFraction == 0 {
		f.Governor.MinFraction = sim.DefaultMinFraction
	}

	if f.Server.Addr == "" {
		f.Server.Addr = DefaultAddr
	}
	if f.Server.Tick == 0 {
		f.Server.Tick = time.Second / 40
	}
	if f.Server.SessionTTL == 0 {
		f.Server.SessionTTL = 30 * time.Minute
	}
	if f.Server.MaxSessions == 0 {
		f.Server.MaxSessions = 64
	}
	if f.Server.MaxNodes == 0 {
		f.Server.MaxNodes = 20000
	}

	if f.Cache.Backend == "" {
		f.Cache.Backend = BackendFile
	}
	if len(f.Render.Formats) == 0 {
		f.Render.Formats = []string{"svg"}
	}
}

// Validate checks struct tags and cross-field rules.
func (f *File) Validate() error {
	if err := errs.ValidateStruct(errs.ErrCodeInvalidConfig, f); err != nil {
		return err
	}
	if r := f.Simulation.Radius; r.Max < r.Min {
		return errs.New(errs.ErrCodeInvalidConfig, "simulation.radius.max %v below min %v", r.Max, r.Min)
	}
	if f.Cache.Backend == BackendRedis {
		if err := errs.ValidateStruct(errs.ErrCodeInvalidConfig, f.Cache.Redis); err != nil {
			return err
		}
	}
	return pipeline.ValidateFormats(f.Render.Formats)
}

// FormatOf returns the config format implied by a file extension.
func FormatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", errs.New(errs.ErrCodeInvalidFormat, "unsupported config file %q (want .toml, .yaml or .yml)", path)
}

// Load reads, defaults and validates a config file.
func Load(path string) (File, error) {
	if err := errs.ValidatePath(path, ".toml", ".yaml", ".yml"); err != nil {
		return File{}, err
	}
	format, err := FormatOf(path)
	if err != nil {
		return File{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return File{}, errs.Wrap(errs.ErrCodeFileNotFound, err, "config file %s", path)
		}
		return File{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Decode(bytes.NewReader(data), format)
}

// Decode parses a config in the given format, then defaults and validates it.
func Decode(r io.Reader, format string) (File, error) {
	var f File
	switch format {
	case FormatTOML:
		if _, err := toml.NewDecoder(r).Decode(&f); err != nil {
			return File{}, errs.Wrap(errs.ErrCodeInvalidConfig, err, "decode toml")
		}
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil && err != io.EOF {
			return File{}, errs.Wrap(errs.ErrCodeInvalidConfig, err, "decode yaml")
		}
	default:
		return File{}, errs.New(errs.ErrCodeInvalidFormat, "unsupported config format %q", format)
	}
	f.SetDefaults()
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Options returns simulation and render settings as pipeline options.
func (f File) Options() pipeline.Options {
	s := f.Simulation
	return pipeline.Options{
		Params:          s.Params,
		Strategy:        s.Strategy,
		Frames:          s.Frames,
		SettleThreshold: s.SettleThreshold,
		Radius:          s.Radius,
		Seed:            s.Seed,
		Formats:         append([]string(nil), f.Render.Formats...),
		Labels:          f.Render.Labels,
		Directed:        f.Render.Directed,
		Scale:           f.Render.Scale,
	}
}

// SimOptions returns the strategy and hover policy as simulation options.
func (s Simulation) SimOptions() ([]sim.Option, error) {
	st, err := sim.ParseStrategy(s.Strategy)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeInvalidConfig, err, "simulation.strategy")
	}
	hp, err := sim.ParseHoverPolicy(s.HoverPolicy)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeInvalidConfig, err, "simulation.hover_policy")
	}
	return []sim.Option{sim.WithStrategy(st), sim.WithHoverPolicy(hp)}, nil
}

// NewCache opens the configured cache backend wrapped with observability
// hooks. An empty Dir uses cache.DefaultDir.
func (c Cache) NewCache(ctx context.Context) (cache.Cache, cache.Keyer, error) {
	var keyer cache.Keyer = cache.NewDefaultKeyer()
	if c.Prefix != "" {
		keyer = cache.NewScopedKeyer(keyer, c.Prefix)
	}
	switch c.Backend {
	case BackendNone:
		return cache.NewNullCache(), keyer, nil
	case BackendRedis:
		rc, err := cache.NewRedisCache(ctx, c.Redis)
		if err != nil {
			return nil, nil, err
		}
		return cache.NewInstrumented(rc), keyer, nil
	default:
		dir := c.Dir
		if dir == "" {
			d, err := cache.DefaultDir()
			if err != nil {
				return nil, nil, err
			}
			dir = d
		}
		fc, err := cache.NewFileCache(dir)
		if err != nil {
			return nil, nil, err
		}
		return cache.NewInstrumented(fc), keyer, nil
	}
}
