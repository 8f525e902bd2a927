// Package cli implements the forceview command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/forceview/pkg/buildinfo"
	"github.com/matzehuels/forceview/pkg/config"
	"github.com/matzehuels/forceview/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = "forceview"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// ConfigPath is the --config flag. Empty means built-in defaults.
	ConfigPath string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Forceview lays out graphs with an interactive force simulation",
		Long: `Forceview lays out node-link graphs with a force-directed simulation.

Run it headless to produce settled layouts and drawings, watch a layout settle
in the terminal, or serve live simulations over HTTP and websockets.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVarP(&c.ConfigPath, "config", "c", "", "config file (.toml, .yaml)")

	root.AddCommand(c.simulateCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.watchCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Config and Runner Factory
// =============================================================================

// loadConfig reads --config, or returns the defaults when it is unset.
func (c *CLI) loadConfig() (config.File, error) {
	if c.ConfigPath == "" {
		return config.Default(), nil
	}
	f, err := config.Load(c.ConfigPath)
	if err != nil {
		return config.File{}, fmt.Errorf("load config: %w", err)
	}
	c.Logger.Debug("loaded config", "path", c.ConfigPath)
	return f, nil
}

// newRunner creates a pipeline runner over the configured cache.
func (c *CLI) newRunner(ctx context.Context, settings config.File, noCache bool) (*pipeline.Runner, error) {
	cc := settings.Cache
	if noCache {
		cc.Backend = config.BackendNone
	}
	if cc.Backend == config.BackendFile && cc.Dir == "" {
		if dir, err := cacheDir(); err == nil {
			cc.Dir = dir
		} else {
			cc.Backend = config.BackendNone
		}
	}
	store, keyer, err := cc.NewCache(ctx)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("cache ready", "backend", cc.Backend)
	return pipeline.NewRunner(store, keyer, c.Logger), nil
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/forceview/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// basePath derives the output path prefix from the input file name, or from
// output with any known format extension stripped.
func basePath(output, input string) string {
	if output == "" {
		base := strings.TrimSuffix(input, filepath.Ext(input))
		return strings.TrimSuffix(base, ".layout")
	}
	ext := filepath.Ext(output)
	if pipeline.ValidateFormat(strings.TrimPrefix(ext, ".")) == nil {
		return strings.TrimSuffix(output, ext)
	}
	return output
}

// parseFormats parses a comma-separated format string into a slice.
func parseFormats(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
