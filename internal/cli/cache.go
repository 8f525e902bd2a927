package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/forceview/pkg/cache"
	"github.com/matzehuels/forceview/pkg/config"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the layout and render cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached layouts, renders and saved positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, ok, err := c.fileCacheDir()
			if err != nil {
				return err
			}
			if !ok {
				printWarning("Cache backend is not file based; nothing to clear")
				printDetail("Redis entries expire on their own TTL")
				return nil
			}
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				printInfo("Cache is empty")
				return nil
			}

			fc, err := cache.NewFileCache(dir)
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			if err := fc.Clear(); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			c.Logger.Debug("cache cleared", "dir", dir)
			printSuccess("Cache cleared")
			printDetail("Directory: %s", dir)
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, ok, err := c.fileCacheDir()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("cache backend is not file based")
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}
}

// fileCacheDir resolves the file cache directory from config. ok is false
// for the redis and none backends.
func (c *CLI) fileCacheDir() (dir string, ok bool, err error) {
	settings, err := c.loadConfig()
	if err != nil {
		return "", false, err
	}
	if settings.Cache.Backend != config.BackendFile {
		return "", false, nil
	}
	if settings.Cache.Dir != "" {
		return settings.Cache.Dir, true, nil
	}
	dir, err = cacheDir()
	if err != nil {
		return "", false, fmt.Errorf("get cache dir: %w", err)
	}
	return dir, true, nil
}
