package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/forceview/pkg/config"
	"github.com/matzehuels/forceview/pkg/metrics"
	"github.com/matzehuels/forceview/pkg/server"
)

// serveCommand creates the serve command hosting live simulations over HTTP.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr    string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve live simulations over HTTP and websockets",
		Long: `Serve live simulation sessions over HTTP.

Clients create a session from a graph, then advance it frame by frame with
pointer input, or attach to /simulations/{id}/stream for a websocket feed of
positions. Prometheus metrics are exposed on /metrics.

When --config is given, edits to the file are applied to running sessions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			settings, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				settings.Server.Addr = addr
			}

			runner, err := c.newRunner(ctx, settings, noCache)
			if err != nil {
				return fmt.Errorf("initialize runner: %w", err)
			}
			defer runner.Close()

			metrics.Register()
			srv := server.New(server.Config{
				Settings: settings,
				Runner:   runner,
				Logger:   c.Logger,
			})

			if c.ConfigPath != "" {
				go func() {
					if err := config.Watch(ctx, c.ConfigPath, c.Logger, srv.ApplyConfig); err != nil {
						c.Logger.Warn("config watch stopped", "error", err)
					}
				}()
			}

			fmt.Println(StyleTitle.Render(appName + " serve"))
			printKeyValue("Address", settings.Server.Addr)
			printKeyValue("Tick", settings.Server.Tick.String())
			printKeyValue("Max sessions", fmt.Sprint(settings.Server.MaxSessions))
			printNewline()
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", config.DefaultAddr, "listen address")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")

	return cmd
}
