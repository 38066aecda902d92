package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AgentsPilot/neuronforge-sub017/pkg/mcp"
)

func newServeCmd(root *rootFlags) *cobra.Command {
	var responses []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the step engine as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.config()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, cmd.ErrOrStderr(), responses)
			if err != nil {
				return err
			}

			srv, err := mcp.NewStepServer(mcp.ServerDeps{
				Registry: a.registry,
				Schemas:  a.deps.Schemas,
				Logger:   a.logger,
				Version:  version,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a.logger.Info("serving MCP over stdio", "version", version, "providers", a.mux.Providers())
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().StringArrayVarP(&responses, "response", "r", nil, "Canned model reply; repeat for several calls (no backend is contacted)")

	return cmd
}
