package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/First008/vcare/internal/factory"
	mcpserver "github.com/First008/vcare/internal/mcp"
	"github.com/First008/vcare/internal/server"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd, func(base context.Context, s *factory.Services, logger zerolog.Logger) error {
				runCtx, stop := signal.NotifyContext(base, os.Interrupt, syscall.SIGTERM)
				defer stop()

				if port == 0 {
					port = s.Config.Server.Port
				}

				logger.Info().
					Str("version", version).
					Str("endpoint", s.Config.Endpoint.Kind).
					Str("model", s.Config.Model.ModelID).
					Msg("Starting vcare")

				srv := server.New(server.Options{
					Registry:  s.Registry,
					Templates: s.Templates,
					Metrics:   s.Metrics,
					Usage:     s.Usage,
					JWTSecret: s.Config.Server.JWTSecret,
					Logger:    logger,
				})
				return srv.Run(runCtx, fmt.Sprintf(":%d", port))
			})
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (default server.port from the configuration)")
	return cmd
}

func newMCPCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve every use case as an MCP tool over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd, func(base context.Context, s *factory.Services, logger zerolog.Logger) error {
				runCtx, stop := signal.NotifyContext(base, os.Interrupt, syscall.SIGTERM)
				defer stop()

				mcpServer, err := mcpserver.New(s.Registry, version, logger)
				if err != nil {
					return err
				}
				return mcpServer.ServeStdio(runCtx)
			})
		},
	}
}
