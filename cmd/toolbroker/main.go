// Command toolbroker runs the connection broker as an MCP server, exposing
// the management tools over stdio or a Streamable HTTP endpoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/relaygear/toolbroker/pkg/brokercfg"
	"github.com/relaygear/toolbroker/pkg/brokerserver"
	"github.com/relaygear/toolbroker/pkg/toolbroker"
)

type serveOptions struct {
	configPath string
	transport  string
	addr       string
	path       string
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		logger.Fatal("command failed", zap.Error(err))
	}
}

func newRootCmd(logger *zap.Logger) *cobra.Command {
	opts := serveOptions{
		configPath: "toolbroker.yaml",
		transport:  "stdio",
	}

	root := &cobra.Command{
		Use:   "toolbroker",
		Short: "Connection and capability broker for MCP servers",
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", opts.configPath, "path to broker config file")

	root.AddCommand(
		newServeCmd(logger, &opts),
		newValidateCmd(&opts),
	)

	return root
}

func newServeCmd(logger *zap.Logger, opts *serveOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the broker MCP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()
			return serve(ctx, logger, opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", opts.transport, "serving transport: stdio or http")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address for http transport (overrides config)")
	cmd.Flags().StringVar(&opts.path, "path", "", "endpoint path for http transport (overrides config)")

	return cmd
}

func newValidateCmd(opts *serveOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the broker configuration without connecting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := brokercfg.Load(opts.configPath)
			if err != nil {
				return err
			}
			cmd.Printf("configuration is valid: %d server(s)\n", len(cfg.Servers))
			return nil
		},
	}
}

func serve(ctx context.Context, logger *zap.Logger, opts *serveOptions) error {
	cfg, err := brokercfg.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Listen.Addr = opts.addr
	}
	if opts.path != "" {
		cfg.Listen.Path = opts.path
	}

	registry := prometheus.NewRegistry()
	broker, err := toolbroker.NewBroker(cfg.Descriptors(logger), &toolbroker.Options{
		Logger:  logger,
		Metrics: toolbroker.NewMetrics(registry),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := broker.Close(context.Background()); err != nil {
			logger.Warn("broker teardown", zap.Error(err))
		}
	}()

	srv, err := brokerserver.New(toolbroker.NewSurface(broker), &brokerserver.Options{
		Addr:            cfg.Listen.Addr,
		Path:            cfg.Listen.Path,
		Logger:          logger,
		MetricsGatherer: registry,
		CORS: &cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		},
	})
	if err != nil {
		return err
	}

	switch opts.transport {
	case "stdio":
		return srv.ServeStdio(ctx)
	case "http":
		return srv.ListenAndServe(ctx)
	default:
		return fmt.Errorf("unknown transport %q (expected stdio or http)", opts.transport)
	}
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
