// relayd is the chat relay server daemon.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/relay-dev/relay/internal/config"
	"github.com/relay-dev/relay/internal/ops"
	"github.com/relay-dev/relay/pkg/relay"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "relayd",
		Short:         "Multi-client chat relay server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the relayd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "relayd", version)
		},
	}
}

func newServeCmd() *cobra.Command {
	var (
		addr    string
		opsAddr string
		lanes   int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			// Flags beat the environment.
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("ops-addr") {
				cfg.OpsAddr = opsAddr
			}
			if cmd.Flags().Changed("lanes") {
				cfg.Lanes = lanes
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "chat listen address (default :1967, env "+config.EnvAddr+")")
	cmd.Flags().StringVar(&opsAddr, "ops-addr", "", "HTTP ops listen address, empty to disable (env "+config.EnvOpsAddr+")")
	cmd.Flags().IntVar(&lanes, "lanes", 0, "worker lane bound, 0 for ideal concurrency (env "+config.EnvLanes+")")
	return cmd
}

func serve(cfg *config.Config) error {
	logger := cfg.Logger()
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	srv := relay.New(&relay.Config{
		Addr:       cfg.Addr,
		IdealLanes: cfg.Lanes,
		Logger:     logger,
		Registerer: registry,
	})
	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting relay: %w", err)
	}

	var opsSrv *ops.Server
	if cfg.OpsAddr != "" {
		opsSrv = ops.New(ops.Config{
			Addr:     cfg.OpsAddr,
			Logger:   logger,
			Gatherer: registry,
			Relay:    srv,
		})
		if err := opsSrv.Start(); err != nil {
			return fmt.Errorf("starting ops server: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if opsSrv != nil {
		if err := opsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("ops shutdown failed", "error", err)
		}
	}
	return srv.Stop(shutdownCtx)
}
