package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"avl-gateway/internal/auth"
	"avl-gateway/internal/broker"
	"avl-gateway/internal/codec"
	"avl-gateway/internal/config"
	"avl-gateway/internal/dispatcher"
	"avl-gateway/internal/grpcclient"
	"avl-gateway/internal/link"
	"avl-gateway/internal/livefeed"
	"avl-gateway/internal/observability"
	"avl-gateway/internal/server"
	"avl-gateway/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:          "avl-gateway",
		Short:        "Teltonika AVL telemetry gateway",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if configPath != "" {
				if cfg, err = config.LoadFile(configPath, cfg); err != nil {
					return err
				}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "TOML file overlaid on the environment")
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	logger := observability.NewLogger(cfg.LogLevel)
	logger.Info("Starting avl-gateway...", "port", cfg.TCPPort, "metrics_port", cfg.MetricsPort)

	g, gctx := errgroup.WithContext(ctx)

	var sinks []dispatcher.Sink
	if cfg.RedisAddr != "" {
		reg, err := store.NewRegistry(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer reg.Close()
		sinks = append(sinks, reg)
		logger.Info("redis connected", "addr", cfg.RedisAddr)
	}
	if cfg.GRPCServer != "" {
		gc, err := grpcclient.NewGRPCClient(cfg.GRPCServer)
		if err != nil {
			return err
		}
		defer gc.Close()
		sinks = append(sinks, gc)
	}
	if cfg.ProxyAddr != "" {
		lc := link.NewClient(cfg.ProxyAddr, logger)
		g.Go(func() error { return lc.Run(gctx) })
		sinks = append(sinks, lc)
	} else {
		logger.Info("link: disabled (no proxy address configured)")
	}
	if cfg.AMQPURL != "" {
		enc, err := broker.ParseEncoding(cfg.AMQPEncoding)
		if err != nil {
			return err
		}
		pub := broker.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, enc, logger)
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	hub := livefeed.NewHub(logger)
	g.Go(func() error { return hub.Run(gctx) })
	sinks = append(sinks, hub)

	disp := dispatcher.New(logger, cfg.QueueSize, sinks...)
	// The dispatcher outlives gctx so that teardown batches still reach the sinks.
	g.Go(func() error { return disp.Run(context.WithoutCancel(gctx)) })

	metricsSrv := observability.NewHTTPServer(":"+cfg.MetricsPort, map[string]http.Handler{"/ws": hub})
	g.Go(func() error { return observability.Serve(gctx, metricsSrv) })

	limits := codec.DefaultLimits()
	limits.MaxBuffered = cfg.MaxBuffered
	tcp := server.New(server.Options{
		Limits:         limits,
		SessionTimeout: cfg.SessionTimeout,
		BatchSize:      cfg.BatchSize,
		BatchBudget:    cfg.BatchBudget,
	}, auth.AllowAll{}, disp, logger)

	g.Go(func() error {
		defer disp.Close()
		if err := tcp.ListenAndServe(gctx, ":"+cfg.TCPPort); err != nil {
			return fmt.Errorf("TCP server failed: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil {
		logger.Error("avl-gateway stopped", "err", err)
	} else {
		logger.Info("avl-gateway stopped")
	}
	return err
}
