package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/promptopt/internal/ratelimit"
	"github.com/amishk599/promptopt/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP service",
	Long:  "Start the prompt optimizer API; blocks until SIGINT/SIGTERM.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug, logFormat)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return err
	}
	dropAmbientCredentials(logger)

	logger.Info("config loaded",
		"addr", cfg.Server.Addr,
		"provider", cfg.LLM.Provider,
		"window", cfg.RateLimit.Window.String(),
		"max_requests", cfg.RateLimit.MaxRequests,
		"trust_proxy", cfg.Server.TrustProxy,
	)

	p, err := buildPipeline(cfg, true, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		return err
	}

	srv := server.New(server.Options{
		Addr:                 cfg.Server.Addr,
		ReadTimeout:          cfg.Server.ReadTimeout,
		WriteTimeout:         cfg.Server.WriteTimeout,
		ShutdownTimeout:      cfg.Server.ShutdownTimeout,
		MaxBodyBytes:         cfg.Server.MaxBodyBytes,
		TrustProxy:           cfg.Server.TrustProxy,
		AllowedOriginSchemes: cfg.Server.AllowedOriginSchemes,
	}, p.orch, p.metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := ratelimit.NewSweeper(p.limiter, cfg.RateLimit.SweepInterval, logger)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(ctx)
	}()

	logger.Info("listening", "addr", cfg.Server.Addr)
	err = srv.Run(ctx)
	stop()
	<-sweepDone
	if err != nil {
		logger.Error("server error", "error", err)
		return err
	}

	logger.Info("goodbye")
	return nil
}
