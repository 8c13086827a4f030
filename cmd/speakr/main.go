package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/speakr/speakr/internal/app"
	"github.com/speakr/speakr/internal/audio"
	"github.com/speakr/speakr/internal/config"
	"github.com/speakr/speakr/internal/control"
	"github.com/speakr/speakr/internal/hotkey"
	"github.com/speakr/speakr/internal/observability"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	for _, w := range cfg.Warnings {
		logger.Warn().Msg(w)
	}

	logger.Info().
		Str("version", config.Version).
		Str("log_level", cfg.LogLevel).
		Str("host_api", cfg.AudioHostAPI).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Speakr starting")

	host := audio.NewPortAudio(observability.Component("audio"))
	if err := host.Init(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialise audio host")
	}

	a := app.Build(cfg, host, host)
	checks := a.ReadinessChecks()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var server *control.Server
	if cfg.ControlAddr != "" {
		server = control.NewServer(a, a.Hub(), control.Options{
			Addr:           cfg.ControlAddr,
			MetricsEnabled: cfg.MetricsEnabled,
			Checks:         checks,
		}, observability.Component("control"))

		go func() {
			if err := server.ListenAndServe(); err != nil {
				logger.Error().Err(err).Msg("Control server failed")
			}
		}()
	}

	var grpcHealth *observability.GRPCHealth
	if cfg.GRPCHealthAddr != "" {
		grpcHealth = observability.NewGRPCHealth(checks, 10*time.Second)
		go func() {
			if err := grpcHealth.Serve(ctx, cfg.GRPCHealthAddr); err != nil {
				logger.Error().Err(err).Msg("gRPC health service failed")
			}
		}()
	}

	listener := hotkey.NewListener(hotkey.HookSource{}, a.HandleKey, cfg.HotkeyQueueSize, app.ReconnectConfig(cfg), observability.Component("hotkey"))
	listenerDone := make(chan error, 1)
	go func() {
		listenerDone <- listener.Run(ctx)
	}()

	logger.Info().Msg("Ready: hold Alt+B to dictate, Ctrl+Super to speak the selection, Esc to stop speech")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down...")
	case err := <-listenerDone:
		if err != nil {
			logger.Error().Err(err).Msg("Keyboard listener stopped, shutting down")
		}
	}

	a.Shutdown(5 * time.Second)
	cancel()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Control server forced to shutdown")
		}
		shutdownCancel()
	}
	if grpcHealth != nil {
		grpcHealth.Stop()
	}

	if err := host.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to terminate audio host")
	}

	logger.Info().Msg("Speakr exited")
}
