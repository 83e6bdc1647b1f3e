package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chrisej001/voice-agent/internal/bridge"
	"github.com/chrisej001/voice-agent/internal/config"
	"github.com/chrisej001/voice-agent/internal/controlplane"
	"github.com/chrisej001/voice-agent/internal/metrics"
	"github.com/chrisej001/voice-agent/internal/recording"
	"github.com/chrisej001/voice-agent/internal/server"
	"github.com/chrisej001/voice-agent/internal/session"
	"github.com/chrisej001/voice-agent/internal/speech"
	"github.com/chrisej001/voice-agent/internal/storage"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "voice-agent"
	serviceVersion    = "1.0.0"

	// Sessions idle this long are swept and finalized
	sessionTimeout = 5 * time.Minute
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.String("speech_url", cfg.Speech.URL),
		slog.String("voice", cfg.Speech.Voice),
		slog.String("control_url", cfg.Control.URL),
		slog.String("bucket", cfg.Storage.Bucket),
		slog.String("recording_format", cfg.Recording.Format),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize storage clients
	blobStore := storage.NewS3FromConfig(cfg.Storage)
	recordStore := storage.NewRESTStore(cfg.Storage.RESTURL, cfg.Storage.RESTKey, cfg.Storage.Table)
	logger.Info("Storage clients initialized",
		slog.String("bucket", cfg.Storage.Bucket),
		slog.String("table", cfg.Storage.Table),
	)

	// Initialize recording sink
	sink := recording.NewSink(blobStore, recording.Config{
		Format:     cfg.Recording.Format,
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		BitDepth:   cfg.Audio.BitDepth,
	}, logger, appMetrics)

	// The registry's sweeper needs the bridge's teardown path, and the bridge
	// needs the registry; the closure breaks the cycle
	var mediaBridge *bridge.Bridge
	registry := session.NewRegistry(logger, sessionTimeout, func(s *session.Session) {
		if mediaBridge != nil {
			mediaBridge.FinalizeStale(s)
		}
	})

	// Each call gets its own speech endpoint client
	speechConfig := speech.Config{
		URL:             cfg.Speech.URL,
		APIKey:          cfg.Speech.APIKey,
		Voice:           cfg.Speech.Voice,
		Instructions:    cfg.Speech.Instructions,
		ConnectTimeout:  cfg.Speech.GetConnectTimeout(),
		PreConnectQueue: cfg.Speech.PreConnectQueue,
	}
	speechFactory := func(h speech.Handler) bridge.SpeechClient {
		return speech.NewClient(speechConfig, h, logger, appMetrics)
	}

	// Initialize media bridge
	mediaBridge = bridge.NewBridge(registry, sink, recordStore, speechFactory, logger, appMetrics)
	logger.Info("Media bridge initialized",
		slog.Duration("session_timeout", sessionTimeout),
	)

	// Initialize HTTP server
	httpServer := server.NewHTTPServer(cfg.Server, logger, cfg, mediaBridge, registry, appMetrics)
	logger.Info("HTTP server initialized",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)),
	)

	// Initialize control-plane connector
	source := controlplane.NewWebsocketSource(cfg.Control)
	commander := controlplane.NewCommander(cfg.Control, logger)
	connector := controlplane.NewConnector(source, commander, mediaBridge,
		cfg.Control.GetReconnectDelay(), logger, appMetrics)
	logger.Info("Control-plane connector initialized",
		slog.String("url", cfg.Control.URL),
		slog.String("app_name", cfg.Control.AppName),
		slog.Duration("reconnect_delay", cfg.Control.GetReconnectDelay()),
	)

	// Start HTTP server
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start control-plane connector
	go connector.Run(ctx)

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop the connector first (stop accepting new calls)
	cancel()

	// Stop HTTP server (closes the media endpoint for new connections)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Stop the session registry sweeper
	registry.Stop()

	logger.Info("Final statistics",
		slog.Int("live_calls", mediaBridge.CallCount()),
		slog.Int("live_sessions", registry.Count()),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, using stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
