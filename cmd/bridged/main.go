package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"evmbridge/config"
	"evmbridge/core"
	"evmbridge/integrations/audit"
	"evmbridge/integrations/webhooks"
	"evmbridge/observability"
	"evmbridge/observability/logging"
	telemetry "evmbridge/observability/otel"
	"evmbridge/rpc"
	"evmbridge/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid config: %v", err))
	}

	logger := logging.Setup("bridged", cfg.Environment, cfg.LogFile)
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "bridged",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialise telemetry: %v", err))
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	if err := run(cfg, logger); err != nil {
		logger.Error("bridged stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	opts, err := runtimeOptions(cfg, logger)
	if err != nil {
		return err
	}

	db, err := storage.NewLevelDBWithOptions(filepath.Join(cfg.DataDir, "state"), storage.LevelDBOptions{
		CacheMB: cfg.Database.CacheMB,
		Handles: cfg.Database.Handles,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	runtime, err := core.NewRuntime(db, opts)
	if err != nil {
		return fmt.Errorf("open runtime: %w", err)
	}
	runtime.Subscribe(observability.Events())

	sink, err := audit.Open(cfg.AuditDSN, logger)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer sink.Close()
	runtime.Subscribe(sink)

	secret, err := cfg.WebhookSecret()
	if err != nil {
		return err
	}
	if secret != nil {
		dispatcher, err := webhooks.NewDispatcher(cfg.Webhook.Endpoint, secret,
			webhooks.WithEventTypes(cfg.Webhook.EventTypes...),
			webhooks.WithQueueSize(cfg.Webhook.QueueSize),
			webhooks.WithLogger(logger))
		if err != nil {
			return err
		}
		defer dispatcher.Close()
		runtime.Subscribe(dispatcher)
		logger.Info("webhook delivery enabled", slog.String("endpoint", logging.MaskURL(cfg.Webhook.Endpoint)))
	}

	authCfg := rpc.AuthConfig{
		Enabled:        cfg.Auth.Enabled,
		Issuer:         cfg.Auth.Issuer,
		Audience:       cfg.Auth.Audience,
		ScopeClaim:     cfg.Auth.ScopeClaim,
		ClockSkew:      time.Duration(cfg.Auth.ClockSkewSeconds) * time.Second,
		AllowAnonymous: cfg.Auth.AllowAnonymous,
	}
	if cfg.Auth.Enabled {
		if authCfg.HMACSecret, err = cfg.ReadSecret(); err != nil {
			return err
		}
	} else {
		logger.Warn("RPC authentication disabled; every caller acts as root")
	}
	server, err := rpc.NewServer(runtime, rpc.ServerConfig{
		Auth: authCfg,
		RateLimit: rpc.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		Audit:  sink,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.RPCAddress)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.RPCAddress, err)
	}
	evmRoot, nativeRoot, seq := runtime.Roots()
	logger.Info("bridged listening",
		slog.String("address", listener.Addr().String()),
		slog.String("evm_root", evmRoot.Hex()),
		slog.String("native_root", nativeRoot.Hex()),
		slog.Uint64("sequence", seq))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Serve(ctx, listener)
}

func runtimeOptions(cfg *config.Config, logger *slog.Logger) (core.Options, error) {
	params, err := cfg.MigrationParams()
	if err != nil {
		return core.Options{}, err
	}
	authority, _, err := cfg.ReplayAuthority()
	if err != nil {
		return core.Options{}, err
	}
	minimum, err := cfg.MinimumBalance()
	if err != nil {
		return core.Options{}, err
	}
	return core.Options{
		Logger:              logger,
		Metrics:             observability.Bridge(),
		GasLimit:            cfg.Replay.GasLimit,
		MinimumBalance:      minimum,
		ReplayAuthority:     authority,
		AllowUnsetAuthority: cfg.Replay.AllowUnsetAuthority,
		Migration:           params,
		Pauses:              cfg.PauseView(),
	}, nil
}
