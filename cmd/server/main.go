package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/questkeeper/encounter-server-go/internal/catalog"
	"github.com/questkeeper/encounter-server-go/internal/combat"
	"github.com/questkeeper/encounter-server-go/internal/config"
	"github.com/questkeeper/encounter-server-go/internal/server"
	"github.com/questkeeper/encounter-server-go/internal/sheets"
	"github.com/questkeeper/encounter-server-go/internal/storage"
	"github.com/questkeeper/encounter-server-go/internal/storage/memory"
	"github.com/questkeeper/encounter-server-go/internal/storage/postgres"
	"github.com/questkeeper/encounter-server-go/internal/storage/sqlite"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting encounter server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	if cfg.Auth.GMPasswordHash == "" {
		logger.Warn("GM password not configured; GM access disabled")
	}

	// Create context that listens for termination signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize persistence mirror
	store, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer store.Close()

	// Initialize character sheet store
	sheetStore := sheets.NewMemoryStore()
	logger.Info("sheet store initialized")

	// Initialize card catalog
	cardCatalog, err := openCatalog(cfg.Catalog)
	if err != nil {
		logger.Fatal("failed to load card catalog", zap.Error(err))
	}
	logger.Info("card catalog initialized", zap.String("path", cfg.Catalog.Path))

	// Initialize combat coordinator
	coordinator := combat.NewCoordinator(sheetStore, store, combat.Options{
		HandLimit: cfg.Combat.HandLimit,
		LockWait:  cfg.Combat.LockWait,
	}, logger)
	logger.Info("combat coordinator initialized",
		zap.Int("hand_limit", cfg.Combat.HandLimit),
		zap.Duration("lock_wait", cfg.Combat.LockWait),
	)

	// Initialize websocket hub
	hub := server.NewHub(coordinator, cardCatalog, cfg.Auth.GMPasswordHash, logger)
	coordinator.SetEventHandler(hub.HandleEvent)
	go hub.Run(ctx)

	// Start websocket server
	serverErr := make(chan error, 1)
	go func() {
		if wsErr := server.StartWebSocketServer(ctx, cfg.Server, hub, logger); wsErr != nil {
			serverErr <- wsErr
		}
	}()

	logger.Info("encounter server initialized",
		zap.String("version", version),
		zap.String("websocket_address", cfg.Server.WebSocket.Address),
		zap.String("database_driver", cfg.Database.Driver),
	)

	// Wait for termination signal or server failure
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("websocket server error", zap.Error(err))
	}

	logger.Info("shutting down gracefully...")
	cancel()

	logger.Info("encounter server stopped")
}

func openCatalog(cfg config.CatalogConfig) (*catalog.MemoryCatalog, error) {
	if cfg.Path == "" {
		return catalog.NewMemoryCatalog(), nil
	}
	return catalog.LoadFile(cfg.Path)
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory storage")
		return memory.NewStore(), nil
	case "sqlite":
		logger.Info("using sqlite storage", zap.String("path", cfg.Path))
		return sqlite.Open(cfg.Path)
	case "postgres":
		logger.Info("using postgres storage")
		return postgres.Open(ctx, cfg.URL, cfg.MaxConns)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
