package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/user/nation-builder/config"
	"github.com/user/nation-builder/internal/api"
	"github.com/user/nation-builder/internal/game"
	"github.com/user/nation-builder/internal/store"
	"github.com/user/nation-builder/internal/tech"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "./config/config.json", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to apply environment: %v\n", err)
		os.Exit(1)
	}

	// Set up logger
	logger := setupLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	// Resolve the player
	identity := game.NewStaticIdentity(cfg.Player)
	logger.Info("Player identity resolved", zap.String("player_id", identity.PlayerID()))

	// Load tech tree
	graph, err := loadTechGraph(cfg.Game.TechDataPath)
	if err != nil {
		logger.Fatal("Failed to load tech tree", zap.Error(err))
	}
	logger.Info("Loaded tech tree", zap.Int("count", graph.Len()))

	// Open document store
	docs, err := openStore(cfg.Store, logger)
	if err != nil {
		logger.Fatal("Failed to open document store", zap.Error(err))
	}
	defer docs.Close()

	// Initialize nation
	nation := game.NewNationManager(cfg, graph, identity.PlayerID(), logger)

	// Set up HTTP server
	apiServer := api.NewServer(cfg, nation, docs, logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	go apiServer.Hub().Run(hubCtx)

	// Join the configured game
	if cfg.Sync.GameID != "" {
		if err := apiServer.Lobby().JoinGame(context.Background(), cfg.Sync.GameID, apiServer.LocalPlayer()); err != nil {
			logger.Error("Failed to join configured game", zap.String("game_id", cfg.Sync.GameID), zap.Error(err))
		} else if _, err := apiServer.JoinSession(context.Background(), cfg.Sync.GameID); err != nil {
			logger.Error("Failed to start session", zap.String("game_id", cfg.Sync.GameID), zap.Error(err))
		}
	}

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: apiServer.Router(),
	}

	// Start HTTP server
	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	waitForShutdown(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	apiServer.Shutdown(ctx)
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	stopHub()
	logger.Info("Shutdown complete")
}

func setupLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if parsed, err := zapcore.ParseLevel(level); err == nil {
		config.Level = zap.NewAtomicLevelAt(parsed)
	}
	logger, _ := config.Build()
	return logger
}

func loadTechGraph(path string) (*tech.Graph, error) {
	if path == "" {
		return tech.LoadDefault()
	}
	return tech.LoadFile(path)
}

func openStore(cfg config.StoreConfig, logger *zap.Logger) (store.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		logger.Info("Using in-memory document store")
		return store.NewMemory(), nil
	case "sqlite3":
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		db, err := store.OpenSQLite(cfg.DSN, time.Duration(cfg.PollInterval)*time.Millisecond)
		if err != nil {
			return nil, err
		}
		db.Logger = logger
		logger.Info("Using SQLite document store", zap.String("dsn", cfg.DSN))
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func waitForShutdown(logger *zap.Logger) {
	// Set up channel for shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-sigChan
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	// Perform cleanup
	logger.Info("Shutting down")
}
