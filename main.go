package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"QQFarmBot/broadcast"
	"QQFarmBot/configuration"
	"QQFarmBot/database"
	"QQFarmBot/game"
	"QQFarmBot/gamedata"
	"QQFarmBot/logger"
	"QQFarmBot/manager"
	"QQFarmBot/notify"

	"github.com/joho/godotenv"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Errorf("Recovered from panic: %v\n%s", r, debug.Stack())
		}
	}()

	logger.Log.Info("Farm bot manager starting...")
	if err := run(); err != nil {
		logger.Log.WithError(err).Error("Farm bot manager encountered an error and is shutting down")
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		logger.Log.WithError(err).Warn("No .env file loaded")
	}

	if err := configuration.Load(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg := configuration.Get()

	if err := database.Connect(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Log.Info("Database connection established successfully")

	store := database.NewStore(database.GetDB())
	if cfg.Admin.Username != "" {
		if err := store.EnsureAdminUser(cfg.Admin.Username, cfg.Admin.Password); err != nil {
			return fmt.Errorf("failed to seed admin user: %w", err)
		}
	}

	catalog, err := gamedata.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("failed to load game catalog: %w", err)
	}
	logger.Log.Infof("Game catalog loaded: %d plants, %d items", len(catalog.Plants), len(catalog.Items))

	hub := broadcast.NewHub()
	go func() {
		if err := hub.Serve(cfg.Broadcast.Addr); err != nil {
			logger.Log.WithError(err).Error("Broadcast hub stopped")
		}
	}()

	var bc manager.Broadcaster = hub
	var discord *notify.DiscordNotifier
	if cfg.Discord.Enabled {
		discord, err = notify.NewDiscordNotifier(cfg.Discord.Token, cfg.Discord.ChannelID)
		if err != nil {
			return fmt.Errorf("failed to start Discord notifier: %w", err)
		}
		logger.Log.Info("Discord notifier started")
		bc = notify.Fanout{hub, discord}
	}

	provider := game.NewProvider(cfg.Game.LoginURL, cfg.Game.ServerURL)
	mgr := manager.New(store, provider, bc, manager.Options{
		LogBufferSize:    cfg.Bot.LogBufferSize,
		QRTimeout:        cfg.Bot.QRTimeout,
		QRPollInterval:   cfg.Bot.QRPollInterval,
		ShutdownTimeout:  cfg.Bot.ShutdownTimeout,
		LandQueryTimeout: cfg.Bot.LandQueryTimeout,
		LandQueryRate:    cfg.Bot.LandQueryRate,
	})

	logger.Log.Info("Farm bot manager is running")
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	logger.Log.Info("Shutting down...")
	mgr.Close()
	if discord != nil {
		if err := discord.Close(); err != nil {
			logger.Log.WithError(err).Error("Error closing Discord session")
		}
	}
	return nil
}
