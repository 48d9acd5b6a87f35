package configuration

import (
	"fmt"
	"time"

	"QQFarmBot/logger"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string
	LogDir      string

	// Database Settings
	Database struct {
		User     string
		Password string
		Name     string
		Host     string
		Port     string
		Var      string
	}

	// Game endpoints
	Game struct {
		LoginURL  string
		ServerURL string
	}

	// Bot runtime settings
	Bot struct {
		LogBufferSize    int
		QRTimeout        time.Duration
		QRPollInterval   time.Duration
		ShutdownTimeout  time.Duration
		LandQueryTimeout time.Duration
		LandQueryRate    float64 // Live land queries per second, per session.
	}

	// Discord notifier (optional)
	Discord struct {
		Enabled   bool
		Token     string
		ChannelID string
	}

	// Broadcast hub
	Broadcast struct {
		Addr string
	}

	// Bootstrap admin account, seeded on first start when set
	Admin struct {
		Username string
		Password string
	}

	// Game data
	Catalog struct {
		Path string
	}
}

var AppConfig Config

func Load() error {
	logger.Log.Info("Loading configuration...")

	viper.AutomaticEnv()

	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("LOG_DIR", "logs")
	viper.SetDefault("LOG_BUFFER_SIZE", 200)
	viper.SetDefault("QR_TIMEOUT", 120)
	viper.SetDefault("QR_POLL_INTERVAL", 2)
	viper.SetDefault("SHUTDOWN_TIMEOUT", 10)
	viper.SetDefault("LAND_QUERY_TIMEOUT", 8)
	viper.SetDefault("LAND_QUERY_RATE", 0.5)
	viper.SetDefault("BROADCAST_ADDR", ":8090")
	viper.SetDefault("CATALOG_PATH", "data/catalog.json")

	AppConfig.Environment = viper.GetString("ENVIRONMENT")
	AppConfig.LogDir = viper.GetString("LOG_DIR")

	AppConfig.Database.User = viper.GetString("DB_USER")
	AppConfig.Database.Password = viper.GetString("DB_PASSWORD")
	AppConfig.Database.Name = viper.GetString("DB_NAME")
	AppConfig.Database.Host = viper.GetString("DB_HOST")
	AppConfig.Database.Port = viper.GetString("DB_PORT")
	AppConfig.Database.Var = viper.GetString("DB_VAR")

	AppConfig.Game.LoginURL = viper.GetString("GAME_LOGIN_URL")
	AppConfig.Game.ServerURL = viper.GetString("GAME_SERVER_URL")

	AppConfig.Bot.LogBufferSize = viper.GetInt("LOG_BUFFER_SIZE")
	AppConfig.Bot.QRTimeout = time.Duration(viper.GetInt("QR_TIMEOUT")) * time.Second
	AppConfig.Bot.QRPollInterval = time.Duration(viper.GetInt("QR_POLL_INTERVAL")) * time.Second
	AppConfig.Bot.ShutdownTimeout = time.Duration(viper.GetInt("SHUTDOWN_TIMEOUT")) * time.Second
	AppConfig.Bot.LandQueryTimeout = time.Duration(viper.GetInt("LAND_QUERY_TIMEOUT")) * time.Second
	AppConfig.Bot.LandQueryRate = viper.GetFloat64("LAND_QUERY_RATE")

	AppConfig.Discord.Enabled = viper.GetBool("DISCORD_ENABLED")
	AppConfig.Discord.Token = viper.GetString("DISCORD_TOKEN")
	AppConfig.Discord.ChannelID = viper.GetString("DISCORD_CHANNEL_ID")

	AppConfig.Broadcast.Addr = viper.GetString("BROADCAST_ADDR")
	AppConfig.Admin.Username = viper.GetString("ADMIN_USERNAME")
	AppConfig.Admin.Password = viper.GetString("ADMIN_PASSWORD")
	AppConfig.Catalog.Path = viper.GetString("CATALOG_PATH")

	if err := validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	logConfigurationValues()

	return nil
}

func validate() error {
	var missingVars []string

	requiredVars := map[string]string{
		"DB_USER":         AppConfig.Database.User,
		"DB_PASSWORD":     AppConfig.Database.Password,
		"DB_NAME":         AppConfig.Database.Name,
		"DB_HOST":         AppConfig.Database.Host,
		"DB_PORT":         AppConfig.Database.Port,
		"GAME_LOGIN_URL":  AppConfig.Game.LoginURL,
		"GAME_SERVER_URL": AppConfig.Game.ServerURL,
	}

	for key, value := range requiredVars {
		if value == "" {
			missingVars = append(missingVars, key)
		}
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	if AppConfig.Discord.Enabled && AppConfig.Discord.Token == "" {
		return fmt.Errorf("Discord notifier is enabled but no token provided")
	}

	if AppConfig.Admin.Username != "" && AppConfig.Admin.Password == "" {
		return fmt.Errorf("ADMIN_USERNAME is set but ADMIN_PASSWORD is empty")
	}

	if AppConfig.Bot.LogBufferSize < 1 {
		return fmt.Errorf("LOG_BUFFER_SIZE must be positive")
	}

	return nil
}

func logConfigurationValues() {
	logger.Log.Infof("Loaded bot settings: LOG_BUFFER_SIZE=%d, QR_TIMEOUT=%v, QR_POLL_INTERVAL=%v, "+
		"SHUTDOWN_TIMEOUT=%v, LAND_QUERY_TIMEOUT=%v, LAND_QUERY_RATE=%.2f",
		AppConfig.Bot.LogBufferSize,
		AppConfig.Bot.QRTimeout,
		AppConfig.Bot.QRPollInterval,
		AppConfig.Bot.ShutdownTimeout,
		AppConfig.Bot.LandQueryTimeout,
		AppConfig.Bot.LandQueryRate)

	if AppConfig.Discord.Enabled {
		logger.Log.Info("Discord notifier enabled")
	}
}

func Get() *Config {
	return &AppConfig
}
