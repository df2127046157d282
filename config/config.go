package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration for the application
type Config struct {
	// Player identity configuration
	Player PlayerConfig `json:"player"`

	// Document store configuration
	Store StoreConfig `json:"store"`

	// Game configuration
	Game GameConfig `json:"game"`

	// Multiplayer synchronization configuration
	Sync SyncConfig `json:"sync"`

	// Server configuration
	Server ServerConfig `json:"server"`
}

// PlayerConfig holds the identity of the local player
type PlayerConfig struct {
	// Opaque player identifier handed out by the identity provider
	ID string `json:"id" env:"NATION_PLAYER_ID"`

	// Contact email, informational only
	Email string `json:"email" env:"NATION_PLAYER_EMAIL"`

	// Display name shown to other players
	Name string `json:"name" env:"NATION_PLAYER_NAME"`
}

// StoreConfig holds document store specific configuration
type StoreConfig struct {
	// Store driver (memory, sqlite3)
	Driver string `json:"driver" env:"NATION_STORE_DRIVER"`

	// Database connection string for the sqlite3 driver
	DSN string `json:"dsn" env:"NATION_STORE_DSN"`

	// Poll interval for change subscriptions in milliseconds
	PollInterval int `json:"poll_interval_ms" env:"NATION_STORE_POLL_MS"`
}

// GameConfig holds game specific configuration
type GameConfig struct {
	// Path of the local nation save file
	SavePath string `json:"save_path" env:"NATION_SAVE_PATH"`

	// Optional tech tree YAML overriding the embedded dataset
	TechDataPath string `json:"tech_data_path" env:"NATION_TECH_DATA"`

	// Starting calendar year
	StartYear int `json:"start_year"`

	// Starting value of every national stat
	StartingStat float64 `json:"starting_stat"`

	// Starting natural resource stockpiles
	StartingWood     int64 `json:"starting_wood"`
	StartingMinerals int64 `json:"starting_minerals"`
	StartingFood     int64 `json:"starting_food"`
	StartingWater    int64 `json:"starting_water"`
	StartingLand     int64 `json:"starting_land"`

	// Starting population
	StartingMen      int `json:"starting_men"`
	StartingWomen    int `json:"starting_women"`
	StartingChildren int `json:"starting_children"`

	// Starting mood (0-100)
	StartingMood float64 `json:"starting_mood"`
}

// SyncConfig holds multiplayer specific configuration
type SyncConfig struct {
	// Seconds between full state pushes
	PushInterval int `json:"push_interval" env:"NATION_SYNC_PUSH_SECONDS"`

	// Seconds between presence heartbeats
	HeartbeatInterval int `json:"heartbeat_interval" env:"NATION_SYNC_HEARTBEAT_SECONDS"`

	// Seconds after which a silent player is considered offline
	StaleAfter int `json:"stale_after" env:"NATION_SYNC_STALE_SECONDS"`

	// Game to join on startup, empty to play alone
	GameID string `json:"game_id" env:"NATION_GAME_ID"`
}

// ServerConfig holds server specific configuration
type ServerConfig struct {
	// Server port
	Port string `json:"port" env:"NATION_PORT"`

	// Log level (debug, info, warn, error)
	LogLevel string `json:"log_level" env:"NATION_LOG_LEVEL"`

	// Allowed requests per second per client address
	RateLimit float64 `json:"rate_limit"`

	// Burst size for the rate limiter
	RateBurst int `json:"rate_burst"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Player: PlayerConfig{
			Name: "Player",
		},
		Store: StoreConfig{
			Driver:       "memory",
			DSN:          "./data/nations.db",
			PollInterval: 500,
		},
		Game: GameConfig{
			SavePath:         "./data/nation_state.json",
			StartYear:        1925,
			StartingStat:     50,
			StartingWood:     500,
			StartingMinerals: 300,
			StartingFood:     1000,
			StartingWater:    800,
			StartingLand:     200,
			StartingMen:      50,
			StartingWomen:    50,
			StartingChildren: 20,
			StartingMood:     60,
		},
		Sync: SyncConfig{
			PushInterval:      30,
			HeartbeatInterval: 60,
			StaleAfter:        150,
		},
		Server: ServerConfig{
			Port:      "8080",
			LogLevel:  "info",
			RateLimit: 20,
			RateBurst: 40,
		},
	}
}

// LoadConfig loads configuration from a file
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return config, err
	}

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Create default config file
		if err := SaveConfig(config, path); err != nil {
			return config, err
		}
		return config, nil
	}

	// Read config file
	file, err := os.Open(path)
	if err != nil {
		return config, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return config, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides configuration values from NATION_* environment variables
func ApplyEnv(config *Config) error {
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// SaveConfig saves configuration to a file
func SaveConfig(config Config, path string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Create or truncate file
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	// Write config to file
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return err
	}

	return nil
}
