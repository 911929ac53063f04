package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	ErrConfigNotFound = errors.New("configuration not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// Store backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// StoreConfig selects and configures the room store backend
type StoreConfig struct {
	Backend       string `json:"backend"`
	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty"`
}

// Config holds every server setting
type Config struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	// RoomID is the single room all connections join.
	RoomID string `json:"room_id"`

	MaxNicknameLength int    `json:"max_nickname_length"`
	FlaggedNickname   string `json:"flagged_nickname"`
	EvictEmptyRooms   bool   `json:"evict_empty_rooms"`

	// SendBufferSize is the number of outbound events queued per connection
	// before the connection is dropped as too slow.
	SendBufferSize int `json:"send_buffer_size"`

	Store StoreConfig `json:"store"`

	Debug bool `json:"debug"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Host:              "localhost",
		Port:              8080,
		RoomID:            "global",
		MaxNicknameLength: 16,
		FlaggedNickname:   "DOF",
		SendBufferSize:    256,
		Store: StoreConfig{
			Backend:   BackendMemory,
			RedisAddr: "localhost:6379",
		},
	}
}

// Load reads the JSON file at path over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg to path as indented JSON, creating parent directories.
func Save(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if strings.TrimSpace(c.RoomID) == "" {
		return fmt.Errorf("%w: room_id is required", ErrInvalidConfig)
	}
	if c.MaxNicknameLength <= 0 {
		return fmt.Errorf("%w: max_nickname_length must be positive", ErrInvalidConfig)
	}
	if c.SendBufferSize <= 0 {
		return fmt.Errorf("%w: send_buffer_size must be positive", ErrInvalidConfig)
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("%w: redis backend needs redis_addr", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store.Backend)
	}

	return nil
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
