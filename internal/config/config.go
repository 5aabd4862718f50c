package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Database  DatabaseConfig  `yaml:"database" json:"database"`
	Auth      AuthConfig      `yaml:"auth" json:"auth"`
	Security  SecurityConfig  `yaml:"security" json:"security"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Minecraft MinecraftConfig `yaml:"minecraft" json:"minecraft"`
	RCON      RCONConfig      `yaml:"rcon" json:"rcon"`

	// ConfigDir is where the config file (and schedules.yaml) live.
	ConfigDir string `yaml:"-" json:"-"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path" json:"path"`
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret" json:"jwt_secret"`
	TokenDuration string `yaml:"token_duration" json:"token_duration"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" json:"cors"`
}

// RateLimitConfig contains rate limiting settings
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// CORSConfig contains CORS settings
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
}

// MinecraftConfig describes the supervised server process.
type MinecraftConfig struct {
	ID             string        `yaml:"id" json:"id"`
	ServerPath     string        `yaml:"server_path" json:"server_path"`
	PIDFile        string        `yaml:"pid_file" json:"pid_file"`
	ProcessName    string        `yaml:"process_name" json:"process_name"`
	LogFile        string        `yaml:"log_file" json:"log_file"`
	Control        ControlConfig `yaml:"control" json:"control"`
	StartTimeout   string        `yaml:"start_timeout" json:"start_timeout"`
	StopTimeout    string        `yaml:"stop_timeout" json:"stop_timeout"`
	KillTimeout    string        `yaml:"kill_timeout" json:"kill_timeout"`
	PollInterval   string        `yaml:"poll_interval" json:"poll_interval"`
	RestartDelay   string        `yaml:"restart_delay" json:"restart_delay"`
	StopStrategy   string        `yaml:"stop_strategy" json:"stop_strategy"` // "rcon" or "script"
	StopCommands   []string      `yaml:"stop_commands" json:"stop_commands"`
	StatusInterval string        `yaml:"status_interval" json:"status_interval"`
}

// ControlConfig selects how start/stop/restart are carried out.
type ControlConfig struct {
	Type        string `yaml:"type" json:"type"` // "script" or "systemd"
	Script      string `yaml:"script" json:"script"`
	SystemdUnit string `yaml:"systemd_unit" json:"systemd_unit"`
	Timeout     string `yaml:"timeout" json:"timeout"`
}

// RCONConfig contains the remote console connection settings. Host, port and
// password left empty are read from properties_file.
type RCONConfig struct {
	Host           string `yaml:"host" json:"host"`
	Port           int    `yaml:"port" json:"port"`
	Password       string `yaml:"password" json:"-"`
	PropertiesFile string `yaml:"properties_file" json:"properties_file"`
	ConnectTimeout string `yaml:"connect_timeout" json:"connect_timeout"`
	ReadTimeout    string `yaml:"read_timeout" json:"read_timeout"`
	Fragmentation  string `yaml:"fragmentation" json:"fragmentation"` // "sentinel" or "idle"
	FragmentWait   string `yaml:"fragment_wait" json:"fragment_wait"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Path: "./data/mc-simple.db",
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", "change-me-in-production"),
			TokenDuration: "24h",
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
			},
			CORS: CORSConfig{
				AllowedOrigins: []string{"http://localhost:5173"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			File:       "",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
		Minecraft: MinecraftConfig{
			ID:          "minecraft",
			ServerPath:  "./server",
			PIDFile:     "server.pid",
			ProcessName: "java",
			LogFile:     "logs/latest.log",
			Control: ControlConfig{
				Type:    "script",
				Script:  "manage-control.sh",
				Timeout: "60s",
			},
			StartTimeout:   "30s",
			StopTimeout:    "30s",
			KillTimeout:    "10s",
			PollInterval:   "500ms",
			RestartDelay:   "0s",
			StopStrategy:   "rcon",
			StopCommands:   []string{"save-all", "stop"},
			StatusInterval: "5s",
		},
		RCON: RCONConfig{
			PropertiesFile: "server.properties",
			ConnectTimeout: "5s",
			ReadTimeout:    "5s",
			Fragmentation:  "sentinel",
			FragmentWait:   "150ms",
		},
	}
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	return LoadFile(GetConfigPath())
}

// LoadFile loads the config at path on top of the defaults. A missing file is
// not an error.
func LoadFile(configPath string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.normalizePaths(configPath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.Auth.JWTSecret = jwtSecret
	}

	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		c.Database.Path = dbPath
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	if serverPath := os.Getenv("MC_SERVER_PATH"); serverPath != "" {
		c.Minecraft.ServerPath = serverPath
	}

	if password := os.Getenv("RCON_PASSWORD"); password != "" {
		c.RCON.Password = password
	}

	if host := os.Getenv("RCON_HOST"); host != "" {
		c.RCON.Host = host
	}

	if port := os.Getenv("RCON_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("RCON_PORT must be a number: %w", err)
		}
		c.RCON.Port = p
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" || c.Auth.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET must be set to a secure value")
	}

	// Check for unexpanded environment variables
	if strings.HasPrefix(c.Auth.JWTSecret, "${") {
		return fmt.Errorf("JWT_SECRET contains unexpanded environment variable")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}

	if strings.TrimSpace(c.Minecraft.ServerPath) == "" {
		return fmt.Errorf("minecraft server_path is required")
	}

	switch c.Minecraft.Control.Type {
	case "script":
		if strings.TrimSpace(c.Minecraft.Control.Script) == "" {
			return fmt.Errorf("control script is required when control type is 'script'")
		}
	case "systemd":
		if strings.TrimSpace(c.Minecraft.Control.SystemdUnit) == "" {
			return fmt.Errorf("systemd_unit is required when control type is 'systemd'")
		}
	default:
		return fmt.Errorf("control type must be 'script' or 'systemd'")
	}

	if c.Minecraft.StopStrategy != "rcon" && c.Minecraft.StopStrategy != "script" {
		return fmt.Errorf("stop_strategy must be 'rcon' or 'script'")
	}

	if c.RCON.Fragmentation != "sentinel" && c.RCON.Fragmentation != "idle" {
		return fmt.Errorf("rcon fragmentation must be 'sentinel' or 'idle'")
	}

	if c.RCON.Port < 0 || c.RCON.Port > 65535 {
		return fmt.Errorf("rcon port must be between 0 and 65535")
	}

	durations := map[string]string{
		"auth.token_duration":       c.Auth.TokenDuration,
		"minecraft.control.timeout": c.Minecraft.Control.Timeout,
		"minecraft.start_timeout":   c.Minecraft.StartTimeout,
		"minecraft.stop_timeout":    c.Minecraft.StopTimeout,
		"minecraft.kill_timeout":    c.Minecraft.KillTimeout,
		"minecraft.poll_interval":   c.Minecraft.PollInterval,
		"minecraft.restart_delay":   c.Minecraft.RestartDelay,
		"minecraft.status_interval": c.Minecraft.StatusInterval,
		"rcon.connect_timeout":      c.RCON.ConnectTimeout,
		"rcon.read_timeout":         c.RCON.ReadTimeout,
		"rcon.fragment_wait":        c.RCON.FragmentWait,
	}
	for key, value := range durations {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: invalid duration %q", key, value)
		}
	}

	return nil
}

// Duration parses value, returning fallback when it is empty or invalid.
func Duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func resolveConfigPath() string {
	candidates := []string{"../configs/config.yaml", "./configs/config.yaml"}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "./configs/config.yaml"
}

// GetConfigPath returns the resolved config path
func GetConfigPath() string {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = resolveConfigPath()
	}
	return configPath
}

// Save writes the configuration back to disk
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// normalizePaths makes the database and log paths absolute relative to the
// project root, and the server files relative to server_path.
func (c *Config) normalizePaths(configPath string) {
	baseDir := filepath.Dir(configPath)
	if !filepath.IsAbs(baseDir) {
		if absBase, err := filepath.Abs(baseDir); err == nil {
			baseDir = absBase
		}
	}
	c.ConfigDir = baseDir

	rootDir := baseDir
	if filepath.Base(baseDir) == "configs" {
		rootDir = filepath.Dir(baseDir)
	}

	resolveAgainst := func(dir, value string) string {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return ""
		}
		if filepath.IsAbs(trimmed) {
			return filepath.Clean(trimmed)
		}
		return filepath.Clean(filepath.Join(dir, trimmed))
	}

	if strings.TrimSpace(c.Database.Path) == "" {
		c.Database.Path = filepath.Join(rootDir, "data", "mc-simple.db")
	}
	c.Database.Path = resolveAgainst(rootDir, c.Database.Path)
	c.Logging.File = resolveAgainst(rootDir, c.Logging.File)

	c.Minecraft.ServerPath = resolveAgainst(rootDir, c.Minecraft.ServerPath)
	serverDir := c.Minecraft.ServerPath
	c.Minecraft.PIDFile = resolveAgainst(serverDir, c.Minecraft.PIDFile)
	c.Minecraft.LogFile = resolveAgainst(serverDir, c.Minecraft.LogFile)
	c.Minecraft.Control.Script = resolveAgainst(serverDir, c.Minecraft.Control.Script)
	c.RCON.PropertiesFile = resolveAgainst(serverDir, c.RCON.PropertiesFile)
}
