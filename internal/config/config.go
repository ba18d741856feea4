package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	AWS      AWSConfig      `yaml:"aws"`
	APNs     APNsConfig     `yaml:"apns"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
	Game     GameConfig     `yaml:"game"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// AWSConfig holds the S3 transcript archive configuration.
// The archive is disabled while S3Bucket is empty.
type AWSConfig struct {
	Region    string `yaml:"region"`
	S3Bucket  string `yaml:"s3_bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"`
}

// APNsConfig holds push notification configuration
type APNsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	KeyPath    string `yaml:"key_path"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// GameConfig holds matchmaking and game rules
type GameConfig struct {
	// PairingOrder is "lifo" (pair with the latest arrival) or "fifo"
	PairingOrder       string        `yaml:"pairing_order"`
	DifficultyCeiling  int           `yaml:"difficulty_ceiling"`
	QuestionSource     string        `yaml:"question_source"`
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`
	JanitorInterval    time.Duration `yaml:"janitor_interval"`
}

// MetricsConfig holds Prometheus configuration
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates it
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.AWS.Region == "" {
		c.AWS.Region = "us-east-1"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Game.PairingOrder == "" {
		c.Game.PairingOrder = "lifo"
	}
	if c.Game.DifficultyCeiling == 0 {
		c.Game.DifficultyCeiling = 2
	}
	if c.Game.QuestionSource == "" {
		c.Game.QuestionSource = "builtin"
	}
	if c.Game.JanitorInterval == 0 {
		c.Game.JanitorInterval = 30 * time.Second
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "truthdare"
	}
}

// Validate checks values that have no safe default
func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server.port (must be between 1-65535 inclusive): %d", c.Server.Port))
	}
	switch c.Game.PairingOrder {
	case "lifo", "fifo":
	default:
		errs = append(errs, fmt.Errorf("invalid game.pairing_order %q (want lifo or fifo)", c.Game.PairingOrder))
	}
	switch c.Game.QuestionSource {
	case "builtin", "postgres":
	default:
		errs = append(errs, fmt.Errorf("invalid game.question_source %q (want builtin or postgres)", c.Game.QuestionSource))
	}
	if c.Game.DifficultyCeiling < 1 {
		errs = append(errs, fmt.Errorf("invalid game.difficulty_ceiling: %d", c.Game.DifficultyCeiling))
	}
	if c.Game.SessionIdleTimeout < 0 {
		errs = append(errs, errors.New("game.session_idle_timeout must not be negative"))
	}
	if c.Game.JanitorInterval < 0 {
		errs = append(errs, errors.New("game.janitor_interval must not be negative"))
	}
	if c.APNs.Enabled && (c.APNs.KeyPath == "" || c.APNs.KeyID == "" || c.APNs.TeamID == "" || c.APNs.Topic == "") {
		errs = append(errs, errors.New("apns.key_path, apns.key_id, apns.team_id and apns.topic are required when apns is enabled"))
	}
	return errors.Join(errs...)
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
