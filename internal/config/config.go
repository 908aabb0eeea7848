package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete configuration for the server.
type Config struct {
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
	Port        string         `mapstructure:"port"`
	CORSOrigins []string       `mapstructure:"cors_origins"`
	Database    DatabaseConfig `mapstructure:"database"`
	Upstream    UpstreamConfig `mapstructure:"upstream"`
	Refresh     RefreshConfig  `mapstructure:"refresh"`
	Submit      SubmitConfig   `mapstructure:"submit"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type UpstreamConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	GameID  string        `mapstructure:"game_id"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RefreshConfig struct {
	// TTL is the staleness window after which a full resync of runs or users
	// becomes due.
	TTL time.Duration `mapstructure:"ttl"`
	// LevelCooldown is the minimum interval between on-demand refreshes of a
	// single level.
	LevelCooldown time.Duration `mapstructure:"level_cooldown"`
}

type SubmitConfig struct {
	// PasswordHash is the Argon2id hash of the shift submission password.
	// Submissions are disabled when empty.
	PasswordHash  string        `mapstructure:"password_hash"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	LockoutWindow time.Duration `mapstructure:"lockout_window"`
}

// Load loads configuration from environment variables with defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("port", "3006")
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("database.path", "qcls-data.db3")
	v.SetDefault("upstream.base_url", "https://www.speedrun.com/api/v1")
	v.SetDefault("upstream.game_id", "9d3eqg1l")
	v.SetDefault("upstream.timeout", 15*time.Second)
	v.SetDefault("refresh.ttl", 24*time.Hour)
	v.SetDefault("refresh.level_cooldown", time.Minute)
	v.SetDefault("submit.max_attempts", 5)
	v.SetDefault("submit.lockout_window", 10*time.Minute)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("environment", "ENVIRONMENT")
	v.BindEnv("log_level", "LOG_LEVEL")
	v.BindEnv("port", "PORT")
	v.BindEnv("cors_origins", "CORS_ORIGINS")
	v.BindEnv("database.path", "DATABASE_PATH")
	v.BindEnv("upstream.base_url", "UPSTREAM_BASE_URL")
	v.BindEnv("upstream.game_id", "UPSTREAM_GAME_ID")
	v.BindEnv("upstream.timeout", "UPSTREAM_TIMEOUT")
	v.BindEnv("refresh.ttl", "REFRESH_TTL")
	v.BindEnv("refresh.level_cooldown", "REFRESH_LEVEL_COOLDOWN")
	v.BindEnv("submit.password_hash", "SUBMIT_PASSWORD_HASH")
	v.BindEnv("submit.max_attempts", "SUBMIT_MAX_ATTEMPTS")
	v.BindEnv("submit.lockout_window", "SUBMIT_LOCKOUT_WINDOW")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Origins may come as a single comma-separated string from env.
	origins := v.GetString("cors_origins")
	if origins != "" && strings.Contains(origins, ",") {
		config.CORSOrigins = strings.Split(origins, ",")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url is required")
	}
	if c.Upstream.GameID == "" {
		return errors.New("upstream.game_id is required")
	}
	if c.Refresh.TTL <= 0 {
		return errors.New("refresh.ttl must be positive")
	}
	if c.Refresh.LevelCooldown <= 0 {
		return errors.New("refresh.level_cooldown must be positive")
	}
	if c.Submit.MaxAttempts <= 0 {
		return errors.New("submit.max_attempts must be positive")
	}
	return nil
}
