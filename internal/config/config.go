package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DatabaseURLEnv overrides databaseURL from the config file when set
const DatabaseURLEnv = "DATABASE_URL"

const (
	defaultHTTPAddress       = ":8080"
	defaultCohostPosition    = "cohost"
	defaultLogDir            = "logs"
	defaultGenerationTimeout = 5 * time.Minute
	defaultLockTTL           = 10 * time.Minute

	// lockTTLMargin is how much longer than generationTimeout a derived lockTTL lasts
	lockTTLMargin = time.Minute
)

// RedisConfig enables the cross-process generation lock
type RedisConfig struct {
	Address  string        `yaml:"address" validate:"required"`
	Username string        `yaml:"username,omitempty"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db,omitempty" validate:"min=0"`
	LockTTL  time.Duration `yaml:"lockTTL,omitempty" validate:"min=0"`
}

// Config represents the application configuration
type Config struct {
	DatabaseURL       string        `yaml:"databaseURL" validate:"required"`
	HTTPAddress       string        `yaml:"httpAddress" validate:"required"`
	AllowedOrigins    []string      `yaml:"allowedOrigins,omitempty" validate:"dive,required"`
	CohostPosition    string        `yaml:"cohostPosition" validate:"required"`
	RandomSeed        *uint64       `yaml:"randomSeed,omitempty"`
	GenerationTimeout time.Duration `yaml:"generationTimeout,omitempty" validate:"min=0"`
	LogDir            string        `yaml:"logDir" validate:"required"`
	Redis             *RedisConfig  `yaml:"redis,omitempty"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Load loads and validates the configuration for env from <env>_live_schedule.yaml.
// It looks for the config file in the current directory first, then in the user's home directory.
func Load(env string) (*Config, error) {
	configPath, err := findConfigFile(FileName(env))
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// FileName returns the config file name for env
func FileName(env string) string {
	return fmt.Sprintf("%s_live_schedule.yaml", env)
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML, applies defaults and environment overrides, then validates
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	if url := os.Getenv(DatabaseURLEnv); url != "" {
		cfg.DatabaseURL = url
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTPAddress == "" {
		cfg.HTTPAddress = defaultHTTPAddress
	}
	if cfg.CohostPosition == "" {
		cfg.CohostPosition = defaultCohostPosition
	}
	if cfg.LogDir == "" {
		cfg.LogDir = defaultLogDir
	}
	if cfg.GenerationTimeout == 0 {
		cfg.GenerationTimeout = defaultGenerationTimeout
	}
	if cfg.Redis != nil && cfg.Redis.LockTTL == 0 {
		cfg.Redis.LockTTL = max(defaultLockTTL, cfg.GenerationTimeout+lockTTLMargin)
	}
}

// Validate validates the configuration struct
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// The Redis lock is never refreshed, so it must outlive the longest run
	if cfg.Redis != nil {
		if cfg.GenerationTimeout <= 0 {
			return fmt.Errorf("config validation failed: generationTimeout must be set when redis is configured")
		}
		if cfg.Redis.LockTTL <= cfg.GenerationTimeout {
			return fmt.Errorf("config validation failed: redis.lockTTL (%s) must be longer than generationTimeout (%s)",
				cfg.Redis.LockTTL, cfg.GenerationTimeout)
		}
	}
	return nil
}

// findConfigFile searches for the config file in current directory and home directory
func findConfigFile(configFileName string) (string, error) {
	// Check current directory
	if _, err := os.Stat(configFileName); err == nil {
		return configFileName, nil
	}

	// Check home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homeConfigPath := filepath.Join(homeDir, configFileName)
	if _, err := os.Stat(homeConfigPath); err == nil {
		return homeConfigPath, nil
	}

	return "", fmt.Errorf("%s not found in current directory or home directory", configFileName)
}
