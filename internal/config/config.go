package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Speech recognition settings
	Speech struct {
		Language          string        `yaml:"language"`
		Sensitivity       float64       `yaml:"sensitivity"`
		ContinuousMode    bool          `yaml:"continuous_mode"`
		AdaptiveThreshold bool          `yaml:"adaptive_threshold"`
		Timeout           time.Duration `yaml:"timeout"`
		RetryDelay        time.Duration `yaml:"retry_delay"`
		MaxRetries        int           `yaml:"max_retries"`
		MaxAlternatives   int           `yaml:"max_alternatives"`
		NoSpeechTimeout   time.Duration `yaml:"no_speech_timeout"`
	} `yaml:"speech"`

	// Audio settings
	Audio struct {
		Device     string `yaml:"device"`
		SampleRate int    `yaml:"sample_rate"`
	} `yaml:"audio"`

	// Model settings
	Model struct {
		Default string `yaml:"default"`
		Path    string `yaml:"path"`
	} `yaml:"model"`

	// Task storage settings
	Tasks struct {
		Store  string `yaml:"store"`
		DBPath string `yaml:"db_path"`
	} `yaml:"tasks"`

	// Spoken feedback settings
	Feedback struct {
		Enabled bool    `yaml:"enabled"`
		Engine  string  `yaml:"engine"`
		Voice   string  `yaml:"voice"`
		Rate    float64 `yaml:"rate"`
	} `yaml:"feedback"`

	// Server settings
	Server struct {
		Host     string `yaml:"host"`
		GRPCPort int    `yaml:"grpc_port"`
		HTTPAddr string `yaml:"http_addr"`
	} `yaml:"server"`

	// Input settings
	Input struct {
		Hotkey string `yaml:"hotkey"`
	} `yaml:"input"`

	// Logging settings
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"

	FeedbackConsole = "console"
	FeedbackPiper   = "piper"
)

var (
	// userConfigName lives in the home directory
	userConfigName = ".voxtaskrc"
	// systemConfigPath is the machine-wide fallback
	systemConfigPath = "/etc/voxtask/config.yaml"
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Speech defaults
	cfg.Speech.Language = "en-US"
	cfg.Speech.Sensitivity = 0.5
	cfg.Speech.ContinuousMode = false
	cfg.Speech.AdaptiveThreshold = true
	cfg.Speech.Timeout = 10 * time.Second
	cfg.Speech.RetryDelay = time.Second
	cfg.Speech.MaxRetries = 2
	cfg.Speech.MaxAlternatives = 3
	cfg.Speech.NoSpeechTimeout = 5 * time.Second

	// Audio defaults
	cfg.Audio.Device = ""
	cfg.Audio.SampleRate = 16000

	// Model defaults; an empty name picks the model for Speech.Language
	cfg.Model.Default = ""

	// Task defaults
	cfg.Tasks.Store = StoreSQLite

	// Feedback defaults
	cfg.Feedback.Enabled = true
	cfg.Feedback.Engine = FeedbackConsole
	cfg.Feedback.Rate = 1.0

	// Server defaults
	cfg.Server.Host = "localhost"
	cfg.Server.GRPCPort = 50051
	cfg.Server.HTTPAddr = "localhost:8080"

	// Input defaults
	cfg.Input.Hotkey = "ctrl+shift+space"

	// Logging defaults
	cfg.Logging.Level = "info"

	return cfg
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// ResolvePath returns the file LoadWithFallback would read, or "" when
// defaults would be used
func ResolvePath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfigPath := filepath.Join(homeDir, userConfigName)
		if _, err := os.Stat(userConfigPath); err == nil {
			return userConfigPath
		}
	}

	if _, err := os.Stat(systemConfigPath); err == nil {
		return systemConfigPath
	}
	return ""
}

// LoadWithFallback attempts to load configuration from multiple locations
// Priority: explicit path > ~/.voxtaskrc > /etc/voxtask/config.yaml
func LoadWithFallback(explicitPath string) (*Config, error) {
	// If explicit path is provided, use it
	if explicitPath != "" {
		return Load(explicitPath)
	}

	// Try user config (~/.voxtaskrc)
	homeDir, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(homeDir, userConfigName)
		if _, err := os.Stat(userConfigPath); err == nil {
			cfg, err := Load(userConfigPath)
			if err == nil {
				return cfg, nil
			}
		}
	}

	// Try system config (/etc/voxtask/config.yaml)
	if _, err := os.Stat(systemConfigPath); err == nil {
		cfg, err := Load(systemConfigPath)
		if err == nil {
			return cfg, nil
		}
	}

	// No config file found, return defaults
	return DefaultConfig(), nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	var errs []error

	if c.Speech.Sensitivity < 0 || c.Speech.Sensitivity > 1 {
		errs = append(errs, fmt.Errorf("speech.sensitivity must be between 0 and 1, got %v", c.Speech.Sensitivity))
	}
	if c.Speech.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("speech.timeout must be positive"))
	}
	if c.Speech.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("speech.retry_delay must not be negative"))
	}
	if c.Speech.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("speech.max_retries must not be negative"))
	}
	if c.Speech.MaxAlternatives < 0 {
		errs = append(errs, fmt.Errorf("speech.max_alternatives must not be negative"))
	}
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive"))
	}
	switch c.Tasks.Store {
	case StoreSQLite, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("tasks.store must be %q or %q, got %q", StoreSQLite, StoreMemory, c.Tasks.Store))
	}
	switch c.Feedback.Engine {
	case FeedbackConsole, FeedbackPiper:
	default:
		errs = append(errs, fmt.Errorf("feedback.engine must be %q or %q, got %q", FeedbackConsole, FeedbackPiper, c.Feedback.Engine))
	}
	if c.Feedback.Rate <= 0 {
		errs = append(errs, fmt.Errorf("feedback.rate must be positive"))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
