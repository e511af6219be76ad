package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full process configuration, loaded once at startup.
type Config struct {
	Portal    PortalConfig    `yaml:"portal"`
	Database  DatabaseConfig  `yaml:"database"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// PortalConfig holds the appointment portal location and credentials.
type PortalConfig struct {
	URL         string `yaml:"url"`
	Email       string `yaml:"email"`
	Password    string `yaml:"password"`
	SnapshotDir string `yaml:"snapshot_dir"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type TelegramConfig struct {
	Token string `yaml:"token"`
	// APIURL overrides the Bot API base URL (tests, local proxies).
	APIURL string `yaml:"api_url"`
}

type SchedulerConfig struct {
	Interval   time.Duration `yaml:"-"`
	RunTimeout time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling.
	IntervalRaw   string `yaml:"interval"`
	RunTimeoutRaw string `yaml:"run_timeout"`
}

type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references with the environment value.
// Unset variables expand to the empty string.
func expandEnv(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Load reads, expands and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(expandEnv(data), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) finalize() error {
	if c.Portal.URL == "" {
		return fmt.Errorf("portal.url is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Portal.SnapshotDir == "" {
		c.Portal.SnapshotDir = "snapshots"
	}
	if c.Telegram.APIURL == "" {
		c.Telegram.APIURL = "https://api.telegram.org"
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	var err error
	if c.Scheduler.Interval, err = parseDuration(c.Scheduler.IntervalRaw, 10*time.Minute); err != nil {
		return fmt.Errorf("scheduler.interval: %w", err)
	}
	if c.Scheduler.RunTimeout, err = parseDuration(c.Scheduler.RunTimeoutRaw, 5*time.Minute); err != nil {
		return fmt.Errorf("scheduler.run_timeout: %w", err)
	}
	return nil
}

func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %q", raw)
	}
	return d, nil
}
