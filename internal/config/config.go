// Package config loads and watches the bot configuration file.
//
// The file is YAML. Durations are Go duration strings (e.g. "15s", "5m").
// Unknown keys are rejected so typos fail loudly at startup instead of
// silently running with defaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Config is the resolved runtime configuration with defaults applied.
type Config struct {
	Telegram TelegramConfig
	Poll     PollConfig
	Breaker  BreakerConfig
	Render   RenderConfig
	Pulse    PulseConfig
	Storage  StorageConfig
	Logging  LoggingConfig
}

type TelegramConfig struct {
	Token      string
	RatePerSec int
}

// PollConfig controls the top-level update loop.
type PollConfig struct {
	Period    time.Duration
	BatchSize int
	LockTTL   time.Duration
}

// BreakerConfig controls the per-source failure circuit breaker.
type BreakerConfig struct {
	Threshold      int
	Window         time.Duration
	ResumeCooldown time.Duration
}

type RenderConfig struct {
	MaxUnits int
	MaxText  int
}

type PulseConfig struct {
	Timeout time.Duration
}

type StorageConfig struct {
	Path        string
	BusyTimeout time.Duration
}

type LoggingConfig struct {
	Level   string
	Console bool
	File    LoggingFile
}

type LoggingFile struct {
	Enabled bool
	Path    string
}

// fileConfig mirrors the YAML layout with durations as strings.
type fileConfig struct {
	Telegram struct {
		Token      string `yaml:"token"`
		RatePerSec int    `yaml:"rate_per_sec"`
	} `yaml:"telegram"`
	Poll struct {
		Period    string `yaml:"period"`
		BatchSize int    `yaml:"batch_size"`
		LockTTL   string `yaml:"lock_ttl"`
	} `yaml:"poll"`
	Breaker struct {
		Threshold      int    `yaml:"threshold"`
		Window         string `yaml:"window"`
		ResumeCooldown string `yaml:"resume_cooldown"`
	} `yaml:"breaker"`
	Render struct {
		MaxUnits int `yaml:"max_units"`
		MaxText  int `yaml:"max_text"`
	} `yaml:"render"`
	Pulse struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"pulse"`
	Storage struct {
		Path        string `yaml:"path"`
		BusyTimeout string `yaml:"busy_timeout"`
	} `yaml:"storage"`
	Logging struct {
		Level   string `yaml:"level"`
		Console *bool  `yaml:"console"`
		File    struct {
			Enabled bool   `yaml:"enabled"`
			Path    string `yaml:"path"`
		} `yaml:"file"`
	} `yaml:"logging"`
}

// Defaults from the operational envelope: a 15s poll with batches of 100
// sources, 20s debounce locks, pause after 3 contiguous failures within 5m.
const (
	defaultPeriod         = 15 * time.Second
	defaultBatchSize      = 100
	defaultLockTTL        = 20 * time.Second
	defaultThreshold      = 3
	defaultWindow         = 5 * time.Minute
	defaultResumeCooldown = 60 * time.Second
	defaultMaxUnits       = 10
	defaultMaxText        = 500
	defaultPulseTimeout   = 10 * time.Second
	defaultRatePerSec     = 25
	defaultStoragePath    = "./pulsebot.db"
	defaultBusyTimeout    = 5 * time.Second
)

// durationOr parses a duration field, substituting def for an absent or
// zero value. Negative durations are rejected; path names the field in the
// error.
func durationOr(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

// Load reads, parses and validates the config file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parse(b)
}

func parse(b []byte) (*Config, error) {
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{}
	cfg.Telegram.Token = strings.TrimSpace(fc.Telegram.Token)
	if cfg.Telegram.Token == "" {
		return nil, fmt.Errorf("config: telegram.token is required")
	}
	cfg.Telegram.RatePerSec = fc.Telegram.RatePerSec
	if cfg.Telegram.RatePerSec <= 0 {
		cfg.Telegram.RatePerSec = defaultRatePerSec
	}

	var err error
	if cfg.Poll.Period, err = durationOr("poll.period", fc.Poll.Period, defaultPeriod); err != nil {
		return nil, err
	}
	cfg.Poll.BatchSize = fc.Poll.BatchSize
	if cfg.Poll.BatchSize <= 0 {
		cfg.Poll.BatchSize = defaultBatchSize
	}
	if cfg.Poll.LockTTL, err = durationOr("poll.lock_ttl", fc.Poll.LockTTL, defaultLockTTL); err != nil {
		return nil, err
	}

	cfg.Breaker.Threshold = fc.Breaker.Threshold
	if cfg.Breaker.Threshold <= 0 {
		cfg.Breaker.Threshold = defaultThreshold
	}
	if cfg.Breaker.Window, err = durationOr("breaker.window", fc.Breaker.Window, defaultWindow); err != nil {
		return nil, err
	}
	if cfg.Breaker.ResumeCooldown, err = durationOr("breaker.resume_cooldown", fc.Breaker.ResumeCooldown, defaultResumeCooldown); err != nil {
		return nil, err
	}

	cfg.Render.MaxUnits = fc.Render.MaxUnits
	if cfg.Render.MaxUnits <= 0 || cfg.Render.MaxUnits > defaultMaxUnits {
		cfg.Render.MaxUnits = defaultMaxUnits
	}
	cfg.Render.MaxText = fc.Render.MaxText
	if cfg.Render.MaxText <= 0 {
		cfg.Render.MaxText = defaultMaxText
	}

	if cfg.Pulse.Timeout, err = durationOr("pulse.timeout", fc.Pulse.Timeout, defaultPulseTimeout); err != nil {
		return nil, err
	}

	cfg.Storage.Path = strings.TrimSpace(fc.Storage.Path)
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = defaultStoragePath
	}
	if cfg.Storage.BusyTimeout, err = durationOr("storage.busy_timeout", fc.Storage.BusyTimeout, defaultBusyTimeout); err != nil {
		return nil, err
	}

	cfg.Logging.Level = strings.TrimSpace(fc.Logging.Level)
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	cfg.Logging.Console = true
	if fc.Logging.Console != nil {
		cfg.Logging.Console = *fc.Logging.Console
	}
	cfg.Logging.File.Enabled = fc.Logging.File.Enabled
	cfg.Logging.File.Path = fc.Logging.File.Path
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		return nil, fmt.Errorf("config: logging.file.path is required when file logging is enabled")
	}

	if cfg.Poll.LockTTL <= cfg.Poll.Period {
		// The lock doubles as the "updated recently" marker; a TTL shorter
		// than the poll period would never debounce anything.
		return nil, fmt.Errorf("config: poll.lock_ttl (%s) must exceed poll.period (%s)", cfg.Poll.LockTTL, cfg.Poll.Period)
	}
	return cfg, nil
}
