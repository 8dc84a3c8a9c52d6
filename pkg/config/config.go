package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/de-tools/recon-atlas/pkg/models/domain"
	"github.com/de-tools/recon-atlas/pkg/services/matching"
	"github.com/de-tools/recon-atlas/pkg/services/scoring"
)

const EnvPrefix = "RECON"

type Config struct {
	Matching  MatchingConfig      `mapstructure:"matching"`
	Scoring   scoring.Config      `mapstructure:"scoring"`
	Session   SessionConfig       `mapstructure:"session"`
	Storage   StorageConfig       `mapstructure:"storage"`
	Rules     RulesConfig         `mapstructure:"rules"`
	History   HistoryConfig       `mapstructure:"history"`
	Documents DocumentsConfig     `mapstructure:"documents"`
	Features  domain.FeatureFlags `mapstructure:"features"`
	Log       LogConfig           `mapstructure:"log"`
	Server    ServerConfig        `mapstructure:"server"`
}

type MatchingConfig struct {
	ExactTolerance string  `mapstructure:"exact_tolerance"`
	FuzzyFloor     float64 `mapstructure:"fuzzy_floor"`
	NameWeight     float64 `mapstructure:"name_weight"`
	AmountWeight   float64 `mapstructure:"amount_weight"`
	CalculatedBand float64 `mapstructure:"calculated_band"`
	MinReliability float64 `mapstructure:"min_reliability"`
}

// Engine converts the section into engine settings.
func (m MatchingConfig) Engine() (matching.Config, error) {
	tolerance, err := decimal.NewFromString(m.ExactTolerance)
	if err != nil {
		return matching.Config{}, fmt.Errorf("matching.exact_tolerance %q: %w", m.ExactTolerance, err)
	}
	return matching.Config{
		ExactTolerance: tolerance,
		FuzzyFloor:     m.FuzzyFloor,
		NameWeight:     m.NameWeight,
		AmountWeight:   m.AmountWeight,
		CalculatedBand: m.CalculatedBand,
		MinReliability: m.MinReliability,
	}, nil
}

type SessionConfig struct {
	Workers int `mapstructure:"workers"`
}

type StorageBackend string

const (
	StorageMemory StorageBackend = "memory"
	StorageSQL    StorageBackend = "sql"
	StorageBadger StorageBackend = "badger"
)

type StorageConfig struct {
	Backend StorageBackend `mapstructure:"backend"`
	Driver  string         `mapstructure:"driver"`
	DSN     string         `mapstructure:"dsn"`
	Dir     string         `mapstructure:"dir"`
}

type RulesConfig struct {
	// File adds rules from a YAML file to the built-in table.
	File     string   `mapstructure:"file"`
	Disabled []string `mapstructure:"disabled"`
}

type HistoryConfig struct {
	File string `mapstructure:"file"`
}

type DocumentsConfig struct {
	File string `mapstructure:"file"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func setDefaults(v *viper.Viper) {
	m := matching.DefaultConfig()
	v.SetDefault("matching.exact_tolerance", m.ExactTolerance.String())
	v.SetDefault("matching.fuzzy_floor", m.FuzzyFloor)
	v.SetDefault("matching.name_weight", m.NameWeight)
	v.SetDefault("matching.amount_weight", m.AmountWeight)
	v.SetDefault("matching.calculated_band", m.CalculatedBand)
	v.SetDefault("matching.min_reliability", m.MinReliability)

	s := scoring.DefaultConfig()
	v.SetDefault("scoring.account_weight", s.AccountWeight)
	v.SetDefault("scoring.amount_weight", s.AmountWeight)
	v.SetDefault("scoring.date_weight", s.DateWeight)
	v.SetDefault("scoring.context_weight", s.ContextWeight)
	v.SetDefault("scoring.date_decay_periods", s.DateDecayPeriods)
	v.SetDefault("scoring.high_reliability", s.HighReliability)
	v.SetDefault("scoring.context_baseline", s.ContextBaseline)
	v.SetDefault("scoring.pass_threshold", s.PassThreshold)
	v.SetDefault("scoring.warning_threshold", s.WarningThreshold)

	v.SetDefault("session.workers", 4)

	v.SetDefault("storage.backend", string(StorageMemory))
	v.SetDefault("storage.driver", "sqlite3")
	v.SetDefault("storage.dsn", "recon.db")
	v.SetDefault("storage.dir", "recon-data")

	v.SetDefault("rules.file", "")
	v.SetDefault("rules.disabled", []string{})
	v.SetDefault("history.file", "")
	v.SetDefault("documents.file", "")

	flags := domain.DefaultFeatureFlags()
	v.SetDefault("features.fuzzy_matching", flags.FuzzyMatching)
	v.SetDefault("features.inferred_matching", flags.InferredMatching)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
}

// Load reads the optional config file, applies RECON_* environment overrides
// (e.g. RECON_STORAGE_BACKEND) and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Matching.Engine(); err != nil {
		errs = append(errs, err)
	}
	if c.Matching.FuzzyFloor <= 0 || c.Matching.FuzzyFloor > 1 {
		errs = append(errs, fmt.Errorf("matching.fuzzy_floor must be in (0,1], got %v", c.Matching.FuzzyFloor))
	}
	if !sumsToOne(c.Matching.NameWeight, c.Matching.AmountWeight) {
		errs = append(errs, errors.New("matching.name_weight and matching.amount_weight must sum to 1"))
	}
	if c.Matching.CalculatedBand <= 0 {
		errs = append(errs, errors.New("matching.calculated_band must be positive"))
	}

	sc := c.Scoring
	if !sumsToOne(sc.AccountWeight, sc.AmountWeight, sc.DateWeight, sc.ContextWeight) {
		errs = append(errs, errors.New("scoring weights must sum to 1"))
	}
	if sc.WarningThreshold < 0 || sc.WarningThreshold > sc.PassThreshold || sc.PassThreshold > 100 {
		errs = append(errs, fmt.Errorf("scoring thresholds must satisfy 0 <= warning (%v) <= pass (%v) <= 100",
			sc.WarningThreshold, sc.PassThreshold))
	}

	if c.Session.Workers < 1 {
		errs = append(errs, fmt.Errorf("session.workers must be at least 1, got %d", c.Session.Workers))
	}

	switch c.Storage.Backend {
	case StorageMemory:
	case StorageSQL:
		if c.Storage.Driver == "" || c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.driver and storage.dsn are required for the sql backend"))
		}
	case StorageBadger:
		if c.Storage.Dir == "" {
			errs = append(errs, errors.New("storage.dir is required for the badger backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}

	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must not be negative"))
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

func sumsToOne(weights ...float64) bool {
	total := 0.0
	for _, w := range weights {
		if w < 0 {
			return false
		}
		total += w
	}
	return math.Abs(total-1) < 1e-6
}
