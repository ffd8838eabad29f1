package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar names the environment variable holding the config file path.
const PathEnvVar = "CINEGENIO_CONFIG"

const envPrefix = "CINEGENIO_"

// DefaultPaths are searched when no config path is given.
var DefaultPaths = []string{
	"cinegenio.yaml",
	"cinegenio.yml",
	"/etc/cinegenio/config.yaml",
}

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Storage StorageConfig `koanf:"storage"`
	TMDB    TMDBConfig    `koanf:"tmdb"`
	Oracle  OracleConfig  `koanf:"oracle"`
	Radar   RadarConfig   `koanf:"radar"`
	Logging LoggingConfig `koanf:"logging"`
}

type ServerConfig struct {
	Host                 string   `koanf:"host"`
	Port                 int      `koanf:"port" validate:"min=1,max=65535"`
	RefreshRatePerMinute int      `koanf:"refresh_rate_per_minute" validate:"min=1"`
	CORSOrigins          []string `koanf:"cors_origins"`
	TrustedProxies       []string `koanf:"trusted_proxies" validate:"dive,cidr|ip"`
}

type StorageConfig struct {
	Driver   string `koanf:"driver" validate:"oneof=sqlite file"`
	Path     string `koanf:"path" validate:"required"`
	CacheDir string `koanf:"cache_dir"`
}

type TMDBConfig struct {
	APIKey           string        `koanf:"api_key"`
	Language         string        `koanf:"language"`
	FallbackLanguage string        `koanf:"fallback_language"`
	Region           string        `koanf:"region" validate:"len=2"`
	BaseURL          string        `koanf:"base_url" validate:"omitempty,url"`
	ImageBaseURL     string        `koanf:"image_base_url" validate:"omitempty,url"`
	RequestDelay     time.Duration `koanf:"request_delay" validate:"min=0"`
	CacheTTL         time.Duration `koanf:"cache_ttl" validate:"min=0"`
	Pages            int           `koanf:"pages" validate:"min=1,max=5"`
	ProviderIDs      []int         `koanf:"provider_ids" validate:"dive,min=1"`
}

type OracleConfig struct {
	APIKey        string        `koanf:"api_key"`
	Model         string        `koanf:"model"`
	BaseURL       string        `koanf:"base_url" validate:"omitempty,url"`
	Timeout       time.Duration `koanf:"timeout" validate:"min=0"`
	MaxSelections int           `koanf:"max_selections" validate:"min=1,max=50"`
}

type RadarConfig struct {
	FrequentIntervalDays int           `koanf:"frequent_interval_days" validate:"min=1"`
	CuratedIntervalDays  int           `koanf:"curated_interval_days" validate:"min=1"`
	BackgroundInterval   time.Duration `koanf:"background_interval" validate:"min=0"`
	MaxConcurrency       int           `koanf:"max_concurrency" validate:"min=1,max=16"`
}

type LoggingConfig struct {
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb" validate:"min=0"`
	MaxBackups int    `koanf:"max_backups" validate:"min=0"`
	MaxAgeDays int    `koanf:"max_age_days" validate:"min=0"`
	Compress   bool   `koanf:"compress"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:                 "0.0.0.0",
			Port:                 7777,
			RefreshRatePerMinute: 2,
		},
		Storage: StorageConfig{
			Driver:   "sqlite",
			Path:     "data/cinegenio.db",
			CacheDir: "data/cache",
		},
		TMDB: TMDBConfig{
			Language:         "pt-BR",
			FallbackLanguage: "en-US",
			Region:           "BR",
			RequestDelay:     250 * time.Millisecond,
			CacheTTL:         24 * time.Hour,
			Pages:            1,
			ProviderIDs:      []int{8, 337, 119},
		},
		Oracle: OracleConfig{
			Timeout:       20 * time.Second,
			MaxSelections: 20,
		},
		Radar: RadarConfig{
			FrequentIntervalDays: 1,
			CuratedIntervalDays:  7,
			BackgroundInterval:   time.Hour,
			MaxConcurrency:       4,
		},
		Logging: LoggingConfig{
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// Load layers defaults, the optional YAML file at path (or the first
// default path that exists) and CINEGENIO_* environment variables, then
// validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(PathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"server.cors_origins",
	"server.trusted_proxies",
	"tmdb.provider_ids",
}

// processSliceFields splits comma-separated env values of slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// legacyEnv maps the bare variable names the app has always honored.
var legacyEnv = map[string]string{
	"tmdb_api_key":   "tmdb.api_key",
	"gemini_api_key": "oracle.api_key",
}

// envTransformFunc maps CINEGENIO_TMDB_API_KEY to tmdb.api_key. Variables
// outside the prefix are ignored unless listed in legacyEnv.
func envTransformFunc(key string) string {
	lower := strings.ToLower(key)
	if mapped, ok := legacyEnv[lower]; ok {
		return mapped
	}
	if !strings.HasPrefix(key, envPrefix) || key == PathEnvVar {
		return ""
	}
	rest := strings.ToLower(strings.TrimPrefix(key, envPrefix))
	section, field, ok := strings.Cut(rest, "_")
	if !ok || field == "" {
		return ""
	}
	return section + "." + field
}

var validate = validator.New()

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if c.TMDB.FallbackLanguage != "" && strings.EqualFold(c.TMDB.FallbackLanguage, c.TMDB.Language) {
		return fmt.Errorf("tmdb.fallback_language must differ from tmdb.language")
	}
	return nil
}
