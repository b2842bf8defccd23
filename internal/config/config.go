// Package config loads lovemovie settings from a TOML file, a .env file and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

const (
	DefaultConfigPath = "~/.config/lovemovie/config.toml"
	DefaultDBPath     = "~/.local/share/lovemovie/lovemovie.db"

	defaultLanguage      = "zh-TW"
	defaultTimeout       = 30 * time.Second
	defaultCacheTTL      = 5 * time.Minute
	defaultMemoryEntries = 256
	defaultLogLevel      = "info"
)

// Environment variables, highest precedence.
const (
	EnvAPIKey    = "TMDB_API_KEY"
	EnvAuthToken = "TMDB_AUTH_TOKEN"
	EnvAccountID = "TMDB_ACCOUNT_ID"
	EnvSessionID = "TMDB_SESSION_ID"
	EnvDBPath    = "LOVEMOVIE_DB"
	EnvLogLevel  = "LOVEMOVIE_LOG_LEVEL"
)

type Config struct {
	TMDB  TMDB
	Store Store
	Log   Log
}

type TMDB struct {
	APIKey    string
	AuthToken string
	AccountID int
	SessionID string
	Language  string
	Timeout   time.Duration
	BaseURL   string // empty uses the public API
}

type Store struct {
	Path          string
	CacheTTL      time.Duration
	MemoryEntries int
}

type Log struct {
	Level      string
	File       string // empty logs to stderr
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// fileConfig mirrors the TOML layout. Durations stay strings until validated.
type fileConfig struct {
	TMDB struct {
		APIKey    string `toml:"api_key"`
		AuthToken string `toml:"auth_token"`
		AccountID int    `toml:"account_id"`
		SessionID string `toml:"session_id"`
		Language  string `toml:"language"`
		Timeout   string `toml:"timeout"`
		BaseURL   string `toml:"base_url"`
	} `toml:"tmdb"`
	Store struct {
		Path          string `toml:"path"`
		CacheTTL      string `toml:"cache_ttl"`
		MemoryEntries *int   `toml:"memory_entries"`
	} `toml:"store"`
	Log struct {
		Level      string `toml:"level"`
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
		MaxAgeDays int    `toml:"max_age_days"`
	} `toml:"log"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		TMDB: TMDB{
			Language: defaultLanguage,
			Timeout:  defaultTimeout,
		},
		Store: Store{
			Path:          mustExpand(DefaultDBPath),
			CacheTTL:      defaultCacheTTL,
			MemoryEntries: defaultMemoryEntries,
		},
		Log: Log{
			Level:      defaultLogLevel,
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Option configures Load.
type Option func(*loader)

type loader struct {
	fs        afero.Fs
	lookupEnv func(string) (string, bool)
	dotEnv    string
}

// WithFs reads the config and .env files from fs instead of the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(l *loader) {
		l.fs = fs
	}
}

// WithEnv replaces os.LookupEnv.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(l *loader) {
		l.lookupEnv = lookup
	}
}

// WithDotEnv sets the .env path. Empty disables it.
func WithDotEnv(path string) Option {
	return func(l *loader) {
		l.dotEnv = path
	}
}

// Load resolves the configuration: environment over .env over the TOML file over defaults.
// A missing config or .env file is not an error.
func Load(path string, opts ...Option) (Config, error) {
	l := &loader{
		fs:        afero.NewOsFs(),
		lookupEnv: os.LookupEnv,
		dotEnv:    ".env",
	}
	for _, opt := range opts {
		opt(l)
	}

	if strings.TrimSpace(path) == "" {
		path = DefaultConfigPath
	}
	resolved, err := expandPath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := l.applyFile(resolved, &cfg); err != nil {
		return Config{}, err
	}

	dotEnv, err := l.readDotEnv()
	if err != nil {
		return Config{}, err
	}
	env := func(key string) (string, bool) {
		if v, ok := l.lookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := dotEnv[key]
		return v, ok && v != ""
	}
	if err := applyEnv(env, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (l *loader) applyFile(path string, cfg *Config) error {
	raw, err := afero.ReadFile(l.fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.TMDB.APIKey, fc.TMDB.APIKey)
	setString(&cfg.TMDB.AuthToken, fc.TMDB.AuthToken)
	setString(&cfg.TMDB.SessionID, fc.TMDB.SessionID)
	setString(&cfg.TMDB.Language, fc.TMDB.Language)
	setString(&cfg.TMDB.BaseURL, fc.TMDB.BaseURL)
	if fc.TMDB.AccountID != 0 {
		cfg.TMDB.AccountID = fc.TMDB.AccountID
	}
	if err := setDuration(&cfg.TMDB.Timeout, "tmdb.timeout", fc.TMDB.Timeout); err != nil {
		return err
	}

	if p := strings.TrimSpace(fc.Store.Path); p != "" {
		expanded, err := expandPath(p)
		if err != nil {
			return fmt.Errorf("store.path: %w", err)
		}
		cfg.Store.Path = expanded
	}
	if err := setDuration(&cfg.Store.CacheTTL, "store.cache_ttl", fc.Store.CacheTTL); err != nil {
		return err
	}
	if fc.Store.MemoryEntries != nil {
		cfg.Store.MemoryEntries = *fc.Store.MemoryEntries
	}

	setString(&cfg.Log.Level, fc.Log.Level)
	if f := strings.TrimSpace(fc.Log.File); f != "" {
		expanded, err := expandPath(f)
		if err != nil {
			return fmt.Errorf("log.file: %w", err)
		}
		cfg.Log.File = expanded
	}
	setInt(&cfg.Log.MaxSizeMB, fc.Log.MaxSizeMB)
	setInt(&cfg.Log.MaxBackups, fc.Log.MaxBackups)
	setInt(&cfg.Log.MaxAgeDays, fc.Log.MaxAgeDays)
	return nil
}

func (l *loader) readDotEnv() (map[string]string, error) {
	if l.dotEnv == "" {
		return nil, nil
	}
	raw, err := afero.ReadFile(l.fs, l.dotEnv)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", l.dotEnv, err)
	}
	values, err := godotenv.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", l.dotEnv, err)
	}
	return values, nil
}

func applyEnv(env func(string) (string, bool), cfg *Config) error {
	if v, ok := env(EnvAPIKey); ok {
		cfg.TMDB.APIKey = v
	}
	if v, ok := env(EnvAuthToken); ok {
		cfg.TMDB.AuthToken = v
	}
	if v, ok := env(EnvSessionID); ok {
		cfg.TMDB.SessionID = v
	}
	if v, ok := env(EnvAccountID); ok {
		id, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAccountID, err)
		}
		cfg.TMDB.AccountID = id
	}
	if v, ok := env(EnvDBPath); ok {
		expanded, err := expandPath(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDBPath, err)
		}
		cfg.Store.Path = expanded
	}
	if v, ok := env(EnvLogLevel); ok {
		cfg.Log.Level = v
	}
	return nil
}

// Validate reports settings that would make the remote client or the store unusable.
func (c Config) Validate() error {
	return errors.Join(c.ValidateRemote(), c.ValidateLocal())
}

// ValidateRemote checks the settings the TMDB client needs.
func (c Config) ValidateRemote() error {
	var errs []error
	if c.TMDB.APIKey == "" && c.TMDB.AuthToken == "" {
		errs = append(errs, fmt.Errorf("a TMDB API key is required (set %s or tmdb.api_key)", EnvAPIKey))
	}
	if c.TMDB.AuthToken != "" && c.TMDB.AccountID <= 0 {
		errs = append(errs, fmt.Errorf("tmdb.account_id is required with an auth token (set %s)", EnvAccountID))
	}
	if c.TMDB.Timeout <= 0 {
		errs = append(errs, errors.New("tmdb.timeout must be positive"))
	}
	if c.TMDB.BaseURL != "" {
		if u, err := url.Parse(c.TMDB.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("tmdb.base_url %q is not an absolute URL", c.TMDB.BaseURL))
		}
	}
	return errors.Join(errs...)
}

// ValidateLocal checks the settings that do not involve the network.
func (c Config) ValidateLocal() error {
	var errs []error
	if c.Store.CacheTTL <= 0 {
		errs = append(errs, errors.New("store.cache_ttl must be positive"))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	return errors.Join(errs...)
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name, v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, v)
	}
	*dst = d
	return nil
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
