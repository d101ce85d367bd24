// Package config resolves kahani settings from defaults, the YAML config
// file, KAHANI_* environment variables and command line flags, in that
// order of precedence.
package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/go-go-golems/kahani/pkg/events"
	"github.com/go-go-golems/kahani/pkg/generation"
	"github.com/go-go-golems/kahani/pkg/persistence/kvstore"
	"github.com/go-go-golems/kahani/pkg/redisstream"
	"github.com/go-go-golems/kahani/pkg/reveal"
)

const (
	AppName   = "kahani"
	EnvPrefix = "KAHANI"
	appDir    = "~/.kahani"
)

type APISettings struct {
	BaseURL string        `mapstructure:"base-url" yaml:"base-url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type RedisSettings struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

type StorageSettings struct {
	Backend string        `mapstructure:"backend" yaml:"backend"`
	Path    string        `mapstructure:"path" yaml:"path"`
	Redis   RedisSettings `mapstructure:"redis" yaml:"redis"`
}

type GenerateSettings struct {
	MaxLength   int     `mapstructure:"max-length" yaml:"max-length"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
}

type RevealSettings struct {
	Policy string        `mapstructure:"policy" yaml:"policy"`
	Delay  time.Duration `mapstructure:"delay" yaml:"delay"`
}

type EventsRedisSettings struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Stream   string `mapstructure:"stream" yaml:"stream"`
	Group    string `mapstructure:"group" yaml:"group"`
	Consumer string `mapstructure:"consumer" yaml:"consumer"`
}

type EventsSettings struct {
	Redis EventsRedisSettings `mapstructure:"redis" yaml:"redis"`
}

type LogSettings struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"`
	WithCaller bool   `mapstructure:"with-caller" yaml:"with-caller"`
}

type Settings struct {
	API      APISettings      `mapstructure:"api" yaml:"api"`
	Storage  StorageSettings  `mapstructure:"storage" yaml:"storage"`
	Generate GenerateSettings `mapstructure:"generate" yaml:"generate"`
	Reveal   RevealSettings   `mapstructure:"reveal" yaml:"reveal"`
	Events   EventsSettings   `mapstructure:"events" yaml:"events"`
	Log      LogSettings      `mapstructure:"log" yaml:"log"`
}

// DefaultDataDir is where the database, the config file and the TUI log
// live unless configured otherwise.
func DefaultDataDir() string {
	dir, err := homedir.Expand(appDir)
	if err != nil {
		return ".kahani"
	}
	return dir
}

func DefaultConfigPath() (string, error) {
	return homedir.Expand(filepath.Join(appDir, "config.yaml"))
}

func setDefaults(v *viper.Viper) {
	dataDir := DefaultDataDir()
	rs := redisstream.DefaultSettings()
	v.SetDefault("api.base-url", generation.DefaultBaseURL)
	v.SetDefault("api.timeout", time.Duration(0))
	v.SetDefault("storage.backend", kvstore.BackendSQLite)
	v.SetDefault("storage.path", filepath.Join(dataDir, "kahani.db"))
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.namespace", kvstore.DefaultRedisNamespace)
	v.SetDefault("generate.max-length", generation.DefaultMaxLength)
	v.SetDefault("generate.temperature", generation.DefaultTemperature)
	v.SetDefault("reveal.policy", string(reveal.PolicyProgressive))
	v.SetDefault("reveal.delay", reveal.DefaultDelay)
	v.SetDefault("events.redis.enabled", false)
	v.SetDefault("events.redis.addr", rs.Addr)
	v.SetDefault("events.redis.stream", events.TopicThreads)
	v.SetDefault("events.redis.group", rs.Group)
	v.SetDefault("events.redis.consumer", rs.Consumer)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.with-caller", false)
}

// NewViper returns a viper instance with defaults and environment lookup
// configured. configFile overrides the default ~/.kahani/config.yaml; a
// missing default file is not an error.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		expanded, err := homedir.Expand(configFile)
		if err != nil {
			return nil, errors.Wrap(err, "expand config path")
		}
		v.SetConfigFile(expanded)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", expanded)
		}
		return v, nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(DefaultDataDir())
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}
	return v, nil
}

// flagKeys maps persistent command line flags onto setting keys.
var flagKeys = map[string]string{
	"base-url":     "api.base-url",
	"timeout":      "api.timeout",
	"storage":      "storage.backend",
	"db":           "storage.path",
	"redis-addr":   "storage.redis.addr",
	"max-length":   "generate.max-length",
	"temperature":  "generate.temperature",
	"reveal":       "reveal.policy",
	"reveal-delay": "reveal.delay",
	"events-redis": "events.redis.enabled",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"log-file":     "log.file",
	"with-caller":  "log.with-caller",
}

// AddFlags registers the flags that can override settings.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Config file (default ~/.kahani/config.yaml)")
	fs.String("base-url", generation.DefaultBaseURL, "Base URL of the story generation service")
	fs.Duration("timeout", 0, "HTTP timeout for generation requests (0 uses the transport default)")
	fs.String("storage", kvstore.BackendSQLite, "Storage backend: sqlite, redis or memory")
	fs.String("db", "", "Path of the sqlite database")
	fs.String("redis-addr", "localhost:6379", "Redis address for the redis storage backend")
	fs.Int("max-length", generation.DefaultMaxLength, "Maximum story length requested from the service")
	fs.Float64("temperature", generation.DefaultTemperature, "Sampling temperature requested from the service")
	fs.String("reveal", string(reveal.PolicyProgressive), "Reply reveal policy: progressive or instant")
	fs.Duration("reveal-delay", reveal.DefaultDelay, "Delay between revealed tokens")
	fs.Bool("events-redis", false, "Publish thread events to Redis Streams")
	fs.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	fs.String("log-format", "text", "Log format (text or json)")
	fs.String("log-file", "", "Write logs to this file (rotated)")
	fs.Bool("with-caller", false, "Include caller information in logs")
}

// BindFlags binds the flags registered by AddFlags. Only flags the user
// actually set take precedence over file and environment values.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "bind flag --%s", name)
		}
	}
	return nil
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return s, errors.Wrap(err, "decode settings")
	}
	if err := s.normalize(); err != nil {
		return s, err
	}
	return s, nil
}

func (s *Settings) normalize() error {
	s.API.BaseURL = strings.TrimRight(strings.TrimSpace(s.API.BaseURL), "/")
	if s.API.BaseURL == "" {
		s.API.BaseURL = generation.DefaultBaseURL
	}
	s.Storage.Backend = strings.ToLower(strings.TrimSpace(s.Storage.Backend))
	switch s.Storage.Backend {
	case kvstore.BackendSQLite, kvstore.BackendRedis, kvstore.BackendMemory:
	default:
		return errors.Errorf("unknown storage backend %q", s.Storage.Backend)
	}
	if s.Storage.Path == "" {
		s.Storage.Path = filepath.Join(DefaultDataDir(), "kahani.db")
	}
	path, err := homedir.Expand(s.Storage.Path)
	if err != nil {
		return errors.Wrap(err, "expand storage path")
	}
	s.Storage.Path = path
	if _, err := reveal.ParsePolicy(s.Reveal.Policy); err != nil {
		return err
	}
	if s.Reveal.Delay < 0 {
		return errors.Errorf("reveal delay must not be negative, got %s", s.Reveal.Delay)
	}
	if s.Log.File != "" {
		file, err := homedir.Expand(s.Log.File)
		if err != nil {
			return errors.Wrap(err, "expand log file path")
		}
		s.Log.File = file
	}
	return nil
}

// KVSettings maps the storage section onto kvstore.Settings.
func (s Settings) KVSettings() kvstore.Settings {
	return kvstore.Settings{
		Backend:        s.Storage.Backend,
		Path:           s.Storage.Path,
		RedisAddr:      s.Storage.Redis.Addr,
		RedisNamespace: s.Storage.Redis.Namespace,
	}
}

func (s Settings) RevealPolicy() reveal.Policy {
	p, err := reveal.ParsePolicy(s.Reveal.Policy)
	if err != nil {
		return reveal.PolicyProgressive
	}
	return p
}
