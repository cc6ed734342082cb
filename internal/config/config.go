package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tomoyayamashita/iocgate/internal/feed"
	"github.com/tomoyayamashita/iocgate/internal/logger"
	"github.com/tomoyayamashita/iocgate/internal/policy"
	"github.com/tomoyayamashita/iocgate/internal/report"
)

// EnvPrefix is prepended to every setting read from the environment,
// e.g. IOCGATE_FEED_URL for --feed-url.
const EnvPrefix = "IOCGATE"

// Setting keys. They double as flag names and config file keys.
const (
	KeyFeedURL         = "feed-url"
	KeyFeedFile        = "feed-file"
	KeyTimeout         = "timeout"
	KeyFormat          = "format"
	KeyNoColor         = "no-color"
	KeyMode            = "mode"
	KeyCI              = "ci"
	KeyLogLevel        = "log-level"
	KeyDataDir         = "data-dir"
	KeyCacheTTL        = "cache-ttl"
	KeyOffline         = "offline"
	KeyNoCache         = "no-cache"
	KeyLockfilesConfig = "lockfiles-config"
)

// Settings is the resolved configuration of one run
type Settings struct {
	FeedURL         string        `yaml:"feed-url"`
	FeedFile        string        `yaml:"feed-file,omitempty"`
	Timeout         time.Duration `yaml:"timeout"`
	Format          report.Format `yaml:"format"`
	NoColor         bool          `yaml:"no-color"`
	Mode            policy.Mode   `yaml:"mode"`
	CI              bool          `yaml:"ci"`
	LogLevel        logger.Level  `yaml:"log-level"`
	DataDir         string        `yaml:"data-dir"`
	CacheTTL        time.Duration `yaml:"cache-ttl"`
	Offline         bool          `yaml:"offline"`
	NoCache         bool          `yaml:"no-cache"`
	LockfilesConfig string        `yaml:"lockfiles-config,omitempty"`
	// ConfigFile is the config file that was read, if any.
	ConfigFile string `yaml:"-"`
}

// SetDefaults registers the default value of every setting on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyFeedURL, feed.DefaultURL)
	v.SetDefault(KeyFeedFile, "")
	v.SetDefault(KeyTimeout, feed.DefaultTimeout)
	v.SetDefault(KeyFormat, string(report.FormatText))
	v.SetDefault(KeyNoColor, false)
	v.SetDefault(KeyMode, string(policy.ModePermissive))
	v.SetDefault(KeyCI, false)
	v.SetDefault(KeyLogLevel, string(logger.LevelError))
	v.SetDefault(KeyDataDir, "")
	v.SetDefault(KeyCacheTTL, time.Duration(0))
	v.SetDefault(KeyOffline, false)
	v.SetDefault(KeyNoCache, false)
	v.SetDefault(KeyLockfilesConfig, "")
}

// Load resolves settings from, highest priority first: changed flags,
// IOCGATE_* environment variables (a .env file in the working directory is
// loaded first), the config file and the defaults.
//
// When cfgFile is empty, iocgate.yaml is looked up in the working directory
// and in ~/.iocgate; a missing file is not an error.
func Load(cfgFile string, flags *pflag.FlagSet) (*Settings, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("iocgate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".iocgate"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Settings, error) {
	mode, err := policy.ParseMode(v.GetString(KeyMode))
	if err != nil {
		return nil, err
	}

	level, err := logger.ParseLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return nil, err
	}

	format, err := report.ParseFormat(v.GetString(KeyFormat))
	if err != nil {
		return nil, err
	}

	s := &Settings{
		FeedURL:         v.GetString(KeyFeedURL),
		FeedFile:        v.GetString(KeyFeedFile),
		Timeout:         v.GetDuration(KeyTimeout),
		Format:          format,
		NoColor:         v.GetBool(KeyNoColor),
		Mode:            mode,
		CI:              v.GetBool(KeyCI),
		LogLevel:        level,
		DataDir:         v.GetString(KeyDataDir),
		CacheTTL:        v.GetDuration(KeyCacheTTL),
		Offline:         v.GetBool(KeyOffline),
		NoCache:         v.GetBool(KeyNoCache),
		LockfilesConfig: v.GetString(KeyLockfilesConfig),
		ConfigFile:      v.ConfigFileUsed(),
	}

	if s.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %s", s.Timeout)
	}
	if s.CacheTTL < 0 {
		return nil, fmt.Errorf("cache-ttl must not be negative, got %s", s.CacheTTL)
	}
	if s.Offline && s.NoCache {
		return nil, errors.New("--offline needs the feed cache and cannot be combined with --no-cache")
	}

	return s, nil
}

// CacheDir returns the feed cache directory, defaulting to ~/.iocgate/feeds
func (s *Settings) CacheDir() (string, error) {
	if s.DataDir != "" {
		return s.DataDir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".iocgate", "feeds"), nil
}

// UseCache reports whether the run should open the feed cache. Local feed
// files are never cached.
func (s *Settings) UseCache() bool {
	return !s.NoCache && s.FeedFile == ""
}
