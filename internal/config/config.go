// Package config loads eventsync settings from defaults, an optional config
// file, EVENTSYNC_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/guilherme-santos/eventsync/calendar/google"
	"github.com/guilherme-santos/eventsync/internal/scheduler"
	"github.com/guilherme-santos/eventsync/internal/service"
	"github.com/guilherme-santos/eventsync/internal/sqlstore"
	"github.com/guilherme-santos/eventsync/internal/syncer"
)

const EnvPrefix = "EVENTSYNC"

type Config struct {
	DB struct {
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"db"`

	Google struct {
		Credentials string `mapstructure:"credentials"`
		Calendar    string `mapstructure:"calendar"`
	} `mapstructure:"google"`

	CalDAV struct {
		URL      string `mapstructure:"url"`
		Calendar string `mapstructure:"calendar"`
	} `mapstructure:"caldav"`

	HTTP struct {
		Addr            string `mapstructure:"addr"`
		CallbackBaseURL string `mapstructure:"callback_base_url"`
	} `mapstructure:"http"`

	Schedule struct {
		Renew string `mapstructure:"renew"`
		Sync  string `mapstructure:"sync"`
	} `mapstructure:"schedule"`

	Timezone        string        `mapstructure:"timezone"`
	Workers         int           `mapstructure:"workers"`
	QueueSize       int           `mapstructure:"queue_size"`
	TaskTimeout     time.Duration `mapstructure:"task_timeout"`
	ReadSyncTimeout time.Duration `mapstructure:"read_sync_timeout"`
	WatchMargin     time.Duration `mapstructure:"watch_margin"`
	Verbose         bool          `mapstructure:"verbose"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("db.driver", sqlstore.SQLiteDriver)
	v.SetDefault("db.dsn", filepath.Join(".", "eventsync.db"))
	v.SetDefault("google.credentials", "")
	v.SetDefault("google.calendar", google.DefaultCalendarID)
	v.SetDefault("caldav.url", "")
	v.SetDefault("caldav.calendar", "")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.callback_base_url", "")
	v.SetDefault("schedule.renew", scheduler.DefaultRenewSpec)
	v.SetDefault("schedule.sync", scheduler.DefaultSyncSpec)
	v.SetDefault("timezone", "UTC")
	v.SetDefault("workers", syncer.DefaultWorkers)
	v.SetDefault("queue_size", syncer.DefaultQueueSize)
	v.SetDefault("task_timeout", syncer.DefaultTaskTimeout)
	v.SetDefault("read_sync_timeout", service.DefaultReadSyncTimeout)
	v.SetDefault("watch_margin", syncer.DefaultWatchMargin)
	v.SetDefault("verbose", false)
}

// BindFlags maps flags to keys. Flag names use dashes, so "db-dsn" binds
// "db.dsn" and "queue-size" binds "queue_size".
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var errs []error
	flags.VisitAll(func(f *pflag.Flag) {
		key := flagKey(f.Name)
		if !isKnownKey(key) {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, fmt.Errorf("config: binding flag %s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

// Load reads the configuration. configFile may be empty.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) Validate() error {
	switch c.DB.Driver {
	case sqlstore.SQLiteDriver, sqlstore.PostgresDriver:
	default:
		return fmt.Errorf("config: unsupported db.driver %q", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return errors.New("config: db.dsn is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.CalDAV.URL != "" && c.CalDAV.Calendar == "" {
		return errors.New("config: caldav.calendar is required with caldav.url")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: workers must be positive, got %d", c.Workers)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("config: queue_size must be positive, got %d", c.QueueSize)
	}
	return nil
}

func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

var knownKeys = []string{
	"db.driver", "db.dsn",
	"google.credentials", "google.calendar",
	"caldav.url", "caldav.calendar",
	"http.addr", "http.callback_base_url",
	"schedule.renew", "schedule.sync",
	"timezone", "workers", "queue_size", "task_timeout",
	"read_sync_timeout", "watch_margin", "verbose",
}

func isKnownKey(key string) bool {
	for _, k := range knownKeys {
		if k == key {
			return true
		}
	}
	return false
}

// flagKey turns "http-callback-base-url" into "http.callback_base_url".
func flagKey(name string) string {
	for _, k := range knownKeys {
		if strings.NewReplacer(".", "-", "_", "-").Replace(k) == name {
			return k
		}
	}
	return name
}
