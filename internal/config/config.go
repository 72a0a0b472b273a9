// Package config loads inoli settings from struct defaults, an optional YAML
// file, INOLI_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/srg/inoli/internal/codec"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix = "INOLI"
	fileName  = "inoli"
)

// User is the profile sent to the band during authentication.
type User struct {
	ID     uint32 `mapstructure:"id" yaml:"id" default:"1"`
	Sex    string `mapstructure:"sex" yaml:"sex" default:"male"`
	Age    uint8  `mapstructure:"age" yaml:"age" default:"30"`
	Height uint8  `mapstructure:"height" yaml:"height" default:"175"`
	Weight uint8  `mapstructure:"weight" yaml:"weight" default:"70"`
	Alias  string `mapstructure:"alias" yaml:"alias" default:"inoli"`
}

// Alarm is one band alarm slot. Time is the wall clock "HH:MM" in the
// configured timezone; Days takes the names accepted by codec.ParseWeekdays.
type Alarm struct {
	ID        uint8  `mapstructure:"id" yaml:"id"`
	Time      string `mapstructure:"time" yaml:"time"`
	Days      string `mapstructure:"days" yaml:"days"`
	SmartWake bool   `mapstructure:"smart_wake" yaml:"smart_wake"`
	Disabled  bool   `mapstructure:"disabled" yaml:"disabled,omitempty"`
}

// Device adds an address to the supported device registry.
type Device struct {
	Address string `mapstructure:"address" yaml:"address"`
	Model   string `mapstructure:"model" yaml:"model"`
}

// Config holds application configuration
type Config struct {
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level" default:"info"`
	Socket            string        `mapstructure:"socket" yaml:"socket" default:"/tmp/inoli.sock"`
	Adapter           int           `mapstructure:"adapter" yaml:"adapter" default:"0"`
	ScanTimeout       time.Duration `mapstructure:"scan_timeout" yaml:"scan_timeout" default:"10s"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout" default:"30s"`
	AuthTimeout       time.Duration `mapstructure:"auth_timeout" yaml:"auth_timeout" default:"90s"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval" yaml:"reconnect_interval" default:"3s"`
	ReconnectBurst    int           `mapstructure:"reconnect_burst" yaml:"reconnect_burst" default:"1"`
	BreakerFailures   uint32        `mapstructure:"breaker_failures" yaml:"breaker_failures" default:"5"`
	BreakerCooldown   time.Duration `mapstructure:"breaker_cooldown" yaml:"breaker_cooldown" default:"60s"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" default:"60s"`
	CommandQueue      int           `mapstructure:"command_queue" yaml:"command_queue" default:"64"`
	Timezone          string        `mapstructure:"timezone" yaml:"timezone" default:"Local"`
	User              User          `mapstructure:"user" yaml:"user"`
	// WearLocation is applied after every connect when set.
	WearLocation string   `mapstructure:"wear_location" yaml:"wear_location,omitempty"`
	Alarms       []Alarm  `mapstructure:"alarms" yaml:"alarms,omitempty"`
	Devices      []Device `mapstructure:"devices" yaml:"devices"`

	// File is the config file that was merged, if any.
	File string `mapstructure:"-" yaml:"-"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// SearchPaths lists the directories searched for inoli.yaml when no file is
// given explicitly.
func SearchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append([]string{filepath.Join(home, ".config", "inoli")}, paths...)
	}
	return paths
}

// Load builds the effective configuration. path names an explicit YAML file,
// which must exist; when empty the search paths are tried and a missing file
// is not an error. Flags are bound by name with dashes mapped to underscores
// and only override when set on the command line.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	base, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("encode defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(base)); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(fileName)
		for _, p := range SearchPaths() {
			v.AddConfigPath(p)
		}
	}
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !v.InConfig(key) || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(key, f)
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that would only fail later at connect time.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.UserRecord(); err != nil {
		return err
	}
	if c.Socket == "" {
		return errors.New("socket path must not be empty")
	}
	if c.ReconnectBurst < 1 {
		return fmt.Errorf("reconnect_burst must be at least 1, got %d", c.ReconnectBurst)
	}
	if c.AuthTimeout < 0 {
		return fmt.Errorf("auth_timeout must not be negative, got %s", c.AuthTimeout)
	}
	if _, err := c.Wear(); err != nil {
		return err
	}
	if _, err := c.AlarmSlots(time.Now()); err != nil {
		return err
	}
	for i, d := range c.Devices {
		if d.Address == "" || d.Model == "" {
			return fmt.Errorf("devices[%d]: address and model are required", i)
		}
	}
	return nil
}

// Wear returns the configured wear location, or nil when none is set. Both
// names ("left") and wire values ("0") are accepted.
func (c *Config) Wear() (*codec.WearLocation, error) {
	s := strings.TrimSpace(c.WearLocation)
	if s == "" {
		return nil, nil
	}
	loc, err := codec.ParseWearLocation(s)
	if err != nil {
		n, convErr := strconv.ParseUint(s, 10, 8)
		if convErr != nil {
			return nil, fmt.Errorf("invalid wear_location: %w", err)
		}
		if loc, err = codec.DecodeWearLocation(byte(n)); err != nil {
			return nil, fmt.Errorf("invalid wear_location: %w", err)
		}
	}
	return &loc, nil
}

// AlarmSlots resolves the configured alarms against now: each fires at the
// next occurrence of its wall clock time in the configured timezone.
func (c *Config) AlarmSlots(now time.Time) ([]codec.AlarmSlot, error) {
	if len(c.Alarms) == 0 {
		return nil, nil
	}
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	now = now.In(loc)

	slots := make([]codec.AlarmSlot, 0, len(c.Alarms))
	seen := make(map[uint8]bool, len(c.Alarms))
	for i, a := range c.Alarms {
		if seen[a.ID] {
			return nil, fmt.Errorf("alarms[%d]: duplicate id %d", i, a.ID)
		}
		seen[a.ID] = true

		clock, err := time.Parse("15:04", strings.TrimSpace(a.Time))
		if err != nil {
			return nil, fmt.Errorf("alarms[%d]: invalid time %q (want HH:MM)", i, a.Time)
		}
		days, err := codec.ParseWeekdays(a.Days)
		if err != nil {
			return nil, fmt.Errorf("alarms[%d]: %w", i, err)
		}

		when := time.Date(now.Year(), now.Month(), now.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
		if !when.After(now) {
			when = when.AddDate(0, 0, 1)
		}
		slots = append(slots, codec.AlarmSlot{
			ID:        a.ID,
			Enabled:   !a.Disabled,
			When:      when,
			SmartWake: a.SmartWake,
			Repeat:    days,
		})
	}
	return slots, nil
}

// Location resolves the timezone used for band clock fields.
func (c *Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// UserRecord converts the user profile into its wire form.
func (c *Config) UserRecord() (codec.UserRecord, error) {
	sex, err := codec.ParseSex(c.User.Sex)
	if err != nil {
		return codec.UserRecord{}, fmt.Errorf("invalid user.sex: %w", err)
	}
	return codec.UserRecord{
		ID:     c.User.ID,
		Sex:    sex,
		Age:    c.User.Age,
		Height: c.User.Height,
		Weight: c.User.Weight,
		Alias:  c.User.Alias,
	}, nil
}

// Dump renders the configuration as YAML.
func (c *Config) Dump() ([]byte, error) {
	return yaml.Marshal(c)
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
