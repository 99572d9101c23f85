package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/treefs/tfs"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Mount MountConfig `mapstructure:"mount"`
	Tree  TreeConfig  `mapstructure:"tree"`
	Log   LogConfig   `mapstructure:"log"`
}

// MountConfig stores FUSE mount settings.
type MountConfig struct {
	Point               string `mapstructure:"point"`
	FsName              string `mapstructure:"fsName"`
	AllowOther          bool   `mapstructure:"allowOther"`
	Debug               bool   `mapstructure:"debug"`
	EntryTimeoutSeconds int    `mapstructure:"entryTimeoutSeconds"`
	AttrTimeoutSeconds  int    `mapstructure:"attrTimeoutSeconds"`
}

// TreeConfig stores settings for the in-memory tree.
type TreeConfig struct {
	// SeedFile is an encoded tree restored at startup. Empty starts with
	// an empty root.
	SeedFile       string `mapstructure:"seedFile"`
	PathIndex      bool   `mapstructure:"pathIndex"`
	MaxDecodeDepth int    `mapstructure:"maxDecodeDepth"`
}

// LogConfig stores logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// EntryTimeout is the kernel name cache lifetime.
func (m MountConfig) EntryTimeout() time.Duration {
	return time.Duration(m.EntryTimeoutSeconds) * time.Second
}

// AttrTimeout is the kernel attribute cache lifetime.
func (m MountConfig) AttrTimeout() time.Duration {
	return time.Duration(m.AttrTimeoutSeconds) * time.Second
}

// LoadConfig reads configuration from file or environment variables.
// An explicit configPath must exist; otherwise a missing config file
// leaves the defaults in place.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(internal.DefaultConfigPath)
		v.AddConfigPath(internal.DefaultSystemConfig)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(internal.DefaultEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // mount.point becomes TREEFS_MOUNT_POINT
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mount.point", internal.DefaultMountPoint)
	v.SetDefault("mount.fsName", internal.DefaultAppName)
	v.SetDefault("mount.allowOther", false)
	v.SetDefault("mount.debug", false)
	v.SetDefault("mount.entryTimeoutSeconds", internal.DefaultEntryTimeout)
	v.SetDefault("mount.attrTimeoutSeconds", internal.DefaultAttrTimeout)

	v.SetDefault("tree.seedFile", "")
	v.SetDefault("tree.pathIndex", true)
	v.SetDefault("tree.maxDecodeDepth", internal.DefaultMaxDecodeDepth)

	v.SetDefault("log.level", internal.DefaultLogLevel)
	v.SetDefault("log.pretty", false)
}

// Validate rejects settings the mount cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Mount.Point) == "" {
		return errors.New("mount.point cannot be empty")
	}
	if c.Mount.EntryTimeoutSeconds < 0 || c.Mount.AttrTimeoutSeconds < 0 {
		return errors.New("mount timeouts cannot be negative")
	}
	if c.Tree.MaxDecodeDepth <= 0 {
		return fmt.Errorf("tree.maxDecodeDepth must be positive, got %d", c.Tree.MaxDecodeDepth)
	}
	return nil
}
