// Package config loads and validates the proxy's startup configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// Config holds the values the core requires from its environment: listen
// port, cache root, and max upload size for Git POST bodies, plus the
// ambient logging and recipe-parsing knobs.
type Config struct {
	Port            int    `yaml:"port" mapstructure:"port"`
	CacheDir        string `yaml:"cache_dir" mapstructure:"cache_dir"`
	MaxUploadSize   string `yaml:"max_upload_size" mapstructure:"max_upload_size"`
	RecipeShellEval bool   `yaml:"recipe_shell_eval" mapstructure:"recipe_shell_eval"`
	UpstreamIndex   string `yaml:"upstream_index" mapstructure:"upstream_index"`
	UpstreamMirror  string `yaml:"upstream_mirror" mapstructure:"upstream_mirror"`
	Log             LogConfig `yaml:"log" mapstructure:"log"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	File       string `yaml:"file" mapstructure:"file"`
	Level      string `yaml:"level" mapstructure:"level"`
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

// MaxUploadBytes parses MaxUploadSize ("50mb") into a byte count.
func (c *Config) MaxUploadBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.MaxUploadSize)
	if err != nil {
		return 0, fmt.Errorf("invalid max_upload_size %q: %w", c.MaxUploadSize, err)
	}
	return int64(n), nil
}

// Validate checks invariants spec.md §6 requires to hold before startup.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.Port)
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir must not be empty")
	}
	if _, err := c.MaxUploadBytes(); err != nil {
		return err
	}
	return nil
}

// Load reads configuration from the given YAML file, applying defaults and
// environment overrides prefixed AURCACHE_.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("port", 3000)
	v.SetDefault("cache_dir", "./cached_packages")
	v.SetDefault("max_upload_size", "50mb")
	v.SetDefault("recipe_shell_eval", false)
	v.SetDefault("upstream_index", "aur.archlinux.org")
	v.SetDefault("upstream_mirror", "github.com/archlinux/aur-mirror")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetEnvPrefix("AURCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
