// Package config loads CLI settings from clustersql.yaml in the XDG config
// dir, CLUSTERSQL_* environment variables and command flags, in increasing
// order of precedence. Passwords are not written back; they live in the OS
// keychain.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"clustersql/cli/internal/xdg"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the config file name without extension.
	FileName = "clustersql"
	// EnvPrefix prefixes every environment override (CLUSTERSQL_MAPPERDIR, CLUSTERSQL_LOG_LEVEL, ...).
	EnvPrefix = "CLUSTERSQL"
)

// Config holds CLI settings. The connection fields mirror the adapter's raw
// configuration: set URL for the URL form or Host/User/Schema for the
// structured form.
type Config struct {
	URL       string         `mapstructure:"url" yaml:"url,omitempty"`
	Host      string         `mapstructure:"host" yaml:"host,omitempty"`
	Port      int            `mapstructure:"port" yaml:"port,omitempty"`
	User      string         `mapstructure:"user" yaml:"user,omitempty"`
	Password  string         `mapstructure:"password" yaml:"-"`
	Schema    string         `mapstructure:"schema" yaml:"schema,omitempty"`
	Cache     string         `mapstructure:"cache" yaml:"cache,omitempty"`
	UseTLS    bool           `mapstructure:"useTls" yaml:"useTls,omitempty"`
	Options   map[string]any `mapstructure:"options" yaml:"options,omitempty"`
	MapperDir []string       `mapstructure:"mapperDir" yaml:"mapperDir,omitempty"`
	Log       LogConfig      `mapstructure:"log" yaml:"log"`
	Query     QueryConfig    `mapstructure:"query" yaml:"query"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// QueryConfig tunes cursor materialization.
type QueryConfig struct {
	PageSize int           `mapstructure:"pageSize" yaml:"pageSize"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

var defaults = map[string]any{
	"url":            "",
	"host":           "",
	"port":           0,
	"user":           "",
	"password":       "",
	"schema":         "",
	"cache":          "",
	"useTls":         false,
	"options":        map[string]any{},
	"mapperDir":      []string{},
	"log.level":      "info",
	"log.json":       false,
	"query.pageSize": 1024,
	"query.timeout":  0,
}

// flagKeys maps command flags to config keys.
var flagKeys = map[string]string{
	"mapper-dir": "mapperDir",
	"log-level":  "log.level",
	"json-logs":  "log.json",
	"page-size":  "query.pageSize",
	"timeout":    "query.timeout",
	"url":        "url",
}

// Path returns the default config file location.
func Path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName+".yaml"), nil
}

// Load reads configuration. file overrides the default location; a missing
// default file yields defaults. Flags present in fs and changed by the user
// take precedence over file and environment.
func Load(file string, fs *pflag.FlagSet) (Config, error) {
	var c Config
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return c, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		dir, err := xdg.ConfigDir()
		if err != nil {
			return c, err
		}
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return c, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

// Raw returns the adapter's raw connection configuration.
func (c Config) Raw() map[string]any {
	raw := make(map[string]any, len(c.Options)+8)
	for k, v := range c.Options {
		raw[k] = v
	}
	if len(c.MapperDir) > 0 {
		dirs := make([]any, len(c.MapperDir))
		for i, d := range c.MapperDir {
			dirs[i] = d
		}
		raw["mapperDir"] = dirs
	}
	if c.UseTLS {
		raw["useTls"] = true
	}
	if c.Cache != "" {
		raw["cache"] = c.Cache
	}
	if c.URL != "" {
		raw["url"] = c.URL
		return raw
	}
	set := func(k, v string) {
		if v != "" {
			raw[k] = v
		}
	}
	set("host", c.Host)
	set("user", c.User)
	set("password", c.Password)
	set("schema", c.Schema)
	if c.Port != 0 {
		raw["port"] = c.Port
	}
	return raw
}

// Save writes configuration to path (Path() when empty) with 0600
// permissions. The password is never written.
func Save(path string, c Config) error {
	if path == "" {
		p, err := Path()
		if err != nil {
			return err
		}
		path = p
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
