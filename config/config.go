// Package config loads the router daemon's configuration.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"xdao.co/facetrouter/storage/registry"
)

// EnvPrefix prefixes environment overrides, e.g. ROUTERD_LISTEN or
// ROUTERD_LOG_LEVEL.
const EnvPrefix = "ROUTERD"

// Config is the daemon configuration.
type Config struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
	Log    Log    `mapstructure:"log" yaml:"log"`
	// OwnerKey is the path of the hex seed file of the router owner.
	OwnerKey string  `mapstructure:"owner_key" yaml:"owner_key"`
	Journal  Journal `mapstructure:"journal" yaml:"journal"`
}

type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Journal selects where the event journal is stored.
type Journal struct {
	WritePolicy registry.WritePolicy `mapstructure:"write_policy" yaml:"write_policy"`
	Backends    []registry.Spec      `mapstructure:"backends" yaml:"backends"`
}

// Default returns the configuration used when no file is given: a local
// listener and an in-memory journal.
func Default() Config {
	return Config{
		Listen: "127.0.0.1:7778",
		Log:    Log{Level: "info", Format: "console"},
		Journal: Journal{
			WritePolicy: registry.WriteFirst,
			Backends:    []registry.Spec{{Name: "memory"}},
		},
	}
}

// Load reads path (YAML) over the defaults, then applies ROUTERD_*
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	v := viper.New()
	d := Default()
	v.SetDefault("listen", d.Listen)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("owner_key", "")
	v.SetDefault("journal.write_policy", string(d.Journal.WritePolicy))

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(c.Journal.Backends) == 0 {
		c.Journal.Backends = d.Journal.Backends
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the fields Load cannot default.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return errors.New("config: listen is required")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format must be json or console, got %q", c.Log.Format)
	}
	if err := registry.Validate(c.Journal.Backends, c.Journal.WritePolicy); err != nil {
		return fmt.Errorf("config: journal: %w", err)
	}
	return nil
}

// Marshal renders c as YAML, e.g. for printing a starter config.
func Marshal(c Config) ([]byte, error) {
	return yaml.Marshal(c)
}
