// Package config loads server settings from defaults, an optional config
// file, OKDB_ environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. OKDB_PORT.
const EnvPrefix = "OKDB"

// Config holds the server settings.
type Config struct {
	Port            string        `mapstructure:"port"`
	DataFile        string        `mapstructure:"data_file"`
	BackgroundSave  time.Duration `mapstructure:"background_save"` // 0 disables
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// flag name -> config key
var flagKeys = map[string]string{
	"port":             "port",
	"data-file":        "data_file",
	"background-save":  "background_save",
	"shutdown-timeout": "shutdown_timeout",
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:            "8080",
		DataFile:        "go-okdb_data.okdb",
		ShutdownTimeout: 30 * time.Second,
	}
}

// RegisterFlags adds the settings' flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("port", d.Port, "Server port")
	fs.String("data-file", d.DataFile, "Data file path for persistence")
	fs.Duration("background-save", d.BackgroundSave, "Background save interval (e.g., 5m, 30s). Set to 0 to disable.")
	fs.Duration("shutdown-timeout", d.ShutdownTimeout, "Deadline for outstanding requests on shutdown")
}

// Load resolves the settings. configFile and flags may be empty/nil; only
// flags the user actually set override the other sources.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault("port", d.Port)
	v.SetDefault("data_file", d.DataFile)
	v.SetDefault("background_save", d.BackgroundSave)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Port == "" {
		return nil, fmt.Errorf("port cannot be empty")
	}
	if cfg.BackgroundSave < 0 {
		return nil, fmt.Errorf("background save interval cannot be negative")
	}
	return &cfg, nil
}
