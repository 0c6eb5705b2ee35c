package config

// Package config provides a reusable loader for dvmd's own configuration
// files and environment variables. It is versioned so that applications
// can depend on a stable API contract.
//
// Version: v0.3.0

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/dfinance/dvm-sub000/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.3.0"

// Config is the unified configuration for the dvmd CLI: it mirrors the
// structure of the optional YAML files under cmd/dvmd/config.
type Config struct {
	VM struct {
		MaxGasUnits         uint64 `mapstructure:"max_gas_units" json:"max_gas_units"`
		WorkspaceRoot       string `mapstructure:"workspace_root" json:"workspace_root"`
		ModuleCacheCapacity int    `mapstructure:"module_cache_capacity" json:"module_cache_capacity"`
	} `mapstructure:"vm" json:"vm"`

	DataSource struct {
		Endpoint      string        `mapstructure:"endpoint" json:"endpoint"`
		DialTimeoutMS int           `mapstructure:"dial_timeout_ms" json:"dial_timeout_ms"`
		RetryBackoff  time.Duration `mapstructure:"retry_backoff" json:"retry_backoff"`
	} `mapstructure:"data_source" json:"data_source"`
}

// Default returns the configuration dvmd runs with when no config file is
// present: a generous gas cap, the OS temp dir as the compile-workspace
// root, and the module-cache capacity the CLI previously hardcoded.
func Default() Config {
	var c Config
	c.VM.MaxGasUnits = 1_000_000
	c.VM.ModuleCacheCapacity = 256
	c.DataSource.DialTimeoutMS = 5000
	c.DataSource.RetryBackoff = time.Second
	return c
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig = Default()

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and
// returned. A missing default config file is not an error: dvmd runs
// against Default() in that case, since -- unlike the node this package
// was adapted from -- a standalone compile/publish/execute CLI is
// expected to run config-file-free out of the box.
//
// The function uses the provided environment name to merge additional
// config files. If env is empty, only the default configuration is
// loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/dvmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			AppConfig = Default()
			return &AppConfig, nil
		}
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up process environment variables

	cfg := Default()
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	AppConfig = cfg
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the DVM_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("DVM_ENV", ""))
}
