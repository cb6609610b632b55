package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"playlog/config"
)

const (
	cfgKeyBackend    = "storage.backend"
	cfgKeyDirectory  = "storage.directory"
	cfgKeySQLitePath = "storage.sqlite_path"

	envPrefix = "PLAYLOG"
)

// loadConfig resolves storage settings from, lowest first: built-in defaults,
// the optional YAML file, PLAYLOG_* environment variables, then flags.
// PLAYLOG_STORAGE_DIRECTORY overrides storage.directory, and so on.
func loadConfig(configFile string, overrides map[string]string) (config.StorageSettings, error) {
	defaults := config.DefaultSettings().Storage

	v := viper.New()
	v.SetDefault(cfgKeyBackend, defaults.Backend)
	v.SetDefault(cfgKeyDirectory, defaults.Directory)
	v.SetDefault(cfgKeySQLitePath, defaults.SQLitePath)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return config.StorageSettings{}, fmt.Errorf("read config: %w", err)
		}
	}

	for key, value := range overrides {
		if value != "" {
			v.Set(key, value)
		}
	}

	return config.StorageSettings{
		Backend:    v.GetString(cfgKeyBackend),
		Directory:  v.GetString(cfgKeyDirectory),
		SQLitePath: v.GetString(cfgKeySQLitePath),
	}, nil
}
