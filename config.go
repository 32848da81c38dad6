package mash

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds ambient, user-configurable settings for the line editor and
// REPL. This is distinct from .mashrc, which is a shell script sourced via
// the source built-in, not a settings file.
type Config struct {
	HistoryFile  string `mapstructure:"history_file"`
	HistoryLimit int    `mapstructure:"history_limit"`
	Prompt       string `mapstructure:"prompt"`
	PollInterval int    `mapstructure:"poll_interval_ms"`
	RCFile       string `mapstructure:"rc_file"`
}

// DefaultConfig returns the settings used when no config file is found or
// it fails to parse.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		HistoryFile:  filepath.Join(home, ".mash_history"),
		HistoryLimit: 1000,
		Prompt:       "@user@@host @where> ",
		PollInterval: 200,
		RCFile:       filepath.Join("env", ".mashrc"),
	}
}

// LoadConfig reads ~/.mashrc.yaml, or the path named by $MASH_CONFIG, via
// viper. A missing or unparsable file is not an error: DefaultConfig's
// values are used instead, so a fresh install runs without any setup.
func LoadConfig() *Config {
	v := viper.New()
	v.SetConfigType("yaml")

	if path := os.Getenv("MASH_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return DefaultConfig()
		}
		v.AddConfigPath(home)
		v.SetConfigName(".mashrc")
	}

	cfg := DefaultConfig()
	if err := v.ReadInConfig(); err != nil {
		return cfg
	}
	if err := v.Unmarshal(cfg); err != nil {
		return DefaultConfig()
	}
	return cfg
}
