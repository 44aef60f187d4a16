// Package config holds user and project settings for specsync.
//
// Settings are resolved by viper in this order: explicit Set calls,
// SPECSYNC_* environment variables, the first config.yaml found, then
// defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, so sync.max-attempts
// is read from SPECSYNC_SYNC_MAX_ATTEMPTS.
const EnvPrefix = "SPECSYNC"

// ProjectDir is the per-repository settings directory shared with spec-kit.
const ProjectDir = ".specify"

var v *viper.Viper

// Initialize sets up the viper configuration singleton.
// It may be called again to pick up environment or working directory changes.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	for _, path := range searchPaths() {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			break
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("json", false)
	v.SetDefault("github.api-url", "https://api.github.com/graphql")
	v.SetDefault("github.timeout", 30*time.Second)
	v.SetDefault("sync.max-attempts", 3)
	v.SetDefault("sync.initial-interval", time.Second)
	v.SetDefault("sync.max-interval", 30*time.Second)
	v.SetDefault("sync.watch-debounce", 500*time.Millisecond)
	v.SetDefault("specs.dir", "specs")
	v.SetDefault("tasks-file", "")

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// searchPaths lists candidate config files, most specific first.
func searchPaths() []string {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ProjectDir, "config.yaml"))
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "specsync", "config.yaml"))
	} else if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "specsync", "config.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".specsync", "config.yaml"))
	}
	return paths
}

// ResetForTesting drops the singleton so the next access starts clean.
func ResetForTesting() {
	v = nil
}

// ConfigFileUsed returns the config file in effect, or "" when none was found.
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringSlice retrieves a string slice configuration value
func GetStringSlice(key string) []string {
	if v == nil {
		return []string{}
	}
	return v.GetStringSlice(key)
}

// Set sets a configuration value
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns all configuration settings as a map
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}

// RetrySettings groups the gateway retry knobs.
type RetrySettings struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// GetRetrySettings returns the retry policy, clamping nonsense values to
// the defaults.
func GetRetrySettings() RetrySettings {
	r := RetrySettings{
		MaxAttempts:     GetInt("sync.max-attempts"),
		InitialInterval: GetDuration("sync.initial-interval"),
		MaxInterval:     GetDuration("sync.max-interval"),
	}
	if r.MaxAttempts < 1 {
		r.MaxAttempts = 3
	}
	if r.InitialInterval <= 0 {
		r.InitialInterval = time.Second
	}
	if r.MaxInterval < r.InitialInterval {
		r.MaxInterval = 30 * time.Second
		if r.MaxInterval < r.InitialInterval {
			r.MaxInterval = r.InitialInterval
		}
	}
	return r
}
