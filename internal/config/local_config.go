package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocalConfig is the subset of .specify/config.yaml read directly from the
// file rather than through the viper singleton. Commands use it when they
// operate on a repository other than the working directory, or before
// Initialize has run.
type LocalConfig struct {
	TasksFile string `yaml:"tasks-file"`
	SpecsDir  string `yaml:"specs-dir"`
	Owner     string `yaml:"owner"`
	Repo      string `yaml:"repo"`
}

// LoadLocalConfig reads config.yaml from the given .specify directory.
//
// Returns an empty LocalConfig (not nil) if the file doesn't exist or can't be parsed.
func LoadLocalConfig(specifyDir string) *LocalConfig {
	configPath := filepath.Join(specifyDir, "config.yaml")
	data, err := os.ReadFile(configPath) // #nosec G304 - config file path from specifyDir
	if err != nil {
		return &LocalConfig{}
	}

	var cfg LocalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return &LocalConfig{}
	}

	return &cfg
}

// LoadLocalConfigWithEnv reads config.yaml and applies environment variable overrides.
// Environment variables take precedence over config file values.
//
// Supported environment variables:
// - SPECSYNC_TASKS_FILE: overrides tasks-file
// - SPECSYNC_SPECS_DIR: overrides specs-dir
func LoadLocalConfigWithEnv(specifyDir string) *LocalConfig {
	cfg := LoadLocalConfig(specifyDir)

	if env := os.Getenv("SPECSYNC_TASKS_FILE"); env != "" {
		cfg.TasksFile = env
	}
	if env := os.Getenv("SPECSYNC_SPECS_DIR"); env != "" {
		cfg.SpecsDir = env
	}

	return cfg
}

// SpecsDirOrDefault returns the configured specs directory, falling back to
// "specs".
func (c *LocalConfig) SpecsDirOrDefault() string {
	if c.SpecsDir == "" {
		return "specs"
	}
	return c.SpecsDir
}
