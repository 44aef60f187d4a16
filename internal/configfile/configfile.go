// Package configfile persists the GitHub Projects sync state for a
// checkout in .specify/github-projects.json.
package configfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/steveyegge/specsync/internal/debug"
)

const (
	// DirName is the per-project settings directory.
	DirName = ".specify"

	// ConfigFileName is the sync state file inside DirName.
	ConfigFileName = "github-projects.json"
)

var (
	// ErrNotEnabled is returned when the integration has not been enabled.
	ErrNotEnabled = errors.New("GitHub Projects integration is not enabled (run 'specsync projects enable')")

	// ErrRepositoryNotConfigured is returned when owner or name is missing.
	ErrRepositoryNotConfigured = errors.New("repository owner/name not configured (run 'specsync projects enable')")
)

// FieldRef is the persisted form of a project field: its id plus, for
// single-select fields, option name -> option id.
type FieldRef struct {
	ID      string            `json:"id"`
	Options map[string]string `json:"options,omitempty"`
}

// FieldIDs maps a field name ("Task ID", "Phase", ...) to its persisted ref.
type FieldIDs map[string]FieldRef

// UnmarshalJSON accepts both the nested layout and the older flat layout
// where ids were plain strings and options lived under "<Field>_options".
func (f *FieldIDs) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*f = nil
		return nil
	}

	out := make(FieldIDs, len(raw))
	legacyOptions := make(map[string]map[string]string)
	for name, value := range raw {
		var id string
		if err := json.Unmarshal(value, &id); err == nil {
			ref := out[name]
			ref.ID = id
			out[name] = ref
			continue
		}
		if base, ok := strings.CutSuffix(name, "_options"); ok {
			var opts map[string]string
			if err := json.Unmarshal(value, &opts); err == nil {
				legacyOptions[base] = opts
				continue
			}
		}
		var ref FieldRef
		if err := json.Unmarshal(value, &ref); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		out[name] = ref
	}
	for base, opts := range legacyOptions {
		ref := out[base]
		ref.Options = opts
		out[base] = ref
	}
	*f = out
	return nil
}

// ProjectsConfig is the sync state for one checkout.
type ProjectsConfig struct {
	Enabled               bool     `json:"enabled"`
	RepoOwner             string   `json:"repo_owner,omitempty"`
	RepoName              string   `json:"repo_name,omitempty"`
	ProjectNumber         int      `json:"project_number,omitempty"`
	ProjectID             string   `json:"project_id,omitempty"`
	ProjectURL            string   `json:"project_url,omitempty"`
	FieldIDs              FieldIDs `json:"field_ids,omitempty"`
	LastSyncedAt          string   `json:"last_synced_at,omitempty"`
	LastSyncedTasksMDHash string   `json:"last_synced_tasks_md_hash,omitempty"`
}

func DefaultConfig() *ProjectsConfig {
	return &ProjectsConfig{}
}

// RepoSlug returns "owner/name".
func (c *ProjectsConfig) RepoSlug() string {
	return c.RepoOwner + "/" + c.RepoName
}

// HasProject reports whether a project has been created for this checkout.
func (c *ProjectsConfig) HasProject() bool {
	return c.ProjectID != ""
}

// Validate checks the settings a sync needs before any remote call.
func (c *ProjectsConfig) Validate() error {
	if !c.Enabled {
		return ErrNotEnabled
	}
	if c.RepoOwner == "" || c.RepoName == "" {
		return ErrRepositoryNotConfigured
	}
	return nil
}

func ConfigPath(root string) string {
	return filepath.Join(root, DirName, ConfigFileName)
}

func lockPath(root string) string {
	return ConfigPath(root) + ".lock"
}

// Load reads the state for root. A missing or corrupt file yields the
// default (never synced) state; only I/O failures are returned as errors.
func Load(root string) (*ProjectsConfig, error) {
	path := ConfigPath(root)
	data, err := os.ReadFile(path) // #nosec G304 - path derived from project root
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := validateState(data); err != nil {
		debug.Logf("ignoring invalid %s: %v\n", path, err)
		return DefaultConfig(), nil
	}

	var cfg ProjectsConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		debug.Logf("ignoring corrupt %s: %v\n", path, err)
		return DefaultConfig(), nil
	}
	return &cfg, nil
}

// Save writes the state atomically while holding an exclusive file lock.
func (c *ProjectsConfig) Save(root string) error {
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append(data, '\n')

	lock := flock.New(lockPath(root))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking config: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	tmp, err := os.CreateTemp(dir, ConfigFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmpName, ConfigPath(root)); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// FileStore saves state under a fixed project root.
type FileStore struct {
	Root string
}

func (s FileStore) Save(cfg *ProjectsConfig) error {
	return cfg.Save(s.Root)
}

const stateSchemaURL = "github-projects.schema.json"

const stateSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "enabled": {"type": "boolean"},
    "repo_owner": {"type": ["string", "null"]},
    "repo_name": {"type": ["string", "null"]},
    "project_number": {"type": ["integer", "null"], "minimum": 0},
    "project_id": {"type": ["string", "null"]},
    "project_url": {"type": ["string", "null"]},
    "field_ids": {
      "type": ["object", "null"],
      "additionalProperties": {"type": ["string", "object"]}
    },
    "last_synced_at": {"type": ["string", "null"]},
    "last_synced_tasks_md_hash": {"type": ["string", "null"]}
  }
}`

var stateSchemaCompiled = jsonschema.MustCompileString(stateSchemaURL, stateSchema)

func validateState(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return stateSchemaCompiled.Validate(v)
}
