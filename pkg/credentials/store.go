// Package credentials loads, saves, and validates provider credentials.
// Resolution order is environment first, config file second; a multi-variable
// credential is usable only when every constituent is set, and a failed
// validation unsets every constituent so a known-bad secret never survives
// into later commands.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Canonical aliases accepted in config files for single-variable credentials.
var aliases = []string{"api_key", "token"}

// Store resolves credentials from the environment and per-provider JSON
// config files.
type Store struct {
	// ConfigDir is the directory holding per-provider config files. When
	// empty, DefaultConfigDir is used.
	ConfigDir string
}

// DefaultConfigDir returns ~/.config/spinup.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".spinup")
	}
	return filepath.Join(home, ".config", "spinup")
}

// ConfigPath returns the fixed config file path for a provider.
func (s *Store) ConfigPath(provider string) string {
	dir := s.ConfigDir
	if dir == "" {
		dir = DefaultConfigDir()
	}
	return filepath.Join(dir, provider+".json")
}

// LoadEnv fills the credential from the process environment. The credential
// is Present only if every constituent variable is set and non-empty.
func (s *Store) LoadEnv(cred *Credential) bool {
	values := make([]string, len(cred.Names))
	for i, name := range cred.Names {
		values[i] = os.Getenv(name)
	}
	cred.setValues(values, SourceEnvironment)
	return cred.Present()
}

// LoadConfig fills the credential from the JSON config file at path. Any
// failure (file missing, unreadable, invalid JSON, or any requested field
// missing or empty) leaves the credential Absent. Partial loads never
// happen. For single-variable credentials the canonical aliases "api_key"
// and "token" are accepted in place of the variable name.
func (s *Store) LoadConfig(path string, cred *Credential) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	var fields map[string]string
	if err := json.Unmarshal(data, &fields); err != nil {
		// Corrupt config is treated as absent, not fatal; the caller falls
		// through to prompting.
		log.Warn().Str("path", path).Err(err).Msg("config file is not valid JSON, ignoring")
		return false
	}

	values := make([]string, len(cred.Names))
	for i, name := range cred.Names {
		values[i] = fields[name]
		if values[i] == "" && !cred.IsMulti() {
			for _, alias := range aliases {
				if fields[alias] != "" {
					values[i] = fields[alias]
					break
				}
			}
		}
		if values[i] == "" {
			return false
		}
	}
	cred.setValues(values, SourceConfigFile)
	return cred.Present()
}

// Save writes fields to the config file at path as a JSON object, creating
// parent directories on demand. The file is overwritten wholesale (no merge)
// and always ends up mode 0600 regardless of umask.
func (s *Store) Save(path string, fields map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	// WriteFile only applies the mode on create; an existing file keeps its
	// old permissions, so chmod explicitly.
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("failed to restrict config file permissions: %w", err)
	}

	log.Debug().Str("path", path).Int("fields", len(fields)).Msg("saved credential config")
	return nil
}

// Resolve loads the credential from the environment first and the provider
// config file second. Returns true when the credential ends up Present.
func (s *Store) Resolve(cred *Credential) bool {
	if len(cred.Names) == 0 {
		// No-auth provider: nothing to resolve.
		return false
	}
	if s.LoadEnv(cred) {
		log.Debug().
			Str("provider", cred.Provider).
			Strs("vars", cred.Names).
			Msg("credential resolved from environment")
		return true
	}
	if s.LoadConfig(s.ConfigPath(cred.Provider), cred) {
		log.Debug().
			Str("provider", cred.Provider).
			Strs("vars", cred.Names).
			Msg("credential resolved from config file")
		return true
	}
	return false
}
