package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigLoadError wraps any failure encountered while loading or validating
// the agent catalog: missing file, parse error, empty document, validation
// failure, or a path outside the allowed configuration directories.
type ConfigLoadError struct {
	msg string
	err error
}

func (e *ConfigLoadError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *ConfigLoadError) Unwrap() error { return e.err }

func newConfigLoadError(msg string, err error) *ConfigLoadError {
	return &ConfigLoadError{msg: msg, err: err}
}

// AllowedConfigDirs lists the directory prefixes a resolved config path must
// fall under. /tmp is retained for tests; production deployments mount
// ConfigMaps under /config.
var AllowedConfigDirs = []string{"/config", "/app/config", "/tmp", "config", "."}

func validateConfigPath(path string, allowedDirs []string) (string, error) {
	resolved, err := filepath.Abs(path)
	if err != nil {
		return "", newConfigLoadError(fmt.Sprintf("cannot resolve configuration path %q", path), err)
	}
	resolved, err = filepath.EvalSymlinks(resolved)
	if err != nil {
		// Symlink resolution may fail for a not-yet-existing path; fall
		// back to the absolute, non-symlink-resolved form so the
		// not-found check below still fires with a clear message.
		resolved, _ = filepath.Abs(path)
	}

	for _, dir := range allowedDirs {
		allowedResolved, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		if resolved == allowedResolved {
			return resolved, nil
		}
		rel, err := filepath.Rel(allowedResolved, resolved)
		if err != nil {
			continue
		}
		if rel != ".." && !hasParentPrefix(rel) {
			return resolved, nil
		}
	}

	return "", newConfigLoadError(
		fmt.Sprintf("configuration path %q is outside allowed directories: %v", resolved, allowedDirs), nil)
}

func hasParentPrefix(rel string) bool {
	return len(rel) >= 2 && rel[:2] == ".."
}

// Load reads, parses, and validates the agent catalog YAML file at path.
func Load(path string) (*Catalog, error) {
	resolved, err := validateConfigPath(path, AllowedConfigDirs)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(resolved)
	if errors.Is(err, os.ErrNotExist) {
		return nil, newConfigLoadError(fmt.Sprintf("configuration file not found: %s", resolved), nil)
	}
	if err != nil {
		return nil, newConfigLoadError(fmt.Sprintf("failed to stat %s", resolved), err)
	}
	if info.IsDir() {
		return nil, newConfigLoadError(fmt.Sprintf("configuration path is a directory: %s", resolved), nil)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, newConfigLoadError(fmt.Sprintf("failed to read %s", resolved), err)
	}

	if len(data) == 0 {
		return nil, newConfigLoadError(fmt.Sprintf("empty configuration file: %s", resolved), nil)
	}

	var raw rawCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, newConfigLoadError(fmt.Sprintf("invalid YAML in %s", resolved), err)
	}

	catalog, err := raw.validate()
	if err != nil {
		return nil, newConfigLoadError("configuration validation failed", err)
	}
	return catalog, nil
}
