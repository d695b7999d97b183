package client

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk configuration consumed by the CLI tools.
type FileConfig struct {
	Server  string `yaml:"server"`
	Token   string `yaml:"token"`
	Project string `yaml:"project"`
}

// DefaultConfigPath returns the per-user config location.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "task-management", "config.yaml"), nil
}

// LoadFileConfig reads the config file at path (or the default location when
// path is empty) and applies environment overrides. A missing file yields the
// zero config so env-only setups work.
func LoadFileConfig(path string) (*FileConfig, error) {
	cfg := &FileConfig{}
	if path == "" {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			path = ""
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}
	if v := os.Getenv("TASKMGMT_SERVER"); v != "" {
		cfg.Server = v
	}
	if v := os.Getenv("TASKMGMT_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("TASKMGMT_PROJECT"); v != "" {
		cfg.Project = v
	}
	if cfg.Server == "" {
		cfg.Server = "http://localhost:6060"
	}
	return cfg, nil
}
