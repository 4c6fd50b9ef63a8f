// Package config loads the YAML settings shared by the dmepatch binaries.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/dmepatch/internal/common"
)

// DefaultPath is tried when no --config flag is given. A missing file there is
// not an error.
const DefaultPath = "dmepatch.yaml"

type Config struct {
	Port       int              `yaml:"port"`
	StorageDir string           `yaml:"storageDir"`
	Catalog    string           `yaml:"catalog"`
	AuditLog   string           `yaml:"auditLog"`
	MaxImageMB int              `yaml:"maxImageMB"`
	Logs       common.LogConfig `yaml:"logs"`
}

// Load reads path and fills in defaults. Relative paths in the file are
// resolved against the file's directory. When path is empty or equals
// DefaultPath and the file does not exist, a default config is returned.
func Load(path string) (Config, error) {
	var cfg Config
	baseDir := "."
	if path == "" {
		path = DefaultPath
	}
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		dec := yaml.NewDecoder(f)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("decode %s: %w", path, err)
		}
		baseDir = filepath.Dir(path)
	case errors.Is(err, fs.ErrNotExist) && path == DefaultPath:
	default:
		return cfg, err
	}
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" {
			return ""
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Clean(filepath.Join(baseDir, p))
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = filepath.Join(".", "data")
	} else {
		cfg.StorageDir = resolvePath(cfg.StorageDir)
	}
	if cfg.MaxImageMB <= 0 {
		cfg.MaxImageMB = 16
	}
	cfg.Catalog = resolvePath(cfg.Catalog)
	cfg.AuditLog = resolvePath(cfg.AuditLog)
	if cfg.Logs.Directory != "" {
		cfg.Logs.Directory = resolvePath(cfg.Logs.Directory)
	}
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 25
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = 7
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 5
	}
	return cfg, nil
}
