package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServiceMapping declares one managed service kind: where its live
// configuration and backup live, which unit to reload, and which tool
// checks candidate syntax. The check command gets the candidate path
// appended as its final argument; an empty command means the kind has
// no standalone checker and the reload step is where bad syntax
// surfaces.
type ServiceMapping struct {
	Kind         string        `yaml:"kind"`
	Unit         string        `yaml:"unit"`
	ConfigPath   string        `yaml:"config_path"`
	BackupPath   string        `yaml:"backup_path"`
	FileMode     string        `yaml:"file_mode,omitempty"`
	CheckCommand []string      `yaml:"check_command,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
}

// Mode parses the mapping's octal file mode, defaulting to 0644.
func (m ServiceMapping) Mode() (os.FileMode, error) {
	if m.FileMode == "" {
		return 0o644, nil
	}
	parsed, err := strconv.ParseUint(m.FileMode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("service %q: invalid file_mode %q", m.Kind, m.FileMode)
	}
	return os.FileMode(parsed), nil
}

// servicesFile is the parsed YAML structure for the services file:
// services: [{kind, unit, config_path, backup_path, ...}]
type servicesFile struct {
	Services []ServiceMapping `yaml:"services"`
}

// DefaultServiceMappings returns the built-in smb and nfs mappings.
// NFS has no standalone syntax checker in nfs-utils; exportfs parses
// the export table during reload, which is why its check command is
// empty and a bad table rolls back through the reload failure path.
func DefaultServiceMappings() []ServiceMapping {
	return []ServiceMapping{
		{
			Kind:         "smb",
			Unit:         "smbd",
			ConfigPath:   "/etc/samba/smb.conf",
			BackupPath:   "/etc/samba/smb.conf.bak",
			FileMode:     "0644",
			CheckCommand: []string{"testparm", "-s"},
		},
		{
			Kind:       "nfs",
			Unit:       "nfs-server",
			ConfigPath: "/etc/exports",
			BackupPath: "/etc/exports.bak",
			FileMode:   "0644",
		},
	}
}

// LoadServicesFile parses a YAML services file from the given path.
// Returns the built-in defaults if path is empty.
func LoadServicesFile(path string) ([]ServiceMapping, error) {
	if path == "" {
		return DefaultServiceMappings(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read services file: %w", err)
	}

	var sf servicesFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse services file: %w", err)
	}

	if err := validateServices(sf.Services); err != nil {
		return nil, err
	}

	return sf.Services, nil
}

// validateServices ensures all mappings are valid.
func validateServices(services []ServiceMapping) error {
	if len(services) == 0 {
		return fmt.Errorf("services file contains no services")
	}

	seen := make(map[string]bool)
	paths := make(map[string]string)

	for i, s := range services {
		if s.Kind == "" {
			return fmt.Errorf("service %d: kind is required", i)
		}

		if s.Unit == "" {
			return fmt.Errorf("service %q: unit is required", s.Kind)
		}

		if !filepath.IsAbs(s.ConfigPath) {
			return fmt.Errorf("service %q: config_path must be absolute", s.Kind)
		}

		if !filepath.IsAbs(s.BackupPath) {
			return fmt.Errorf("service %q: backup_path must be absolute", s.Kind)
		}

		if s.ConfigPath == s.BackupPath {
			return fmt.Errorf("service %q: backup_path must differ from config_path", s.Kind)
		}

		if seen[s.Kind] {
			return fmt.Errorf("service %q: duplicate kind", s.Kind)
		}
		seen[s.Kind] = true

		if owner, taken := paths[s.ConfigPath]; taken {
			return fmt.Errorf("service %q: config_path already managed for %q", s.Kind, owner)
		}
		paths[s.ConfigPath] = s.Kind

		if _, err := s.Mode(); err != nil {
			return err
		}

		if s.Timeout < 0 {
			return fmt.Errorf("service %q: timeout cannot be negative", s.Kind)
		}
	}

	return nil
}
