package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SettingsFile is the settings store's file name inside its directory.
const SettingsFile = "settings.yaml"

// DefaultSettingsPath returns the settings store location under the user's
// config directory.
func DefaultSettingsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "devil-deal", SettingsFile), nil
}

// SaveSettings writes the provider settings to path. The file holds a
// credential, so it is readable by the owner only.
func SaveSettings(path string, p ProviderConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadSettings reads provider settings written by SaveSettings.
func LoadSettings(path string) (ProviderConfig, error) {
	var p ProviderConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return p, nil
}
