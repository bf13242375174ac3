package plugins

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest describes an installable integration: identity, scheduling,
// admin UI pages and the configuration schema.
type Manifest struct {
	Name            string          `yaml:"name" json:"name"`
	Version         string          `yaml:"version" json:"version"`
	Description     string          `yaml:"description" json:"description"`
	ScheduleSeconds int             `yaml:"schedule_seconds" json:"schedule_seconds"`
	Pages           []ManifestPage  `yaml:"pages" json:"pages"`
	Config          []ManifestField `yaml:"config" json:"config"`
}

// ManifestPage is one menu entry the plugin contributes to the admin UI.
type ManifestPage struct {
	Title string `yaml:"title" json:"title"`
	Path  string `yaml:"path" json:"path"`
}

// ManifestField is one entry of the plugin's config schema. Secret fields
// are masked when config is read back through the API.
type ManifestField struct {
	Key      string `yaml:"key" json:"key"`
	Label    string `yaml:"label" json:"label"`
	Required bool   `yaml:"required" json:"required"`
	Secret   bool   `yaml:"secret" json:"secret"`
}

// ParseManifest decodes and validates a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest YAML: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest invariants.
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("manifest name is required")
	}
	if strings.TrimSpace(m.Version) == "" {
		return fmt.Errorf("manifest version is required")
	}
	if m.ScheduleSeconds < 0 {
		return fmt.Errorf("schedule_seconds cannot be negative")
	}

	for _, page := range m.Pages {
		if strings.TrimSpace(page.Title) == "" {
			return fmt.Errorf("manifest page title is required")
		}
		if !strings.HasPrefix(page.Path, "/") {
			return fmt.Errorf("manifest page path must start with /: %s", page.Path)
		}
	}

	seen := make(map[string]bool, len(m.Config))
	for _, field := range m.Config {
		if strings.TrimSpace(field.Key) == "" {
			return fmt.Errorf("manifest config key is required")
		}
		if seen[field.Key] {
			return fmt.Errorf("duplicate manifest config key: %s", field.Key)
		}
		seen[field.Key] = true
	}

	return nil
}

// ValidateConfig checks a config map against the manifest schema: required
// keys present, no keys outside the schema.
func (m *Manifest) ValidateConfig(config map[string]string) error {
	known := make(map[string]ManifestField, len(m.Config))
	for _, field := range m.Config {
		known[field.Key] = field
	}

	for key := range config {
		if _, ok := known[key]; !ok {
			return fmt.Errorf("unknown config key: %s", key)
		}
	}
	for _, field := range m.Config {
		if field.Required && strings.TrimSpace(config[field.Key]) == "" {
			return fmt.Errorf("missing required config key: %s", field.Key)
		}
	}
	return nil
}
