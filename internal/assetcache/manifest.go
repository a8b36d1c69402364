package assetcache

import (
	_ "embed"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/leadsync/pkg/errors"
)

//go:embed default_manifest.yaml
var defaultManifest []byte

// Manifest names the baseline resource set of a cache generation.
type Manifest struct {
	Version     string   `yaml:"version" json:"version"`
	OfflinePage string   `yaml:"offline_page" json:"offline_page"`
	Resources   []string `yaml:"resources" json:"resources"`
}

// DefaultManifest returns the built-in manifest.
func DefaultManifest() *Manifest {
	m, err := ParseManifest(defaultManifest)
	if err != nil {
		panic("assetcache: invalid built-in manifest: " + err.Error())
	}
	return m
}

// LoadManifest reads a manifest from a YAML file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfigError("manifest", "cannot read "+path, err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.NewConfigError("manifest", "invalid YAML", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest is installable.
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.Version) == "" {
		return errors.NewValidationError("version", m.Version, "must not be empty")
	}
	if len(m.Resources) == 0 && m.OfflinePage == "" {
		return errors.NewValidationError("resources", nil, "must list at least one resource")
	}
	for _, r := range m.Resources {
		if strings.TrimSpace(r) == "" {
			return errors.NewValidationError("resources", r, "must not contain empty entries")
		}
	}
	return nil
}

// All returns the resources to install, including the offline page.
func (m *Manifest) All() []string {
	out := make([]string, 0, len(m.Resources)+1)
	seen := make(map[string]bool, len(m.Resources)+1)
	for _, r := range append(append([]string{}, m.Resources...), m.OfflinePage) {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
