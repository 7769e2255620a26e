package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/clausewise/clausewise/pkg/domain"
)

// seedFile is the on-disk YAML shape for a framework seed.
type seedFile struct {
	Framework    Framework            `yaml:"framework"`
	Requirements []domain.Requirement `yaml:"requirements"`
}

// LoadFile reads a framework seed file and returns a frozen snapshot.
// Seeding happens before any audit starts; an empty or malformed seed is a
// startup error, never a mid-run condition.
func LoadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read seed %s: %w", path, err)
	}
	return Load(data)
}

// Load parses YAML seed content into a snapshot.
func Load(data []byte) (*Snapshot, error) {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("catalog: parse seed: %w", err)
	}
	return NewSnapshot(seed.Framework, seed.Requirements)
}
