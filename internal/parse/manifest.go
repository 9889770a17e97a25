package parse

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest describes one ingestion request: which repository to scan and how.
// Stored as YAML next to the repository or passed to `ckg ingest -f`.
type Manifest struct {
	// Repository is the logical repository reference recorded on the snapshot
	// (e.g. "github.com/acme/api@main").
	Repository string `yaml:"repository"`
	// Root is the local path holding the checked-out source.
	Root string `yaml:"root"`
	// Include restricts scanning to these path prefixes when non-empty.
	Include []string `yaml:"include,omitempty"`
	// SCIPIndex, when set, ingests a precomputed SCIP index instead of
	// scanning source.
	SCIPIndex string `yaml:"scipIndex,omitempty"`
	// MaxFileSizeBytes caps parseable file size (0 = default).
	MaxFileSizeBytes int64 `yaml:"maxFileSizeBytes,omitempty"`
}

// LoadManifest reads and validates a YAML ingestion manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	if m.Repository == "" {
		return nil, fmt.Errorf("manifest %s: repository is required", path)
	}
	if m.Root == "" && m.SCIPIndex == "" {
		return nil, fmt.Errorf("manifest %s: one of root or scipIndex is required", path)
	}
	return &m, nil
}
