package seed

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Seed declares a user and the feeds they start out subscribed to. One
// YAML file per user in the seeds directory.
type Seed struct {
	User  string   `yaml:"user"`
	Feeds []string `yaml:"feeds"`
}

// Loader handles loading and validation of subscription seed files
type Loader struct {
	seedsDir string
}

// NewLoader creates a new seed loader
func NewLoader(seedsDir string) *Loader {
	return &Loader{seedsDir: seedsDir}
}

// LoadAll loads all YAML seed files from the seeds directory
func (l *Loader) LoadAll() ([]*Seed, error) {
	var seeds []*Seed

	if _, err := os.Stat(l.seedsDir); os.IsNotExist(err) {
		return seeds, nil // Return empty list if directory doesn't exist
	}

	files, err := filepath.Glob(filepath.Join(l.seedsDir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YAML files: %w", err)
	}

	// Also check for .yml extension
	ymlFiles, err := filepath.Glob(filepath.Join(l.seedsDir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YML files: %w", err)
	}
	files = append(files, ymlFiles...)

	for _, file := range files {
		seed, err := l.loadFile(file)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", file, err)
		}

		if err := l.validate(seed); err != nil {
			return nil, fmt.Errorf("invalid seed %s: %w", file, err)
		}

		seeds = append(seeds, seed)
	}

	return seeds, nil
}

// loadFile loads a single YAML seed file
func (l *Loader) loadFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &seed, nil
}

// validate validates the seed
func (l *Loader) validate(seed *Seed) error {
	if seed.User == "" {
		return fmt.Errorf("user is required")
	}
	for i, url := range seed.Feeds {
		if url == "" {
			return fmt.Errorf("feed URL at index %d is empty", i)
		}
	}
	return nil
}
