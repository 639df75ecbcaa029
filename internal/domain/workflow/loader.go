package workflow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Strob0t/FlowForge/internal/domain/phase"
)

// LoadFromFile reads a single Definition from a YAML file.
func LoadFromFile(path string, registry *phase.Registry) (*Definition, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		return nil, fmt.Errorf("read workflow file %s: %w", path, err)
	}

	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse workflow file %s: %w", path, err)
	}

	if err := d.Validate(registry); err != nil {
		return nil, fmt.Errorf("validate workflow file %s: %w", path, err)
	}

	return &d, nil
}

// LoadFromDirectory reads all .yaml/.yml files from a directory.
// A missing directory returns an empty slice, not an error.
func LoadFromDirectory(dir string, registry *phase.Registry) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read workflow directory %s: %w", dir, err)
	}

	var defs []Definition
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		d, err := LoadFromFile(filepath.Join(dir, entry.Name()), registry)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *d)
	}

	return defs, nil
}
