// Package prefs persists operator preferences between restarts.
package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/frudas24/hidbridge/internal/gesture"
	"github.com/frudas24/hidbridge/internal/transport"
	"gopkg.in/yaml.v3"
)

// Prefs is what the operator last chose in the UI.
type Prefs struct {
	Sensitivity float64           `yaml:"sensitivity"`
	Jiggler     transport.Jiggler `yaml:"jiggler"`
}

// Default returns preferences for a fresh install.
func Default() Prefs {
	return Prefs{
		Sensitivity: gesture.DefaultSensitivity,
		Jiggler:     transport.DefaultJiggler(),
	}
}

// Load reads preferences from disk. Missing files return defaults.
func Load(path string) (Prefs, error) {
	p := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		return p, err
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Default(), fmt.Errorf("prefs %s: %w", path, err)
	}
	if p.Sensitivity <= 0 {
		p.Sensitivity = gesture.DefaultSensitivity
	}
	p.Jiggler = p.Jiggler.Normalize()
	return p, nil
}

// Save writes preferences to disk, creating parent directories as needed.
func Save(path string, p Prefs) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
