package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/dgnsrekt/chartdesk/internal/overlay"
	"gopkg.in/yaml.v3"
)

// styleFile is the top-level YAML layout of the chart style file.
type styleFile struct {
	Style overlay.Style `yaml:"style"`
}

// LoadStyle reads chart colors and sizes from a YAML file. Unset fields
// keep their defaults; a missing file yields the defaults.
func LoadStyle(path string) (overlay.Style, error) {
	def := overlay.DefaultStyle()
	if path == "" {
		return def, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("style file not found, using defaults", "path", path)
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("style config: %w", err)
	}
	var f styleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return def, fmt.Errorf("style config: %w", err)
	}
	if f.Style.PointRadius < 0 || f.Style.LineWidth < 0 || f.Style.LabelWidth < 0 || f.Style.LabelHeight < 0 {
		return def, fmt.Errorf("style config: sizes must not be negative")
	}
	return f.Style.Merge(def), nil
}
