// Package content loads and validates the excursion content script.
//
// The script is parsed once at startup into an explicitly constructed,
// read-only models.Content value that is injected into the engine; there
// is no package-level singleton, so tests can supply alternative scripts.
package content

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ingria/excursbot/internal/models"
)

// Load reads and parses the content script at path. Any schema violation
// is a fatal configuration error: the process must not serve traffic with
// a malformed script.
func Load(path string) (*models.Content, error) {
	slog.Debug("content.Load: reading content script", "path", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read content script %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a content script from raw YAML bytes.
func Parse(data []byte) (*models.Content, error) {
	var c models.Content
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse content script: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid content script: %w", err)
	}
	normalize(&c)
	slog.Info("content script loaded", "stages", len(c.Stages), "success_variants", len(c.Success))
	return &c, nil
}

// normalize upgrades legacy scripts that mark the feedback stage only by
// its display name to the explicit kind tag.
func normalize(c *models.Content) {
	for i := range c.Stages {
		stage := &c.Stages[i]
		if stage.Kind == models.StageKindDefault && stage.Name == "feedback" {
			stage.Kind = models.StageKindFeedback
			slog.Debug("content.normalize: tagged legacy feedback stage", "index", i)
		}
	}
}
