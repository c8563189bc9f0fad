package stages

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Definition describes one expected pipeline stage for a media type
type Definition struct {
	Name   string  `yaml:"name"`
	Label  string  `yaml:"label"`
	Weight float64 `yaml:"weight"`
}

// Catalog holds the per-media-type ordered stage lists used to
// initialize jobs. Weights within a media type sum to a fixed total
// (convention: 100) so percentages read naturally.
type Catalog struct {
	pipelines map[string][]Definition
}

// Builtin returns the catalog for the three built-in media types
func Builtin() *Catalog {
	return &Catalog{
		pipelines: map[string][]Definition{
			"video": {
				{Name: "validation", Label: "Validating input", Weight: 5},
				{Name: "metadata_extraction", Label: "Extracting metadata", Weight: 10},
				{Name: "thumbnail_generation", Label: "Generating thumbnails", Weight: 10},
				{Name: "transcription", Label: "Transcribing audio track", Weight: 40},
				{Name: "object_detection", Label: "Detecting objects", Weight: 25},
				{Name: "finalization", Label: "Finalizing results", Weight: 10},
			},
			"audio": {
				{Name: "validation", Label: "Validating input", Weight: 5},
				{Name: "metadata_extraction", Label: "Extracting metadata", Weight: 10},
				{Name: "waveform_analysis", Label: "Analyzing waveform", Weight: 15},
				{Name: "transcription", Label: "Transcribing audio", Weight: 55},
				{Name: "finalization", Label: "Finalizing results", Weight: 15},
			},
			"image": {
				{Name: "validation", Label: "Validating input", Weight: 10},
				{Name: "metadata_extraction", Label: "Extracting metadata", Weight: 15},
				{Name: "thumbnail_generation", Label: "Generating thumbnails", Weight: 35},
				{Name: "object_detection", Label: "Detecting objects", Weight: 30},
				{Name: "finalization", Label: "Finalizing results", Weight: 10},
			},
		},
	}
}

// LoadFile reads a catalog from a YAML file mapping media type to an
// ordered stage list. Loaded catalogs replace the builtin ones wholesale.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stage catalog: %w", err)
	}

	var pipelines map[string][]Definition
	if err := yaml.Unmarshal(data, &pipelines); err != nil {
		return nil, fmt.Errorf("parse stage catalog %s: %w", path, err)
	}

	c := &Catalog{pipelines: pipelines}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("stage catalog %s: %w", path, err)
	}
	return c, nil
}

func (c *Catalog) validate() error {
	if len(c.pipelines) == 0 {
		return fmt.Errorf("no media types defined")
	}
	for mediaType, defs := range c.pipelines {
		if len(defs) == 0 {
			return fmt.Errorf("media type %q has no stages", mediaType)
		}
		seen := make(map[string]bool, len(defs))
		for _, d := range defs {
			if d.Name == "" {
				return fmt.Errorf("media type %q has a stage with no name", mediaType)
			}
			if d.Weight <= 0 {
				return fmt.Errorf("stage %q of %q has non-positive weight %v", d.Name, mediaType, d.Weight)
			}
			if seen[d.Name] {
				return fmt.Errorf("stage %q duplicated in media type %q", d.Name, mediaType)
			}
			seen[d.Name] = true
		}
	}
	return nil
}

// Pipeline returns the ordered stage definitions for a media type
func (c *Catalog) Pipeline(mediaType string) ([]Definition, bool) {
	defs, ok := c.pipelines[mediaType]
	if !ok {
		return nil, false
	}
	out := make([]Definition, len(defs))
	copy(out, defs)
	return out, true
}

// TotalWeight returns the weight sum for a media type (0 if unknown)
func (c *Catalog) TotalWeight(mediaType string) float64 {
	total := 0.0
	for _, d := range c.pipelines[mediaType] {
		total += d.Weight
	}
	return total
}

// MediaTypes returns the known media types, sorted
func (c *Catalog) MediaTypes() []string {
	types := make([]string, 0, len(c.pipelines))
	for mt := range c.pipelines {
		types = append(types, mt)
	}
	sort.Strings(types)
	return types
}
