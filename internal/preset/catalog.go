// Package preset holds the read-only catalog of style presets offered by the editor.
//
// The catalog is loaded once from the embedded JSON table and never mutated. Lookups
// by name are what the edit controller uses when an intensity change has to re-issue
// the currently selected preset.
package preset

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fpang/muted-image-editor/internal/assets"
	"github.com/rs/zerolog/log"
)

// ErrUnknownPreset is returned when a name does not match any catalog entry.
var ErrUnknownPreset = errors.New("unknown preset")

// Preset is one named style transformation.
type Preset struct {
	// Name is the stable, unique key shown on the preset tile.
	Name string `json:"name"`
	// Prompt is the natural-language instruction sent to the image model.
	// The intensity clause is appended at request time, never stored here.
	Prompt string `json:"prompt"`
	// Swatch is a CSS background value; purely cosmetic.
	Swatch string `json:"swatch"`
}

// Catalog is an immutable, ordered list of presets indexed by name.
type Catalog struct {
	presets []Preset
	byName  map[string]int
}

// NewCatalog builds a catalog from the given presets, preserving order.
// Names must be non-empty and unique; prompts must be non-empty.
func NewCatalog(presets []Preset) (*Catalog, error) {
	c := &Catalog{
		presets: make([]Preset, 0, len(presets)),
		byName:  make(map[string]int, len(presets)),
	}
	for i, p := range presets {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("preset %d: empty name", i)
		}
		if strings.TrimSpace(p.Prompt) == "" {
			return nil, fmt.Errorf("preset %q: empty prompt", name)
		}
		if _, dup := c.byName[name]; dup {
			return nil, fmt.Errorf("preset %q: duplicate name", name)
		}
		p.Name = name
		c.byName[name] = len(c.presets)
		c.presets = append(c.presets, p)
	}
	return c, nil
}

// Parse decodes a JSON array of presets into a catalog.
func Parse(data []byte) (*Catalog, error) {
	var presets []Preset
	if err := json.Unmarshal(data, &presets); err != nil {
		return nil, fmt.Errorf("failed to parse preset catalog: %w", err)
	}
	return NewCatalog(presets)
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded catalog. It is parsed on first use and shared
// afterwards. A malformed embedded table is a build defect, so it is fatal.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(assets.PresetCatalogJSON)
		if err != nil {
			log.Fatal().Err(err).Msg("Embedded preset catalog is invalid")
		}
		log.Debug().Int("presets", c.Len()).Msg("Preset catalog loaded")
		defaultCatalog = c
	})
	return defaultCatalog
}

// Len returns the number of presets.
func (c *Catalog) Len() int {
	return len(c.presets)
}

// All returns a copy of the presets in catalog order.
func (c *Catalog) All() []Preset {
	out := make([]Preset, len(c.presets))
	copy(out, c.presets)
	return out
}

// Lookup returns the preset with the given name.
func (c *Catalog) Lookup(name string) (Preset, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Preset{}, false
	}
	return c.presets[i], true
}

// Get is like Lookup but returns ErrUnknownPreset for a missing name.
func (c *Catalog) Get(name string) (Preset, error) {
	p, ok := c.Lookup(name)
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return p, nil
}

// Names returns preset names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.presets))
	for i, p := range c.presets {
		names[i] = p.Name
	}
	return names
}
