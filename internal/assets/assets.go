// Package assets provides embedded static assets for the application.
//
// The preset catalog is stored as JSON under presets/ and embedded at compile time
// so the binaries never read it from disk.
package assets

import (
	_ "embed"
)

// PresetCatalogJSON is the curated, ordered list of style presets.
// Each entry has a unique name, the natural-language prompt sent to the image
// model, and a CSS background used only to paint the preset tile.
//
//go:embed presets/catalog.json
var PresetCatalogJSON []byte
