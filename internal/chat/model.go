package chat

import (
	"os"
	"strings"
)

// Gemini model IDs used by the editor.
//
// | Model Name                  | API Model ID                | Use Case                      |
// |-----------------------------|-----------------------------|-------------------------------|
// | Gemini 2.5 Flash Image      | gemini-2.5-flash-image      | Fast image edits (default)    |
// | Gemini 2.5 Flash            | gemini-2.5-flash            | Stable, balanced performance  |
const (
	// ModelGemini25FlashImage edits images from an image and a text instruction.
	ModelGemini25FlashImage = "gemini-2.5-flash-image"

	// ModelGemini25Flash is stable, balanced performance. Used for key validation.
	ModelGemini25Flash = "gemini-2.5-flash"
)

// DefaultImageModelName is the model every preset edit goes to.
// Can be overridden via GEMINI_IMAGE_MODEL environment variable.
const DefaultImageModelName = ModelGemini25FlashImage

// GetImageModelName returns the image model to use, resolved from:
// 1. GEMINI_IMAGE_MODEL environment variable (if set)
// 2. Default: gemini-2.5-flash-image
func GetImageModelName() string {
	if env := strings.TrimSpace(os.Getenv("GEMINI_IMAGE_MODEL")); env != "" {
		return env
	}
	return DefaultImageModelName
}
