package editor

import (
	"fmt"

	"github.com/fpang/muted-image-editor/internal/assets"
)

const (
	// MinIntensity and MaxIntensity bound the effect strength percentage.
	MinIntensity = 0
	MaxIntensity = 100
	// DefaultIntensity applies on upload, reset and every new preset selection.
	DefaultIntensity = MaxIntensity
)

// ClampIntensity limits v to [MinIntensity, MaxIntensity].
func ClampIntensity(v int) int {
	if v < MinIntensity {
		return MinIntensity
	}
	if v > MaxIntensity {
		return MaxIntensity
	}
	return v
}

// ComposeInstruction appends the intensity clause to a preset prompt.
// The number is a hint to the model; nothing here scales pixels.
func ComposeInstruction(promptTemplate string, intensity int) string {
	return promptTemplate + " " + fmt.Sprintf(assets.IntensityClauseFormat, ClampIntensity(intensity))
}
