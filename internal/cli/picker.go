package cli

import (
	"errors"

	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
)

// ErrPickerCanceled is returned when the user closes the file dialog.
var ErrPickerCanceled = errors.New("file selection canceled")

// imagePatterns are the file dialog filters for uploadable images.
var imagePatterns = []string{"*.png", "*.jpg", "*.jpeg", "*.webp"}

// PickImageFile opens the native file dialog filtered to uploadable images.
func PickImageFile() (string, error) {
	selected, err := zenity.SelectFile(
		zenity.Title("Select a photo to edit"),
		zenity.FileFilters{
			{Name: "Images", Patterns: imagePatterns},
		},
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return "", ErrPickerCanceled
		}
		log.Error().Err(err).Msg("File picker failed")
		return "", err
	}
	log.Info().Str("path", selected).Msg("File picked via native dialog")
	return selected, nil
}
