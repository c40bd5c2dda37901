package filehandler

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// ImageMetadata contains the EXIF fields worth showing next to the original image.
//
// Extraction uses evanoberholster/imagemeta, which reads only the metadata block
// through an io.ReadSeeker. PNG and WebP uploads usually carry no EXIF; that is
// reported as an error and the upload continues without metadata.
type ImageMetadata struct {
	Latitude  float64
	Longitude float64
	HasGPS    bool

	DateTaken time.Time
	HasDate   bool

	CameraMake  string
	CameraModel string
}

// ExtractImageMetadata decodes the EXIF block of an image.
func ExtractImageMetadata(r io.ReadSeeker) (*ImageMetadata, error) {
	exifData, err := imagemeta.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF metadata: %w", err)
	}

	metadata := &ImageMetadata{}

	gps := exifData.GPS
	if gps.Latitude() != 0 || gps.Longitude() != 0 {
		metadata.Latitude = gps.Latitude()
		metadata.Longitude = gps.Longitude()
		metadata.HasGPS = true
	}

	// Priority: DateTimeOriginal > CreateDate > ModifyDate
	switch {
	case !exifData.DateTimeOriginal().IsZero():
		metadata.DateTaken = exifData.DateTimeOriginal()
		metadata.HasDate = true
	case !exifData.CreateDate().IsZero():
		metadata.DateTaken = exifData.CreateDate()
		metadata.HasDate = true
	case !exifData.ModifyDate().IsZero():
		metadata.DateTaken = exifData.ModifyDate()
		metadata.HasDate = true
	}

	metadata.CameraMake = strings.TrimSpace(exifData.Make)
	metadata.CameraModel = strings.TrimSpace(exifData.Model)

	log.Debug().
		Bool("has_gps", metadata.HasGPS).
		Bool("has_date", metadata.HasDate).
		Str("camera", metadata.Camera()).
		Msg("Image metadata extraction complete")

	return metadata, nil
}

// Camera returns "Make Model" with empty parts dropped.
func (m *ImageMetadata) Camera() string {
	return strings.TrimSpace(m.CameraMake + " " + m.CameraModel)
}

// Summary renders a one-line caption, e.g.
// "Apple iPhone 15 Pro · Dec 31, 2024 10:30 · 40.712800, -74.006000".
// Returns "" when nothing is known.
func (m *ImageMetadata) Summary() string {
	if m == nil {
		return ""
	}
	var parts []string
	if cam := m.Camera(); cam != "" {
		parts = append(parts, cam)
	}
	if m.HasDate {
		parts = append(parts, m.DateTaken.Format("Jan 2, 2006 15:04"))
	}
	if m.HasGPS {
		parts = append(parts, fmt.Sprintf("%.6f, %.6f", m.Latitude, m.Longitude))
	}
	return strings.Join(parts, " · ")
}
