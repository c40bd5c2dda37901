// Package filehandler implements the file ingestion boundary of the editor.
//
// An upload is read into memory, its media type resolved (content sniffing first,
// file extension second), its dimensions read when the header decodes, and its
// EXIF block summarised when one is present. The result carries everything the
// edit controller needs: a renderable data URI and the raw payload with its media
// type for transmission to the image model.
package filehandler

import (
	"path/filepath"
	"strings"
)

// DefaultMaxUploadBytes caps how much of an upload is read into memory.
const DefaultMaxUploadBytes int64 = 20 << 20

// SupportedImageExtensions maps file extensions to the media type reported when
// content sniffing is inconclusive.
var SupportedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",
	".avif": "image/avif",
}

// AcceptedUploadTypes are the media types offered by the upload surfaces.
var AcceptedUploadTypes = []string{"image/png", "image/jpeg", "image/webp"}

// IsImageMediaType reports whether a declared media type looks like an image.
// This is the drop-target check of the upload surfaces; the controller itself
// does not enforce it.
func IsImageMediaType(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "image/")
}

// MIMETypeForName resolves a media type from a file name's extension.
func MIMETypeForName(name string) (string, bool) {
	mimeType, ok := SupportedImageExtensions[strings.ToLower(filepath.Ext(name))]
	return mimeType, ok
}

// ExtensionForMIMEType returns the preferred file extension for an image
// media type, defaulting to ".png".
func ExtensionForMIMEType(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
