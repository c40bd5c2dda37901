package filehandler

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"
)

// DecodedImage is an upload that passed the decode step. Width and Height are
// zero when no registered decoder understands the format.
type DecodedImage struct {
	Name     string
	Data     []byte
	MIMEType string
	Width    int
	Height   int
	Metadata *ImageMetadata
}

// Base64 returns the payload encoded for transmission.
func (d *DecodedImage) Base64() string {
	return base64.StdEncoding.EncodeToString(d.Data)
}

// DataURL returns a renderable data URI for the payload.
func (d *DecodedImage) DataURL() string {
	return DataURL(d.MIMEType, d.Data)
}

// DataURL formats data as "data:<mime>;base64,<payload>".
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeImage reads an upload fully (up to maxBytes; <= 0 means
// DefaultMaxUploadBytes) and resolves its media type. Only read failures and
// empty or oversized uploads are errors; a header that no decoder recognises
// just leaves the dimensions unset.
func DecodeImage(name string, r io.Reader, maxBytes int64) (*DecodedImage, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	start := time.Now()

	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("upload exceeds %d bytes", maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("upload is empty")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		log.Debug().Err(err).Str("name", name).Msg("Image header not decodable, keeping payload as is")
	}

	decoded := &DecodedImage{
		Name:     filepath.Base(name),
		Data:     data,
		MIMEType: resolveMIMEType(name, data, format),
		Width:    cfg.Width,
		Height:   cfg.Height,
	}

	meta, err := ExtractImageMetadata(bytes.NewReader(data))
	if err != nil {
		log.Debug().Err(err).Str("name", decoded.Name).Msg("No EXIF metadata, continuing without it")
	} else {
		decoded.Metadata = meta
	}

	log.Info().
		Str("name", decoded.Name).
		Str("mime_type", decoded.MIMEType).
		Int("size_bytes", len(data)).
		Int("width", cfg.Width).
		Int("height", cfg.Height).
		Dur("duration", time.Since(start)).
		Msg("Image decoded")

	return decoded, nil
}

// LoadImageFile opens and decodes an image from disk.
func LoadImageFile(filePath string, maxBytes int64) (*DecodedImage, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", filePath)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", filePath)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return DecodeImage(filePath, f, maxBytes)
}

// resolveMIMEType prefers the sniffed content type, then the decoder's format
// name, then the file extension.
func resolveMIMEType(name string, data []byte, format string) string {
	if sniffed := http.DetectContentType(data); IsImageMediaType(sniffed) {
		return sniffed
	}
	if format != "" {
		return "image/" + format
	}
	if mimeType, ok := MIMETypeForName(name); ok {
		return mimeType
	}
	return "application/octet-stream"
}
