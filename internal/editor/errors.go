package editor

import (
	"context"
	"errors"
	"strings"
)

// User-facing messages written to State.Err.
const (
	MsgIngestFailed = "Failed to process image file."
	MsgNoImage      = "Please upload an image first."
	MsgNoImageData  = "No image data found in the response."
	MsgEditFailed   = "Failed to edit image. Please check your API key and try again."
)

var (
	// ErrNoImageData is returned by an Invoker whose response carried no image part.
	ErrNoImageData = errors.New("no image data found in the response")
	// ErrClosed is returned by operations on a controller after Close.
	ErrClosed = errors.New("edit session closed")
)

// userMessage converts an invoker failure into the text shown to the user:
// the invoker's own message when it has one, a generic hint otherwise.
func userMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoImageData):
		return MsgNoImageData
	case errors.Is(err, context.Canceled):
		return MsgEditFailed
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return MsgEditFailed
}
