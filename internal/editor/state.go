package editor

import (
	"github.com/fpang/muted-image-editor/internal/filehandler"
)

// Image is an encoded picture with its media type.
type Image struct {
	Data     []byte
	MIMEType string
}

// DataURL returns a renderable data URI.
func (i Image) DataURL() string {
	return filehandler.DataURL(i.MIMEType, i.Data)
}

// OriginalImage is the uploaded photo. It is replaced wholesale by the next
// upload and never modified in place.
type OriginalImage struct {
	Name     string
	DataURL  string
	Base64   string
	Data     []byte
	MIMEType string
	Width    int
	Height   int
	// Caption summarises EXIF metadata; empty when the file had none.
	Caption string
}

// Image returns the payload sent to the image model.
func (o *OriginalImage) Image() Image {
	return Image{Data: o.Data, MIMEType: o.MIMEType}
}

// Phase is the coarse lifecycle position of a session.
type Phase string

const (
	// PhaseEmpty means no original image is loaded.
	PhaseEmpty Phase = "empty"
	// PhaseReady means an image is loaded and no preset is selected.
	PhaseReady Phase = "ready"
	// PhaseEditing means a preset is selected; a request may be in flight.
	PhaseEditing Phase = "editing"
)

// PresetStatus is what a preset tile shows.
type PresetStatus string

const (
	PresetIdle    PresetStatus = "idle"
	PresetLoading PresetStatus = "loading"
	PresetApplied PresetStatus = "applied"
)

// State is a snapshot of one edit session. Snapshots share the immutable
// image values with the controller and are safe to keep.
type State struct {
	Original       *OriginalImage
	Edited         *Image
	Loading        bool
	Err            string
	SelectedPreset string
	AppliedPreset  string
	Intensity      int
	// Revision increases whenever Original or Edited is replaced. It never
	// goes back, not even on Reset, so it can tag cached renderings.
	Revision uint64
}

func initialState() State {
	return State{Intensity: DefaultIntensity}
}

// Phase derives the lifecycle phase from the snapshot.
func (s State) Phase() Phase {
	switch {
	case s.Original == nil:
		return PhaseEmpty
	case s.SelectedPreset == "":
		return PhaseReady
	default:
		return PhaseEditing
	}
}

// PresetStatus reports the tile state for the named preset: a spinner while
// its request is loading, a checkmark while its confirmation is live.
func (s State) PresetStatus(name string) PresetStatus {
	switch {
	case s.Loading && s.SelectedPreset == name:
		return PresetLoading
	case s.AppliedPreset != "" && s.AppliedPreset == name:
		return PresetApplied
	default:
		return PresetIdle
	}
}

// ShowIntensity reports whether the intensity slider is meaningful.
func (s State) ShowIntensity() bool {
	return s.SelectedPreset != ""
}
