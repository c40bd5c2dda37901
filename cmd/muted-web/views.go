package main

import (
	"fmt"

	"github.com/fpang/muted-image-editor/internal/editor"
	"github.com/fpang/muted-image-editor/internal/preset"
)

type presetView struct {
	Name   string `json:"name"`
	Swatch string `json:"swatch"`
}

func presetViews(c *preset.Catalog) []presetView {
	all := c.All()
	views := make([]presetView, 0, len(all))
	for _, p := range all {
		views = append(views, presetView{Name: p.Name, Swatch: p.Swatch})
	}
	return views
}

type originalView struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	MIMEType string `json:"mimeType"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Caption  string `json:"caption,omitempty"`
}

type editedView struct {
	URL      string `json:"url"`
	MIMEType string `json:"mimeType"`
}

// stateView is the JSON shape of a session snapshot. Images are referenced by
// URL, tagged with the revision so browsers refetch only on change.
type stateView struct {
	ID             string                         `json:"id"`
	Phase          editor.Phase                   `json:"phase"`
	Original       *originalView                  `json:"original"`
	Edited         *editedView                    `json:"edited"`
	Loading        bool                           `json:"loading"`
	Error          string                         `json:"error,omitempty"`
	SelectedPreset string                         `json:"selectedPreset,omitempty"`
	AppliedPreset  string                         `json:"appliedPreset,omitempty"`
	Intensity      int                            `json:"intensity"`
	ShowIntensity  bool                           `json:"showIntensity"`
	PresetStatus   map[string]editor.PresetStatus `json:"presetStatus"`
	Revision       uint64                         `json:"revision"`
}

func newStateView(id string, s editor.State) stateView {
	v := stateView{
		ID:             id,
		Phase:          s.Phase(),
		Loading:        s.Loading,
		Error:          s.Err,
		SelectedPreset: s.SelectedPreset,
		AppliedPreset:  s.AppliedPreset,
		Intensity:      s.Intensity,
		ShowIntensity:  s.ShowIntensity(),
		PresetStatus:   make(map[string]editor.PresetStatus),
		Revision:       s.Revision,
	}
	if s.Original != nil {
		v.Original = &originalView{
			Name:     s.Original.Name,
			URL:      fmt.Sprintf("/api/sessions/%s/original?rev=%d", id, s.Revision),
			MIMEType: s.Original.MIMEType,
			Width:    s.Original.Width,
			Height:   s.Original.Height,
			Caption:  s.Original.Caption,
		}
	}
	if s.Edited != nil {
		v.Edited = &editedView{
			URL:      fmt.Sprintf("/api/sessions/%s/edited?rev=%d", id, s.Revision),
			MIMEType: s.Edited.MIMEType,
		}
	}
	for _, name := range []string{s.SelectedPreset, s.AppliedPreset} {
		if name == "" {
			continue
		}
		if st := s.PresetStatus(name); st != editor.PresetIdle {
			v.PresetStatus[name] = st
		}
	}
	return v
}
