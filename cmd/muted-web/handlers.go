package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/fpang/muted-image-editor/internal/editor"
	"github.com/fpang/muted-image-editor/internal/filehandler"
	"github.com/fpang/muted-image-editor/internal/preset"
	"github.com/fpang/muted-image-editor/internal/session"
)

// uploadOverhead leaves room for multipart framing around the file.
const uploadOverhead = 1 << 20

// lookup resolves the {id} URL parameter, writing a 404 if it is unknown.
func (s *server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

func (s *server) respondState(w http.ResponseWriter, status int, sess *session.Session) {
	respondJSON(w, status, newStateView(sess.ID, sess.Controller.Snapshot()))
}

// GET /api/presets
func (s *server) handlePresets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"presets":          presetViews(s.catalog),
		"defaultIntensity": editor.DefaultIntensity,
		"accept":           filehandler.AcceptedUploadTypes,
	})
}

// POST /api/sessions
func (s *server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	s.respondState(w, http.StatusCreated, sess)
}

// GET /api/sessions/{id}
func (s *server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.respondState(w, http.StatusOK, sess)
}

// DELETE /api/sessions/{id}
func (s *server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		httpError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/sessions/{id}/image (multipart field "image")
//
// Non-image uploads are refused here, before the controller sees them. The
// body is read fully before decoding starts because the controller decodes
// after this handler has returned.
func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+uploadOverhead)
	file, header, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpError(w, http.StatusRequestEntityTooLarge, "image is too large")
			return
		}
		httpError(w, http.StatusBadRequest, "missing image file")
		return
	}
	defer file.Close()

	mediaType := header.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = mt
	}
	if !filehandler.IsImageMediaType(mediaType) {
		log.Debug().Str("session", sess.ID).Str("media_type", mediaType).Msg("Rejected non-image upload")
		httpError(w, http.StatusUnsupportedMediaType, "only image files can be uploaded")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.maxUploadBytes+1))
	if err != nil {
		httpError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	if int64(len(data)) > s.maxUploadBytes {
		httpError(w, http.StatusRequestEntityTooLarge, "image is too large")
		return
	}

	sess.Controller.Ingest(filepath.Base(header.Filename), bytes.NewReader(data))
	s.respondState(w, http.StatusAccepted, sess)
}

type selectPresetRequest struct {
	Name string `json:"name"`
}

// POST /api/sessions/{id}/preset
func (s *server) handleSelectPreset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req selectPresetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	accepted, err := sess.Controller.SelectPresetByName(req.Name)
	if errors.Is(err, preset.ErrUnknownPreset) {
		httpError(w, http.StatusNotFound, fmt.Sprintf("unknown preset %q", req.Name))
		return
	}
	if !accepted {
		httpError(w, http.StatusConflict, "an edit is already in progress")
		return
	}
	s.respondState(w, http.StatusAccepted, sess)
}

type intensityRequest struct {
	Value *int `json:"value"`
}

// POST /api/sessions/{id}/intensity
func (s *server) handleIntensity(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req intensityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Value == nil {
		httpError(w, http.StatusBadRequest, "value is required")
		return
	}

	sess.Controller.AdjustIntensity(*req.Value)
	s.respondState(w, http.StatusAccepted, sess)
}

// POST /api/sessions/{id}/reset
func (s *server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sess.Controller.Reset()
	s.respondState(w, http.StatusOK, sess)
}

// GET /api/sessions/{id}/original
func (s *server) handleOriginal(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	st := sess.Controller.Snapshot()
	if st.Original == nil {
		httpError(w, http.StatusNotFound, "no image uploaded")
		return
	}
	writeImage(w, st.Original.Data, st.Original.MIMEType, "", false)
}

// GET /api/sessions/{id}/edited[?download=1]
func (s *server) handleEdited(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	st := sess.Controller.Snapshot()
	if st.Edited == nil {
		httpError(w, http.StatusNotFound, "no edited image")
		return
	}

	name := "muted-image"
	if st.Original != nil {
		name = "muted-" + strings.TrimSuffix(st.Original.Name, filepath.Ext(st.Original.Name))
	}
	download := r.URL.Query().Get("download") != ""
	writeImage(w, st.Edited.Data, st.Edited.MIMEType, name, download)
}

func writeImage(w http.ResponseWriter, data []byte, mimeType, name string, download bool) {
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if download {
		ext := filehandler.ExtensionForMIMEType(mimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+ext))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
