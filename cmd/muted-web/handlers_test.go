package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/muted-image-editor/internal/editor"
	"github.com/fpang/muted-image-editor/internal/preset"
	"github.com/fpang/muted-image-editor/internal/session"
)

type testServer struct {
	srv     *server
	handler http.Handler
	release chan struct{}
}

// newTestServer wires the real router to controllers whose invoker blocks
// until release is closed (or receives a value).
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{release: make(chan struct{}, 16)}
	invoker := editor.InvokerFunc(func(ctx context.Context, img editor.Image, instruction string) (editor.Image, error) {
		select {
		case <-ts.release:
		case <-ctx.Done():
			return editor.Image{}, ctx.Err()
		}
		return editor.Image{Data: []byte("edited"), MIMEType: "image/png"}, nil
	})

	catalog := preset.Default()
	registry := session.NewRegistry(func(id string) *editor.Controller {
		return editor.New(catalog, invoker, editor.WithName(id), editor.WithDebounce(10*time.Millisecond))
	}, time.Hour)
	t.Cleanup(registry.CloseAll)

	ts.srv = &server{
		catalog:        catalog,
		sessions:       registry,
		maxUploadBytes: 1 << 20,
		heartbeat:      time.Second,
		frontend: fstest.MapFS{
			"index.html": {Data: []byte("<html>editor</html>")},
			"app.js":     {Data: []byte("console.log('ok')")},
		},
	}
	ts.handler = ts.srv.routes()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) createSession(t *testing.T) *session.Session {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/sessions", nil, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var v stateView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	sess, err := ts.srv.sessions.Get(v.ID)
	require.NoError(t, err)
	return sess
}

func settled(t *testing.T, sess *session.Session) editor.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := sess.Controller.Settled(ctx)
	require.NoError(t, err)
	return st
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 200, G: 180, B: 160, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartImage(t *testing.T, filename, contentType string, data []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func (ts *testServer) uploadPNG(t *testing.T, sess *session.Session) {
	t.Helper()
	body, ct := multipartImage(t, "photo.png", "image/png", pngBytes(t))
	rec := ts.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/image", body, ct)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	st := settled(t, sess)
	require.NotNil(t, st.Original)
}

func TestHandlePresets(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/presets", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Presets          []presetView `json:"presets"`
		DefaultIntensity int          `json:"defaultIntensity"`
		Accept           []string     `json:"accept"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Presets, preset.Default().Len())
	assert.Equal(t, "Coastal Haze", resp.Presets[0].Name)
	assert.Equal(t, editor.DefaultIntensity, resp.DefaultIntensity)
	assert.Contains(t, resp.Accept, "image/webp")
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.createSession(t)

	rec := ts.do(t, http.MethodGet, "/api/sessions/"+sess.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var v stateView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, editor.PhaseEmpty, v.Phase)
	assert.Nil(t, v.Original)
	assert.False(t, v.ShowIntensity)

	rec = ts.do(t, http.MethodDelete, "/api/sessions/"+sess.ID, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/sessions/"+sess.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/sessions/"+sess.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleUpload(t *testing.T) {
	t.Run("non-image is refused", func(t *testing.T) {
		ts := newTestServer(t)
		sess := ts.createSession(t)
		body, ct := multipartImage(t, "notes.txt", "text/plain", []byte("hello"))
		rec := ts.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/image", body, ct)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
		assert.Nil(t, sess.Controller.Snapshot().Original)
	})

	t.Run("missing field", func(t *testing.T) {
		ts := newTestServer(t)
		sess := ts.createSession(t)
		rec := ts.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/image", []byte("x"), "text/plain")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("too large", func(t *testing.T) {
		ts := newTestServer(t)
		ts.srv.maxUploadBytes = 8
		sess := ts.createSession(t)
		body, ct := multipartImage(t, "photo.png", "image/png", pngBytes(t))
		rec := ts.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/image", body, ct)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("image is ingested", func(t *testing.T) {
		ts := newTestServer(t)
		sess := ts.createSession(t)
		ts.uploadPNG(t, sess)

		st := sess.Controller.Snapshot()
		assert.Equal(t, "photo.png", st.Original.Name)
		assert.Equal(t, 4, st.Original.Width)

		rec := ts.do(t, http.MethodGet, "/api/sessions/"+sess.ID+"/original", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.Equal(t, pngBytes(t), rec.Body.Bytes())
	})

	t.Run("image without a decoder is ingested", func(t *testing.T) {
		ts := newTestServer(t)
		sess := ts.createSession(t)
		payload := append([]byte("BM"), make([]byte, 56)...)
		body, ct := multipartImage(t, "scan.bmp", "image/bmp", payload)
		rec := ts.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/image", body, ct)
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

		st := settled(t, sess)
		assert.Empty(t, st.Err)
		require.NotNil(t, st.Original)
		assert.Equal(t, "image/bmp", st.Original.MIMEType)
		assert.Equal(t, payload, st.Original.Data)
	})

	t.Run("unknown session", func(t *testing.T) {
		ts := newTestServer(t)
		body, ct := multipartImage(t, "photo.png", "image/png", pngBytes(t))
		rec := ts.do(t, http.MethodPost, "/api/sessions/nope/image", body, ct)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleSelectPreset(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.createSession(t)
	ts.uploadPNG(t, sess)
	path := "/api/sessions/" + sess.ID + "/preset"

	rec := ts.do(t, http.MethodPost, path, []byte(`{"name":"Nope"}`), "application/json")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, path, []byte(`{"bogus":1}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, path, []byte(`{"name":"Coastal Haze"}`), "application/json")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var v stateView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.True(t, v.Loading)
	assert.Equal(t, "Coastal Haze", v.SelectedPreset)
	assert.Equal(t, editor.PresetLoading, v.PresetStatus["Coastal Haze"])

	rec = ts.do(t, http.MethodPost, path, []byte(`{"name":"Urban Noir"}`), "application/json")
	assert.Equal(t, http.StatusConflict, rec.Code)

	ts.release <- struct{}{}
	st := settled(t, sess)
	require.NotNil(t, st.Edited)
	assert.Equal(t, "Coastal Haze", st.AppliedPreset)
}

func TestHandleIntensity(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.createSession(t)
	path := "/api/sessions/" + sess.ID + "/intensity"

	rec := ts.do(t, http.MethodPost, path, []byte(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, path, []byte(`{"value":-5}`), "application/json")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, editor.MinIntensity, sess.Controller.Snapshot().Intensity)
}

func TestHandleEdited(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.createSession(t)
	ts.uploadPNG(t, sess)
	path := "/api/sessions/" + sess.ID + "/edited"

	rec := ts.do(t, http.MethodGet, path, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.release <- struct{}{}
	rec = ts.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/preset", []byte(`{"name":"Urban Noir"}`), "application/json")
	require.Equal(t, http.StatusAccepted, rec.Code)
	settled(t, sess)

	rec = ts.do(t, http.MethodGet, path, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "edited", rec.Body.String())
	assert.Empty(t, rec.Header().Get("Content-Disposition"))

	rec = ts.do(t, http.MethodGet, path+"?download=1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="muted-photo.png"`, rec.Header().Get("Content-Disposition"))
}

func TestHandleReset(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.createSession(t)
	ts.uploadPNG(t, sess)

	rec := ts.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/reset", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var v stateView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, editor.PhaseEmpty, v.Phase)
	assert.Equal(t, editor.DefaultIntensity, v.Intensity)
}

func TestHandleEventsSendsCurrentState(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.createSession(t)
	httpSrv := httptest.NewServer(ts.handler)
	defer httpSrv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpSrv.URL+"/api/sessions/"+sess.ID+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	event, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: state\n", event)

	data, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(data, "data: "))
	var v stateView
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(data, "data: ")), &v))
	assert.Equal(t, sess.ID, v.ID)
	assert.Equal(t, editor.PhaseEmpty, v.Phase)
}

func TestHandleEventsKeepsSessionAlive(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.sessions = session.NewRegistry(func(id string) *editor.Controller {
		return editor.New(ts.srv.catalog, editor.InvokerFunc(func(context.Context, editor.Image, string) (editor.Image, error) {
			return editor.Image{}, editor.ErrNoImageData
		}), editor.WithName(id))
	}, time.Nanosecond)
	t.Cleanup(ts.srv.sessions.CloseAll)
	sess := ts.createSession(t)

	httpSrv := httptest.NewServer(ts.handler)
	defer httpSrv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpSrv.URL+"/api/sessions/"+sess.ID+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	event, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "event: state\n", event)

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 0, ts.srv.sessions.Sweep(), "session with an open stream was swept")
	assert.Equal(t, 1, ts.srv.sessions.Len())

	cancel()
	assert.Eventually(t, func() bool {
		return ts.srv.sessions.Sweep() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHandleEventsUnknownSession(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/sessions/missing/events", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSPAFallback(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/some/client/route", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "editor")
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec = ts.do(t, http.MethodGet, "/app.js", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "console.log")

	rec = ts.do(t, http.MethodGet, "/api/unknown", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not found")
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	ts.createSession(t)
	rec := ts.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sessions":1`)
}

func TestFrontendDisablesControlsWhileLoading(t *testing.T) {
	app, err := frontendFS.ReadFile("frontend_dist/app.js")
	require.NoError(t, err)
	assert.Contains(t, string(app), "btn.disabled = s.loading;")
	assert.Contains(t, string(app), "$('intensity').disabled = s.loading;")
}
