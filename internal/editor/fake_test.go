package editor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/fpang/muted-image-editor/internal/preset"
	"github.com/stretchr/testify/require"
)

// fakeClock fires timers only when Advance moves past their deadline.
// Callbacks run on the goroutine calling Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward by d, firing due timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.at
		next.fired = true
		c.mu.Unlock()

		next.f()
	}
}

// pendingTimers counts timers that have neither fired nor been stopped.
func (c *fakeClock) pendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type editReply struct {
	img Image
	err error
}

// editCall is one remote call held open until the test answers it.
type editCall struct {
	ctx         context.Context
	img         Image
	instruction string
	reply       chan editReply
}

func (c *editCall) respond(img Image, err error) {
	c.reply <- editReply{img: img, err: err}
}

// gatedInvoker hands every call to the test and blocks until it is answered.
type gatedInvoker struct {
	calls chan *editCall
}

func newGatedInvoker() *gatedInvoker {
	return &gatedInvoker{calls: make(chan *editCall, 16)}
}

func (g *gatedInvoker) Edit(ctx context.Context, img Image, instruction string) (Image, error) {
	call := &editCall{ctx: ctx, img: img, instruction: instruction, reply: make(chan editReply, 1)}
	g.calls <- call
	select {
	case r := <-call.reply:
		return r.img, r.err
	case <-ctx.Done():
		return Image{}, ctx.Err()
	}
}

func (g *gatedInvoker) next(t *testing.T) *editCall {
	t.Helper()
	select {
	case call := <-g.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("expected a remote edit call")
		return nil
	}
}

func (g *gatedInvoker) expectNoCall(t *testing.T) {
	t.Helper()
	select {
	case call := <-g.calls:
		t.Fatalf("unexpected remote edit call: %q", call.instruction)
	case <-time.After(50 * time.Millisecond):
	}
}

var testCatalog = mustCatalog([]preset.Preset{
	{Name: "Urban Noir", Prompt: "Make it noir.", Swatch: "#333333"},
	{Name: "Coastal Haze", Prompt: "Add coastal haze.", Swatch: "#a8b5b8"},
	{Name: "Dusty Rose", Prompt: "Add dusty rose tones.", Swatch: "#c9a9a6"},
})

func mustCatalog(presets []preset.Preset) *preset.Catalog {
	c, err := preset.NewCatalog(presets)
	if err != nil {
		panic(err)
	}
	return c
}

func mustPreset(name string) preset.Preset {
	p, err := testCatalog.Get(name)
	if err != nil {
		panic(err)
	}
	return p
}

type harness struct {
	c     *Controller
	clock *fakeClock
	inv   *gatedInvoker
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{clock: &fakeClock{}, inv: newGatedInvoker()}
	opts = append([]Option{WithClock(h.clock), WithName(t.Name())}, opts...)
	h.c = New(testCatalog, h.inv, opts...)
	t.Cleanup(func() { h.c.Close() })
	return h
}

// settle waits for every decode, edit and debounce to finish.
func (h *harness) settle(t *testing.T) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := h.c.Settled(ctx)
	require.NoError(t, err)
	return s
}

func (h *harness) eventually(t *testing.T, cond func(State) bool, msg string) State {
	t.Helper()
	require.Eventually(t, func() bool { return cond(h.c.Snapshot()) }, 2*time.Second, 5*time.Millisecond, msg)
	return h.c.Snapshot()
}

// upload ingests a small PNG and waits for it to load.
func (h *harness) upload(t *testing.T, name string) State {
	t.Helper()
	h.c.Ingest(name, bytes.NewReader(testPNG(t, 4, 3)))
	s := h.settle(t)
	require.NotNil(t, s.Original)
	require.Equal(t, name, s.Original.Name)
	return s
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, G: 180, B: 160, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func edited(tag string) Image {
	return Image{Data: []byte(tag), MIMEType: "image/png"}
}
