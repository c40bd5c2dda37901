// Package editor implements the edit session controller.
//
// A Controller owns all mutable state of one editing session: the uploaded
// original, the latest edited image, the loading flag, the error message, the
// selected and just-applied preset, and the intensity. Three user operations
// mutate it (ingest, select preset, adjust intensity) plus Reset. Everything
// else reads snapshots.
//
// Work is event driven. File decoding and the remote edit call run on their
// own goroutines; the intensity debounce and the applied-confirmation expiry
// run on Clock timers. All of them mutate state only under the controller
// mutex, and each timer lives in a single-owner slot that is replaced on
// reschedule and stopped on teardown.
//
// Overlapping edit requests are not serialized or cancelled. By default the
// last one to settle wins and the boolean loading flag drops as soon as any of
// them settles. WithDiscardStale changes that: only the most recently issued
// request may write its result or clear the loading flag.
package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fpang/muted-image-editor/internal/filehandler"
	"github.com/fpang/muted-image-editor/internal/metrics"
	"github.com/fpang/muted-image-editor/internal/preset"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultDebounce is the quiet period before an intensity change is sent.
	DefaultDebounce = 500 * time.Millisecond
	// DefaultConfirmationTTL is how long the applied checkmark stays up.
	DefaultConfirmationTTL = 2000 * time.Millisecond
)

// Edit triggers, used in logs and metrics.
const (
	triggerSelect    = "select"
	triggerIntensity = "intensity"
)

// Invoker performs one remote image edit. It may be slow and may fail; a
// response without an image must be reported as ErrNoImageData.
type Invoker interface {
	Edit(ctx context.Context, img Image, instruction string) (Image, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, img Image, instruction string) (Image, error)

// Edit implements Invoker.
func (f InvokerFunc) Edit(ctx context.Context, img Image, instruction string) (Image, error) {
	return f(ctx, img, instruction)
}

// Option configures a Controller.
type Option func(*options)

type options struct {
	clock           Clock
	debounce        time.Duration
	confirmationTTL time.Duration
	discardStale    bool
	maxUploadBytes  int64
	ctx             context.Context
	name            string
}

// WithClock replaces the real clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithDebounce sets the intensity quiet period.
func WithDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

// WithConfirmationTTL sets how long AppliedPreset stays set after a success.
func WithConfirmationTTL(d time.Duration) Option {
	return func(o *options) { o.confirmationTTL = d }
}

// WithDiscardStale tags each request with a sequence number and drops any
// response that is not from the most recently issued request.
func WithDiscardStale(discard bool) Option {
	return func(o *options) { o.discardStale = discard }
}

// WithMaxUploadBytes caps how much of an upload is read.
func WithMaxUploadBytes(n int64) Option {
	return func(o *options) { o.maxUploadBytes = n }
}

// WithContext sets the parent context for remote calls. Cancelling it has the
// same effect on in-flight calls as Close.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

// WithName labels the session in logs.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Controller is the edit session controller. It is safe for concurrent use.
type Controller struct {
	catalog *preset.Catalog
	invoker Invoker
	opts    options

	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger

	mu       sync.Mutex
	state    State
	epoch    uint64 // bumped by every ingest and reset
	seq      uint64 // last issued edit request
	inflight int    // decodes and edit calls not yet settled
	closed   bool
	debounce timerSlot
	confirm  timerSlot
	changed  chan struct{}
	subs     map[int]chan State
	nextSub  int
}

// New creates a controller in the Empty phase.
func New(catalog *preset.Catalog, invoker Invoker, opts ...Option) *Controller {
	o := options{
		clock:           RealClock{},
		debounce:        DefaultDebounce,
		confirmationTTL: DefaultConfirmationTTL,
		maxUploadBytes:  filehandler.DefaultMaxUploadBytes,
		ctx:             context.Background(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(o.ctx)
	return &Controller{
		catalog: catalog,
		invoker: invoker,
		opts:    o,
		ctx:     ctx,
		cancel:  cancel,
		log:     log.With().Str("session", o.name).Logger(),
		state:   initialState(),
		changed: make(chan struct{}),
		subs:    make(map[int]chan State),
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe returns a channel that receives the current state immediately and
// then the latest state after every change. Slow readers only miss
// intermediate states, never the newest one. The channel is closed by the
// returned cancel function or by Close.
func (c *Controller) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan State, 1)
	if c.closed {
		ch <- c.state
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.state

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Ingest starts decoding an upload. It resets the edited image, selection,
// confirmation, error and intensity right away; the original image is
// replaced once decoding succeeds. On failure State.Err is set and the
// previous original (if any) stays. r is read on a background goroutine.
func (c *Controller) Ingest(name string, r io.Reader) {
	c.ingest(name, func() (*filehandler.DecodedImage, error) {
		return filehandler.DecodeImage(name, r, c.opts.maxUploadBytes)
	})
}

// IngestFile is Ingest for a file on disk.
func (c *Controller) IngestFile(path string) {
	c.ingest(path, func() (*filehandler.DecodedImage, error) {
		return filehandler.LoadImageFile(path, c.opts.maxUploadBytes)
	})
}

func (c *Controller) ingest(name string, decode func() (*filehandler.DecodedImage, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.epoch++
	epoch := c.epoch
	c.debounce.stop()
	c.confirm.stop()
	c.state.Err = ""
	c.state.Edited = nil
	c.state.SelectedPreset = ""
	c.state.AppliedPreset = ""
	c.state.Intensity = DefaultIntensity
	c.inflight++
	c.publishLocked()

	c.logger().Debug().Str("name", name).Uint64("epoch", epoch).Msg("Ingest started")

	go func() {
		decoded, err := decode()

		c.mu.Lock()
		defer c.mu.Unlock()
		defer c.settleLocked()
		if c.closed {
			return
		}
		if epoch != c.epoch {
			c.logger().Debug().Str("name", name).Msg("Ingest superseded, discarding decoded image")
			metrics.RecordIngest(metrics.ResultSuperseded)
			return
		}
		if err != nil {
			c.logger().Warn().Err(err).Str("name", name).Msg("Failed to process image file")
			metrics.RecordIngest(metrics.ResultError)
			c.state.Err = MsgIngestFailed
			return
		}

		c.state.Original = &OriginalImage{
			Name:     decoded.Name,
			DataURL:  decoded.DataURL(),
			Base64:   decoded.Base64(),
			Data:     decoded.Data,
			MIMEType: decoded.MIMEType,
			Width:    decoded.Width,
			Height:   decoded.Height,
			Caption:  decoded.Metadata.Summary(),
		}
		c.state.Revision++
		metrics.RecordIngest(metrics.ResultSuccess)
		c.logger().Info().
			Str("name", decoded.Name).
			Str("mime_type", decoded.MIMEType).
			Int("size_bytes", len(decoded.Data)).
			Msg("Original image loaded")
	}()
}

// SelectPreset makes p the selected preset and immediately requests an edit
// at full intensity. It is ignored (returns false) while a request is
// loading. Choosing a different preset clears the displayed edited image so
// the previous preset's output is never shown under the new selection.
func (c *Controller) SelectPreset(p preset.Preset) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if c.state.Loading {
		c.logger().Debug().Str("preset", p.Name).Msg("Preset click ignored while loading")
		metrics.RecordSelectionDropped()
		return false
	}

	c.debounce.stop()
	c.confirm.stop()
	c.state.AppliedPreset = ""

	if c.state.SelectedPreset != p.Name {
		c.state.Edited = nil
	}
	c.state.SelectedPreset = p.Name
	c.state.Intensity = DefaultIntensity

	c.requestEditLocked(p.Prompt, DefaultIntensity, p.Name, triggerSelect)
	return true
}

// SelectPresetByName looks the preset up in the catalog and selects it.
func (c *Controller) SelectPresetByName(name string) (bool, error) {
	p, err := c.catalog.Get(name)
	if err != nil {
		return false, err
	}
	return c.SelectPreset(p), nil
}

// AdjustIntensity stores the new value at once and schedules an edit for the
// currently selected preset after the debounce quiet period. A newer call
// inside the window replaces the pending one. With no preset selected when
// the timer fires, nothing is sent.
func (c *Controller) AdjustIntensity(v int) {
	v = ClampIntensity(v)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.state.Intensity = v
	if c.debounce.pending() {
		metrics.RecordIntensityCoalesced()
	}
	c.debounce.replace(c.opts.clock, c.opts.debounce, func(gen uint64) {
		c.fireIntensity(gen, v)
	})
	c.publishLocked()
}

func (c *Controller) fireIntensity(gen uint64, v int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.debounce.fired(gen) {
		return
	}

	p, ok := c.catalog.Lookup(c.state.SelectedPreset)
	if !ok {
		c.logger().Debug().Int("intensity", v).Msg("Intensity settled with no preset selected")
		c.publishLocked()
		return
	}
	c.requestEditLocked(p.Prompt, v, p.Name, triggerIntensity)
}

// requestEditLocked issues one remote edit. Loading goes true now and false
// exactly when this call settles.
func (c *Controller) requestEditLocked(promptTemplate string, intensity int, presetName, trigger string) {
	if c.state.Original == nil {
		c.state.Err = MsgNoImage
		metrics.RecordEditRejected(trigger, metrics.ResultMissing)
		c.logger().Warn().Str("preset", presetName).Msg("Edit requested without an image")
		c.publishLocked()
		return
	}

	c.seq++
	seq := c.seq
	epoch := c.epoch

	c.state.Loading = true
	c.state.Err = ""
	if presetName != c.state.SelectedPreset {
		c.state.Edited = nil
	}

	img := c.state.Original.Image()
	instruction := ComposeInstruction(promptTemplate, intensity)
	c.inflight++
	metrics.RecordEditIssued()
	c.publishLocked()

	c.logger().Info().
		Str("preset", presetName).
		Int("intensity", intensity).
		Uint64("seq", seq).
		Str("trigger", trigger).
		Msg("Requesting image edit")

	go c.runEdit(seq, epoch, presetName, trigger, img, instruction)
}

func (c *Controller) runEdit(seq, epoch uint64, presetName, trigger string, img Image, instruction string) {
	start := time.Now()
	result, err := c.invoke(img, instruction)
	elapsed := time.Since(start)
	if err == nil && len(result.Data) == 0 {
		err = ErrNoImageData
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.settleLocked()

	outcome := metrics.ResultSuccess
	switch {
	case errors.Is(err, ErrNoImageData):
		outcome = metrics.ResultNoImage
	case err != nil:
		outcome = metrics.ResultError
	}

	if c.closed {
		metrics.RecordEditSettled(trigger, metrics.ResultDiscarded, elapsed)
		return
	}
	if c.opts.discardStale && seq != c.seq {
		c.logger().Debug().Uint64("seq", seq).Uint64("latest", c.seq).Msg("Discarding stale edit response")
		metrics.RecordEditSettled(trigger, metrics.ResultDiscarded, elapsed)
		return
	}

	c.state.Loading = false

	if epoch != c.epoch {
		c.logger().Debug().Uint64("seq", seq).Msg("Edit settled after the image changed, result dropped")
		metrics.RecordEditSettled(trigger, metrics.ResultSuperseded, elapsed)
		return
	}
	metrics.RecordEditSettled(trigger, outcome, elapsed)

	if err != nil {
		c.state.Err = userMessage(err)
		c.logger().Error().
			Err(err).
			Str("preset", presetName).
			Uint64("seq", seq).
			Dur("duration", elapsed).
			Msg("Image edit failed")
		return
	}

	c.state.Edited = &result
	c.state.Revision++
	c.state.AppliedPreset = presetName
	c.confirm.replace(c.opts.clock, c.opts.confirmationTTL, c.expireConfirmation)

	c.logger().Info().
		Str("preset", presetName).
		Uint64("seq", seq).
		Int("output_bytes", len(result.Data)).
		Str("output_mime", result.MIMEType).
		Dur("duration", elapsed).
		Msg("Image edit applied")
}

// invoke calls the invoker, turning a panic into an error so the request
// still settles.
func (c *Controller) invoke(img Image, instruction string) (result Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("image edit panicked: %v", r)
		}
	}()
	return c.invoker.Edit(c.ctx, img, instruction)
}

func (c *Controller) expireConfirmation(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.confirm.fired(gen) {
		return
	}
	c.state.AppliedPreset = ""
	metrics.RecordConfirmationExpired()
	c.publishLocked()
}

// Reset returns the session to the Empty phase. Requests still in flight
// settle without touching the new state beyond clearing Loading.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.epoch++
	c.debounce.stop()
	c.confirm.stop()
	rev := c.state.Revision
	c.state = initialState()
	c.state.Revision = rev
	c.logger().Debug().Msg("Session reset")
	c.publishLocked()
}

// Settled blocks until no decode or edit is in flight and no intensity change
// is pending, then returns the state. It returns ErrClosed if the controller
// is closed while waiting.
func (c *Controller) Settled(ctx context.Context) (State, error) {
	for {
		c.mu.Lock()
		if c.closed {
			s := c.state
			c.mu.Unlock()
			return s, ErrClosed
		}
		if c.inflight == 0 && !c.debounce.pending() {
			s := c.state
			c.mu.Unlock()
			return s, nil
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}
	}
}

// Close tears the session down: timers are stopped, subscriptions closed and
// in-flight remote calls cancelled. Late settlements are ignored. Close does
// not wait for them.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.debounce.stop()
	c.confirm.stop()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	close(c.changed)
	c.mu.Unlock()

	c.cancel()
	c.logger().Debug().Msg("Session closed")
	return nil
}

// settleLocked marks one decode or edit as finished and publishes.
func (c *Controller) settleLocked() {
	c.inflight--
	if !c.closed {
		c.publishLocked()
	}
}

// publishLocked wakes Settled waiters and pushes the newest state to every
// subscriber, replacing any value it has not read yet.
func (c *Controller) publishLocked() {
	close(c.changed)
	c.changed = make(chan struct{})

	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- c.state
	}
}

func (c *Controller) logger() *zerolog.Logger {
	return &c.log
}
