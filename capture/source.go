// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gogpu/vidflow"
	"github.com/gogpu/vidflow/frame"
	"github.com/gogpu/vidflow/gpucore"
	"github.com/gogpu/vidflow/graph"
	"github.com/gogpu/vidflow/processing"
)

// Source lifecycle errors.
var (
	// ErrAlreadyRunning is returned by Start on a running source and by
	// SetCamera while running.
	ErrAlreadyRunning = errors.New("capture: already running")

	// ErrNotRunning is returned by Stop on an idle source.
	ErrNotRunning = errors.New("capture: not running")

	// ErrNoCamera is returned by Start without a camera.
	ErrNoCamera = errors.New("capture: no camera")
)

// Option configures a Source.
type Option func(*options)

type options struct {
	orientation    frame.Orientation
	benchmark      bool
	logFPS         bool
	framesToIgnore int
	observer       Observer
	onCapture      func(*RawFrame)
	now            func() time.Time
}

// WithOrientation sets the orientation of the camera's frames relative to
// upright. Frames are converted to upright.
func WithOrientation(o frame.Orientation) Option {
	return func(opts *options) { opts.orientation = o }
}

// WithBenchmark enables frame time accounting, leaving out the first
// framesToIgnore frames (DefaultFramesToIgnore if <= 0).
func WithBenchmark(framesToIgnore int) Option {
	return func(opts *options) {
		opts.benchmark = true
		if framesToIgnore > 0 {
			opts.framesToIgnore = framesToIgnore
		}
	}
}

// WithFPSLogging logs the processed frame rate once per second at Debug.
func WithFPSLogging() Option {
	return func(opts *options) { opts.logFPS = true }
}

// WithObserver sets the accounting observer.
func WithObserver(o Observer) Option {
	return func(opts *options) { opts.observer = o }
}

// WithCaptureHook calls fn on the processing stream with every admitted
// raw frame before it is converted.
func WithCaptureHook(fn func(*RawFrame)) Option {
	return func(opts *options) { opts.onCapture = fn }
}

// WithClock replaces time.Now for accounting.
func WithClock(now func() time.Time) Option {
	return func(opts *options) { opts.now = now }
}

type nopObserver struct{}

func (nopObserver) FrameProcessed(time.Duration) {}
func (nopObserver) FrameDropped(DropReason)      {}

// Source feeds camera frames into a graph.
//
// Source is safe for concurrent use.
type Source struct {
	ctx     *processing.Context
	opts    options
	targets graph.Targets

	mu      sync.Mutex
	camera  Camera
	cancel  context.CancelFunc
	session uuid.UUID
	audio   AudioTarget

	running atomic.Bool
	busy    atomic.Bool

	statsMu sync.Mutex
	acct    accounting
}

// NewSource returns an idle source reading from camera.
func NewSource(ctx *processing.Context, camera Camera, opts ...Option) *Source {
	o := options{
		framesToIgnore: DefaultFramesToIgnore,
		observer:       nopObserver{},
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Source{
		ctx:    ctx,
		opts:   o,
		camera: camera,
	}
	s.acct.dropped = make(map[DropReason]uint64)
	return s
}

// Targets returns the fan-out list fed by the source.
func (s *Source) Targets() *graph.Targets { return &s.targets }

// Running reports whether the source admits frames.
func (s *Source) Running() bool { return s.running.Load() }

// SessionID returns the ID of the current or last capture session.
func (s *Source) SessionID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Location returns the location of the current camera.
func (s *Source) Location() Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.camera == nil {
		return LocationBack
	}
	return s.camera.Location()
}

// SetCamera swaps the camera. The source must be idle.
func (s *Source) SetCamera(c Camera) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return ErrAlreadyRunning
	}
	s.camera = c
	return nil
}

// Start resets the accounting and starts the camera.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return ErrAlreadyRunning
	}
	if s.camera == nil {
		return ErrNoCamera
	}

	s.statsMu.Lock()
	s.acct.reset(s.opts.now())
	s.statsMu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.running.Store(true)
	if err := s.camera.Start(runCtx, s.OnFrameDelivered); err != nil {
		s.running.Store(false)
		cancel()
		return fmt.Errorf("capture: start %v camera: %w", s.camera.Location(), err)
	}
	s.cancel = cancel
	s.session = uuid.New()
	vidflow.Logger().Info("capture: started", "session", s.session.String(), "camera", s.camera.Location().String())
	return nil
}

// Stop stops admitting frames and stops the camera. A frame already past
// the gate finishes normally.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}
	s.cancel()
	s.cancel = nil
	err := s.camera.Stop()
	vidflow.Logger().Info("capture: stopped", "session", s.session.String(), "stats", s.Stats().String())
	if err != nil {
		return fmt.Errorf("capture: stop camera: %w", err)
	}
	return nil
}

// Stats returns a snapshot of the accounting.
func (s *Source) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.acct.snapshot()
}

// OnFrameDelivered admits raw into the pipeline unless a frame is already
// in flight, in which case raw is dropped and released immediately.
// It never blocks.
func (s *Source) OnFrameDelivered(raw *RawFrame, ts frame.Timestamp) {
	delivered := s.opts.now()
	s.statsMu.Lock()
	s.acct.delivered++
	s.acct.lastDelivery = delivered
	s.statsMu.Unlock()

	if !s.running.Load() {
		s.drop(raw, DropStopped, nil)
		return
	}
	if !s.busy.CompareAndSwap(false, true) {
		s.drop(raw, DropBusy, nil)
		return
	}
	if err := raw.Validate(); err != nil {
		s.busy.Store(false)
		s.drop(raw, DropInvalid, err)
		return
	}

	gen := s.ctx.NextGeneration()
	ok := s.ctx.RunAsync(func() {
		defer s.busy.Store(false)
		s.process(raw, ts, gen, delivered)
	})
	if !ok {
		s.busy.Store(false)
		s.drop(raw, DropStopped, processing.ErrClosed)
	}
}

func (s *Source) drop(raw *RawFrame, reason DropReason, err error) {
	raw.Release()
	s.statsMu.Lock()
	s.acct.dropped[reason]++
	s.statsMu.Unlock()
	s.opts.observer.FrameDropped(reason)
	if err != nil {
		vidflow.Logger().Warn("capture: frame dropped", "reason", string(reason), "err", err)
		return
	}
	vidflow.Logger().Debug("capture: frame dropped", "reason", string(reason))
}

// process runs on the processing stream.
func (s *Source) process(raw *RawFrame, ts frame.Timestamp, gen uint64, delivered time.Time) {
	if s.opts.onCapture != nil {
		s.opts.onCapture(raw)
	}

	var (
		out *frame.Resource
		err error
	)
	if raw.Format.Planar() {
		out, err = s.convertNV12(raw)
	} else {
		out, err = s.uploadBGRA(raw)
	}
	if err != nil {
		s.drop(raw, DropAllocation, err)
		return
	}

	out.SetTimestamp(ts)
	out.SetGeneration(gen)
	s.targets.Push(out)
	s.account(delivered)
}

// account records a processed frame. Runs on the processing stream.
func (s *Source) account(delivered time.Time) {
	now := s.opts.now()
	latency := now.Sub(delivered)

	s.statsMu.Lock()
	a := &s.acct
	a.processed++
	if s.opts.benchmark && a.processed > uint64(s.opts.framesToIgnore) {
		a.benchFrames++
		a.benchTotal += latency
	}
	a.sinceCheck++
	var fps int
	logFPS := false
	if now.Sub(a.lastCheck) > time.Second {
		a.fps = a.sinceCheck
		fps = a.fps
		a.sinceCheck = 0
		a.lastCheck = now
		logFPS = s.opts.logFPS
	}
	s.statsMu.Unlock()

	s.opts.observer.FrameProcessed(latency)
	if logFPS {
		vidflow.Logger().Debug("capture: fps", "fps", fps)
	}
}

// uploadBGRA returns a texture-only BGRA resource holding raw. On the
// zero-copy path the resource aliases the camera memory and releases raw
// when the graph is done with it.
func (s *Source) uploadBGRA(raw *RawFrame) (*frame.Resource, error) {
	plane := raw.Planes[0]
	pool := s.ctx.Pool()
	if s.ctx.Device().SupportsTextureCache() {
		desc := &gpucore.TextureDescriptor{Label: "camera bgra", Width: raw.Width, Height: raw.Height, Format: gpucore.FormatBGRA8}
		return pool.Wrap(desc, plane.Data, plane.Stride, s.opts.orientation, raw.Release)
	}

	defer raw.Release()
	res, err := pool.AcquireKey(frame.Key{
		Width: raw.Width, Height: raw.Height, Orientation: s.opts.orientation,
		TextureOnly: true, Format: gpucore.FormatBGRA8,
	})
	if err != nil {
		return nil, err
	}
	if err := s.ctx.Device().WriteTexture(res.Texture(), plane.Data, plane.Stride); err != nil {
		res.Unlock()
		return nil, err
	}
	return res, nil
}

// convertNV12 binds the luma and chroma planes and renders them into an
// upright RGB resource with the matrix matching the frame's value range.
func (s *Source) convertNV12(raw *RawFrame) (*frame.Resource, error) {
	luma, chroma, err := s.bindPlanes(raw)
	if err != nil {
		return nil, err
	}
	defer luma.Unlock()
	defer chroma.Unlock()

	size := luma.Orientation().SizeForTarget(luma.Size(), frame.Portrait)
	out, err := s.ctx.Pool().Acquire(size.Width, size.Height, frame.Portrait, false)
	if err != nil {
		return nil, err
	}

	conv := processing.ColorConversion601VideoRange
	if raw.Format == PixelFormatNV12FullRange {
		conv = processing.ColorConversion601FullRange
	}
	inputs := []*frame.Resource{luma, chroma}
	if err := s.ctx.Render(s.ctx.YUVConversion(), inputs, conv.Uniforms(), out); err != nil {
		out.Unlock()
		return nil, err
	}
	return out, nil
}

// bindPlanes returns texture-only R8 luma and RG8 chroma resources for
// raw. raw is released once neither resource needs its memory.
func (s *Source) bindPlanes(raw *RawFrame) (luma, chroma *frame.Resource, err error) {
	pool := s.ctx.Pool()
	o := s.opts.orientation
	w, h := raw.Width, raw.Height
	lumaDesc := &gpucore.TextureDescriptor{Label: "camera luma", Width: w, Height: h, Format: gpucore.FormatR8}
	chromaDesc := &gpucore.TextureDescriptor{Label: "camera chroma", Width: w / 2, Height: h / 2, Format: gpucore.FormatRG8}

	if s.ctx.Device().SupportsTextureCache() {
		var planes atomic.Int32
		planes.Store(2)
		release := func() {
			if planes.Add(-1) == 0 {
				raw.Release()
			}
		}
		luma, err = pool.Wrap(lumaDesc, raw.Planes[0].Data, raw.Planes[0].Stride, o, release)
		if err != nil {
			return nil, nil, err
		}
		chroma, err = pool.Wrap(chromaDesc, raw.Planes[1].Data, raw.Planes[1].Stride, o, release)
		if err != nil {
			luma.Unlock()
			return nil, nil, err
		}
		return luma, chroma, nil
	}

	defer raw.Release()
	upload := func(desc *gpucore.TextureDescriptor, p Plane) (*frame.Resource, error) {
		res, err := pool.AcquireKey(frame.Key{
			Width: desc.Width, Height: desc.Height, Orientation: o,
			TextureOnly: true, Format: desc.Format,
		})
		if err != nil {
			return nil, err
		}
		if err := s.ctx.Device().WriteTexture(res.Texture(), p.Data, p.Stride); err != nil {
			res.Unlock()
			return nil, err
		}
		return res, nil
	}
	if luma, err = upload(lumaDesc, raw.Planes[0]); err != nil {
		return nil, nil, err
	}
	if chroma, err = upload(chromaDesc, raw.Planes[1]); err != nil {
		luma.Unlock()
		return nil, nil, err
	}
	return luma, chroma, nil
}

var _ graph.Source = (*Source)(nil)
