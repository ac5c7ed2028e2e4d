// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package record

import (
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

// Sink errors.
var (
	// ErrInvalidConfig is returned by NewSink for an unusable Config.
	ErrInvalidConfig = errors.New("record: invalid config")

	// ErrAlreadyRecording is returned by StartRecording while recording.
	ErrAlreadyRecording = errors.New("record: already recording")

	// ErrNotRecording is returned by StopRecording while stopped.
	ErrNotRecording = errors.New("record: not recording")

	// ErrBufferSize is returned when the pool hands out a buffer whose
	// size differs from Config.Width and Config.Height.
	ErrBufferSize = errors.New("record: pool buffer size mismatch")
)

// Sample is one extracted frame.
type Sample struct {
	Buffer    *Buffer
	Timestamp frame.Timestamp

	// Elapsed is the time since the first sample of the session.
	Elapsed time.Duration
}

// Config configures a Sink.
type Config struct {
	// Width and Height are the destination size. Frames are scaled and
	// rotated to fit.
	Width  int
	Height int

	// Orientation of the destination. Defaults to frame.Portrait.
	Orientation frame.Orientation

	// Pool supplies the destination buffers.
	Pool BufferPool

	// OnBuffer receives every sample on the processing stream. The buffer
	// is only valid during the call unless the callee retains it; on the
	// zero-copy path it is overwritten by the next frame.
	OnBuffer func(Sample)

	// OnDrained is called once per StopRecording after the last in-flight
	// sample, before the completion passed to StopRecording.
	OnDrained func()

	// ZeroCopy binds one pool buffer as the render target for the whole
	// session. Ignored when the device cannot wrap external memory.
	ZeroCopy bool
}

func (c *Config) validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("%w: size %dx%d", ErrInvalidConfig, c.Width, c.Height)
	case c.Pool == nil:
		return fmt.Errorf("%w: no buffer pool", ErrInvalidConfig)
	case c.OnBuffer == nil:
		return fmt.Errorf("%w: no OnBuffer callback", ErrInvalidConfig)
	}
	return nil
}

// Option configures a Sink.
type Option func(*Sink)

// WithObserver sets the accounting observer.
func WithObserver(o Observer) Option {
	return func(s *Sink) { s.observer = o }
}

// Sink is a terminal graph node writing frames into destination buffers.
//
// StartRecording and StopRecording block on the processing stream and must
// not be called from work running on it, including OnBuffer.
type Sink struct {
	ctx      *processing.Context
	cfg      Config
	slots    *graph.Slots
	observer Observer

	recording atomic.Bool

	// Session state, owned by the processing stream.
	start    frame.Timestamp
	previous frame.Timestamp
	bound    *Buffer
	target   *frame.Resource

	mu      sync.Mutex
	session uuid.UUID
	stats   Stats
}

// NewSink returns a stopped sink.
func NewSink(ctx *processing.Context, cfg Config, opts ...Option) (*Sink, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &Sink{
		ctx:      ctx,
		cfg:      cfg,
		slots:    graph.NewSlots(1),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.stats.Skipped = make(map[SkipReason]uint64)
	return s, nil
}

// MaximumInputs returns 1.
func (s *Sink) MaximumInputs() int { return 1 }

// Slots returns the single input slot.
func (s *Sink) Slots() *graph.Slots { return s.slots }

// Recording reports whether frames are accepted.
func (s *Sink) Recording() bool { return s.recording.Load() }

// ZeroCopy reports whether the current session renders straight into a
// bound buffer.
func (s *Sink) ZeroCopy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target != nil
}

// SessionID returns the ID of the current or last session.
func (s *Sink) SessionID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Stats returns a snapshot of the accounting for the current or last session.
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Skipped = make(map[SkipReason]uint64, len(s.stats.Skipped))
	for k, v := range s.stats.Skipped {
		st.Skipped[k] = v
	}
	return st
}

// StartRecording resets the session clock and starts accepting frames. On
// the zero-copy path it binds one pool buffer as the render target.
func (s *Sink) StartRecording() error {
	var err error
	rerr := s.ctx.RunSync(func() {
		if s.recording.Load() {
			err = ErrAlreadyRecording
			return
		}
		s.start, s.previous = frame.NoTimestamp, frame.NoTimestamp
		if s.cfg.ZeroCopy {
			err = s.bind()
			if err != nil {
				return
			}
		}

		s.mu.Lock()
		s.session = uuid.New()
		s.stats = Stats{Skipped: make(map[SkipReason]uint64)}
		session := s.session
		s.mu.Unlock()

		s.recording.Store(true)
		vidflow.Logger().Info("record: started", "session", session.String(), "zero_copy", s.target != nil,
			"width", s.cfg.Width, "height", s.cfg.Height)
	})
	if rerr != nil {
		return rerr
	}
	return err
}

// bind wraps one pool buffer as the session's render target. Runs on the
// processing stream.
func (s *Sink) bind() error {
	if !s.ctx.Device().SupportsTextureCache() {
		vidflow.Logger().Info("record: device cannot wrap buffers, using read-back")
		return nil
	}
	buf, err := s.cfg.Pool.Get()
	if err != nil {
		return fmt.Errorf("record: bind destination: %w", err)
	}
	buf.take()
	if err := s.checkSize(buf); err != nil {
		buf.Release()
		return fmt.Errorf("record: bind destination: %w", err)
	}
	// The swizzle pass writes BGRA byte order into RGBA-typed storage.
	desc := &gpucore.TextureDescriptor{
		Label:        "record destination",
		Width:        buf.Width,
		Height:       buf.Height,
		Format:       gpucore.FormatRGBA8,
		RenderTarget: true,
	}
	target, err := s.ctx.Pool().Wrap(desc, buf.Pix, buf.Stride, s.cfg.Orientation, nil)
	if err != nil {
		buf.Release()
		return fmt.Errorf("record: bind destination: %w", err)
	}
	s.mu.Lock()
	s.bound, s.target = buf, target
	s.mu.Unlock()
	return nil
}

func (s *Sink) checkSize(buf *Buffer) error {
	if buf.Width != s.cfg.Width || buf.Height != s.cfg.Height {
		return fmt.Errorf("%w: %dx%d, want %dx%d", ErrBufferSize, buf.Width, buf.Height, s.cfg.Width, s.cfg.Height)
	}
	return nil
}

// unbind releases the zero-copy target and its buffer. Runs on the
// processing stream.
func (s *Sink) unbind() {
	s.mu.Lock()
	buf, target := s.bound, s.target
	s.bound, s.target = nil, nil
	s.mu.Unlock()
	if target == nil {
		return
	}
	target.Unlock()
	buf.Release()
}

// StopRecording stops accepting frames. onComplete, if non-nil, runs on
// the processing stream after every frame admitted before the call has
// been handed to OnBuffer, and after OnDrained.
func (s *Sink) StopRecording(onComplete func()) error {
	var err error
	rerr := s.ctx.RunSync(func() {
		if !s.recording.CompareAndSwap(true, false) {
			err = ErrNotRecording
			return
		}
		s.ctx.RunAsync(func() {
			s.unbind()
			st := s.Stats()
			vidflow.Logger().Info("record: stopped", "session", s.SessionID().String(), "stats", st.String())
			if s.cfg.OnDrained != nil {
				s.cfg.OnDrained()
			}
			if onComplete != nil {
				onComplete()
			}
		})
	})
	if rerr != nil {
		return rerr
	}
	return err
}

// Deliver writes res into a destination buffer and hands it to OnBuffer.
// It runs on the processing stream and consumes the caller's reference.
func (s *Sink) Deliver(res *frame.Resource, _ int) {
	defer res.Unlock()

	if !s.recording.Load() {
		s.skip(SkipNotRecording, nil)
		return
	}
	ts := res.Timestamp()
	if !ts.Valid() {
		s.skip(SkipNoTimestamp, nil)
		return
	}
	if s.previous.Valid() && !ts.After(s.previous) {
		s.skip(SkipDuplicate, nil)
		return
	}

	buf, err := s.write(res)
	if err != nil {
		reason := SkipRender
		if errors.Is(err, ErrPoolExhausted) || errors.Is(err, frame.ErrAllocation) {
			reason = SkipNoBuffer
		}
		s.skip(reason, err)
		return
	}

	// Only accepted frames move the clock, so a frame skipped for lack of a
	// buffer does not make a later one with the same time a duplicate.
	if !s.start.Valid() {
		s.start = ts
	}
	s.previous = ts
	sample := Sample{Buffer: buf, Timestamp: ts, Elapsed: ts.Sub(s.start)}

	s.cfg.OnBuffer(sample)
	if buf != s.bound {
		buf.Release()
	}

	s.mu.Lock()
	s.stats.Written++
	s.stats.LastTimestamp = ts
	s.stats.Elapsed = sample.Elapsed
	s.mu.Unlock()
	s.observer.SampleWritten(sample)
}

// write renders res into a destination buffer.
func (s *Sink) write(res *frame.Resource) (*Buffer, error) {
	if s.target != nil {
		// A consumer still holding the last sample would see it overwritten.
		if s.bound.RefCount() > 1 {
			return nil, fmt.Errorf("%w: bound buffer still held", ErrPoolExhausted)
		}
		if err := s.ctx.Render(s.ctx.Swizzle(), []*frame.Resource{res}, nil, s.target); err != nil {
			return nil, err
		}
		if err := s.ctx.Device().Finish(); err != nil {
			return nil, err
		}
		return s.bound, nil
	}

	buf, err := s.cfg.Pool.Get()
	if err != nil {
		return nil, err
	}
	buf.take()
	if err := s.checkSize(buf); err != nil {
		buf.Release()
		return nil, err
	}

	target, err := s.ctx.Pool().Acquire(buf.Width, buf.Height, s.cfg.Orientation, false)
	if err != nil {
		buf.Release()
		return nil, err
	}
	defer target.Unlock()
	if err := s.ctx.Render(s.ctx.Swizzle(), []*frame.Resource{res}, nil, target); err != nil {
		buf.Release()
		return nil, err
	}
	if err := s.ctx.Device().ReadTexture(target.Texture(), buf.Pix, buf.Stride); err != nil {
		buf.Release()
		return nil, err
	}
	return buf, nil
}

func (s *Sink) skip(reason SkipReason, err error) {
	s.mu.Lock()
	s.stats.Skipped[reason]++
	s.mu.Unlock()
	s.observer.SampleSkipped(reason)
	if err != nil {
		vidflow.Logger().Warn("record: frame skipped", "reason", string(reason), "err", err)
		return
	}
	vidflow.Logger().Debug("record: frame skipped", "reason", string(reason))
}

var _ graph.Consumer = (*Sink)(nil)
