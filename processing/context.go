// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package processing

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/vidflow"
	"github.com/gogpu/vidflow/frame"
	"github.com/gogpu/vidflow/gpucore"
)

// Context errors.
var (
	// ErrClosed is returned when submitting to a closed context.
	ErrClosed = errors.New("processing: context closed")

	// ErrProgramBuild is returned when a program fails to build. It is a
	// configuration error: the component requesting the program cannot be used.
	ErrProgramBuild = errors.New("processing: program build failed")

	// ErrNilDevice is returned by New without a device.
	ErrNilDevice = errors.New("processing: nil device")
)

// DefaultDrainTimeout bounds how long Close waits for queued work.
const DefaultDrainTimeout = 5 * time.Second

// Option configures a Context.
type Option func(*options)

type options struct {
	pool         frame.Config
	drainTimeout time.Duration
}

// WithPoolConfig sets the retention limits of the context's frame pool.
func WithPoolConfig(cfg frame.Config) Option {
	return func(o *options) { o.pool = cfg }
}

// WithDrainTimeout sets how long Close waits for queued work to finish.
func WithDrainTimeout(d time.Duration) Option {
	return func(o *options) { o.drainTimeout = d }
}

// Context is the single serialization point for GPU work.
//
// Context is safe for concurrent use.
type Context struct {
	device gpucore.Device
	pool   *frame.Pool
	stream *stream
	opts   options

	mu       sync.Mutex
	programs map[string]gpucore.ProgramID

	passthrough gpucore.ProgramID
	swizzle     gpucore.ProgramID
	yuv         gpucore.ProgramID

	generation atomic.Uint64
	closed     atomic.Bool
}

// New creates a context on device and builds the built-in programs.
func New(device gpucore.Device, opts ...Option) (*Context, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	o := options{drainTimeout: DefaultDrainTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Context{
		device:   device,
		pool:     frame.NewPool(device, o.pool),
		opts:     o,
		programs: make(map[string]gpucore.ProgramID),
	}

	var err error
	if c.passthrough, err = c.Program(PassthroughProgram()); err != nil {
		return nil, err
	}
	if c.swizzle, err = c.Program(SwizzleProgram()); err != nil {
		return nil, err
	}
	if c.yuv, err = c.Program(YUVConversionProgram()); err != nil {
		return nil, err
	}

	c.stream = newStream()
	vidflow.Logger().Info("processing: context ready", "texture_cache", device.SupportsTextureCache())
	return c, nil
}

// Device returns the device.
func (c *Context) Device() gpucore.Device { return c.device }

// NextGeneration returns a new synchronization generation. Generations are
// shared by every source on the context and start at 1.
func (c *Context) NextGeneration() uint64 { return c.generation.Add(1) }

// Pool returns the shared frame pool.
func (c *Context) Pool() *frame.Pool { return c.pool }

// Passthrough returns the program that copies its single input.
func (c *Context) Passthrough() gpucore.ProgramID { return c.passthrough }

// Swizzle returns the program that exchanges the red and blue channels.
func (c *Context) Swizzle() gpucore.ProgramID { return c.swizzle }

// YUVConversion returns the luma+chroma to RGB program.
func (c *Context) YUVConversion() gpucore.ProgramID { return c.yuv }

// Program builds desc once per label and returns the cached ID afterwards.
// Build failures wrap ErrProgramBuild.
func (c *Context) Program(desc *gpucore.ProgramDescriptor) (gpucore.ProgramID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("%w: nil descriptor", ErrProgramBuild)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.programs[desc.Label]; ok {
		return id, nil
	}
	id, err := c.device.CompileProgram(desc)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: %s: %w", ErrProgramBuild, desc.Label, err)
	}
	c.programs[desc.Label] = id
	vidflow.Logger().Debug("processing: program built", "label", desc.Label)
	return id, nil
}

// RunAsync queues fn on the stream and returns immediately. Work queued
// after Close is dropped and reported as false.
func (c *Context) RunAsync(fn func()) bool {
	if c.closed.Load() {
		return false
	}
	return c.stream.submit(fn)
}

// RunSync queues fn and blocks until it has run. It must not be called
// from work already running on the stream.
func (c *Context) RunSync(fn func()) error {
	done := make(chan struct{})
	ok := c.RunAsync(func() {
		defer close(done)
		fn()
	})
	if !ok {
		return ErrClosed
	}
	<-done
	return nil
}

// Drain blocks until all work queued before the call has run.
func (c *Context) Drain() error {
	return c.RunSync(func() {})
}

// Pending returns the number of queued work items not yet started.
func (c *Context) Pending() int {
	return c.stream.pending()
}

// Render draws program over target, sampling inputs rotated from their own
// orientation to the target's.
func (c *Context) Render(program gpucore.ProgramID, inputs []*frame.Resource, uniforms gpucore.Uniforms, target *frame.Resource) error {
	bindings := make([]gpucore.Binding, len(inputs))
	for i, in := range inputs {
		bindings[i] = gpucore.Binding{
			Texture:  in.Texture(),
			Rotation: in.Orientation().RotationNeeded(target.Orientation()),
		}
	}
	return c.device.Draw(&gpucore.DrawCommand{
		Program:  program,
		Inputs:   bindings,
		Uniforms: uniforms,
		Target:   target.Texture(),
	})
}

// Close drains queued work, releases programs and closes the pool.
// The device is left open; it belongs to the caller.
//
// If the drain outlasts the drain timeout, Close returns an error and the
// programs and pool are released once the worker has run the remaining
// items.
func (c *Context) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	done := c.stream.close()
	select {
	case <-done:
		return c.release()
	case <-time.After(c.opts.drainTimeout):
		err := fmt.Errorf("processing: drain timed out after %v", c.opts.drainTimeout)
		vidflow.Logger().Warn("processing: close", "err", err, "pending", c.stream.pending())
		go func() {
			<-done
			_ = c.release()
		}()
		return err
	}
}

func (c *Context) release() error {
	c.mu.Lock()
	for label, id := range c.programs {
		c.device.DestroyProgram(id)
		delete(c.programs, label)
	}
	c.mu.Unlock()

	err := c.pool.Close()
	vidflow.Logger().Info("processing: context closed", "pool", c.pool.Stats().String())
	return err
}
