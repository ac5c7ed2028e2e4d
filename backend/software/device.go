// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package software

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/vidflow/backend"
	"github.com/gogpu/vidflow/gpucore"
)

func init() {
	backend.Register(backend.BackendSoftware, func() (gpucore.Device, error) {
		return New(), nil
	})
}

// Option configures a Device.
type Option func(*options)

type options struct {
	textureCache bool
	textureLimit int
}

// WithTextureCache enables or disables WrapExternal. Enabled by default.
func WithTextureCache(enabled bool) Option {
	return func(o *options) { o.textureCache = enabled }
}

// WithTextureLimit caps the number of live textures. Creating more fails
// with gpucore.ErrOutOfMemory. Zero means unlimited.
func WithTextureLimit(n int) Option {
	return func(o *options) { o.textureLimit = n }
}

type texture struct {
	desc     gpucore.TextureDescriptor
	surface  *gpucore.Surface
	external bool
}

// Device is a CPU gpucore.Device.
//
// Thread Safety: Device is safe for concurrent use. Resource maps are
// protected by a mutex; draws into the same target must be serialized by
// the caller.
type Device struct {
	mu       sync.RWMutex
	textures map[gpucore.TextureID]*texture
	programs map[gpucore.ProgramID]*gpucore.ProgramDescriptor
	opts     options
	closed   bool

	nextID   atomic.Uint64
	draws    atomic.Uint64
	finishes atomic.Uint64
}

// New creates a software device.
func New(opts ...Option) *Device {
	o := options{textureCache: true}
	for _, opt := range opts {
		opt(&o)
	}
	d := &Device{
		textures: make(map[gpucore.TextureID]*texture),
		programs: make(map[gpucore.ProgramID]*gpucore.ProgramDescriptor),
		opts:     o,
	}
	// Start ID generation at 1 (0 is invalid)
	d.nextID.Store(1)
	return d
}

func (d *Device) newID() uint64 {
	return d.nextID.Add(1) - 1
}

// Stats reports live resources and work counters.
type Stats struct {
	Textures int
	External int
	Programs int
	Draws    uint64
	Finishes uint64
}

// Stats returns a snapshot of the device counters.
func (d *Device) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := Stats{
		Textures: len(d.textures),
		Programs: len(d.programs),
		Draws:    d.draws.Load(),
		Finishes: d.finishes.Load(),
	}
	for _, t := range d.textures {
		if t.external {
			s.External++
		}
	}
	return s
}

// SupportsTextureCache reports whether WrapExternal is enabled.
func (d *Device) SupportsTextureCache() bool {
	return d.opts.textureCache
}

// CreateTexture allocates a zeroed texture.
func (d *Device) CreateTexture(desc *gpucore.TextureDescriptor) (gpucore.TextureID, error) {
	if err := desc.Validate(); err != nil {
		return gpucore.InvalidID, err
	}
	surface := gpucore.NewSurface(desc.Width, desc.Height, desc.Format)
	return d.insert(&texture{desc: *desc, surface: surface})
}

// WrapExternal aliases pix as the texture storage.
func (d *Device) WrapExternal(desc *gpucore.TextureDescriptor, pix []byte, stride int) (gpucore.TextureID, error) {
	if !d.opts.textureCache {
		return gpucore.InvalidID, gpucore.ErrExternalUnsupported
	}
	if err := desc.Validate(); err != nil {
		return gpucore.InvalidID, err
	}
	if err := checkRows(desc, len(pix), stride); err != nil {
		return gpucore.InvalidID, err
	}
	surface := &gpucore.Surface{
		Width:  desc.Width,
		Height: desc.Height,
		Stride: stride,
		Format: desc.Format,
		Pix:    pix,
	}
	return d.insert(&texture{desc: *desc, surface: surface, external: true})
}

func (d *Device) insert(t *texture) (gpucore.TextureID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return gpucore.InvalidID, fmt.Errorf("software: device closed")
	}
	if d.opts.textureLimit > 0 && len(d.textures) >= d.opts.textureLimit {
		return gpucore.InvalidID, fmt.Errorf("%w: %d textures live", gpucore.ErrOutOfMemory, len(d.textures))
	}
	id := gpucore.TextureID(d.newID())
	d.textures[id] = t
	return id, nil
}

// DestroyTexture releases a texture. External memory is left untouched.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	delete(d.textures, id)
	d.mu.Unlock()
}

func (d *Device) texture(id gpucore.TextureID) (*texture, error) {
	d.mu.RLock()
	t, ok := d.textures[id]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", gpucore.ErrUnknownTexture, id)
	}
	return t, nil
}

// WriteTexture copies pixel rows into the texture.
func (d *Device) WriteTexture(id gpucore.TextureID, pix []byte, stride int) error {
	t, err := d.texture(id)
	if err != nil {
		return err
	}
	if err := checkRows(&t.desc, len(pix), stride); err != nil {
		return err
	}
	src := &gpucore.Surface{Width: t.desc.Width, Height: t.desc.Height, Stride: stride, Format: t.desc.Format, Pix: pix}
	return src.CopyTo(t.surface)
}

// ReadTexture copies the texture rows into dst.
func (d *Device) ReadTexture(id gpucore.TextureID, dst []byte, stride int) error {
	t, err := d.texture(id)
	if err != nil {
		return err
	}
	if err := checkRows(&t.desc, len(dst), stride); err != nil {
		return err
	}
	out := &gpucore.Surface{Width: t.desc.Width, Height: t.desc.Height, Stride: stride, Format: t.desc.Format, Pix: dst}
	return t.surface.CopyTo(out)
}

func checkRows(desc *gpucore.TextureDescriptor, n, stride int) error {
	row := desc.RowBytes()
	if stride < row {
		return fmt.Errorf("software: stride %d below row size %d", stride, row)
	}
	if need := stride*(desc.Height-1) + row; n < need {
		return fmt.Errorf("software: %d bytes for %dx%d %v, need %d", n, desc.Width, desc.Height, desc.Format, need)
	}
	return nil
}

// CompileProgram registers a program. Only the descriptor shape is
// validated; the kernel is what runs.
func (d *Device) CompileProgram(desc *gpucore.ProgramDescriptor) (gpucore.ProgramID, error) {
	if err := desc.Validate(); err != nil {
		return gpucore.InvalidID, err
	}
	p := *desc

	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.ProgramID(d.newID())
	d.programs[id] = &p
	return id, nil
}

// DestroyProgram releases a program.
func (d *Device) DestroyProgram(id gpucore.ProgramID) {
	d.mu.Lock()
	delete(d.programs, id)
	d.mu.Unlock()
}

// Draw runs the program kernel into the target texture.
func (d *Device) Draw(cmd *gpucore.DrawCommand) error {
	d.mu.RLock()
	prog, ok := d.programs[cmd.Program]
	target, tok := d.textures[cmd.Target]
	inputs := make([]*gpucore.Surface, len(cmd.Inputs))
	rotations := make([]gpucore.Rotation, len(cmd.Inputs))
	missing := -1
	for i, b := range cmd.Inputs {
		t, ok := d.textures[b.Texture]
		if !ok {
			missing = i
			break
		}
		inputs[i] = t.surface
		rotations[i] = b.Rotation
	}
	d.mu.RUnlock()

	switch {
	case !ok:
		return fmt.Errorf("%w: %d", gpucore.ErrUnknownProgram, cmd.Program)
	case !tok:
		return fmt.Errorf("%w: target %d", gpucore.ErrUnknownTexture, cmd.Target)
	case missing >= 0:
		return fmt.Errorf("%w: input %d", gpucore.ErrUnknownTexture, cmd.Inputs[missing].Texture)
	case len(cmd.Inputs) != prog.Inputs:
		return fmt.Errorf("software: %s expects %d inputs, got %d", prog.Label, prog.Inputs, len(cmd.Inputs))
	case !target.desc.RenderTarget && !target.external:
		return fmt.Errorf("software: %s: target %d is texture-only", prog.Label, cmd.Target)
	}

	d.draws.Add(1)
	return gpucore.Execute(prog.Kernel, inputs, rotations, target.surface, cmd.Uniforms)
}

// Finish returns immediately; software draws complete synchronously.
func (d *Device) Finish() error {
	d.finishes.Add(1)
	return nil
}

// Close releases all resources.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	clear(d.textures)
	clear(d.programs)
}

var _ gpucore.Device = (*Device)(nil)
