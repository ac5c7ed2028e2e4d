// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package native

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vidflow"
	"github.com/gogpu/vidflow/backend"
	"github.com/gogpu/vidflow/gpucore"
)

// Device errors.
var (
	// ErrNoHAL is returned by FromProvider when the provider does not
	// expose HAL types.
	ErrNoHAL = errors.New("native: provider does not expose HAL types")

	// ErrClosed is returned by operations on a closed device.
	ErrClosed = errors.New("native: device closed")
)

// copyPitchAlignment is the row alignment WebGPU requires for
// texture-to-buffer copies.
const copyPitchAlignment = 256

// fenceTimeout bounds every wait for the GPU.
const fenceTimeout = 5 * time.Second

type texture struct {
	desc gpucore.TextureDescriptor
	tex  hal.Texture
}

type program struct {
	desc   gpucore.ProgramDescriptor
	module hal.ShaderModule
}

// Device implements gpucore.Device on a HAL device and queue.
//
// Thread Safety: Device is safe for concurrent use. Resource maps are
// protected by a mutex.
type Device struct {
	device hal.Device
	queue  hal.Queue

	mu       sync.RWMutex
	textures map[gpucore.TextureID]*texture
	programs map[gpucore.ProgramID]*program
	closed   bool

	nextID       atomic.Uint64
	draws        atomic.Uint64
	fallbackOnce sync.Once
}

// New wraps a HAL device and queue. The caller keeps ownership of both.
func New(device hal.Device, queue hal.Queue) *Device {
	d := &Device{
		device:   device,
		queue:    queue,
		textures: make(map[gpucore.TextureID]*texture),
		programs: make(map[gpucore.ProgramID]*program),
	}
	d.nextID.Store(1)
	return d
}

// FromProvider takes the HAL device and queue of a host. The provider must
// implement HalDevice() any and HalQueue() any returning hal.Device and
// hal.Queue.
func FromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHAL)
	}
	return New(device, queue), nil
}

// Register registers the provider's device as the native backend.
func Register(provider gpucontext.DeviceProvider) {
	backend.Register(backend.BackendNative, func() (gpucore.Device, error) {
		return FromProvider(provider)
	})
}

// SupportsTextureCache returns false.
func (d *Device) SupportsTextureCache() bool { return false }

// Draws returns the number of draws executed.
func (d *Device) Draws() uint64 { return d.draws.Load() }

// CreateTexture allocates a sampled texture, also usable as a color
// attachment when desc.RenderTarget is set.
func (d *Device) CreateTexture(desc *gpucore.TextureDescriptor) (gpucore.TextureID, error) {
	if err := desc.Validate(); err != nil {
		return gpucore.InvalidID, err
	}
	usage := gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding
	if desc.RenderTarget {
		usage |= gputypes.TextureUsageRenderAttachment
	}
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: uint32(desc.Width), Height: uint32(desc.Height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format.GPUFormat(),
		Usage:         usage,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: %s %dx%d: %w", gpucore.ErrOutOfMemory, desc.Label, desc.Width, desc.Height, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.device.DestroyTexture(tex)
		return gpucore.InvalidID, ErrClosed
	}
	id := gpucore.TextureID(d.nextID.Add(1) - 1)
	d.textures[id] = &texture{desc: *desc, tex: tex}
	return id, nil
}

// WrapExternal is not supported.
func (d *Device) WrapExternal(*gpucore.TextureDescriptor, []byte, int) (gpucore.TextureID, error) {
	return gpucore.InvalidID, gpucore.ErrExternalUnsupported
}

// DestroyTexture releases a texture.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	t, ok := d.textures[id]
	delete(d.textures, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyTexture(t.tex)
	}
}

func (d *Device) texture(id gpucore.TextureID) (*texture, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	t, ok := d.textures[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", gpucore.ErrUnknownTexture, id)
	}
	return t, nil
}

// WriteTexture uploads rows of the given stride.
func (d *Device) WriteTexture(id gpucore.TextureID, pix []byte, stride int) error {
	t, err := d.texture(id)
	if err != nil {
		return err
	}
	if err := checkRows(&t.desc, len(pix), stride); err != nil {
		return err
	}
	w, h := uint32(t.desc.Width), uint32(t.desc.Height)
	d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
		pix,
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: uint32(stride), RowsPerImage: h},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
	return nil
}

// ReadTexture copies the texture into a staging buffer, waits for the GPU
// and strips the row padding into dst.
func (d *Device) ReadTexture(id gpucore.TextureID, dst []byte, stride int) error {
	t, err := d.texture(id)
	if err != nil {
		return err
	}
	if err := checkRows(&t.desc, len(dst), stride); err != nil {
		return err
	}

	w, h := uint32(t.desc.Width), uint32(t.desc.Height)
	row := uint32(t.desc.RowBytes())
	aligned := (row + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	size := uint64(aligned) * uint64(h)

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "vidflow_readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("native: create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	err = d.submit("vidflow_readback", func(encoder hal.CommandEncoder) {
		encoder.CopyTextureToBuffer(t.tex, staging, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: aligned, RowsPerImage: h},
			TextureBase:  hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
			Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		}})
	})
	if err != nil {
		return err
	}

	readback := make([]byte, size)
	if err := d.queue.ReadBuffer(staging, 0, readback); err != nil {
		return fmt.Errorf("native: readback: %w", err)
	}
	for y := range int(h) {
		src := readback[y*int(aligned) : y*int(aligned)+int(row)]
		copy(dst[y*stride:y*stride+int(row)], src)
	}
	return nil
}

// submit records commands into a fresh encoder, submits them and waits
// for the fence.
func (d *Device) submit(label string, record func(hal.CommandEncoder)) error {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label + "_encoder"})
	if err != nil {
		return fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return fmt.Errorf("native: begin encoding: %w", err)
	}
	if record != nil {
		record(encoder)
	}
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		return fmt.Errorf("native: end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("native: create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)

	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("native: submit: %w", err)
	}
	ok, err := d.device.Wait(fence, 1, fenceTimeout)
	if err != nil || !ok {
		return fmt.Errorf("native: wait for GPU: ok=%v err=%w", ok, err)
	}
	return nil
}

// CompileProgram compiles the WGSL source to SPIR-V and creates a shader
// module. The kernel is kept for draws.
func (d *Device) CompileProgram(desc *gpucore.ProgramDescriptor) (gpucore.ProgramID, error) {
	if err := desc.Validate(); err != nil {
		return gpucore.InvalidID, err
	}
	spirv, err := gpucore.CompileWGSL(desc.Source)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: %s: %w", gpucore.ErrInvalidProgram, desc.Label, err)
	}
	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: %s: %w", gpucore.ErrInvalidProgram, desc.Label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.device.DestroyShaderModule(module)
		return gpucore.InvalidID, ErrClosed
	}
	id := gpucore.ProgramID(d.nextID.Add(1) - 1)
	d.programs[id] = &program{desc: *desc, module: module}
	return id, nil
}

// DestroyProgram releases a program.
func (d *Device) DestroyProgram(id gpucore.ProgramID) {
	d.mu.Lock()
	p, ok := d.programs[id]
	delete(d.programs, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyShaderModule(p.module)
	}
}

// Draw reads the inputs back, runs the program kernel and uploads the
// result into the target.
func (d *Device) Draw(cmd *gpucore.DrawCommand) error {
	d.mu.RLock()
	prog, ok := d.programs[cmd.Program]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %d", gpucore.ErrUnknownProgram, cmd.Program)
	}
	if len(cmd.Inputs) != prog.desc.Inputs {
		return fmt.Errorf("native: %s expects %d inputs, got %d", prog.desc.Label, prog.desc.Inputs, len(cmd.Inputs))
	}
	target, err := d.texture(cmd.Target)
	if err != nil {
		return err
	}
	if !target.desc.RenderTarget {
		return fmt.Errorf("native: %s: target %d is texture-only", prog.desc.Label, cmd.Target)
	}

	d.fallbackOnce.Do(func() {
		vidflow.Logger().Warn("native: draws run on the CPU kernel path")
	})

	inputs := make([]*gpucore.Surface, len(cmd.Inputs))
	rotations := make([]gpucore.Rotation, len(cmd.Inputs))
	for i, b := range cmd.Inputs {
		t, err := d.texture(b.Texture)
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		s := gpucore.NewSurface(t.desc.Width, t.desc.Height, t.desc.Format)
		if err := d.ReadTexture(b.Texture, s.Pix, s.Stride); err != nil {
			return err
		}
		inputs[i], rotations[i] = s, b.Rotation
	}

	out := gpucore.NewSurface(target.desc.Width, target.desc.Height, target.desc.Format)
	if err := gpucore.Execute(prog.desc.Kernel, inputs, rotations, out, cmd.Uniforms); err != nil {
		return err
	}
	d.draws.Add(1)
	return d.WriteTexture(cmd.Target, out.Pix, out.Stride)
}

// Finish submits an empty command buffer and waits for it, so queued
// uploads are complete.
func (d *Device) Finish() error {
	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	return d.submit("vidflow_finish", nil)
}

// Close destroys every texture and shader module. The HAL device and
// queue are left to their owner.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	textures, programs := d.textures, d.programs
	d.textures, d.programs = nil, nil
	d.mu.Unlock()

	for _, t := range textures {
		d.device.DestroyTexture(t.tex)
	}
	for _, p := range programs {
		d.device.DestroyShaderModule(p.module)
	}
}

func checkRows(desc *gpucore.TextureDescriptor, n, stride int) error {
	row := desc.RowBytes()
	if stride < row {
		return fmt.Errorf("native: stride %d below row size %d", stride, row)
	}
	if need := stride*(desc.Height-1) + row; n < need {
		return fmt.Errorf("native: %d bytes for %dx%d %v, need %d", n, desc.Width, desc.Height, desc.Format, need)
	}
	return nil
}

var _ gpucore.Device = (*Device)(nil)
