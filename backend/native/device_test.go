// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package native

import (
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/vidflow/backend"
	"github.com/gogpu/vidflow/gpucore"
	"github.com/gogpu/vidflow/processing"
)

func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

func newTestDevice(t *testing.T) *Device {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	d := New(device, queue)
	t.Cleanup(func() {
		d.Close()
		cleanup()
	})
	return d
}

func TestTextureLifecycle(t *testing.T) {
	d := newTestDevice(t)

	id, err := d.CreateTexture(&gpucore.TextureDescriptor{Label: "t", Width: 3, Height: 2, Format: gpucore.FormatRGBA8})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.WriteTexture(id, make([]byte, 3*2*4), 12); err != nil {
		t.Errorf("WriteTexture: %v", err)
	}
	if err := d.WriteTexture(id, make([]byte, 4), 12); err == nil {
		t.Error("short upload accepted")
	}
	if err := d.ReadTexture(id, make([]byte, 3*2*4), 8); err == nil {
		t.Error("stride below row size accepted")
	}
	if err := d.ReadTexture(id, make([]byte, 2*64), 64); err != nil {
		t.Errorf("ReadTexture with padded stride: %v", err)
	}

	d.DestroyTexture(id)
	d.DestroyTexture(id)
	if err := d.WriteTexture(id, make([]byte, 24), 12); !errors.Is(err, gpucore.ErrUnknownTexture) {
		t.Errorf("write after destroy = %v", err)
	}

	if _, err := d.CreateTexture(&gpucore.TextureDescriptor{Width: 0, Height: 1}); err == nil {
		t.Error("empty texture accepted")
	}
}

func TestNoExternalMemory(t *testing.T) {
	d := newTestDevice(t)
	if d.SupportsTextureCache() {
		t.Error("native device claims a texture cache")
	}
	_, err := d.WrapExternal(&gpucore.TextureDescriptor{Width: 1, Height: 1}, make([]byte, 4), 4)
	if !errors.Is(err, gpucore.ErrExternalUnsupported) {
		t.Errorf("WrapExternal = %v", err)
	}
}

func TestProgramAndDraw(t *testing.T) {
	d := newTestDevice(t)

	prog, err := d.CompileProgram(processing.PassthroughProgram())
	if err != nil {
		t.Fatalf("CompileProgram: %v", err)
	}
	src, err := d.CreateTexture(&gpucore.TextureDescriptor{Label: "src", Width: 2, Height: 2})
	if err != nil {
		t.Fatal(err)
	}
	dst, err := d.CreateTexture(&gpucore.TextureDescriptor{Label: "dst", Width: 2, Height: 2, RenderTarget: true})
	if err != nil {
		t.Fatal(err)
	}

	cmd := &gpucore.DrawCommand{Program: prog, Inputs: []gpucore.Binding{{Texture: src}}, Target: dst}
	if err := d.Draw(cmd); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if d.Draws() != 1 {
		t.Errorf("Draws = %d", d.Draws())
	}
	if err := d.Finish(); err != nil {
		t.Errorf("Finish: %v", err)
	}

	tests := []struct {
		name string
		cmd  gpucore.DrawCommand
	}{
		{"texture-only target", gpucore.DrawCommand{Program: prog, Inputs: []gpucore.Binding{{Texture: dst}}, Target: src}},
		{"wrong input count", gpucore.DrawCommand{Program: prog, Target: dst}},
		{"unknown program", gpucore.DrawCommand{Program: 999, Inputs: []gpucore.Binding{{Texture: src}}, Target: dst}},
		{"unknown input", gpucore.DrawCommand{Program: prog, Inputs: []gpucore.Binding{{Texture: 999}}, Target: dst}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := d.Draw(&tt.cmd); err == nil {
				t.Error("Draw succeeded")
			}
		})
	}

	d.DestroyProgram(prog)
	if err := d.Draw(cmd); !errors.Is(err, gpucore.ErrUnknownProgram) {
		t.Errorf("draw after DestroyProgram = %v", err)
	}
}

func TestCompileErrors(t *testing.T) {
	d := newTestDevice(t)

	bad := processing.PassthroughProgram()
	bad.Source = "fn broken( {"
	if _, err := d.CompileProgram(bad); !errors.Is(err, gpucore.ErrInvalidProgram) {
		t.Errorf("bad WGSL = %v, want ErrInvalidProgram", err)
	}
	noKernel := processing.PassthroughProgram()
	noKernel.Kernel = nil
	if _, err := d.CompileProgram(noKernel); !errors.Is(err, gpucore.ErrInvalidProgram) {
		t.Errorf("missing kernel = %v", err)
	}
}

func TestClosedDevice(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	d := New(device, queue)
	id, err := d.CreateTexture(&gpucore.TextureDescriptor{Width: 1, Height: 1})
	if err != nil {
		t.Fatal(err)
	}
	d.Close()
	d.Close()

	if _, err := d.CreateTexture(&gpucore.TextureDescriptor{Width: 1, Height: 1}); !errors.Is(err, ErrClosed) {
		t.Errorf("CreateTexture after Close = %v", err)
	}
	if err := d.WriteTexture(id, make([]byte, 4), 4); !errors.Is(err, ErrClosed) {
		t.Errorf("WriteTexture after Close = %v", err)
	}
	if err := d.Finish(); !errors.Is(err, ErrClosed) {
		t.Errorf("Finish after Close = %v", err)
	}
}

type halProvider struct {
	device hal.Device
	queue  hal.Queue
}

func (p *halProvider) Device() gpucontext.Device             { return nil }
func (p *halProvider) Queue() gpucontext.Queue               { return nil }
func (p *halProvider) Adapter() gpucontext.Adapter           { return nil }
func (p *halProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }
func (p *halProvider) HalDevice() any                        { return p.device }
func (p *halProvider) HalQueue() any                         { return p.queue }

func TestFromProvider(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	d, err := FromProvider(&halProvider{device: device, queue: queue})
	if err != nil {
		t.Fatal(err)
	}
	d.Close()

	if _, err := FromProvider(&halProvider{}); !errors.Is(err, ErrNoHAL) {
		t.Errorf("nil HAL device = %v", err)
	}
	if _, err := FromProvider(&halProvider{device: device}); !errors.Is(err, ErrNoHAL) {
		t.Errorf("nil HAL queue = %v", err)
	}

	Register(&halProvider{device: device, queue: queue})
	defer backend.Unregister(backend.BackendNative)
	dev, err := backend.Open(backend.BackendNative)
	if err != nil {
		t.Fatal(err)
	}
	dev.Close()
}
