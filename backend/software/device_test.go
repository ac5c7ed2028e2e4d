package software

import (
	"errors"
	"testing"

	"github.com/gogpu/vidflow/gpucore"
)

func fill(v uint8) gpucore.Kernel {
	return func(dst *gpucore.Surface, _ []*gpucore.Surface, _ gpucore.Uniforms) {
		gpucore.Map(dst, func(int, int) gpucore.Color {
			f := float32(v) / 255
			return gpucore.Color{R: f, G: f, B: f, A: 1}
		})
	}
}

func copyKernel(dst *gpucore.Surface, src []*gpucore.Surface, _ gpucore.Uniforms) {
	gpucore.Map(dst, func(x, y int) gpucore.Color { return src[0].Texel(x, y) })
}

func TestCreateDestroyTexture(t *testing.T) {
	d := New()
	id, err := d.CreateTexture(&gpucore.TextureDescriptor{Width: 4, Height: 4, RenderTarget: true})
	if err != nil {
		t.Fatal(err)
	}
	if id == gpucore.InvalidID {
		t.Fatal("got InvalidID")
	}
	if got := d.Stats().Textures; got != 1 {
		t.Errorf("Textures = %d, want 1", got)
	}
	d.DestroyTexture(id)
	if got := d.Stats().Textures; got != 0 {
		t.Errorf("Textures after destroy = %d, want 0", got)
	}
	if _, err := d.CreateTexture(&gpucore.TextureDescriptor{}); err == nil {
		t.Error("expected error for zero-sized texture")
	}
}

func TestTextureLimit(t *testing.T) {
	d := New(WithTextureLimit(1))
	desc := &gpucore.TextureDescriptor{Width: 2, Height: 2}
	if _, err := d.CreateTexture(desc); err != nil {
		t.Fatal(err)
	}
	if _, err := d.CreateTexture(desc); !errors.Is(err, gpucore.ErrOutOfMemory) {
		t.Fatalf("second CreateTexture = %v, want ErrOutOfMemory", err)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	d := New()
	desc := &gpucore.TextureDescriptor{Width: 2, Height: 2, Format: gpucore.FormatBGRA8}
	id, err := d.CreateTexture(desc)
	if err != nil {
		t.Fatal(err)
	}

	// Padded rows on upload.
	src := make([]byte, 12*2)
	for i := range 8 {
		src[i] = byte(i + 1)
		src[12+i] = byte(i + 11)
	}
	if err := d.WriteTexture(id, src, 12); err != nil {
		t.Fatal(err)
	}
	dst := make([]byte, 16)
	if err := d.ReadTexture(id, dst, 8); err != nil {
		t.Fatal(err)
	}
	for i := range 8 {
		if dst[i] != src[i] || dst[8+i] != src[12+i] {
			t.Fatalf("round trip mismatch: got %v", dst)
		}
	}

	if err := d.WriteTexture(id, src[:4], 8); err == nil {
		t.Error("expected short buffer error")
	}
	if err := d.ReadTexture(gpucore.TextureID(999), dst, 8); !errors.Is(err, gpucore.ErrUnknownTexture) {
		t.Errorf("ReadTexture(unknown) = %v", err)
	}
}

func TestWrapExternalAliasesMemory(t *testing.T) {
	d := New()
	pix := make([]byte, 2*2*4)
	desc := &gpucore.TextureDescriptor{Width: 2, Height: 2, Format: gpucore.FormatBGRA8}
	id, err := d.WrapExternal(desc, pix, 8)
	if err != nil {
		t.Fatal(err)
	}
	prog, err := d.CompileProgram(&gpucore.ProgramDescriptor{Label: "fill", Kernel: fill(255)})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Draw(&gpucore.DrawCommand{Program: prog, Target: id}); err != nil {
		t.Fatal(err)
	}
	if pix[0] != 255 || pix[3] != 255 {
		t.Errorf("draw not visible in external memory: %v", pix[:4])
	}
	d.DestroyTexture(id)
	if pix[0] != 255 {
		t.Error("destroying a wrapped texture must not clear caller memory")
	}
}

func TestWrapExternalDisabled(t *testing.T) {
	d := New(WithTextureCache(false))
	if d.SupportsTextureCache() {
		t.Fatal("SupportsTextureCache() = true")
	}
	_, err := d.WrapExternal(&gpucore.TextureDescriptor{Width: 1, Height: 1}, make([]byte, 4), 4)
	if !errors.Is(err, gpucore.ErrExternalUnsupported) {
		t.Fatalf("WrapExternal = %v, want ErrExternalUnsupported", err)
	}
}

func TestDrawValidation(t *testing.T) {
	d := New()
	prog, err := d.CompileProgram(&gpucore.ProgramDescriptor{Label: "copy", Inputs: 1, Kernel: copyKernel})
	if err != nil {
		t.Fatal(err)
	}
	target, _ := d.CreateTexture(&gpucore.TextureDescriptor{Width: 2, Height: 2, RenderTarget: true})
	textureOnly, _ := d.CreateTexture(&gpucore.TextureDescriptor{Width: 2, Height: 2})

	tests := []struct {
		name string
		cmd  gpucore.DrawCommand
	}{
		{"unknown program", gpucore.DrawCommand{Program: 999, Target: target}},
		{"unknown target", gpucore.DrawCommand{Program: prog, Target: 999, Inputs: []gpucore.Binding{{Texture: textureOnly}}}},
		{"unknown input", gpucore.DrawCommand{Program: prog, Target: target, Inputs: []gpucore.Binding{{Texture: 0}}}},
		{"input count", gpucore.DrawCommand{Program: prog, Target: target}},
		{"texture-only target", gpucore.DrawCommand{Program: prog, Target: textureOnly, Inputs: []gpucore.Binding{{Texture: target}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := d.Draw(&tt.cmd); err == nil {
				t.Error("expected error")
			}
		})
	}

	cmd := gpucore.DrawCommand{Program: prog, Target: target, Inputs: []gpucore.Binding{{Texture: textureOnly}}}
	if err := d.Draw(&cmd); err != nil {
		t.Fatalf("valid draw: %v", err)
	}
	if got := d.Stats().Draws; got != 1 {
		t.Errorf("Draws = %d, want 1", got)
	}
}

func TestCompileProgramInvalid(t *testing.T) {
	d := New()
	if _, err := d.CompileProgram(&gpucore.ProgramDescriptor{Label: "x"}); !errors.Is(err, gpucore.ErrInvalidProgram) {
		t.Fatalf("CompileProgram = %v, want ErrInvalidProgram", err)
	}
}

func TestClose(t *testing.T) {
	d := New()
	_, _ = d.CreateTexture(&gpucore.TextureDescriptor{Width: 1, Height: 1})
	d.Close()
	if d.Stats().Textures != 0 {
		t.Error("Close should release textures")
	}
	if _, err := d.CreateTexture(&gpucore.TextureDescriptor{Width: 1, Height: 1}); err == nil {
		t.Error("CreateTexture after Close should fail")
	}
}
