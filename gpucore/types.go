package gpucore

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
)

// Resource IDs
//
// These opaque IDs represent GPU resources. IDs are uint64 to accommodate
// various backend handle sizes.

// TextureID is an opaque handle to a GPU texture.
type TextureID uint64

// ProgramID is an opaque handle to a compiled program.
type ProgramID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// Device errors.
var (
	// ErrExternalUnsupported is returned by WrapExternal on devices that
	// cannot bind caller memory as a texture.
	ErrExternalUnsupported = errors.New("gpucore: external textures not supported")

	// ErrUnknownTexture is returned when a texture ID is not live.
	ErrUnknownTexture = errors.New("gpucore: unknown texture")

	// ErrUnknownProgram is returned when a program ID is not live.
	ErrUnknownProgram = errors.New("gpucore: unknown program")

	// ErrOutOfMemory is returned when the device cannot allocate a texture.
	ErrOutOfMemory = errors.New("gpucore: out of device memory")

	// ErrInvalidProgram is returned for malformed program descriptors.
	ErrInvalidProgram = errors.New("gpucore: invalid program")
)

// TextureFormat specifies the pixel format of a texture.
type TextureFormat uint8

const (
	// FormatRGBA8 is 8-bit RGBA, the default for render targets.
	FormatRGBA8 TextureFormat = iota

	// FormatBGRA8 is 8-bit BGRA, the layout of most camera and encoder buffers.
	FormatBGRA8

	// FormatR8 is a single 8-bit channel (luma planes).
	FormatR8

	// FormatRG8 is two interleaved 8-bit channels (chroma planes).
	FormatRG8
)

// String returns a human-readable name for the format.
func (f TextureFormat) String() string {
	switch f {
	case FormatRGBA8:
		return "RGBA8"
	case FormatBGRA8:
		return "BGRA8"
	case FormatR8:
		return "R8"
	case FormatRG8:
		return "RG8"
	default:
		return fmt.Sprintf("Unknown(%d)", f)
	}
}

// BytesPerPixel returns the number of bytes per pixel for the format.
func (f TextureFormat) BytesPerPixel() int {
	switch f {
	case FormatR8:
		return 1
	case FormatRG8:
		return 2
	default:
		return 4
	}
}

// GPUFormat converts to the WebGPU texture format.
func (f TextureFormat) GPUFormat() gputypes.TextureFormat {
	switch f {
	case FormatBGRA8:
		return gputypes.TextureFormatBGRA8Unorm
	case FormatR8:
		return gputypes.TextureFormatR8Unorm
	case FormatRG8:
		return gputypes.TextureFormatRG8Unorm
	default:
		return gputypes.TextureFormatRGBA8Unorm
	}
}

// Rotation is applied to an input texture when it is sampled by a draw.
type Rotation uint8

const (
	// RotationNone samples the input as stored.
	RotationNone Rotation = iota

	// RotationLeft rotates the input 90 degrees counterclockwise.
	RotationLeft

	// RotationRight rotates the input 90 degrees clockwise.
	RotationRight

	// Rotation180 rotates the input 180 degrees.
	Rotation180
)

// String returns a human-readable name for the rotation.
func (r Rotation) String() string {
	switch r {
	case RotationNone:
		return "none"
	case RotationLeft:
		return "left"
	case RotationRight:
		return "right"
	case Rotation180:
		return "180"
	default:
		return fmt.Sprintf("Rotation(%d)", r)
	}
}

// SwapsDimensions reports whether the rotation exchanges width and height.
func (r Rotation) SwapsDimensions() bool {
	return r == RotationLeft || r == RotationRight
}

// TextureDescriptor describes a texture to create.
type TextureDescriptor struct {
	Label  string
	Width  int
	Height int
	Format TextureFormat

	// RenderTarget marks the texture as a color attachment that can also be
	// read back. Texture-only resources leave it false.
	RenderTarget bool
}

// Validate checks the descriptor for obviously invalid values.
func (d *TextureDescriptor) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("gpucore: invalid texture size %dx%d", d.Width, d.Height)
	}
	if d.Format > FormatRG8 {
		return fmt.Errorf("gpucore: invalid texture format %v", d.Format)
	}
	return nil
}

// RowBytes returns the tight row size in bytes.
func (d *TextureDescriptor) RowBytes() int {
	return d.Width * d.Format.BytesPerPixel()
}

// ProgramDescriptor describes a program: a WGSL fragment program and the
// equivalent CPU kernel.
type ProgramDescriptor struct {
	Label string

	// Source is the WGSL module with vs_main and fs_main entry points.
	Source string

	// Inputs is the number of textures the program samples (0..3).
	Inputs int

	Kernel Kernel
}

// Validate checks the descriptor shape. It does not compile the source.
func (d *ProgramDescriptor) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: nil descriptor", ErrInvalidProgram)
	}
	if d.Label == "" {
		return fmt.Errorf("%w: missing label", ErrInvalidProgram)
	}
	if d.Kernel == nil {
		return fmt.Errorf("%w: %s: missing kernel", ErrInvalidProgram, d.Label)
	}
	if d.Inputs < 0 || d.Inputs > MaxInputs {
		return fmt.Errorf("%w: %s: %d inputs", ErrInvalidProgram, d.Label, d.Inputs)
	}
	return nil
}

// MaxInputs is the maximum number of textures a program may sample.
const MaxInputs = 3

// Binding binds an input texture to a draw.
type Binding struct {
	Texture  TextureID
	Rotation Rotation
}

// DrawCommand is a single full-screen textured quad draw.
type DrawCommand struct {
	Program  ProgramID
	Inputs   []Binding
	Uniforms Uniforms
	Target   TextureID
}

// Device is the contract every backend implements.
//
// Devices must be safe for concurrent use, although vidflow itself only
// calls them from the processing stream.
type Device interface {
	// CreateTexture allocates a texture. Allocation failure wraps ErrOutOfMemory.
	CreateTexture(desc *TextureDescriptor) (TextureID, error)

	// WrapExternal binds caller-owned memory as a texture without copying.
	// Draws into the texture are visible in pix after Finish.
	WrapExternal(desc *TextureDescriptor, pix []byte, stride int) (TextureID, error)

	// DestroyTexture releases a texture. Unknown IDs are ignored.
	DestroyTexture(id TextureID)

	// WriteTexture uploads pixel rows of the given stride.
	WriteTexture(id TextureID, pix []byte, stride int) error

	// ReadTexture reads the texture back into dst rows of the given stride.
	ReadTexture(id TextureID, dst []byte, stride int) error

	// CompileProgram builds a program. Failures are configuration errors.
	CompileProgram(desc *ProgramDescriptor) (ProgramID, error)

	// DestroyProgram releases a program. Unknown IDs are ignored.
	DestroyProgram(id ProgramID)

	// Draw renders the program over the whole target.
	Draw(cmd *DrawCommand) error

	// Finish blocks until all issued work has completed.
	Finish() error

	// SupportsTextureCache reports whether WrapExternal is available.
	SupportsTextureCache() bool

	// Close releases all device resources.
	Close()
}
