package filters

import (
	"sync"

	"github.com/gogpu/vidflow/gpucore"
	"github.com/gogpu/vidflow/graph"
	"github.com/gogpu/vidflow/processing"
)

// Uniform names of the color matrix program.
const (
	UniformColorMatrix = "colorMatrix"
	UniformColorOffset = "colorOffset"
)

// ColorMatrix is a 4x5 color transformation in row-major order:
//
//	[R']   [m00 m01 m02 m03 m04]   [R]
//	[G'] = [m10 m11 m12 m13 m14] * [G]
//	[B']   [m20 m21 m22 m23 m24]   [B]
//	[A']   [m30 m31 m32 m33 m34]   [A]
//	                               [1]
//
// Channels are normalized to [0, 1]; the fifth column is an offset in the
// same unit. Results are clamped.
type ColorMatrix [20]float32

// IdentityMatrix returns the matrix that leaves colors unchanged.
func IdentityMatrix() ColorMatrix {
	return ColorMatrix{
		1, 0, 0, 0, 0,
		0, 1, 0, 0, 0,
		0, 0, 1, 0, 0,
		0, 0, 0, 1, 0,
	}
}

// BrightnessMatrix adds v to every color channel.
// v: -1 = black, 0 = unchanged, 1 = white
func BrightnessMatrix(v float32) ColorMatrix {
	return ColorMatrix{
		1, 0, 0, 0, v,
		0, 1, 0, 0, v,
		0, 0, 1, 0, v,
		0, 0, 0, 1, 0,
	}
}

// SaturationMatrix blends between luminance and the original color.
// s: 0 = grayscale, 1 = unchanged, 2 = oversaturated
func SaturationMatrix(s float32) ColorMatrix {
	// Rec. 709 luminance weights
	const (
		lumR = 0.2126
		lumG = 0.7152
		lumB = 0.0722
	)
	inv := 1 - s
	return ColorMatrix{
		lumR*inv + s, lumG * inv, lumB * inv, 0, 0,
		lumR * inv, lumG*inv + s, lumB * inv, 0, 0,
		lumR * inv, lumG * inv, lumB*inv + s, 0, 0,
		0, 0, 0, 1, 0,
	}
}

// ContrastMatrix scales colors away from mid-gray.
// c: 0 = gray, 1 = unchanged, 2 = high contrast
func ContrastMatrix(c float32) ColorMatrix {
	offset := 0.5 * (1 - c)
	return ColorMatrix{
		c, 0, 0, 0, offset,
		0, c, 0, 0, offset,
		0, 0, c, 0, offset,
		0, 0, 0, 1, 0,
	}
}

// Multiply returns the composition of m and other. The result applies
// other first, then m.
func (m ColorMatrix) Multiply(other ColorMatrix) ColorMatrix {
	var r ColorMatrix
	for row := range 4 {
		for col := range 4 {
			var sum float32
			for k := range 4 {
				sum += m[row*5+k] * other[k*5+col]
			}
			r[row*5+col] = sum
		}
		r[row*5+4] = m[row*5+0]*other[4] + m[row*5+1]*other[9] +
			m[row*5+2]*other[14] + m[row*5+3]*other[19] + m[row*5+4]
	}
	return r
}

// Apply transforms one color. The result is not clamped.
func (m ColorMatrix) Apply(c gpucore.Color) gpucore.Color {
	return gpucore.Color{
		R: m[0]*c.R + m[1]*c.G + m[2]*c.B + m[3]*c.A + m[4],
		G: m[5]*c.R + m[6]*c.G + m[7]*c.B + m[8]*c.A + m[9],
		B: m[10]*c.R + m[11]*c.G + m[12]*c.B + m[13]*c.A + m[14],
		A: m[15]*c.R + m[16]*c.G + m[17]*c.B + m[18]*c.A + m[19],
	}
}

// Uniforms returns the matrix as program uniforms: four rows of four and
// the offset column.
func (m ColorMatrix) Uniforms() gpucore.Uniforms {
	u := gpucore.Uniforms{}
	rows := make([]float32, 0, 16)
	offset := make([]float32, 0, 4)
	for row := range 4 {
		rows = append(rows, m[row*5:row*5+4]...)
		offset = append(offset, m[row*5+4])
	}
	u.Set(UniformColorMatrix, rows...)
	u.Set(UniformColorOffset, offset...)
	return u
}

const colorMatrixFragmentWGSL = `
struct ColorMatrixParams {
    rows: array<vec4<f32>, 4>,
    offset: vec4<f32>,
}

@group(0) @binding(0) var input_texture: texture_2d<f32>;
@group(0) @binding(1) var input_sampler: sampler;
@group(0) @binding(2) var<uniform> params: ColorMatrixParams;

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    let c = textureSample(input_texture, input_sampler, in.uv);
    let out = vec4<f32>(
        dot(params.rows[0], c),
        dot(params.rows[1], c),
        dot(params.rows[2], c),
        dot(params.rows[3], c),
    ) + params.offset;
    return clamp(out, vec4<f32>(0.0), vec4<f32>(1.0));
}
`

// ColorMatrixProgram applies the colorMatrix and colorOffset uniforms.
func ColorMatrixProgram() *gpucore.ProgramDescriptor {
	return &gpucore.ProgramDescriptor{
		Label:  "color_matrix",
		Source: gpucore.FullscreenVertexWGSL + colorMatrixFragmentWGSL,
		Inputs: 1,
		Kernel: colorMatrixKernel,
	}
}

func colorMatrixKernel(dst *gpucore.Surface, src []*gpucore.Surface, u gpucore.Uniforms) {
	m := IdentityMatrix()
	if rows, ok := u.Get(UniformColorMatrix); ok && len(rows) == 16 {
		for row := range 4 {
			copy(m[row*5:row*5+4], rows[row*4:row*4+4])
		}
	}
	if off, ok := u.Get(UniformColorOffset); ok && len(off) == 4 {
		for row := range 4 {
			m[row*5+4] = off[row]
		}
	}
	gpucore.Map(dst, func(x, y int) gpucore.Color {
		return m.Apply(src[0].Texel(x, y))
	})
}

// Adjustment is a color matrix operation driven by a single named
// parameter, such as brightness or saturation.
type Adjustment struct {
	*graph.Operation

	name   string
	matrix func(float32) ColorMatrix

	mu    sync.Mutex
	value float32
}

// NewColorMatrix returns an operation applying a fixed matrix.
func NewColorMatrix(ctx *processing.Context, m ColorMatrix) (*graph.Operation, error) {
	return graph.NewOperation(ctx, graph.Descriptor{
		Label:    "color matrix",
		Program:  ColorMatrixProgram(),
		Uniforms: m.Uniforms(),
	})
}

func newAdjustment(ctx *processing.Context, name string, v float32, matrix func(float32) ColorMatrix) (*Adjustment, error) {
	op, err := graph.NewOperation(ctx, graph.Descriptor{
		Label:    name,
		Program:  ColorMatrixProgram(),
		Uniforms: matrix(v).Uniforms(),
	})
	if err != nil {
		return nil, err
	}
	return &Adjustment{Operation: op, name: name, matrix: matrix, value: v}, nil
}

// NewBrightness returns an adjustment adding v to every channel.
func NewBrightness(ctx *processing.Context, v float32) (*Adjustment, error) {
	return newAdjustment(ctx, "brightness", v, BrightnessMatrix)
}

// NewSaturation returns a saturation adjustment.
func NewSaturation(ctx *processing.Context, v float32) (*Adjustment, error) {
	return newAdjustment(ctx, "saturation", v, SaturationMatrix)
}

// NewContrast returns a contrast adjustment.
func NewContrast(ctx *processing.Context, v float32) (*Adjustment, error) {
	return newAdjustment(ctx, "contrast", v, ContrastMatrix)
}

// Name returns the parameter name.
func (a *Adjustment) Name() string { return a.name }

// Value returns the current parameter value.
func (a *Adjustment) Value() float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.value
}

// Set changes the parameter value.
func (a *Adjustment) Set(v float32) {
	a.mu.Lock()
	a.value = v
	a.mu.Unlock()
	for name, val := range a.matrix(v).Uniforms() {
		a.Operation.SetUniform(name, val...)
	}
}

// SetUniform treats the parameter name as a call to Set; other names are
// passed to the program.
func (a *Adjustment) SetUniform(name string, v ...float32) {
	if name == a.name && len(v) > 0 {
		a.Set(v[0])
		return
	}
	a.Operation.SetUniform(name, v...)
}

// NewHSB returns a group applying a brightness then a saturation
// adjustment. The group forwards the "brightness" and "saturation"
// parameters.
func NewHSB(ctx *processing.Context, brightness, saturation float32) (*graph.Group, error) {
	b, err := NewBrightness(ctx, brightness)
	if err != nil {
		return nil, err
	}
	s, err := NewSaturation(ctx, saturation)
	if err != nil {
		return nil, err
	}
	g := graph.NewGroup("hsb")
	err = g.Configure(func(input graph.Source, output graph.Consumer) error {
		return graph.Chain(input, []graph.Node{b, s}, output)
	})
	if err != nil {
		return nil, err
	}
	g.Forward(b.Name(), b)
	g.Forward(s.Name(), s)
	return g, nil
}

var _ graph.Parameterized = (*Adjustment)(nil)
