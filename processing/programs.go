package processing

import "github.com/gogpu/vidflow/gpucore"

// Built-in program labels.
const (
	PassthroughLabel   = "passthrough"
	SwizzleLabel       = "swizzle"
	YUVConversionLabel = "yuv_conversion"
)

// Uniform names used by the YUV conversion program.
const (
	UniformColorMatrix = "colorConversionMatrix"
	UniformLumaOffset  = "lumaOffset"
)

const passthroughFragmentWGSL = `
@group(0) @binding(0) var input_texture: texture_2d<f32>;
@group(0) @binding(1) var input_sampler: sampler;

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return textureSample(input_texture, input_sampler, in.uv);
}
`

const swizzleFragmentWGSL = `
@group(0) @binding(0) var input_texture: texture_2d<f32>;
@group(0) @binding(1) var input_sampler: sampler;

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    let color = textureSample(input_texture, input_sampler, in.uv);
    return vec4<f32>(color.b, color.g, color.r, color.a);
}
`

const yuvFragmentWGSL = `
struct ConversionParams {
    color_matrix: mat3x3<f32>,
    luma_offset: f32,
}

@group(0) @binding(0) var luminance_texture: texture_2d<f32>;
@group(0) @binding(1) var chrominance_texture: texture_2d<f32>;
@group(0) @binding(2) var input_sampler: sampler;
@group(0) @binding(3) var<uniform> params: ConversionParams;

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    let luma = textureSample(luminance_texture, input_sampler, in.uv).r - params.luma_offset;
    let chroma = textureSample(chrominance_texture, input_sampler, in.uv).rg - vec2<f32>(0.5, 0.5);
    let rgb = params.color_matrix * vec3<f32>(luma, chroma.x, chroma.y);
    return vec4<f32>(rgb, 1.0);
}
`

// PassthroughProgram copies its single input, applying rotation and scaling.
func PassthroughProgram() *gpucore.ProgramDescriptor {
	return &gpucore.ProgramDescriptor{
		Label:  PassthroughLabel,
		Source: gpucore.FullscreenVertexWGSL + passthroughFragmentWGSL,
		Inputs: 1,
		Kernel: func(dst *gpucore.Surface, src []*gpucore.Surface, _ gpucore.Uniforms) {
			gpucore.Map(dst, func(x, y int) gpucore.Color { return src[0].Texel(x, y) })
		},
	}
}

// SwizzleProgram exchanges red and blue, turning RGBA storage into BGRA.
func SwizzleProgram() *gpucore.ProgramDescriptor {
	return &gpucore.ProgramDescriptor{
		Label:  SwizzleLabel,
		Source: gpucore.FullscreenVertexWGSL + swizzleFragmentWGSL,
		Inputs: 1,
		Kernel: func(dst *gpucore.Surface, src []*gpucore.Surface, _ gpucore.Uniforms) {
			gpucore.Map(dst, func(x, y int) gpucore.Color {
				c := src[0].Texel(x, y)
				return gpucore.Color{R: c.B, G: c.G, B: c.R, A: c.A}
			})
		},
	}
}

// YUVConversionProgram converts a luma plane (input 0) and an interleaved
// chroma plane (input 1) to RGB using the colorConversionMatrix and
// lumaOffset uniforms.
func YUVConversionProgram() *gpucore.ProgramDescriptor {
	return &gpucore.ProgramDescriptor{
		Label:  YUVConversionLabel,
		Source: gpucore.FullscreenVertexWGSL + yuvFragmentWGSL,
		Inputs: 2,
		Kernel: yuvKernel,
	}
}

func yuvKernel(dst *gpucore.Surface, src []*gpucore.Surface, u gpucore.Uniforms) {
	m, ok := u.Get(UniformColorMatrix)
	if !ok || len(m) != 9 {
		m = ColorConversion601FullRange.Matrix[:]
	}
	offset := u.Float(UniformLumaOffset, 0)
	gpucore.Map(dst, func(x, y int) gpucore.Color {
		luma := src[0].Texel(x, y).R - offset
		chroma := src[1].Texel(x, y)
		cb, cr := chroma.R-0.5, chroma.G-0.5
		// Column-major 3x3 times (luma, cb, cr).
		return gpucore.Color{
			R: m[0]*luma + m[3]*cb + m[6]*cr,
			G: m[1]*luma + m[4]*cb + m[7]*cr,
			B: m[2]*luma + m[5]*cb + m[8]*cr,
			A: 1,
		}
	})
}
