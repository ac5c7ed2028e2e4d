package filters

import (
	"math"

	"github.com/gogpu/vidflow/gpucore"
	"github.com/gogpu/vidflow/graph"
	"github.com/gogpu/vidflow/processing"
)

// UniformEdgeStrength scales the Sobel gradient magnitude.
const UniformEdgeStrength = "edgeStrength"

const sobelFragmentWGSL = `
struct SobelParams {
    edge_strength: f32,
}

@group(0) @binding(0) var input_texture: texture_2d<f32>;
@group(0) @binding(1) var input_sampler: sampler;
@group(0) @binding(2) var<uniform> params: SobelParams;

const LUMA = vec3<f32>(0.2126, 0.7152, 0.0722);

fn luma_at(uv: vec2<f32>, offset: vec2<f32>) -> f32 {
    let texel = 1.0 / vec2<f32>(textureDimensions(input_texture));
    return dot(textureSample(input_texture, input_sampler, uv + offset * texel).rgb, LUMA);
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    let tl = luma_at(in.uv, vec2<f32>(-1.0, -1.0));
    let t = luma_at(in.uv, vec2<f32>(0.0, -1.0));
    let tr = luma_at(in.uv, vec2<f32>(1.0, -1.0));
    let l = luma_at(in.uv, vec2<f32>(-1.0, 0.0));
    let r = luma_at(in.uv, vec2<f32>(1.0, 0.0));
    let bl = luma_at(in.uv, vec2<f32>(-1.0, 1.0));
    let b = luma_at(in.uv, vec2<f32>(0.0, 1.0));
    let br = luma_at(in.uv, vec2<f32>(1.0, 1.0));
    let h = -tl - 2.0 * t - tr + bl + 2.0 * b + br;
    let v = -bl - 2.0 * l - tl + br + 2.0 * r + tr;
    let mag = length(vec2<f32>(h, v)) * params.edge_strength;
    return vec4<f32>(vec3<f32>(mag), 1.0);
}
`

// SobelProgram writes the luminance gradient magnitude as gray.
func SobelProgram() *gpucore.ProgramDescriptor {
	return &gpucore.ProgramDescriptor{
		Label:  "sobel",
		Source: gpucore.FullscreenVertexWGSL + sobelFragmentWGSL,
		Inputs: 1,
		Kernel: sobelKernel,
	}
}

func luminance(c gpucore.Color) float32 {
	return 0.2126*c.R + 0.7152*c.G + 0.0722*c.B
}

func sobelKernel(dst *gpucore.Surface, src []*gpucore.Surface, u gpucore.Uniforms) {
	strength := u.Float(UniformEdgeStrength, 1)
	in := src[0]
	l := func(x, y int) float32 { return luminance(in.Texel(x, y)) }

	gpucore.Map(dst, func(x, y int) gpucore.Color {
		tl, t, tr := l(x-1, y-1), l(x, y-1), l(x+1, y-1)
		ml, mr := l(x-1, y), l(x+1, y)
		bl, b, br := l(x-1, y+1), l(x, y+1), l(x+1, y+1)
		h := -tl - 2*t - tr + bl + 2*b + br
		v := -bl - 2*ml - tl + br + 2*mr + tr
		mag := float32(math.Hypot(float64(h), float64(v))) * strength
		return gpucore.Color{R: mag, G: mag, B: mag, A: 1}
	})
}

// NewEdgeDetection returns a Sobel edge detection operation.
func NewEdgeDetection(ctx *processing.Context) (*graph.Operation, error) {
	u := gpucore.Uniforms{}
	u.SetFloat(UniformEdgeStrength, 1)
	return graph.NewOperation(ctx, graph.Descriptor{
		Label:    "edge detection",
		Program:  SobelProgram(),
		Uniforms: u,
	})
}
