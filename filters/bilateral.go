package filters

import (
	"math"

	"github.com/gogpu/vidflow/gpucore"
	"github.com/gogpu/vidflow/graph"
	"github.com/gogpu/vidflow/processing"
)

// Uniform names of the bilateral blur program.
const (
	UniformDistanceNormalizationFactor = "distanceNormalizationFactor"
	UniformDirection                   = "direction"
)

// DefaultDistanceNormalizationFactor weights color distance in the
// bilateral blur. Larger values preserve more edges.
const DefaultDistanceNormalizationFactor = 8

// bilateralWeights are the spatial weights of the center tap and the taps
// one to four texels away.
var bilateralWeights = [5]float32{0.18, 0.15, 0.12, 0.09, 0.05}

const bilateralFragmentWGSL = `
struct BilateralParams {
    direction: vec2<f32>,
    distance_normalization_factor: f32,
}

@group(0) @binding(0) var input_texture: texture_2d<f32>;
@group(0) @binding(1) var input_sampler: sampler;
@group(0) @binding(2) var<uniform> params: BilateralParams;

const WEIGHTS = array<f32, 5>(0.18, 0.15, 0.12, 0.09, 0.05);

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    let step = params.direction / vec2<f32>(textureDimensions(input_texture));
    let center = textureSample(input_texture, input_sampler, in.uv);
    var sum = center * WEIGHTS[0];
    var total = WEIGHTS[0];
    for (var i = 1; i < 5; i++) {
        for (var s = -1; s <= 1; s += 2) {
            let c = textureSample(input_texture, input_sampler, in.uv + step * f32(i * s));
            let d = min(distance(center, c) * params.distance_normalization_factor, 1.0);
            let w = WEIGHTS[i] * (1.0 - d);
            total += w;
            sum += c * w;
        }
    }
    return sum / total;
}
`

// BilateralProgram is one pass of the edge preserving blur along the
// direction uniform, (1, 0) or (0, 1).
func BilateralProgram() *gpucore.ProgramDescriptor {
	return &gpucore.ProgramDescriptor{
		Label:  "bilateral",
		Source: gpucore.FullscreenVertexWGSL + bilateralFragmentWGSL,
		Inputs: 1,
		Kernel: bilateralKernel,
	}
}

func bilateralKernel(dst *gpucore.Surface, src []*gpucore.Surface, u gpucore.Uniforms) {
	dx, dy := 1, 0
	if d, ok := u.Get(UniformDirection); ok && len(d) == 2 {
		dx, dy = int(d[0]), int(d[1])
	}
	factor := u.Float(UniformDistanceNormalizationFactor, DefaultDistanceNormalizationFactor)
	in := src[0]

	gpucore.Map(dst, func(x, y int) gpucore.Color {
		center := in.Texel(x, y)
		w0 := bilateralWeights[0]
		sum := scale(center, w0)
		total := w0
		for i := 1; i < len(bilateralWeights); i++ {
			for _, s := range [2]int{-1, 1} {
				c := in.Texel(x+dx*i*s, y+dy*i*s)
				d := min(colorDistance(center, c)*factor, 1)
				w := bilateralWeights[i] * (1 - d)
				total += w
				sum = add(sum, scale(c, w))
			}
		}
		return scale(sum, 1/total)
	})
}

func colorDistance(a, b gpucore.Color) float32 {
	dr, dg, db, da := a.R-b.R, a.G-b.G, a.B-b.B, a.A-b.A
	return float32(math.Sqrt(float64(dr*dr + dg*dg + db*db + da*da)))
}

func scale(c gpucore.Color, f float32) gpucore.Color {
	return gpucore.Color{R: c.R * f, G: c.G * f, B: c.B * f, A: c.A * f}
}

func add(a, b gpucore.Color) gpucore.Color {
	return gpucore.Color{R: a.R + b.R, G: a.G + b.G, B: a.B + b.B, A: a.A + b.A}
}

// NewBilateralBlur returns a two pass (horizontal, vertical) bilateral
// blur group. The group forwards the distanceNormalizationFactor uniform
// to both passes.
func NewBilateralBlur(ctx *processing.Context, distanceNormalizationFactor float32) (*graph.Group, error) {
	passes := make([]graph.Node, 2)
	params := make([]graph.Parameterized, 2)
	for i, dir := range [2][2]float32{{1, 0}, {0, 1}} {
		u := gpucore.Uniforms{}
		u.Set(UniformDirection, dir[0], dir[1])
		u.SetFloat(UniformDistanceNormalizationFactor, distanceNormalizationFactor)
		op, err := graph.NewOperation(ctx, graph.Descriptor{
			Label:    "bilateral pass",
			Program:  BilateralProgram(),
			Uniforms: u,
		})
		if err != nil {
			return nil, err
		}
		passes[i], params[i] = op, op
	}

	g := graph.NewGroup("bilateral")
	err := g.Configure(func(input graph.Source, output graph.Consumer) error {
		return graph.Chain(input, passes, output)
	})
	if err != nil {
		return nil, err
	}
	g.Forward(UniformDistanceNormalizationFactor, params...)
	return g, nil
}
