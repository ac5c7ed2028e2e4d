package filters

import (
	"math"
	"sync"

	"github.com/gogpu/vidflow/gpucore"
	"github.com/gogpu/vidflow/graph"
	"github.com/gogpu/vidflow/processing"
)

// UniformSmoothDegree is how much of the blurred image replaces skin.
const UniformSmoothDegree = "smoothDegree"

// Beautify defaults.
const (
	DefaultIntensity       = 0.5
	beautifyDistanceFactor = 4
	beautifyBrightness     = 0.05
	beautifySaturation     = 1.1
	beautifyCurveLift      = 0.2
)

const beautifyFragmentWGSL = `
struct BeautifyParams {
    smooth_degree: f32,
}

@group(0) @binding(0) var bilateral_texture: texture_2d<f32>;
@group(0) @binding(1) var edge_texture: texture_2d<f32>;
@group(0) @binding(2) var origin_texture: texture_2d<f32>;
@group(0) @binding(3) var input_sampler: sampler;
@group(0) @binding(4) var<uniform> params: BeautifyParams;

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    let bilateral = textureSample(bilateral_texture, input_sampler, in.uv);
    let edge = textureSample(edge_texture, input_sampler, in.uv);
    let origin = textureSample(origin_texture, input_sampler, in.uv);
    let r = origin.r;
    let g = origin.g;
    let b = origin.b;
    var smoothed = origin;
    if (edge.r < 0.2 && r > 0.3725 && g > 0.1568 && b > 0.0784 && r > b &&
        (max(max(r, g), b) - min(min(r, g), b)) > 0.0588 && abs(r - g) > 0.0588) {
        smoothed = (1.0 - params.smooth_degree) * (origin - bilateral) + bilateral;
    }
    let curved = log(vec3<f32>(1.0) + 0.2 * smoothed.rgb) / log(1.2);
    return vec4<f32>(curved, smoothed.a);
}
`

// BeautifyCombinationProgram blends the bilateral blur (input 0) into the
// original (input 2) where the original looks like skin and the edge map
// (input 1) is flat, then lifts the tone curve.
func BeautifyCombinationProgram() *gpucore.ProgramDescriptor {
	return &gpucore.ProgramDescriptor{
		Label:  "beautify_combination",
		Source: gpucore.FullscreenVertexWGSL + beautifyFragmentWGSL,
		Inputs: 3,
		Kernel: beautifyKernel,
	}
}

// isSkin reports whether c falls in the skin tone range.
func isSkin(c gpucore.Color) bool {
	r, g, b := c.R, c.G, c.B
	spread := max(r, g, b) - min(r, g, b)
	return r > 0.3725 && g > 0.1568 && b > 0.0784 && r > b &&
		spread > 0.0588 && abs32(r-g) > 0.0588
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func toneCurve(v float32) float32 {
	return float32(math.Log(1+beautifyCurveLift*float64(v)) / math.Log(1+beautifyCurveLift))
}

func beautifyKernel(dst *gpucore.Surface, src []*gpucore.Surface, u gpucore.Uniforms) {
	degree := u.Float(UniformSmoothDegree, DefaultIntensity)
	gpucore.Map(dst, func(x, y int) gpucore.Color {
		bilateral := src[0].Texel(x, y)
		edge := src[1].Texel(x, y)
		origin := src[2].Texel(x, y)

		out := origin
		if edge.R < 0.2 && isSkin(origin) {
			out = add(scale(add(origin, scale(bilateral, -1)), 1-degree), bilateral)
		}
		return gpucore.Color{R: toneCurve(out.R), G: toneCurve(out.G), B: toneCurve(out.B), A: out.A}
	})
}

// NewBeautifyCombination returns the three input combination operation
// with smoothDegree set to DefaultIntensity.
func NewBeautifyCombination(ctx *processing.Context) (*graph.Operation, error) {
	u := gpucore.Uniforms{}
	u.SetFloat(UniformSmoothDegree, DefaultIntensity)
	return graph.NewOperation(ctx, graph.Descriptor{
		Label:    "beautify combination",
		Program:  BeautifyCombinationProgram(),
		Uniforms: u,
	})
}

// Beautify smooths skin while keeping edges:
//
//	input -> bilateral blur -> combination slot 0
//	input -> edge detection -> combination slot 1
//	input ------------------> combination slot 2
//	combination -> brightness/saturation -> output
type Beautify struct {
	*graph.Group

	combination *graph.Operation

	mu        sync.Mutex
	intensity float32
}

// NewBeautify builds the Beautify group.
func NewBeautify(ctx *processing.Context) (*Beautify, error) {
	bilateral, err := NewBilateralBlur(ctx, beautifyDistanceFactor)
	if err != nil {
		return nil, err
	}
	edges, err := NewEdgeDetection(ctx)
	if err != nil {
		return nil, err
	}
	combination, err := NewBeautifyCombination(ctx)
	if err != nil {
		return nil, err
	}
	hsb, err := NewHSB(ctx, beautifyBrightness, beautifySaturation)
	if err != nil {
		return nil, err
	}

	b := &Beautify{
		Group:       graph.NewGroup("beautify"),
		combination: combination,
		intensity:   DefaultIntensity,
	}
	err = b.Configure(func(input graph.Source, output graph.Consumer) error {
		if _, err := graph.Connect(input, bilateral); err != nil {
			return err
		}
		if _, err := graph.Connect(input, edges); err != nil {
			return err
		}
		if err := graph.ConnectAt(bilateral, combination, 0); err != nil {
			return err
		}
		if err := graph.ConnectAt(edges, combination, 1); err != nil {
			return err
		}
		if err := graph.ConnectAt(input, combination, 2); err != nil {
			return err
		}
		return graph.Chain(combination, []graph.Node{hsb}, output)
	})
	if err != nil {
		return nil, err
	}
	b.Forward(UniformSmoothDegree, combination)
	b.Forward(UniformDistanceNormalizationFactor, bilateral)
	return b, nil
}

// Combination returns the inner combination operation.
func (b *Beautify) Combination() *graph.Operation { return b.combination }

// Intensity returns the smoothing intensity.
func (b *Beautify) Intensity() float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.intensity
}

// SetIntensity sets the smoothing intensity, 0 to 1.
func (b *Beautify) SetIntensity(v float32) {
	b.mu.Lock()
	b.intensity = v
	b.mu.Unlock()
	b.SetUniform(UniformSmoothDegree, v)
}
