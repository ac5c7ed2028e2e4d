package processing

import "github.com/gogpu/vidflow/gpucore"

// ColorConversion is a YCbCr to RGB conversion: a column-major 3x3 matrix
// applied after subtracting LumaOffset from luma and 0.5 from chroma.
type ColorConversion struct {
	Matrix     [9]float32
	LumaOffset float32
}

// BT.601 conversions for video range (luma 16..235) and full range sources.
var (
	ColorConversion601VideoRange = ColorConversion{
		Matrix: [9]float32{
			1.164, 1.164, 1.164,
			0.0, -0.392, 2.017,
			1.596, -0.813, 0.0,
		},
		LumaOffset: 16.0 / 255.0,
	}

	ColorConversion601FullRange = ColorConversion{
		Matrix: [9]float32{
			1.0, 1.0, 1.0,
			0.0, -0.343, 1.765,
			1.4, -0.711, 0.0,
		},
	}
)

// Uniforms returns the conversion as YUV program uniforms.
func (c ColorConversion) Uniforms() gpucore.Uniforms {
	u := gpucore.Uniforms{}
	u.Set(UniformColorMatrix, c.Matrix[:]...)
	u.SetFloat(UniformLumaOffset, c.LumaOffset)
	return u
}
