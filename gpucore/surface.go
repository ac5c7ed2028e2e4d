package gpucore

import (
	"fmt"
	"image"
)

// Color is a normalized RGBA color used by kernels.
type Color struct {
	R, G, B, A float32
}

// Surface is a CPU-side image in one of the texture formats.
// Pixel accessors always speak logical RGBA regardless of storage order.
type Surface struct {
	Width  int
	Height int
	Stride int
	Format TextureFormat
	Pix    []byte
}

// NewSurface allocates a tightly packed surface.
func NewSurface(width, height int, format TextureFormat) *Surface {
	stride := width * format.BytesPerPixel()
	return &Surface{
		Width:  width,
		Height: height,
		Stride: stride,
		Format: format,
		Pix:    make([]byte, stride*height),
	}
}

// At returns the logical RGBA bytes of a pixel. Single-channel surfaces
// read as (r, 0, 0, 255) and two-channel surfaces as (r, g, 0, 255).
func (s *Surface) At(x, y int) [4]uint8 {
	i := y*s.Stride + x*s.Format.BytesPerPixel()
	p := s.Pix[i:]
	switch s.Format {
	case FormatBGRA8:
		return [4]uint8{p[2], p[1], p[0], p[3]}
	case FormatR8:
		return [4]uint8{p[0], 0, 0, 255}
	case FormatRG8:
		return [4]uint8{p[0], p[1], 0, 255}
	default:
		return [4]uint8{p[0], p[1], p[2], p[3]}
	}
}

// Set stores logical RGBA bytes, dropping channels the format lacks.
func (s *Surface) Set(x, y int, c [4]uint8) {
	i := y*s.Stride + x*s.Format.BytesPerPixel()
	p := s.Pix[i:]
	switch s.Format {
	case FormatBGRA8:
		p[0], p[1], p[2], p[3] = c[2], c[1], c[0], c[3]
	case FormatR8:
		p[0] = c[0]
	case FormatRG8:
		p[0], p[1] = c[0], c[1]
	default:
		p[0], p[1], p[2], p[3] = c[0], c[1], c[2], c[3]
	}
}

// Texel returns the normalized color at (x, y), clamping coordinates to
// the surface edge like a clamp-to-edge sampler.
func (s *Surface) Texel(x, y int) Color {
	x = min(max(x, 0), s.Width-1)
	y = min(max(y, 0), s.Height-1)
	c := s.At(x, y)
	return Color{
		R: float32(c[0]) / 255,
		G: float32(c[1]) / 255,
		B: float32(c[2]) / 255,
		A: float32(c[3]) / 255,
	}
}

// SetTexel stores a normalized color, clamping each channel to [0, 1].
func (s *Surface) SetTexel(x, y int, c Color) {
	s.Set(x, y, [4]uint8{unorm(c.R), unorm(c.G), unorm(c.B), unorm(c.A)})
}

func unorm(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(v*255 + 0.5)
	}
}

// CopyTo converts every pixel into dst, which must have the same size.
func (s *Surface) CopyTo(dst *Surface) error {
	if dst.Width != s.Width || dst.Height != s.Height {
		return fmt.Errorf("gpucore: copy %dx%d into %dx%d", s.Width, s.Height, dst.Width, dst.Height)
	}
	if s.Format == dst.Format {
		row := s.Width * s.Format.BytesPerPixel()
		for y := range s.Height {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+row], s.Pix[y*s.Stride:y*s.Stride+row])
		}
		return nil
	}
	for y := range s.Height {
		for x := range s.Width {
			dst.Set(x, y, s.At(x, y))
		}
	}
	return nil
}

// RGBA returns the surface as a standalone *image.RGBA in logical order.
func (s *Surface) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	out := &Surface{Width: s.Width, Height: s.Height, Stride: img.Stride, Format: FormatRGBA8, Pix: img.Pix}
	_ = s.CopyTo(out)
	return img
}

// SurfaceFromRGBA wraps an *image.RGBA without copying.
func SurfaceFromRGBA(img *image.RGBA) *Surface {
	b := img.Bounds()
	return &Surface{
		Width:  b.Dx(),
		Height: b.Dy(),
		Stride: img.Stride,
		Format: FormatRGBA8,
		Pix:    img.Pix[img.PixOffset(b.Min.X, b.Min.Y):],
	}
}
