package gpucore

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Kernel is the CPU form of a program's fragment stage. It receives the
// inputs already sampled into RGBA8 surfaces of the destination size and
// writes every pixel of dst.
type Kernel func(dst *Surface, src []*Surface, u Uniforms)

// Map runs fn for every pixel of dst and stores the returned color.
func Map(dst *Surface, fn func(x, y int) Color) {
	for y := range dst.Height {
		for x := range dst.Width {
			dst.SetTexel(x, y, fn(x, y))
		}
	}
}

// Execute runs kernel the way a GPU would run the program's draw: every
// input is rotated, resampled to the size of dst with bilinear filtering,
// and the kernel output is stored in dst's format.
func Execute(kernel Kernel, inputs []*Surface, rotations []Rotation, dst *Surface, u Uniforms) error {
	if kernel == nil {
		return fmt.Errorf("%w: nil kernel", ErrInvalidProgram)
	}
	if len(rotations) != 0 && len(rotations) != len(inputs) {
		return fmt.Errorf("gpucore: %d rotations for %d inputs", len(rotations), len(inputs))
	}

	samples := make([]*Surface, len(inputs))
	for i, in := range inputs {
		rot := RotationNone
		if len(rotations) > 0 {
			rot = rotations[i]
		}
		samples[i] = sample(in, rot, dst.Width, dst.Height)
	}

	out := dst
	if dst.Format != FormatRGBA8 {
		out = NewSurface(dst.Width, dst.Height, FormatRGBA8)
	}
	if u == nil {
		u = Uniforms{}
	}
	kernel(out, samples, u)
	if out != dst {
		return out.CopyTo(dst)
	}
	return nil
}

// sample expands, rotates and resamples src into an RGBA8 surface of
// width x height.
func sample(src *Surface, rot Rotation, width, height int) *Surface {
	img := rotate(src.RGBA(), rot)
	if b := img.Bounds(); b.Dx() == width && b.Dy() == height {
		return SurfaceFromRGBA(img)
	}
	scaled := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Src, nil)
	return SurfaceFromRGBA(scaled)
}

func rotate(src *image.RGBA, rot Rotation) *image.RGBA {
	if rot == RotationNone {
		return src
	}
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dw, dh := w, h
	if rot.SwapsDimensions() {
		dw, dh = h, w
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	for y := range dh {
		for x := range dw {
			var sx, sy int
			switch rot {
			case RotationRight:
				sx, sy = y, h-1-x
			case RotationLeft:
				sx, sy = w-1-y, x
			default:
				sx, sy = w-1-x, h-1-y
			}
			si := src.PixOffset(sx, sy)
			di := dst.PixOffset(x, y)
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
	return dst
}
