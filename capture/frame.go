package capture

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidFrame is returned for raw frames whose planes do not match
// their format and size.
var ErrInvalidFrame = errors.New("capture: invalid frame")

// PixelFormat is the layout of a raw camera frame.
type PixelFormat uint8

const (
	// PixelFormatBGRA is one packed 8-bit BGRA plane.
	PixelFormatBGRA PixelFormat = iota

	// PixelFormatNV12VideoRange is a luma plane followed by an interleaved
	// half resolution CbCr plane, luma in 16..235.
	PixelFormatNV12VideoRange

	// PixelFormatNV12FullRange is NV12 with luma in 0..255.
	PixelFormatNV12FullRange
)

// String returns the format name.
func (f PixelFormat) String() string {
	switch f {
	case PixelFormatBGRA:
		return "BGRA"
	case PixelFormatNV12VideoRange:
		return "NV12 video range"
	case PixelFormatNV12FullRange:
		return "NV12 full range"
	default:
		return fmt.Sprintf("PixelFormat(%d)", f)
	}
}

// Planar reports whether the format carries separate luma and chroma planes.
func (f PixelFormat) Planar() bool {
	return f == PixelFormatNV12VideoRange || f == PixelFormatNV12FullRange
}

// Plane is one plane of pixel rows.
type Plane struct {
	Data   []byte
	Stride int
}

// RawFrame is a frame as delivered by a camera. The memory stays owned by
// the camera until Release.
type RawFrame struct {
	Format PixelFormat
	Width  int
	Height int
	Planes []Plane

	// OnRelease is called once when the frame is released.
	OnRelease func()

	once sync.Once
}

// Release hands the frame memory back to the camera. Only the first call
// has an effect.
func (f *RawFrame) Release() {
	f.once.Do(func() {
		if f.OnRelease != nil {
			f.OnRelease()
		}
	})
}

// Validate checks the planes against the format and size.
func (f *RawFrame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidFrame, f.Width, f.Height)
	}
	type want struct{ row, rows int }
	var planes []want
	switch f.Format {
	case PixelFormatBGRA:
		planes = []want{{f.Width * 4, f.Height}}
	case PixelFormatNV12VideoRange, PixelFormatNV12FullRange:
		if f.Width%2 != 0 || f.Height%2 != 0 {
			return fmt.Errorf("%w: %v needs even dimensions, got %dx%d", ErrInvalidFrame, f.Format, f.Width, f.Height)
		}
		planes = []want{{f.Width, f.Height}, {f.Width, f.Height / 2}}
	default:
		return fmt.Errorf("%w: unknown format %v", ErrInvalidFrame, f.Format)
	}
	if len(f.Planes) != len(planes) {
		return fmt.Errorf("%w: %v has %d planes, got %d", ErrInvalidFrame, f.Format, len(planes), len(f.Planes))
	}
	for i, w := range planes {
		p := f.Planes[i]
		if p.Stride < w.row {
			return fmt.Errorf("%w: plane %d stride %d below %d", ErrInvalidFrame, i, p.Stride, w.row)
		}
		if need := p.Stride*(w.rows-1) + w.row; len(p.Data) < need {
			return fmt.Errorf("%w: plane %d has %d bytes, need %d", ErrInvalidFrame, i, len(p.Data), need)
		}
	}
	return nil
}
