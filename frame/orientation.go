package frame

import (
	"fmt"

	"github.com/gogpu/vidflow/gpucore"
)

// Orientation is the rotation of the image content relative to upright.
type Orientation uint8

const (
	// Portrait is upright content.
	Portrait Orientation = iota

	// PortraitUpsideDown is content rotated 180 degrees.
	PortraitUpsideDown

	// LandscapeLeft is content that must be rotated counterclockwise to be upright.
	LandscapeLeft

	// LandscapeRight is content that must be rotated clockwise to be upright.
	LandscapeRight
)

// String returns the orientation name.
func (o Orientation) String() string {
	switch o {
	case Portrait:
		return "portrait"
	case PortraitUpsideDown:
		return "portrait-upside-down"
	case LandscapeLeft:
		return "landscape-left"
	case LandscapeRight:
		return "landscape-right"
	default:
		return fmt.Sprintf("Orientation(%d)", o)
	}
}

// quarterTurns returns the clockwise quarter turns that bring o upright.
func (o Orientation) quarterTurns() int {
	switch o {
	case LandscapeRight:
		return 1
	case PortraitUpsideDown:
		return 2
	case LandscapeLeft:
		return 3
	default:
		return 0
	}
}

// RotationNeeded returns the rotation that maps content stored in o to the
// target orientation.
func (o Orientation) RotationNeeded(target Orientation) gpucore.Rotation {
	switch (o.quarterTurns() - target.quarterTurns() + 4) % 4 {
	case 1:
		return gpucore.RotationRight
	case 2:
		return gpucore.Rotation180
	case 3:
		return gpucore.RotationLeft
	default:
		return gpucore.RotationNone
	}
}

// Size is a width and height in pixels.
type Size struct {
	Width  int
	Height int
}

// String returns "WxH".
func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Empty reports whether either dimension is not positive.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// SizeForTarget returns the size of content stored in o once rotated to
// the target orientation.
func (o Orientation) SizeForTarget(s Size, target Orientation) Size {
	if o.RotationNeeded(target).SwapsDimensions() {
		return Size{Width: s.Height, Height: s.Width}
	}
	return s
}
