package capture

import (
	"context"
	"fmt"

	"github.com/gogpu/vidflow/frame"
)

// Location is the physical position of a camera.
type Location uint8

const (
	LocationBack Location = iota
	LocationFront
	LocationExternal
)

// String returns the location name.
func (l Location) String() string {
	switch l {
	case LocationBack:
		return "back"
	case LocationFront:
		return "front"
	case LocationExternal:
		return "external"
	default:
		return fmt.Sprintf("Location(%d)", l)
	}
}

// DeliverFunc receives camera frames. It is called from the camera's own
// goroutine and must not block.
type DeliverFunc func(raw *RawFrame, ts frame.Timestamp)

// Camera is a frame producer. Start begins delivering frames to deliver
// until ctx is done or Stop is called.
type Camera interface {
	Location() Location
	Start(ctx context.Context, deliver DeliverFunc) error
	Stop() error
}
