package capture

import (
	"fmt"
	"time"
)

// DropReason says why a frame never reached the graph.
type DropReason string

const (
	// DropBusy is a frame delivered while the previous one was still being
	// converted. It is the expected steady state of a slow graph.
	DropBusy DropReason = "busy"

	// DropStopped is a frame delivered while the source was stopped.
	DropStopped DropReason = "stopped"

	// DropAllocation is a frame lost to a pool allocation failure.
	DropAllocation DropReason = "allocation"

	// DropInvalid is a frame whose planes did not match its format.
	DropInvalid DropReason = "invalid"
)

// Observer receives passive per-frame accounting. Calls are made from the
// camera goroutine or the processing stream and must return quickly.
type Observer interface {
	// FrameProcessed is called once a frame was pushed to the graph, with
	// the time from delivery to push.
	FrameProcessed(latency time.Duration)

	// FrameDropped is called for every frame that was not pushed.
	FrameDropped(reason DropReason)
}

// DefaultFramesToIgnore is the number of initial frames left out of the
// benchmark average while the camera warms up.
const DefaultFramesToIgnore = 5

// Stats is a snapshot of capture accounting.
type Stats struct {
	Delivered uint64
	Processed uint64
	Dropped   map[DropReason]uint64

	// AverageFrameTime is the mean delivery-to-push time of processed
	// frames after the warm-up frames. Zero until benchmarking has data.
	AverageFrameTime time.Duration

	// FPS is the number of frames processed in the last full second.
	FPS int

	LastDelivery time.Time
}

// DroppedTotal returns the number of dropped frames for all reasons.
func (s Stats) DroppedTotal() uint64 {
	var n uint64
	for _, v := range s.Dropped {
		n += v
	}
	return n
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Capture[%d delivered, %d processed, %d dropped, avg %v, %d fps]",
		s.Delivered, s.Processed, s.DroppedTotal(), s.AverageFrameTime, s.FPS)
}

// accounting holds the mutable counters behind Stats. Guarded by Source.statsMu.
type accounting struct {
	delivered    uint64
	processed    uint64
	dropped      map[DropReason]uint64
	benchFrames  uint64
	benchTotal   time.Duration
	fps          int
	sinceCheck   int
	lastCheck    time.Time
	lastDelivery time.Time
}

func (a *accounting) reset(now time.Time) {
	a.processed = 0
	a.benchFrames = 0
	a.benchTotal = 0
	a.sinceCheck = 0
	a.lastCheck = now
}

func (a *accounting) snapshot() Stats {
	s := Stats{
		Delivered:    a.delivered,
		Processed:    a.processed,
		Dropped:      make(map[DropReason]uint64, len(a.dropped)),
		FPS:          a.fps,
		LastDelivery: a.lastDelivery,
	}
	for k, v := range a.dropped {
		s.Dropped[k] = v
	}
	if a.benchFrames > 0 {
		s.AverageFrameTime = a.benchTotal / time.Duration(a.benchFrames)
	}
	return s
}
