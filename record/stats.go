package record

import (
	"fmt"
	"time"

	"github.com/gogpu/vidflow/frame"
)

// SkipReason says why a delivered frame produced no sample.
type SkipReason string

const (
	// SkipNotRecording is a frame delivered while the sink was stopped.
	SkipNotRecording SkipReason = "not_recording"

	// SkipNoTimestamp is a frame without a presentation timestamp, such as
	// a still picture.
	SkipNoTimestamp SkipReason = "no_timestamp"

	// SkipDuplicate is a frame whose timestamp is not after the previously
	// accepted one.
	SkipDuplicate SkipReason = "duplicate"

	// SkipNoBuffer is a frame for which no destination buffer was free.
	SkipNoBuffer SkipReason = "no_buffer"

	// SkipRender is a frame whose swizzle pass or read-back failed.
	SkipRender SkipReason = "render"
)

// Observer receives passive per-sample accounting on the processing
// stream. Calls must return quickly.
type Observer interface {
	SampleWritten(s Sample)
	SampleSkipped(reason SkipReason)
}

type nopObserver struct{}

func (nopObserver) SampleWritten(Sample)     {}
func (nopObserver) SampleSkipped(SkipReason) {}

// Stats is a snapshot of sink accounting for the current or last session.
type Stats struct {
	Written       uint64
	Skipped       map[SkipReason]uint64
	LastTimestamp frame.Timestamp
	Elapsed       time.Duration
}

// SkippedTotal returns the number of skipped frames for all reasons.
func (s Stats) SkippedTotal() uint64 {
	var n uint64
	for _, v := range s.Skipped {
		n += v
	}
	return n
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Record[%d written, %d skipped, last %v, elapsed %v]",
		s.Written, s.SkippedTotal(), s.LastTimestamp, s.Elapsed)
}
