package capture

import (
	"github.com/gogpu/vidflow/frame"
)

// AudioSample is one buffer of interleaved PCM samples.
type AudioSample struct {
	Data       []byte
	SampleRate int
	Channels   int
	Timestamp  frame.Timestamp
}

// AudioTarget consumes audio delivered alongside the video frames, usually
// an encoder's audio track.
type AudioTarget interface {
	// ActivateAudioTrack is called when the target is attached.
	ActivateAudioTrack()

	// ProcessAudio receives one sample buffer on the audio goroutine.
	ProcessAudio(sample AudioSample)
}

// SetAudioTarget attaches t to the audio lane, or detaches the current
// target when t is nil.
func (s *Source) SetAudioTarget(t AudioTarget) {
	s.mu.Lock()
	s.audio = t
	s.mu.Unlock()
	if t != nil {
		t.ActivateAudioTrack()
	}
}

// OnAudioDelivered forwards sample to the audio target. Audio runs on its
// own lane: it is neither gated nor serialized with video frames.
// Samples arriving without a target are discarded.
func (s *Source) OnAudioDelivered(sample AudioSample) {
	s.mu.Lock()
	t := s.audio
	s.mu.Unlock()
	if t == nil {
		return
	}
	t.ProcessAudio(sample)
}
