//go:build !gstreamer

package main

import (
	"errors"

	"github.com/gogpu/vidflow/capture"
)

var errNoGStreamer = errors.New("gstreamer camera not built in, rebuild with -tags gstreamer")

func newGStreamerCamera(config) (capture.Camera, error) {
	return nil, errNoGStreamer
}
