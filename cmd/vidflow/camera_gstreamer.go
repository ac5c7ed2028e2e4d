//go:build gstreamer

package main

import (
	"github.com/gogpu/vidflow/capture"
	"github.com/gogpu/vidflow/capture/gstreamer"
)

func newGStreamerCamera(cfg config) (capture.Camera, error) {
	cam, err := gstreamer.New(gstreamer.Config{
		Device: cfg.Device,
		Width:  cfg.Width,
		Height: cfg.Height,
		FPS:    cfg.FPS,
	})
	if err != nil {
		return nil, err
	}
	return cam, nil
}
