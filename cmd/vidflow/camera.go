package main

import (
	"github.com/gogpu/vidflow/capture"
)

func newCamera(cfg config) (capture.Camera, error) {
	if cfg.Camera == "gstreamer" {
		return newGStreamerCamera(cfg)
	}
	cam, err := capture.NewPatternCamera(capture.PatternConfig{
		Width:  cfg.Width,
		Height: cfg.Height,
		FPS:    cfg.FPS,
		Format: cfg.Format,
	})
	if err != nil {
		return nil, err
	}
	return cam, nil
}
