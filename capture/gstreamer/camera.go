// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build gstreamer

// Package gstreamer provides a capture.Camera backed by a GStreamer
// pipeline ending in an appsink that produces NV12 frames.
//
// The package needs cgo and the GStreamer development libraries and is
// only built with the gstreamer build tag.
package gstreamer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/gogpu/vidflow"
	"github.com/gogpu/vidflow/capture"
	"github.com/gogpu/vidflow/frame"
)

// TestSource selects the GStreamer test pattern instead of a device.
const TestSource = "test"

// Config configures a Camera.
type Config struct {
	// Device is the V4L2 device path, or TestSource. Defaults to /dev/video0.
	Device string

	// Width and Height are the negotiated frame size. Width must be a
	// multiple of 4 so NV12 rows are unpadded. Defaults to 640x480.
	Width  int
	Height int

	// FPS defaults to 30.
	FPS int

	Location capture.Location
}

func (c *Config) applyDefaults() {
	if c.Device == "" {
		c.Device = "/dev/video0"
	}
	if c.Width <= 0 {
		c.Width = 640
	}
	if c.Height <= 0 {
		c.Height = 480
	}
	if c.FPS <= 0 {
		c.FPS = 30
	}
}

// Camera delivers NV12 video range frames from a GStreamer pipeline:
//
//	v4l2src → videoconvert → videoscale → capsfilter(NV12) → appsink
type Camera struct {
	cfg Config

	mu       sync.Mutex
	pipeline *gst.Pipeline
	buffers  sync.Pool
}

// New returns a camera. The pipeline is built on Start.
func New(cfg Config) (*Camera, error) {
	cfg.applyDefaults()
	if cfg.Width%4 != 0 || cfg.Height%2 != 0 {
		return nil, fmt.Errorf("%w: %dx%d, width must be a multiple of 4 and height even",
			capture.ErrInvalidFrame, cfg.Width, cfg.Height)
	}
	c := &Camera{cfg: cfg}
	size := cfg.Width * cfg.Height * 3 / 2
	c.buffers.New = func() any { return make([]byte, size) }
	return c, nil
}

// Location returns the configured location.
func (c *Camera) Location() capture.Location { return c.cfg.Location }

// Start builds the pipeline and sets it playing. Frames are delivered on
// the GStreamer streaming thread.
func (c *Camera) Start(ctx context.Context, deliver capture.DeliverFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pipeline != nil {
		return errors.New("gstreamer: camera already started")
	}

	pipeline, appsink, err := c.build()
	if err != nil {
		return err
	}

	start := time.Now()
	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			if ctx.Err() != nil {
				return gst.FlowOK
			}
			c.onSample(sink, start, deliver)
			return gst.FlowOK
		},
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		_ = pipeline.SetState(gst.StateNull)
		return fmt.Errorf("gstreamer: start pipeline: %w", err)
	}
	c.pipeline = pipeline
	vidflow.Logger().Info("gstreamer: pipeline playing",
		"device", c.cfg.Device, "width", c.cfg.Width, "height", c.cfg.Height, "fps", c.cfg.FPS)
	return nil
}

// Stop sets the pipeline to NULL.
func (c *Camera) Stop() error {
	c.mu.Lock()
	pipeline := c.pipeline
	c.pipeline = nil
	c.mu.Unlock()
	if pipeline == nil {
		return nil
	}
	if err := pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("gstreamer: stop pipeline: %w", err)
	}
	return nil
}

func (c *Camera) build() (*gst.Pipeline, *app.Sink, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, nil, fmt.Errorf("gstreamer: create pipeline: %w", err)
	}

	var src *gst.Element
	if c.cfg.Device == TestSource {
		if src, err = gst.NewElement("videotestsrc"); err != nil {
			return nil, nil, fmt.Errorf("gstreamer: create videotestsrc: %w", err)
		}
		src.SetProperty("is-live", true)
	} else {
		if src, err = gst.NewElement("v4l2src"); err != nil {
			return nil, nil, fmt.Errorf("gstreamer: create v4l2src: %w", err)
		}
		src.SetProperty("device", c.cfg.Device)
	}

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, nil, fmt.Errorf("gstreamer: create videoconvert: %w", err)
	}
	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, nil, fmt.Errorf("gstreamer: create videoscale: %w", err)
	}
	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, nil, fmt.Errorf("gstreamer: create capsfilter: %w", err)
	}
	caps := fmt.Sprintf("video/x-raw,format=NV12,width=%d,height=%d,framerate=%d/1",
		c.cfg.Width, c.cfg.Height, c.cfg.FPS)
	capsfilter.SetProperty("caps", gst.NewCapsFromString(caps))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, nil, fmt.Errorf("gstreamer: create appsink: %w", err)
	}
	// The capture source drops frames itself while busy; keep only the latest.
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)

	if err := pipeline.AddMany(src, converter, scaler, capsfilter, appsink.Element); err != nil {
		return nil, nil, fmt.Errorf("gstreamer: add elements: %w", err)
	}
	if err := gst.ElementLinkMany(src, converter, scaler, capsfilter, appsink.Element); err != nil {
		return nil, nil, fmt.Errorf("gstreamer: link elements: %w", err)
	}
	return pipeline, appsink, nil
}

// onSample copies the mapped buffer into a pooled slice, since GStreamer
// reuses its buffers, and delivers it as one NV12 frame.
func (c *Camera) onSample(sink *app.Sink, start time.Time, deliver capture.DeliverFunc) {
	sample := sink.PullSample()
	if sample == nil {
		vidflow.Logger().Warn("gstreamer: failed to pull sample, skipping frame")
		return
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		vidflow.Logger().Warn("gstreamer: sample without buffer, skipping frame")
		return
	}

	w, h := c.cfg.Width, c.cfg.Height
	lumaSize := w * h
	data := c.buffers.Get().([]byte)
	mapped := buffer.Map(gst.MapRead).Bytes()
	n := copy(data, mapped)
	buffer.Unmap()
	if n < lumaSize*3/2 {
		c.buffers.Put(data)
		vidflow.Logger().Warn("gstreamer: short buffer", "bytes", n, "want", lumaSize*3/2)
		return
	}

	ts := frame.At(time.Since(start))
	if pts := buffer.PresentationTimestamp(); pts >= 0 {
		ts = frame.At(pts)
	}

	raw := &capture.RawFrame{
		Format: capture.PixelFormatNV12VideoRange,
		Width:  w,
		Height: h,
		Planes: []capture.Plane{
			{Data: data[:lumaSize], Stride: w},
			{Data: data[lumaSize : lumaSize*3/2], Stride: w},
		},
		OnRelease: func() { c.buffers.Put(data) },
	}
	deliver(raw, ts)
}

var _ capture.Camera = (*Camera)(nil)
