package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/vidflow/frame"
)

// PatternConfig configures a PatternCamera.
type PatternConfig struct {
	// Width and Height default to 640x480. NV12 needs even values.
	Width  int
	Height int

	// FPS defaults to 30.
	FPS int

	Format   PixelFormat
	Location Location
}

func (c *PatternConfig) applyDefaults() {
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

// PatternCamera is a synthetic camera producing a moving color gradient.
type PatternCamera struct {
	cfg PatternConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPatternCamera returns a pattern camera.
func NewPatternCamera(cfg PatternConfig) (*PatternCamera, error) {
	cfg.applyDefaults()
	if cfg.Format.Planar() && (cfg.Width%2 != 0 || cfg.Height%2 != 0) {
		return nil, fmt.Errorf("%w: %v needs even dimensions, got %dx%d", ErrInvalidFrame, cfg.Format, cfg.Width, cfg.Height)
	}
	if cfg.Format != PixelFormatBGRA && !cfg.Format.Planar() {
		return nil, fmt.Errorf("%w: unknown format %v", ErrInvalidFrame, cfg.Format)
	}
	return &PatternCamera{cfg: cfg}, nil
}

// Config returns the effective configuration.
func (c *PatternCamera) Config() PatternConfig { return c.cfg }

// Location returns the configured location.
func (c *PatternCamera) Location() Location { return c.cfg.Location }

// Start delivers a frame every 1/FPS seconds until ctx is done or Stop.
func (c *PatternCamera) Start(ctx context.Context, deliver DeliverFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return errors.New("capture: pattern camera already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	period := time.Second / time.Duration(c.cfg.FPS)
	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				deliver(c.Generate(i), frame.At(time.Duration(i)*period))
			}
		}
	}(c.done)
	return nil
}

// Stop stops delivery and waits for the delivery goroutine to exit.
func (c *PatternCamera) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Generate returns frame i of the pattern: a horizontal red ramp and a
// vertical green ramp scrolling by one pixel per frame.
func (c *PatternCamera) Generate(i int) *RawFrame {
	w, h := c.cfg.Width, c.cfg.Height
	rgb := func(x, y int) (r, g, b uint8) {
		return uint8((x + i) % w * 255 / max(w-1, 1)), uint8(y * 255 / max(h-1, 1)), 128
	}

	if !c.cfg.Format.Planar() {
		stride := w * 4
		pix := make([]byte, stride*h)
		for y := range h {
			for x := range w {
				r, g, b := rgb(x, y)
				o := y*stride + x*4
				pix[o], pix[o+1], pix[o+2], pix[o+3] = b, g, r, 255
			}
		}
		return &RawFrame{Format: c.cfg.Format, Width: w, Height: h, Planes: []Plane{{Data: pix, Stride: stride}}}
	}

	full := c.cfg.Format == PixelFormatNV12FullRange
	luma := make([]byte, w*h)
	chroma := make([]byte, w*h/2)
	for y := range h {
		for x := range w {
			r, g, b := rgb(x, y)
			yy, cb, cr := rgbToYCbCr(r, g, b, full)
			luma[y*w+x] = yy
			if x%2 == 0 && y%2 == 0 {
				o := (y/2)*w + x
				chroma[o], chroma[o+1] = cb, cr
			}
		}
	}
	return &RawFrame{
		Format: c.cfg.Format,
		Width:  w,
		Height: h,
		Planes: []Plane{{Data: luma, Stride: w}, {Data: chroma, Stride: w}},
	}
}

// rgbToYCbCr converts with BT.601 coefficients.
func rgbToYCbCr(r, g, b uint8, full bool) (y, cb, cr uint8) {
	fr, fg, fb := float64(r)/255, float64(g)/255, float64(b)/255
	ly := 0.299*fr + 0.587*fg + 0.114*fb
	pb := (fb - ly) / 1.772
	pr := (fr - ly) / 1.402
	if full {
		return unorm8(ly), unorm8(pb + 0.5), unorm8(pr + 0.5)
	}
	return unorm8((16 + 219*ly) / 255), unorm8((128 + 224*pb) / 255), unorm8((128 + 224*pr) / 255)
}

func unorm8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(v*255 + 0.5)
	}
}

var _ Camera = (*PatternCamera)(nil)
