package capture

import (
	"errors"
	"image"

	"golang.org/x/image/draw"

	"github.com/gogpu/vidflow"
	"github.com/gogpu/vidflow/frame"
	"github.com/gogpu/vidflow/graph"
	"github.com/gogpu/vidflow/processing"
)

// ErrEmptyImage is returned by NewPicture for an image without pixels.
var ErrEmptyImage = errors.New("capture: empty image")

// Picture is a still image source. Its frames carry no timestamp and no
// generation, so they never reach a recorder and match any combination
// round.
type Picture struct {
	ctx         *processing.Context
	img         *image.RGBA
	orientation frame.Orientation
	targets     graph.Targets
}

// NewPicture converts img to RGBA and returns a source for it.
func NewPicture(ctx *processing.Context, img image.Image, o frame.Orientation) (*Picture, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, ErrEmptyImage
	}
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Rect.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	return &Picture{ctx: ctx, img: rgba, orientation: o}, nil
}

// Targets returns the fan-out list.
func (p *Picture) Targets() *graph.Targets { return &p.targets }

// Size returns the image size.
func (p *Picture) Size() frame.Size {
	return frame.Size{Width: p.img.Rect.Dx(), Height: p.img.Rect.Dy()}
}

// Process uploads the image and pushes it to the targets on the
// processing stream. With sync set it waits for the push and returns its
// error; otherwise failures are logged.
func (p *Picture) Process(sync bool) error {
	if sync {
		var err error
		if rerr := p.ctx.RunSync(func() { err = p.push() }); rerr != nil {
			return rerr
		}
		return err
	}
	ok := p.ctx.RunAsync(func() {
		if err := p.push(); err != nil {
			vidflow.Logger().Warn("capture: picture dropped", "err", err)
		}
	})
	if !ok {
		return processing.ErrClosed
	}
	return nil
}

func (p *Picture) push() error {
	size := p.Size()
	res, err := p.ctx.Pool().Acquire(size.Width, size.Height, p.orientation, true)
	if err != nil {
		return err
	}
	if err := p.ctx.Device().WriteTexture(res.Texture(), p.img.Pix, p.img.Stride); err != nil {
		res.Unlock()
		return err
	}
	res.SetGeneration(p.ctx.NextGeneration())
	p.targets.Push(res)
	return nil
}

var _ graph.Source = (*Picture)(nil)
