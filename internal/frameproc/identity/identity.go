// Package identity implements frameproc.FrameProcessor as a no-op: it
// exposes the frame's own raw bitmap views and does no debayering, RGB
// conversion, or statistics work. Used by PRD-only runs (no display
// canvas needed) and by pipeline tests that don't exercise image
// processing.
package identity

import (
	"github.com/nikgalvaz/camacq/internal/bitmap"
	"github.com/nikgalvaz/camacq/internal/frame"
	"github.com/nikgalvaz/camacq/internal/frameproc"
)

// Processor is the identity FrameProcessor.
type Processor struct {
	f *frame.Frame
}

// New returns a ready-to-use identity processor.
func New() *Processor {
	return &Processor{}
}

func (p *Processor) SetFrame(f *frame.Frame) { p.f = f }
func (p *Processor) Invalidate()              { p.f = nil }

func (p *Processor) RawBitmaps() []*bitmap.Bitmap {
	if p.f == nil {
		return nil
	}
	views := p.f.ROIViews()
	out := make([]*bitmap.Bitmap, 0, len(views))
	for _, v := range views {
		if v.Bitmap != nil {
			out = append(out, v.Bitmap)
		}
	}
	return out
}

func (p *Processor) DebayeredBitmaps() []*bitmap.Bitmap { return p.RawBitmaps() }
func (p *Processor) RGB8Bitmaps() []*bitmap.Bitmap      { return p.RawBitmaps() }

func (p *Processor) Get(which frameproc.UseBmp) []*bitmap.Bitmap {
	return p.RawBitmaps()
}

func (p *Processor) Debayer() error            { return nil }
func (p *Processor) DebayerROI(i int) error     { return nil }

func (p *Processor) ToRGB8(which frameproc.UseBmp, min, max float64, auto frameproc.AutoContrast, manual frameproc.Contrast) error {
	return nil
}

func (p *Processor) ComputeStats(which frameproc.UseBmp) error { return nil }
func (p *Processor) Stats() frameproc.ROIStats                 { return frameproc.ROIStats{} }
func (p *Processor) ROIStats() []frameproc.ROIStats            { return nil }

func (p *Processor) Recompose(which frameproc.UseBmp, dst *bitmap.Bitmap, offX, offY int) error {
	if p.f == nil || dst == nil {
		return nil
	}
	for _, v := range p.f.ROIViews() {
		if v.Bitmap == nil {
			continue
		}
		if err := dst.FillFrom(v.Bitmap, offX+v.X, offY+v.Y); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) Fill(dst *bitmap.Bitmap, value uint32) {
	if dst != nil {
		dst.FillScalar(value)
	}
}

var _ frameproc.FrameProcessor = (*Processor)(nil)
