package pipeline

import (
	"fmt"

	"github.com/nikgalvaz/camacq/internal/bitmap"
	"github.com/nikgalvaz/camacq/internal/frame"
	"github.com/nikgalvaz/camacq/internal/frameproc"
	"github.com/nikgalvaz/camacq/internal/prd"
	"github.com/nikgalvaz/camacq/internal/tiffwriter"
	"github.com/nikgalvaz/camacq/internal/track"
)

// Sink is what the disk thread writes kept frames to: either a PrdWriter
// or a TiffWriter, selected by cfg.Storage.
type Sink interface {
	WriteFrame(page int, f *frame.Frame, traj *track.Trajectories) error
	Close() error
}

// prdSink adapts *prd.Writer to Sink.
type prdSink struct {
	w *prd.Writer
}

// NewPrdSink adapts w into a Sink that writes one PRD frame per call.
func NewPrdSink(w *prd.Writer) Sink { return &prdSink{w: w} }

func (s *prdSink) WriteFrame(page int, f *frame.Frame, traj *track.Trajectories) error {
	info := f.Info()
	meta := prd.MetaData{
		FrameNr: info.FrameNr,
		TsBOF:   info.TsBOF,
		TsEOF:   info.TsEOF,
		ExpTime: info.ExpTime,
		WBRed:   info.WBRed,
		WBGreen: info.WBGreen,
		WBBlue:  info.WBBlue,
	}
	return s.w.WriteFrame(meta, traj, nil, f.Data())
}

func (s *prdSink) Close() error { return s.w.Close() }

// tiffSink adapts a tiffwriter.Writer to Sink, recomposing the frame's
// ROI bitmaps onto a canvas via the injected FrameProcessor before
// writing each page.
type tiffSink struct {
	w      tiffwriter.Writer
	proc   frameproc.FrameProcessor
	canvas *bitmap.Bitmap
	header prd.Header
}

// NewTiffSink adapts w into a Sink that recomposes each frame onto canvas
// via proc before writing a page.
func NewTiffSink(w tiffwriter.Writer, proc frameproc.FrameProcessor, canvas *bitmap.Bitmap, header prd.Header) Sink {
	return &tiffSink{w: w, proc: proc, canvas: canvas, header: header}
}

func (s *tiffSink) WriteFrame(page int, f *frame.Frame, traj *track.Trajectories) error {
	s.proc.SetFrame(f)
	defer s.proc.Invalidate()

	if err := s.proc.Recompose(frameproc.Raw, s.canvas, 0, 0); err != nil {
		return fmt.Errorf("pipeline: recompose frame %d: %w", f.Info().FrameNr, err)
	}

	desc := imageDescription(s.header, f, traj)
	return s.w.WritePage(page, desc)
}

func (s *tiffSink) Close() error { return s.w.Close() }

func imageDescription(h prd.Header, f *frame.Frame, traj *track.Trajectories) string {
	info := f.Info()
	desc := fmt.Sprintf(
		"frame_nr=%d\nts_bof=%d\nts_eof=%d\nexp_time=%d\nwb=(%f,%f,%f)\nbit_depth=%d\nimage_format=%d\n",
		info.FrameNr, info.TsBOF, info.TsEOF, info.ExpTime,
		info.WBRed, info.WBGreen, info.WBBlue,
		h.BitDepth, h.ImageFormat,
	)
	if traj != nil {
		desc += fmt.Sprintf("trajectories=%d\n", traj.ActualCount)
	}
	return desc
}
