package prd

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/nikgalvaz/camacq/internal/track"
)

// WriterConfig describes one PRD output file's shape, fixed for its
// entire lifetime.
type WriterConfig struct {
	BitDepth        uint16
	Region          Region
	ExpTimeRes      ExposureResolution
	ColorMask       uint8
	ImageFormat     uint16
	FrameSize       uint32 // raw bytes per frame (pixel data + inline metadata)
	HasMetadata     bool
	HasTrajectories bool
	MaxTrajectories int
	MaxPoints       int
	Alignment       uint32 // 0 or a power of two >= 8; 0/1 disables alignment
	FrameSizeVary   bool
}

// Writer produces a bit-exact PRD file: an aligned header followed by,
// per frame, an aligned metadata block, an optional aligned
// extended-dynamic block, and an aligned raw-frame block.
type Writer struct {
	f         *os.File
	cfg       WriterConfig
	metaSize  int
	written   uint32
}

// Create opens path for writing and writes the header (frame_count is
// filled in with a placeholder and rewritten by Close).
func Create(path string, cfg WriterConfig) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("prd: create %s: %w", path, err)
	}

	metaSize := fixedMetaSize
	if cfg.HasTrajectories {
		metaSize += trajectoryBlockSize(cfg.MaxTrajectories, cfg.MaxPoints)
	}

	flags := uint32(0)
	if cfg.HasMetadata {
		flags |= FlagHasMetadata
	}
	if cfg.FrameSizeVary {
		flags |= FlagFrameSizeVary
	}
	version := Version1
	if cfg.Alignment > 1 {
		flags |= FlagHasAlignment
		version = VersionAlignment
	}

	h := Header{
		Version:        version,
		BitDepth:       cfg.BitDepth,
		FrameCount:     0,
		Region:         cfg.Region,
		SizeOfMetadata: uint32(metaSize),
		ExpTimeRes:     cfg.ExpTimeRes,
		ColorMask:      cfg.ColorMask,
		ImageFormat:    cfg.ImageFormat,
		FrameSize:      cfg.FrameSize,
		Flags:          flags,
		Alignment:      cfg.Alignment,
	}
	buf, _ := h.MarshalBinary()
	if padded := Aligned(len(buf), cfg.Alignment); padded > len(buf) {
		buf = append(buf, make([]byte, padded-len(buf))...)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("prd: write header: %w", err)
	}

	return &Writer{f: f, cfg: cfg, metaSize: metaSize}, nil
}

// WriteFrame appends one frame: fixed metadata, optional trajectories
// (extended static metadata), optional extended-dynamic bytes, and raw
// pixel bytes. Each block is independently padded to cfg.Alignment.
func (w *Writer) WriteFrame(meta MetaData, traj *track.Trajectories, extDyn []byte, raw []byte) error {
	meta.ExtDynSize = uint32(len(extDyn))

	metaBuf := make([]byte, w.metaSize)
	meta.put(metaBuf[:fixedMetaSize])
	if w.cfg.HasTrajectories {
		tBuf := metaBuf[fixedMetaSize:]
		if traj != nil {
			putTrajectories(tBuf, *traj)
		} else {
			empty := track.NewTrajectories(w.cfg.MaxTrajectories, w.cfg.MaxPoints)
			putTrajectories(tBuf, empty)
		}
	}
	if err := w.writeAligned(metaBuf); err != nil {
		return fmt.Errorf("prd: write frame %d metadata: %w", w.written, err)
	}

	if len(extDyn) > 0 {
		if err := w.writeAligned(extDyn); err != nil {
			return fmt.Errorf("prd: write frame %d ext-dyn: %w", w.written, err)
		}
	}

	if err := w.writeAligned(raw); err != nil {
		return fmt.Errorf("prd: write frame %d raw data: %w", w.written, err)
	}

	w.written++
	return nil
}

func (w *Writer) writeAligned(buf []byte) error {
	if _, err := w.f.Write(buf); err != nil {
		return err
	}
	if padded := Aligned(len(buf), w.cfg.Alignment); padded > len(buf) {
		if _, err := w.f.Write(make([]byte, padded-len(buf))); err != nil {
			return err
		}
	}
	return nil
}

// Close rewrites the header's frame_count field with the number of
// frames actually written, then closes the file.
func (w *Writer) Close() error {
	if _, err := w.f.Seek(8, io.SeekStart); err != nil {
		w.f.Close()
		return fmt.Errorf("prd: seek to rewrite frame_count: %w", err)
	}
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], w.written)
	if _, err := w.f.Write(countBuf[:]); err != nil {
		w.f.Close()
		return fmt.Errorf("prd: rewrite frame_count: %w", err)
	}
	return w.f.Close()
}
