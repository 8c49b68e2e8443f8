package prd

import (
	"fmt"
	"io"
	"os"

	"github.com/nikgalvaz/camacq/internal/track"
)

// Reader opens an existing PRD file and yields frames in order. Bytes
// returned by ReadFrame are borrowed: valid until the next ReadFrame call.
type Reader struct {
	f        *os.File
	Header   Header
	metaSize int
	rawBuf   []byte
	metaBuf  []byte
	extBuf   []byte
	read     uint32
}

// Open reads and validates the header, then seeks past its padding.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("prd: open %s: %w", path, err)
	}

	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(f, raw); err != nil {
		f.Close()
		return nil, fmt.Errorf("prd: read header: %w", err)
	}
	var h Header
	if err := h.UnmarshalBinary(raw); err != nil {
		f.Close()
		return nil, err
	}

	padded := Aligned(headerSize, h.Alignment)
	if padded > headerSize {
		if _, err := f.Seek(int64(padded-headerSize), io.SeekCurrent); err != nil {
			f.Close()
			return nil, fmt.Errorf("prd: seek past header padding: %w", err)
		}
	}

	return &Reader{f: f, Header: h, metaSize: int(h.SizeOfMetadata)}, nil
}

// Frame is one decoded PRD record. Trajectories is nil unless the file
// carries the TRAJECTORIES extended static metadata.
type Frame struct {
	Meta         MetaData
	Trajectories *track.Trajectories
	ExtDyn       []byte
	Raw          []byte
}

// ReadFrame reads the next frame. Returns io.EOF once FrameCount frames
// have been consumed.
func (r *Reader) ReadFrame() (Frame, error) {
	if r.read >= r.Header.FrameCount {
		return Frame{}, io.EOF
	}

	metaPadded := Aligned(r.metaSize, r.Header.Alignment)
	if cap(r.metaBuf) < metaPadded {
		r.metaBuf = make([]byte, metaPadded)
	}
	metaBuf := r.metaBuf[:metaPadded]
	if _, err := io.ReadFull(r.f, metaBuf); err != nil {
		return Frame{}, fmt.Errorf("prd: read frame %d metadata: %w", r.read, err)
	}

	meta := getMetaData(metaBuf[:fixedMetaSize])

	out := Frame{Meta: meta}
	if r.metaSize > fixedMetaSize {
		traj, err := getTrajectories(metaBuf[fixedMetaSize:r.metaSize])
		if err != nil {
			return Frame{}, fmt.Errorf("prd: read frame %d trajectories: %w", r.read, err)
		}
		out.Trajectories = &traj
	}

	if meta.ExtDynSize > 0 {
		extPadded := Aligned(int(meta.ExtDynSize), r.Header.Alignment)
		if cap(r.extBuf) < extPadded {
			r.extBuf = make([]byte, extPadded)
		}
		extBuf := r.extBuf[:extPadded]
		if _, err := io.ReadFull(r.f, extBuf); err != nil {
			return Frame{}, fmt.Errorf("prd: read frame %d ext-dyn: %w", r.read, err)
		}
		out.ExtDyn = extBuf[:meta.ExtDynSize]
	}

	rawPadded := Aligned(int(r.Header.FrameSize), r.Header.Alignment)
	if cap(r.rawBuf) < rawPadded {
		r.rawBuf = make([]byte, rawPadded)
	}
	rawBuf := r.rawBuf[:rawPadded]
	if _, err := io.ReadFull(r.f, rawBuf); err != nil {
		return Frame{}, fmt.Errorf("prd: read frame %d raw data: %w", r.read, err)
	}
	out.Raw = rawBuf[:r.Header.FrameSize]

	r.read++
	return out, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}
