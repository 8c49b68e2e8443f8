package gen

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"

	"github.com/nikgalvaz/camacq/internal/frame"
	"github.com/nikgalvaz/camacq/internal/rgn"
)

// roiHeaderSize is the encoded size of one ROI header entry: roiNr, x, y,
// w, h (uint32 each), headerOnly (1 byte), dataOffset, dataLen (uint32).
const roiHeaderSize = 4*5 + 1 + 4*2

// extEntrySize is the encoded size of one extended-metadata entry: roiNr
// (uint32), M0, M2 (float64 each), particleID (uint64).
const extEntrySize = 4 + 8 + 8 + 8

// metadataLayout describes the PVCAM-style frame buffer the fake
// generator emits and decodes when Config.HasMetadata is set: a
// fixed-count ROI header table, each ROI's pixel bytes packed back to
// back, then an extended-metadata table carrying particle centroid M0,
// M2 and a camera-assigned particle ID per ROI, as spec.md §4.6 requires
// of "the camera (or fake generator)".
type metadataLayout struct {
	roiCount   int
	roiW, roiH int
}

func (m metadataLayout) headerBytes() int      { return 4 + m.roiCount*roiHeaderSize }
func (m metadataLayout) pixelBytesPerROI() int { return m.roiW * m.roiH }
func (m metadataLayout) extBytes() int         { return 4 + m.roiCount*extEntrySize }

func (m metadataLayout) totalBytes() int {
	return m.headerBytes() + m.roiCount*m.pixelBytesPerROI() + m.extBytes()
}

// centroid returns ROI i's center position for frameNr. Centroids drift
// slowly on a small orbit around a per-ROI base position so a real
// nearest-neighbor linker has something to link across frames instead of
// jumping randomly every call.
func (m metadataLayout) centroid(i int, frameNr uint32) (x, y float64) {
	baseX := float64((i%4)*40 + 20)
	baseY := float64((i/4)*40 + 20)
	t := float64(frameNr) * 0.2
	return baseX + 3*math.Sin(t+float64(i)), baseY + 3*math.Cos(t+float64(i))
}

// encode fills buf (sized totalBytes()) with m.roiCount centroid ROIs for
// frameNr: header table, pixel bytes, then extended metadata.
func (m metadataLayout) encode(buf []byte, frameNr uint32) {
	binary.LittleEndian.PutUint32(buf[0:], uint32(m.roiCount))

	headerEnd := m.headerBytes()
	off := 4
	dataOff := headerEnd
	pixelsPerROI := m.pixelBytesPerROI()
	for i := 0; i < m.roiCount; i++ {
		cx, cy := m.centroid(i, frameNr)
		x := int32(cx) - int32(m.roiW/2)
		y := int32(cy) - int32(m.roiH/2)

		binary.LittleEndian.PutUint32(buf[off:], uint32(i))
		binary.LittleEndian.PutUint32(buf[off+4:], uint32(x))
		binary.LittleEndian.PutUint32(buf[off+8:], uint32(y))
		binary.LittleEndian.PutUint32(buf[off+12:], uint32(m.roiW))
		binary.LittleEndian.PutUint32(buf[off+16:], uint32(m.roiH))
		buf[off+20] = 0
		binary.LittleEndian.PutUint32(buf[off+21:], uint32(dataOff))
		binary.LittleEndian.PutUint32(buf[off+25:], uint32(pixelsPerROI))

		off += roiHeaderSize
		dataOff += pixelsPerROI
	}

	pixelsLen := m.roiCount * pixelsPerROI
	rand.Read(buf[headerEnd : headerEnd+pixelsLen])

	extOff := headerEnd + pixelsLen
	binary.LittleEndian.PutUint32(buf[extOff:], uint32(m.roiCount))
	extOff += 4
	for i := 0; i < m.roiCount; i++ {
		m0 := 800 + 200*math.Sin(float64(frameNr)*0.05+float64(i)*1.3)
		m2 := 4 + math.Abs(math.Sin(float64(frameNr)*0.03+float64(i)))
		particleID := uint64(i) + 1 // camera-reported ROI slot ID

		binary.LittleEndian.PutUint32(buf[extOff:], uint32(i))
		binary.LittleEndian.PutUint64(buf[extOff+4:], math.Float64bits(m0))
		binary.LittleEndian.PutUint64(buf[extOff+12:], math.Float64bits(m2))
		binary.LittleEndian.PutUint64(buf[extOff+20:], particleID)
		extOff += extEntrySize
	}
}

// Decoder implements frame.PVCAMDecoder for the layout metadataLayout
// encodes. It is the decoder wired into the FramePool whenever the fake
// generator runs with Config.HasMetadata set.
type Decoder struct{}

// Decode parses raw per metadataLayout's wire format.
func (Decoder) Decode(raw []byte) (frame.DecodedMetadata, error) {
	if len(raw) < 4 {
		return frame.DecodedMetadata{}, fmt.Errorf("gen: metadata buffer too short: %d bytes", len(raw))
	}
	roiCount := int(binary.LittleEndian.Uint32(raw))
	headerEnd := 4 + roiCount*roiHeaderSize
	if roiCount < 0 || headerEnd > len(raw) {
		return frame.DecodedMetadata{}, fmt.Errorf("gen: metadata header overruns buffer (roiCount=%d)", roiCount)
	}

	rois := make([]frame.ROIRaw, roiCount)
	pixelTotal := 0
	off := 4
	for i := 0; i < roiCount; i++ {
		x := int32(binary.LittleEndian.Uint32(raw[off+4:]))
		y := int32(binary.LittleEndian.Uint32(raw[off+8:]))
		w := int(binary.LittleEndian.Uint32(raw[off+12:]))
		h := int(binary.LittleEndian.Uint32(raw[off+16:]))
		headerOnly := raw[off+20] != 0
		dataOffset := int(binary.LittleEndian.Uint32(raw[off+21:]))
		dataLen := int(binary.LittleEndian.Uint32(raw[off+25:]))

		rois[i] = frame.ROIRaw{
			Region:     rgn.Region{S1: int(x), S2: int(x) + w - 1, Sbin: 1, P1: int(y), P2: int(y) + h - 1, Pbin: 1},
			X:          int(x),
			Y:          int(y),
			HeaderOnly: headerOnly,
			DataOffset: dataOffset,
			DataLen:    dataLen,
		}
		pixelTotal += dataLen
		off += roiHeaderSize
	}

	extOff := headerEnd + pixelTotal
	if extOff+4 > len(raw) {
		return frame.DecodedMetadata{}, fmt.Errorf("gen: metadata extended block overruns buffer")
	}
	extCount := int(binary.LittleEndian.Uint32(raw[extOff:]))
	extOff += 4

	extended := make(map[int]frame.ExtMeta, extCount)
	for i := 0; i < extCount; i++ {
		if extOff+extEntrySize > len(raw) {
			return frame.DecodedMetadata{}, fmt.Errorf("gen: metadata extended entry %d overruns buffer", i)
		}
		roiNr := int(binary.LittleEndian.Uint32(raw[extOff:]))
		m0 := math.Float64frombits(binary.LittleEndian.Uint64(raw[extOff+4:]))
		m2 := math.Float64frombits(binary.LittleEndian.Uint64(raw[extOff+12:]))
		particleID := binary.LittleEndian.Uint64(raw[extOff+20:])
		extended[roiNr] = frame.ExtMeta{M0: m0, M2: m2, ParticleID: particleID}
		extOff += extEntrySize
	}

	return frame.DecodedMetadata{ROIs: rois, Extended: extended}, nil
}

var _ frame.PVCAMDecoder = Decoder{}
