package prd

import (
	"encoding/binary"
	"fmt"

	"github.com/nikgalvaz/camacq/internal/track"
)

// fixedMetaSize is the size of PrdMetaData's version-stable fixed fields,
// ahead of any extended static metadata (trajectories).
const fixedMetaSize = 40

// Extended static metadata flag bits, tried lowest-bit-first per §6.3.
const (
	ExtFlagTrajectories uint32 = 1 << 0
)

// MetaData is the per-frame fixed block (PrdMetaData): frame.Info plus
// the size of any per-frame extended-dynamic block that follows it.
type MetaData struct {
	FrameNr    uint32
	TsBOF      uint64
	TsEOF      uint64
	ExpTime    uint32
	WBRed      float32
	WBGreen    float32
	WBBlue     float32
	ExtDynSize uint32
}

func (m MetaData) put(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], m.FrameNr)
	binary.LittleEndian.PutUint64(buf[4:12], m.TsBOF)
	binary.LittleEndian.PutUint64(buf[12:20], m.TsEOF)
	binary.LittleEndian.PutUint32(buf[20:24], m.ExpTime)
	binary.LittleEndian.PutUint32(buf[24:28], math32bits(m.WBRed))
	binary.LittleEndian.PutUint32(buf[28:32], math32bits(m.WBGreen))
	binary.LittleEndian.PutUint32(buf[32:36], math32bits(m.WBBlue))
	binary.LittleEndian.PutUint32(buf[36:40], m.ExtDynSize)
}

func getMetaData(buf []byte) MetaData {
	return MetaData{
		FrameNr:    binary.LittleEndian.Uint32(buf[0:4]),
		TsBOF:      binary.LittleEndian.Uint64(buf[4:12]),
		TsEOF:      binary.LittleEndian.Uint64(buf[12:20]),
		ExpTime:    binary.LittleEndian.Uint32(buf[20:24]),
		WBRed:      math32float(binary.LittleEndian.Uint32(buf[24:28])),
		WBGreen:    math32float(binary.LittleEndian.Uint32(buf[28:32])),
		WBBlue:     math32float(binary.LittleEndian.Uint32(buf[32:36])),
		ExtDynSize: binary.LittleEndian.Uint32(buf[36:40]),
	}
}

// trajectoryBlockSize returns the constant encoded size of a Trajectories
// value with the given fixed capacity.
func trajectoryBlockSize(maxTrajectories, maxPoints int) int {
	const pointSize = 1 + 8 + 8       // Valid + X + Y
	const trajFixedSize = 4 + 8 + 4 + 4 // ROINr + ParticleID + Lifetime + PointCount
	return 12 + maxTrajectories*(trajFixedSize+maxPoints*pointSize)
}

func putTrajectories(buf []byte, t track.Trajectories) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(t.MaxTrajectories))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(t.MaxPoints))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(t.ActualCount))
	off := 12
	const pointSize = 17
	trajFixedSize := 20
	for i := 0; i < t.MaxTrajectories; i++ {
		var item track.Trajectory
		if i < len(t.Items) {
			item = t.Items[i]
		}
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(item.ROINr))
		binary.LittleEndian.PutUint64(buf[off+4:off+12], item.ParticleID)
		binary.LittleEndian.PutUint32(buf[off+12:off+16], uint32(item.Lifetime))
		binary.LittleEndian.PutUint32(buf[off+16:off+20], uint32(item.PointCount))
		pOff := off + trajFixedSize
		for j := 0; j < t.MaxPoints; j++ {
			var p track.Point
			if j < len(item.Points) {
				p = item.Points[j]
			}
			if p.Valid {
				buf[pOff] = 1
			} else {
				buf[pOff] = 0
			}
			binary.LittleEndian.PutUint64(buf[pOff+1:pOff+9], math64bits(p.X))
			binary.LittleEndian.PutUint64(buf[pOff+9:pOff+17], math64bits(p.Y))
			pOff += pointSize
		}
		off = pOff
	}
}

func getTrajectories(buf []byte) (track.Trajectories, error) {
	if len(buf) < 12 {
		return track.Trajectories{}, fmt.Errorf("prd: trajectory block too short: %d bytes", len(buf))
	}
	maxTraj := int(binary.LittleEndian.Uint32(buf[0:4]))
	maxPoints := int(binary.LittleEndian.Uint32(buf[4:8]))
	actual := int(binary.LittleEndian.Uint32(buf[8:12]))

	want := trajectoryBlockSize(maxTraj, maxPoints)
	if len(buf) < want {
		return track.Trajectories{}, fmt.Errorf("prd: trajectory block too short: need %d, have %d", want, len(buf))
	}

	out := track.NewTrajectories(maxTraj, maxPoints)
	out.ActualCount = actual

	off := 12
	const pointSize = 17
	trajFixedSize := 20
	for i := 0; i < maxTraj; i++ {
		roiNr := int(int32(binary.LittleEndian.Uint32(buf[off : off+4])))
		particleID := binary.LittleEndian.Uint64(buf[off+4 : off+12])
		lifetime := int(int32(binary.LittleEndian.Uint32(buf[off+12 : off+16])))
		pointCount := int(int32(binary.LittleEndian.Uint32(buf[off+16 : off+20])))

		out.Items[i].ROINr = roiNr
		out.Items[i].ParticleID = particleID
		out.Items[i].Lifetime = lifetime
		out.Items[i].PointCount = pointCount

		pOff := off + trajFixedSize
		for j := 0; j < maxPoints; j++ {
			valid := buf[pOff] != 0
			x := math64float(binary.LittleEndian.Uint64(buf[pOff+1 : pOff+9]))
			y := math64float(binary.LittleEndian.Uint64(buf[pOff+9 : pOff+17]))
			out.Items[i].Points[j] = track.Point{Valid: valid, X: x, Y: y}
			pOff += pointSize
		}
		off = pOff
	}
	return out, nil
}
