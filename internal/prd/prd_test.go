package prd

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nikgalvaz/camacq/internal/track"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Version:        VersionAlignment,
		BitDepth:       16,
		FrameCount:     7,
		Region:         Region{S1: 0, S2: 511, Sbin: 1, P1: 0, P2: 255, Pbin: 1},
		SizeOfMetadata: 40,
		ExpTimeRes:     ExpUs,
		ColorMask:      0,
		ImageFormat:    1,
		FrameSize:      1024,
		Flags:          FlagHasMetadata | FlagHasAlignment,
		Alignment:      4096,
	}
	buf, err := h.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, buf, headerSize)

	var got Header
	require.NoError(t, got.UnmarshalBinary(buf))
	require.Equal(t, h, got)
}

func TestHeaderRejectsBadSignature(t *testing.T) {
	buf := make([]byte, headerSize)
	var got Header
	require.Error(t, got.UnmarshalBinary(buf))
}

func TestAlignedIdentityWithoutAlignment(t *testing.T) {
	require.Equal(t, 100, Aligned(100, 0))
	require.Equal(t, 100, Aligned(100, 1))
}

func TestAlignedRoundsUpToPowerOfTwo(t *testing.T) {
	require.Equal(t, 4096, Aligned(1, 4096))
	require.Equal(t, 4096, Aligned(4096, 4096))
	require.Equal(t, 8192, Aligned(4097, 4096))
}

func TestWriterReaderRoundTripNoAlignment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.prd")
	cfg := WriterConfig{
		BitDepth:    8,
		Region:      Region{S1: 0, S2: 7, Sbin: 1, P1: 0, P2: 7, Pbin: 1},
		ImageFormat: 0,
		FrameSize:   64,
		HasMetadata: true,
	}
	w, err := Create(path, cfg)
	require.NoError(t, err)

	const n = 5
	for i := 0; i < n; i++ {
		raw := make([]byte, 64)
		raw[0] = byte(i)
		require.NoError(t, w.WriteFrame(MetaData{FrameNr: uint32(i), TsBOF: uint64(i) * 100, TsEOF: uint64(i)*100 + 10}, nil, nil, raw))
	}
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	require.EqualValues(t, n, r.Header.FrameCount)

	for i := 0; i < n; i++ {
		f, err := r.ReadFrame()
		require.NoError(t, err)
		require.Equal(t, uint32(i), f.Meta.FrameNr)
		require.Equal(t, byte(i), f.Raw[0])
	}
	_, err = r.ReadFrame()
	require.ErrorIs(t, err, io.EOF)
}

func TestWriterReaderRoundTripWithTrajectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traj.prd")
	cfg := WriterConfig{
		FrameSize:       32,
		HasMetadata:     true,
		HasTrajectories: true,
		MaxTrajectories: 4,
		MaxPoints:       3,
	}
	w, err := Create(path, cfg)
	require.NoError(t, err)

	traj := track.NewTrajectories(4, 3)
	traj.ActualCount = 1
	traj.Items[0] = track.Trajectory{
		ROINr:      2,
		ParticleID: 99,
		Lifetime:   5,
		PointCount: 2,
		Points:     []track.Point{{Valid: true, X: 1.5, Y: 2.5}, {Valid: true, X: 1.6, Y: 2.6}, {}},
	}
	require.NoError(t, w.WriteFrame(MetaData{FrameNr: 0}, &traj, nil, make([]byte, 32)))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	f, err := r.ReadFrame()
	require.NoError(t, err)
	require.NotNil(t, f.Trajectories)
	require.Equal(t, 1, f.Trajectories.ActualCount)
	require.Equal(t, uint64(99), f.Trajectories.Items[0].ParticleID)
	require.Equal(t, 2.5, f.Trajectories.Items[0].Points[0].Y)
	require.Len(t, f.Trajectories.Items, 4, "trajectory capacity must round-trip padded")
}

func TestWriterReaderAlignment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aligned.prd")
	cfg := WriterConfig{
		FrameSize:   100,
		HasMetadata: true,
		Alignment:   4096,
	}
	w, err := Create(path, cfg)
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame(MetaData{FrameNr: 0}, nil, nil, make([]byte, 100)))
	require.NoError(t, w.WriteFrame(MetaData{FrameNr: 1}, nil, nil, make([]byte, 100)))
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)

	headerBlock := Aligned(headerSize, 4096)
	metaBlock := Aligned(fixedMetaSize, 4096)
	rawBlock := Aligned(100, 4096)
	wantSize := int64(headerBlock + 2*(metaBlock+rawBlock))
	require.Equal(t, wantSize, info.Size())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	f0, err := r.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, uint32(0), f0.Meta.FrameNr)
	f1, err := r.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, uint32(1), f1.Meta.FrameNr)
}
