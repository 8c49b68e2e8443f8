package frame

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nikgalvaz/camacq/internal/bitmap"
	"github.com/nikgalvaz/camacq/internal/rgn"
)

func testCfg(hasMetadata bool) AcqCfg {
	return AcqCfg{
		FrameBytes:  64,
		ROICount:    1,
		HasMetadata: hasMetadata,
		ImpliedROI:  rgn.Region{S1: 0, S2: 7, Sbin: 1, P1: 0, P2: 7, Pbin: 1},
		Format:      bitmap.NewFormatFromImageFormat(bitmap.Mono8, bitmap.BayerNone),
	}
}

type fakeDecoder struct {
	result DecodedMetadata
	err    error
}

func (d *fakeDecoder) Decode(raw []byte) (DecodedMetadata, error) {
	return d.result, d.err
}

func TestFrameLifecycleWithoutMetadata(t *testing.T) {
	cfg := testCfg(false)
	f := New(cfg, true, nil)
	require.Equal(t, Empty, f.State())
	require.False(t, f.IsValid())

	src := make([]byte, 64)
	for i := range src {
		src[i] = byte(i)
	}
	f.SetDataPtr(src, Info{FrameNr: 1})
	require.Equal(t, DataBound, f.State())

	require.NoError(t, f.CopyData(nil))
	require.Equal(t, Valid, f.State())
	require.True(t, f.IsValid())
	require.Equal(t, src, f.Data())
	require.Equal(t, uint32(1), f.Info().FrameNr)

	require.Len(t, f.ROIViews(), 1, "metadata-free frames get one implied-ROI view")
	require.Equal(t, 1, f.ValidROICount())
}

func TestFrameCopyDataDeepCopyDoesNotAliasSource(t *testing.T) {
	cfg := testCfg(false)
	f := New(cfg, true, nil)
	src := make([]byte, 64)
	src[0] = 0xAA
	f.SetDataPtr(src, Info{})
	require.NoError(t, f.CopyData(nil))

	src[0] = 0xBB
	require.Equal(t, byte(0xAA), f.Data()[0], "deep-copy frame must not alias the source buffer")
}

func TestFrameShallowCopyAliasesSource(t *testing.T) {
	cfg := testCfg(false)
	f := New(cfg, false, nil)
	src := make([]byte, 64)
	src[0] = 0xAA
	f.SetDataPtr(src, Info{})
	require.NoError(t, f.CopyData(nil))

	src[0] = 0xBB
	require.Equal(t, byte(0xBB), f.Data()[0], "shallow frame adopts the source pointer directly")
}

func TestFrameCopyDataRequiresDataBoundState(t *testing.T) {
	f := New(testCfg(false), true, nil)
	err := f.CopyData(nil)
	require.Error(t, err)
}

func TestFrameDecodeMetadataSuccess(t *testing.T) {
	cfg := testCfg(true)
	decoded := DecodedMetadata{
		ROIs: []ROIRaw{
			{Region: rgn.Region{S1: 0, S2: 3, Sbin: 1, P1: 0, P2: 3, Pbin: 1}, X: 0, Y: 0, DataOffset: 0, DataLen: 16},
		},
	}
	f := New(cfg, true, &fakeDecoder{result: decoded})
	f.SetDataPtr(make([]byte, 64), Info{})
	require.NoError(t, f.CopyData(nil))

	require.NoError(t, f.DecodeMetadata())
	require.Equal(t, Decoded, f.State())
	require.Equal(t, 1, f.ValidROICount())
	require.NotNil(t, f.ROIViews()[0].Bitmap)
}

func TestFrameDecodeMetadataFailureInvalidates(t *testing.T) {
	cfg := testCfg(true)
	f := New(cfg, true, &fakeDecoder{err: errors.New("bad header")})
	f.SetDataPtr(make([]byte, 64), Info{})
	require.NoError(t, f.CopyData(nil))

	err := f.DecodeMetadata()
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	require.LessOrEqual(t, len(de.Header), 32)

	require.Equal(t, Empty, f.State(), "failed decode must invalidate the frame")
	require.False(t, f.IsValid())
}

func TestFrameInvalidateIsIdempotent(t *testing.T) {
	f := New(testCfg(false), true, nil)
	f.SetDataPtr(make([]byte, 64), Info{FrameNr: 5})
	require.NoError(t, f.CopyData(nil))

	f.Invalidate()
	require.Equal(t, Empty, f.State())
	f.Invalidate()
	require.Equal(t, Empty, f.State())
	require.Equal(t, uint32(0), f.Info().FrameNr)
}

func TestFrameCopyRejectsCfgMismatch(t *testing.T) {
	src := New(testCfg(false), true, nil)
	src.SetDataPtr(make([]byte, 64), Info{})
	require.NoError(t, src.CopyData(nil))

	otherCfg := testCfg(false)
	otherCfg.FrameBytes = 128
	dst := New(otherCfg, true, nil)

	err := dst.Copy(src, true)
	require.ErrorIs(t, err, ErrCfgMismatch)
}

func TestFrameCopyDeepDoesNotAliasSource(t *testing.T) {
	cfg := testCfg(false)
	src := New(cfg, true, nil)
	srcBuf := make([]byte, 64)
	srcBuf[0] = 0x42
	src.SetDataPtr(srcBuf, Info{})
	require.NoError(t, src.CopyData(nil))

	dst := New(cfg, true, nil)
	require.NoError(t, dst.Copy(src, true))

	srcBuf[0] = 0x99
	require.Equal(t, byte(0x42), dst.Data()[0])
}
