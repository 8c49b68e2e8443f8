package bitmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatRoundTrip(t *testing.T) {
	cases := []ImageFormat{Mono8, Mono16, Mono32, RGB24, RGB48, RGB96}
	for _, imgFmt := range cases {
		f := NewFormatFromImageFormat(imgFmt, BayerNone)
		require.Equal(t, imgFmt, f.ImageFormat())

		f2, err := NewFormatFromPixelType(f.PixelType(), f.DataType(), f.BitDepth(), BayerNone)
		require.NoError(t, err)
		require.Equal(t, imgFmt, f2.ImageFormat())
	}
}

func TestFormatBytesPerPixelInvariant(t *testing.T) {
	f := NewFormatFromImageFormat(RGB48, BayerNone)
	require.Equal(t, 3, f.SamplesPerPixel())
	require.Equal(t, 2, f.BytesPerSample())
	require.Equal(t, 6, f.BytesPerPixel())
}

func TestNewFormatFromPixelTypeRejectsOverwideBitDepth(t *testing.T) {
	_, err := NewFormatFromPixelType(PixelMono, DataU8, 12, BayerNone)
	require.Error(t, err)
}

func TestBitmapStrideAlignment(t *testing.T) {
	f := NewFormatFromImageFormat(Mono8, BayerNone)
	bmp, err := NewBitmap(f, 10, 4, 8)
	require.NoError(t, err)
	// 10 bytes/row rounded up to a multiple of 8 == 16
	require.Equal(t, 16, bmp.Stride())
	require.Len(t, bmp.Bytes(), 16*4)
}

func TestBitmapSampleReadWrite(t *testing.T) {
	f := NewFormatFromImageFormat(Mono16, BayerNone)
	bmp, err := NewBitmap(f, 4, 4, 1)
	require.NoError(t, err)

	require.NoError(t, bmp.SetSample(2, 1, 0, 0xBEEF))
	v, err := bmp.Sample(2, 1, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(0xBEEF), v)
}

func TestBitmapWrapBorrowsBuffer(t *testing.T) {
	f := NewFormatFromImageFormat(Mono8, BayerNone)
	buf := make([]byte, 4*4)
	bmp, err := Wrap(f, 4, 4, 1, buf)
	require.NoError(t, err)
	require.False(t, bmp.Owns())

	require.NoError(t, bmp.SetSample(0, 0, 0, 42))
	require.Equal(t, byte(42), buf[0], "wrap must alias the caller's buffer")
}

func TestBitmapFillFromRequiresPixelTypeMatch(t *testing.T) {
	mono := NewFormatFromImageFormat(Mono8, BayerNone)
	rgb := NewFormatFromImageFormat(RGB24, BayerNone)

	dst, _ := NewBitmap(mono, 8, 8, 1)
	src, _ := NewBitmap(rgb, 4, 4, 1)
	require.Error(t, dst.FillFrom(src, 0, 0))
}

func TestBitmapFillFromCopiesAtOffset(t *testing.T) {
	f := NewFormatFromImageFormat(Mono8, BayerNone)
	dst, _ := NewBitmap(f, 8, 8, 1)
	src, _ := NewBitmap(f, 2, 2, 1)
	src.FillScalar(7)

	require.NoError(t, dst.FillFrom(src, 3, 3))
	v, _ := dst.Sample(3, 3, 0)
	require.Equal(t, uint32(7), v)
	v, _ = dst.Sample(0, 0, 0)
	require.Equal(t, uint32(0), v)
}

func TestBitmapFillFromRejectsOutOfBounds(t *testing.T) {
	f := NewFormatFromImageFormat(Mono8, BayerNone)
	dst, _ := NewBitmap(f, 4, 4, 1)
	src, _ := NewBitmap(f, 4, 4, 1)
	require.Error(t, dst.FillFrom(src, 1, 1))
}

func TestBitmapClone(t *testing.T) {
	f := NewFormatFromImageFormat(Mono8, BayerNone)
	orig, _ := NewBitmap(f, 4, 4, 1)
	orig.FillScalar(9)

	clone := orig.Clone()
	require.NoError(t, clone.SetSample(0, 0, 0, 200))

	v, _ := orig.Sample(0, 0, 0)
	require.Equal(t, uint32(9), v, "clone must not alias the original")
}

func TestBitmapClear(t *testing.T) {
	f := NewFormatFromImageFormat(Mono8, BayerNone)
	bmp, _ := NewBitmap(f, 4, 4, 1)
	bmp.FillScalar(5)
	bmp.Clear()
	for _, b := range bmp.Bytes() {
		require.Equal(t, byte(0), b)
	}
}
