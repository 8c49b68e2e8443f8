// Package bitmap implements the typed pixel buffer described in the
// acquisition core's data model: a BitmapFormat carrying image-format,
// pixel-type, sample data-type, bit-depth and Bayer mask, plus the Bitmap
// itself (stride, alignment, owning/borrowing storage).
package bitmap

import "fmt"

// ImageFormat enumerates the wire/storage pixel layouts the core understands.
type ImageFormat int

const (
	Mono8 ImageFormat = iota
	Mono16
	Mono32
	Bayer8
	Bayer16
	Bayer32
	RGB24
	RGB48
	RGB96
)

// PixelType distinguishes single-sample from three-sample pixels.
type PixelType int

const (
	PixelMono PixelType = iota
	PixelRGB
)

// DataType is the sample carrier width.
type DataType int

const (
	DataU8 DataType = iota
	DataU16
	DataU32
)

// BayerPattern identifies the color filter array tiling, if any.
type BayerPattern int

const (
	BayerNone BayerPattern = iota
	BayerRGGB
	BayerGRBG
	BayerGBRG
	BayerBGGR
)

// bytes returns the storage width of one sample of dt.
func (dt DataType) bytes() int {
	switch dt {
	case DataU8:
		return 1
	case DataU16:
		return 2
	case DataU32:
		return 4
	default:
		return 0
	}
}

// samples returns 1 for mono pixel types, 3 for RGB.
func (pt PixelType) samples() int {
	if pt == PixelRGB {
		return 3
	}
	return 1
}

// Format is the BitmapFormat of the data model. ImageFormat and
// (PixelType, DataType) are redundant encodings of the same fact: whichever
// setter is called re-derives the other so the two never disagree.
type Format struct {
	imageFormat ImageFormat
	pixelType   PixelType
	dataType    DataType
	bitDepth    int
	bayer       BayerPattern
}

// NewFormatFromImageFormat builds a Format from an ImageFormat, deriving
// PixelType and DataType, and sets bitDepth to the carrier's full width.
func NewFormatFromImageFormat(f ImageFormat, bayer BayerPattern) Format {
	fmt := Format{imageFormat: f, bayer: bayer}
	fmt.setFromImageFormat(f)
	fmt.bitDepth = fmt.dataType.bytes() * 8
	return fmt
}

// NewFormatFromPixelType builds a Format from (PixelType, DataType, bitDepth),
// deriving the equivalent ImageFormat.
func NewFormatFromPixelType(pt PixelType, dt DataType, bitDepth int, bayer BayerPattern) (Format, error) {
	f := Format{pixelType: pt, dataType: dt, bitDepth: bitDepth, bayer: bayer}
	imgFmt, err := imageFormatFor(pt, dt, bayer)
	if err != nil {
		return Format{}, err
	}
	f.imageFormat = imgFmt
	if bitDepth > dt.bytes()*8 {
		return Format{}, fmt.Errorf("bitmap: bit depth %d exceeds sample width %d", bitDepth, dt.bytes()*8)
	}
	return f, nil
}

func (f *Format) setFromImageFormat(imgFmt ImageFormat) {
	f.imageFormat = imgFmt
	switch imgFmt {
	case Mono8:
		f.pixelType, f.dataType = PixelMono, DataU8
	case Mono16, Bayer16:
		f.pixelType, f.dataType = PixelMono, DataU16
	case Mono32, Bayer32:
		f.pixelType, f.dataType = PixelMono, DataU32
	case Bayer8:
		f.pixelType, f.dataType = PixelMono, DataU8
	case RGB24:
		f.pixelType, f.dataType = PixelRGB, DataU8
	case RGB48:
		f.pixelType, f.dataType = PixelRGB, DataU16
	case RGB96:
		f.pixelType, f.dataType = PixelRGB, DataU32
	}
}

func imageFormatFor(pt PixelType, dt DataType, bayer BayerPattern) (ImageFormat, error) {
	mono := bayer == BayerNone
	switch {
	case pt == PixelMono && dt == DataU8 && mono:
		return Mono8, nil
	case pt == PixelMono && dt == DataU16 && mono:
		return Mono16, nil
	case pt == PixelMono && dt == DataU32 && mono:
		return Mono32, nil
	case pt == PixelMono && dt == DataU8 && !mono:
		return Bayer8, nil
	case pt == PixelMono && dt == DataU16 && !mono:
		return Bayer16, nil
	case pt == PixelMono && dt == DataU32 && !mono:
		return Bayer32, nil
	case pt == PixelRGB && dt == DataU8:
		return RGB24, nil
	case pt == PixelRGB && dt == DataU16:
		return RGB48, nil
	case pt == PixelRGB && dt == DataU32:
		return RGB96, nil
	default:
		return 0, fmt.Errorf("bitmap: no image format for pixel type %v / data type %v", pt, dt)
	}
}

func (f Format) ImageFormat() ImageFormat { return f.imageFormat }
func (f Format) PixelType() PixelType     { return f.pixelType }
func (f Format) DataType() DataType       { return f.dataType }
func (f Format) BitDepth() int            { return f.bitDepth }
func (f Format) Bayer() BayerPattern      { return f.bayer }

// SamplesPerPixel returns 1 for mono pixel types, 3 for RGB.
func (f Format) SamplesPerPixel() int { return f.pixelType.samples() }

// BytesPerSample returns the storage width of one sample.
func (f Format) BytesPerSample() int { return f.dataType.bytes() }

// BytesPerPixel is the fundamental invariant: samples/pixel * bytes/sample.
func (f Format) BytesPerPixel() int {
	return f.SamplesPerPixel() * f.BytesPerSample()
}
