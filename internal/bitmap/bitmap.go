package bitmap

import "fmt"

// defaultAlignment is used when callers don't specify a line alignment.
const defaultAlignment = 1

// Bitmap is a contiguous pixel buffer with a typed Format, width, height,
// and a byte stride possibly padded to a line alignment N.
//
// Two construction modes exist: owning (NewBitmap allocates its own
// buffer) and borrowing (Wrap adopts caller bytes and never frees them).
// Go slices already alias safely without unsafe pointers, so both modes
// share the same storage representation; `owns` only gates whether Clear
// semantics are meaningful to the caller (there is no separate free step).
type Bitmap struct {
	format    Format
	width     int
	height    int
	alignment int
	stride    int
	data      []byte
	owns      bool
}

func strideFor(width int, bpp int, alignment int) int {
	if alignment < 1 {
		alignment = defaultAlignment
	}
	raw := width * bpp
	return ((raw + alignment - 1) / alignment) * alignment
}

// NewBitmap allocates an owning bitmap of the given format/size/alignment.
func NewBitmap(format Format, width, height, alignment int) (*Bitmap, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("bitmap: invalid dimensions %dx%d", width, height)
	}
	stride := strideFor(width, format.BytesPerPixel(), alignment)
	return &Bitmap{
		format:    format,
		width:     width,
		height:    height,
		alignment: alignment,
		stride:    stride,
		data:      make([]byte, stride*height),
		owns:      true,
	}, nil
}

// Wrap builds a borrowing bitmap around caller-owned bytes. The Bitmap
// never reallocates or extends buf; buf must be at least stride*height.
func Wrap(format Format, width, height, alignment int, buf []byte) (*Bitmap, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("bitmap: invalid dimensions %dx%d", width, height)
	}
	stride := strideFor(width, format.BytesPerPixel(), alignment)
	if len(buf) < stride*height {
		return nil, fmt.Errorf("bitmap: buffer too small: need %d, have %d", stride*height, len(buf))
	}
	return &Bitmap{
		format:    format,
		width:     width,
		height:    height,
		alignment: alignment,
		stride:    stride,
		data:      buf[:stride*height],
		owns:      false,
	}, nil
}

func (b *Bitmap) Format() Format  { return b.format }
func (b *Bitmap) Width() int      { return b.width }
func (b *Bitmap) Height() int     { return b.height }
func (b *Bitmap) Stride() int     { return b.stride }
func (b *Bitmap) Alignment() int  { return b.alignment }
func (b *Bitmap) Owns() bool      { return b.owns }
func (b *Bitmap) Bytes() []byte   { return b.data }

// Scanline returns the byte slice for row y (length == Stride()).
func (b *Bitmap) Scanline(y int) ([]byte, error) {
	if y < 0 || y >= b.height {
		return nil, fmt.Errorf("bitmap: row %d out of range [0,%d)", y, b.height)
	}
	start := y * b.stride
	return b.data[start : start+b.stride], nil
}

// Sample reads the sample at (x, y, channel) widened to uint32, regardless
// of the underlying DataType.
func (b *Bitmap) Sample(x, y, channel int) (uint32, error) {
	line, err := b.Scanline(y)
	if err != nil {
		return 0, err
	}
	if x < 0 || x >= b.width {
		return 0, fmt.Errorf("bitmap: col %d out of range [0,%d)", x, b.width)
	}
	spp := b.format.SamplesPerPixel()
	if channel < 0 || channel >= spp {
		return 0, fmt.Errorf("bitmap: channel %d out of range [0,%d)", channel, spp)
	}
	bps := b.format.BytesPerSample()
	off := x*spp*bps + channel*bps
	switch bps {
	case 1:
		return uint32(line[off]), nil
	case 2:
		return uint32(line[off]) | uint32(line[off+1])<<8, nil
	case 4:
		return uint32(line[off]) | uint32(line[off+1])<<8 | uint32(line[off+2])<<16 | uint32(line[off+3])<<24, nil
	default:
		return 0, fmt.Errorf("bitmap: unsupported sample width %d", bps)
	}
}

// SetSample writes value into the sample at (x, y, channel), narrowing if
// the destination carrier is smaller than 32 bits.
func (b *Bitmap) SetSample(x, y, channel int, value uint32) error {
	line, err := b.Scanline(y)
	if err != nil {
		return err
	}
	if x < 0 || x >= b.width {
		return fmt.Errorf("bitmap: col %d out of range [0,%d)", x, b.width)
	}
	spp := b.format.SamplesPerPixel()
	if channel < 0 || channel >= spp {
		return fmt.Errorf("bitmap: channel %d out of range [0,%d)", channel, spp)
	}
	bps := b.format.BytesPerSample()
	off := x*spp*bps + channel*bps
	switch bps {
	case 1:
		line[off] = byte(value)
	case 2:
		line[off] = byte(value)
		line[off+1] = byte(value >> 8)
	case 4:
		line[off] = byte(value)
		line[off+1] = byte(value >> 8)
		line[off+2] = byte(value >> 16)
		line[off+3] = byte(value >> 24)
	default:
		return fmt.Errorf("bitmap: unsupported sample width %d", bps)
	}
	return nil
}

// Clone returns a new owning Bitmap with the same format/size and a copy
// of the pixel bytes.
func (b *Bitmap) Clone() *Bitmap {
	data := make([]byte, len(b.data))
	copy(data, b.data)
	return &Bitmap{
		format:    b.format,
		width:     b.width,
		height:    b.height,
		alignment: b.alignment,
		stride:    b.stride,
		data:      data,
		owns:      true,
	}
}

// FillFrom copies src into b at destination offset (dx, dy). Requires
// matching pixel type and that src fits within b at that offset.
func (b *Bitmap) FillFrom(src *Bitmap, dx, dy int) error {
	if src.format.PixelType() != b.format.PixelType() {
		return fmt.Errorf("bitmap: pixel type mismatch: dst=%v src=%v", b.format.PixelType(), src.format.PixelType())
	}
	if dx < 0 || dy < 0 || dx+src.width > b.width || dy+src.height > b.height {
		return fmt.Errorf("bitmap: source %dx%d does not fit at (%d,%d) in %dx%d destination",
			src.width, src.height, dx, dy, b.width, b.height)
	}
	rowBytes := src.width * src.format.BytesPerPixel()
	dstBpp := b.format.BytesPerPixel()
	for y := 0; y < src.height; y++ {
		srcLine, _ := src.Scanline(y)
		dstLine, _ := b.Scanline(dy + y)
		dstOff := dx * dstBpp
		copy(dstLine[dstOff:dstOff+rowBytes], srcLine[:rowBytes])
	}
	return nil
}

// FillScalar sets every sample in the bitmap to value (narrowed per carrier).
func (b *Bitmap) FillScalar(value uint32) {
	spp := b.format.SamplesPerPixel()
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			for c := 0; c < spp; c++ {
				_ = b.SetSample(x, y, c, value)
			}
		}
	}
}

// Clear zeroes the entire pixel buffer.
func (b *Bitmap) Clear() {
	for i := range b.data {
		b.data[i] = 0
	}
}
