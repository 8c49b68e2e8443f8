// Package prd implements the bit-exact PRD container codec: a fixed
// little-endian header, per-frame metadata blocks with fixed-capacity
// trajectory padding, and optionally-aligned raw frame bytes.
package prd

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Signature is the 4-byte PRD magic, read/written as a little-endian
// uint32 (0x00445250, i.e. bytes "PRD\0").
const Signature uint32 = 0x00445250

// Version history: alignment support landed in 0x0008.
const (
	Version1        uint16 = 0x0001
	VersionAlignment uint16 = 0x0008
)

// Flag bits in Header.Flags.
const (
	FlagHasMetadata  uint32 = 1 << 0
	FlagFrameSizeVary uint32 = 1 << 1
	FlagHasAlignment uint32 = 1 << 2
)

// headerSize is the fixed on-disk layout size in bytes (§6.3: "Header is
// 48 bytes fixed layout").
const headerSize = 48

// Region is the on-disk PrdRegion: 6 fields x 2 bytes = 12 bytes.
type Region struct {
	S1, S2 int16
	Sbin   int16
	P1, P2 int16
	Pbin   int16
}

func (r Region) put(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], uint16(r.S1))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(r.S2))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(r.Sbin))
	binary.LittleEndian.PutUint16(buf[6:8], uint16(r.P1))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(r.P2))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(r.Pbin))
}

func getRegion(buf []byte) Region {
	return Region{
		S1:   int16(binary.LittleEndian.Uint16(buf[0:2])),
		S2:   int16(binary.LittleEndian.Uint16(buf[2:4])),
		Sbin: int16(binary.LittleEndian.Uint16(buf[4:6])),
		P1:   int16(binary.LittleEndian.Uint16(buf[6:8])),
		P2:   int16(binary.LittleEndian.Uint16(buf[8:10])),
		Pbin: int16(binary.LittleEndian.Uint16(buf[10:12])),
	}
}

// ExposureResolution selects the unit of Header.ExpTimeRes.
type ExposureResolution uint8

const (
	ExpUs ExposureResolution = iota
	ExpMs
	ExpS
)

// Header is the 48-byte fixed PRD file header.
type Header struct {
	Version        uint16
	BitDepth       uint16
	FrameCount     uint32
	Region         Region
	SizeOfMetadata uint32
	ExpTimeRes     ExposureResolution
	ColorMask      uint8
	ImageFormat    uint16
	FrameSize      uint32
	Flags          uint32
	Alignment      uint32
}

// MarshalBinary encodes the header into its 48-byte on-disk form.
func (h Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], Signature)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], h.BitDepth)
	binary.LittleEndian.PutUint32(buf[8:12], h.FrameCount)
	h.Region.put(buf[12:24])
	binary.LittleEndian.PutUint32(buf[24:28], h.SizeOfMetadata)
	buf[28] = byte(h.ExpTimeRes)
	buf[29] = h.ColorMask
	binary.LittleEndian.PutUint16(buf[30:32], h.ImageFormat)
	binary.LittleEndian.PutUint32(buf[32:36], h.FrameSize)
	binary.LittleEndian.PutUint32(buf[36:40], h.Flags)
	binary.LittleEndian.PutUint32(buf[40:44], h.Alignment)
	// bytes 44:48 reserved, left zero
	return buf, nil
}

// UnmarshalBinary decodes buf (at least headerSize bytes; the rest is ignored) into h,
// validating the signature.
func (h *Header) UnmarshalBinary(buf []byte) error {
	if len(buf) < headerSize {
		return fmt.Errorf("prd: short header: need %d bytes, have %d", headerSize, len(buf))
	}
	sig := binary.LittleEndian.Uint32(buf[0:4])
	if sig != Signature {
		return fmt.Errorf("prd: bad signature %#08x, want %#08x", sig, Signature)
	}
	h.Version = binary.LittleEndian.Uint16(buf[4:6])
	h.BitDepth = binary.LittleEndian.Uint16(buf[6:8])
	h.FrameCount = binary.LittleEndian.Uint32(buf[8:12])
	h.Region = getRegion(buf[12:24])
	h.SizeOfMetadata = binary.LittleEndian.Uint32(buf[24:28])
	h.ExpTimeRes = ExposureResolution(buf[28])
	h.ColorMask = buf[29]
	h.ImageFormat = binary.LittleEndian.Uint16(buf[30:32])
	h.FrameSize = binary.LittleEndian.Uint32(buf[32:36])
	h.Flags = binary.LittleEndian.Uint32(buf[36:40])
	h.Alignment = binary.LittleEndian.Uint32(buf[40:44])
	return nil
}

// HasMetadata, HasAlignment, FrameSizeVaries report the corresponding flag bits.
func (h Header) HasMetadata() bool    { return h.Flags&FlagHasMetadata != 0 }
func (h Header) HasAlignment() bool   { return h.Flags&FlagHasAlignment != 0 && h.Alignment > 1 }
func (h Header) FrameSizeVaries() bool { return h.Flags&FlagFrameSizeVary != 0 }

// Aligned implements the PRD alignment rule: aligned(n) = (n+a-1) &^ (a-1)
// when alignment > 1, identity otherwise.
func Aligned(n int, alignment uint32) int {
	if alignment <= 1 {
		return n
	}
	a := int(alignment)
	return (n + a - 1) &^ (a - 1)
}

var ErrShortRead = errors.New("prd: short read")
