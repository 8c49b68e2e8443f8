// Package tiffwriter defines the TIFF writer contract (consumed): the
// concrete multi-page TIFF encoder is out of scope (spec Non-goals), but
// the interface and its construction parameters are specified here so
// internal/pipeline's disk thread can drive an implementation of it;
// internal/tiffwriter/faketiff is a recording implementation used by its
// own tests.
package tiffwriter

import (
	"github.com/nikgalvaz/camacq/internal/bitmap"
	"github.com/nikgalvaz/camacq/internal/prd"
)

// ColorContext carries optional display-time color transform parameters
// (white balance, gamma) a TIFF writer may bake into RGB8 pages.
type ColorContext struct {
	WBRed, WBGreen, WBBlue float32
	Gamma                  float32
}

// Config is how a Writer is constructed: target path, the completed PRD
// header (used only for image-description metadata), a canvas bitmap the
// writer paints pages from, optional color context, and a big-TIFF flag.
type Config struct {
	Path         string
	Header       prd.Header
	Canvas       *bitmap.Bitmap
	Color        *ColorContext
	BigTIFF      bool
}

// Writer is the TIFF writer contract. WritePage writes page n with the
// given plain-text image description (a multi-line dump of PRD header +
// metadata + decoded PVCAM fields per spec §6.4).
type Writer interface {
	WritePage(n int, description string) error
	Close() error
}
