// Package faketiff is a recording tiffwriter.Writer test double: it
// captures every WritePage call instead of encoding real TIFF bytes, so
// internal/pipeline's disk thread can be exercised end-to-end without a
// real TIFF encoder.
package faketiff

import (
	"fmt"
	"sync"

	"github.com/nikgalvaz/camacq/internal/tiffwriter"
)

// Page is one recorded WritePage call.
type Page struct {
	N           int
	Description string
}

// Writer records pages written to it and can be made to fail.
type Writer struct {
	cfg    tiffwriter.Config
	mu     sync.Mutex
	pages  []Page
	closed bool
	FailOn int // if > 0, WritePage(n) fails when n == FailOn
}

// New returns a faketiff.Writer honoring cfg (cfg.Path/Canvas/Header are
// stored but never touch disk).
func New(cfg tiffwriter.Config) *Writer {
	return &Writer{cfg: cfg}
}

func (w *Writer) WritePage(n int, description string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("faketiff: WritePage after Close")
	}
	if w.FailOn > 0 && n == w.FailOn {
		return fmt.Errorf("faketiff: injected failure at page %d", n)
	}
	w.pages = append(w.pages, Page{N: n, Description: description})
	return nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

// Pages returns the recorded pages in write order.
func (w *Writer) Pages() []Page {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Page, len(w.pages))
	copy(out, w.pages)
	return out
}

// Closed reports whether Close has been called.
func (w *Writer) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

var _ tiffwriter.Writer = (*Writer)(nil)
