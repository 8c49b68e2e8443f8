package frame

import "github.com/nikgalvaz/camacq/internal/rgn"

// ROIRaw is one decoded region-of-interest header: its region, its
// position within the full sensor, whether it carries pixel data (some
// ROIs are header-only, e.g. padding or discarded particle slots), and
// the byte range of its pixel data within the frame's raw buffer.
type ROIRaw struct {
	Region     rgn.Region
	X, Y       int
	HeaderOnly bool
	DataOffset int
	DataLen    int
}

// ExtMeta is the particle centroid metadata attached to one ROI.
type ExtMeta struct {
	M0         float64
	M2         float64
	ParticleID uint64
}

// DecodedMetadata is what a PVCAMDecoder produces from a raw frame buffer.
type DecodedMetadata struct {
	ROIs     []ROIRaw
	Extended map[int]ExtMeta // keyed by ROI number
}

// PVCAMDecoder is the injected metadata decoder (external collaborator):
// it understands the PVCAM-style header + data-range + extended-metadata
// layout embedded in a raw frame buffer when AcqCfg.HasMetadata is set.
type PVCAMDecoder interface {
	Decode(raw []byte) (DecodedMetadata, error)
}
