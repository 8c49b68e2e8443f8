// Package track implements particle tracking across frames (TrackNewFrame):
// nearest-neighbor linking of per-frame centroids into persistent
// trajectories, with fixed-capacity serialization so every PRD frame is
// the same size.
package track

// Point is one trajectory sample in full-sensor coordinates (no binning).
type Point struct {
	Valid bool
	X, Y  float64
}

// Trajectory is the ordered path of one tracked particle.
type Trajectory struct {
	ROINr       int
	ParticleID  uint64
	Lifetime    int
	PointCount  int
	Points      []Point // capacity == Trajectories.MaxPoints
}

// Trajectories is the fixed-capacity container attached to a Frame once
// tracking runs. MaxTrajectories/MaxPoints are set once at Linker setup so
// every serialized frame occupies the same number of bytes regardless of
// how many particles or points are actually present.
type Trajectories struct {
	MaxTrajectories int
	MaxPoints       int
	ActualCount     int
	Items           []Trajectory // len == MaxTrajectories, padded
}

// NewTrajectories allocates a zero-valued, fully padded container.
func NewTrajectories(maxTrajectories, maxPoints int) Trajectories {
	items := make([]Trajectory, maxTrajectories)
	for i := range items {
		items[i].Points = make([]Point, maxPoints)
	}
	return Trajectories{
		MaxTrajectories: maxTrajectories,
		MaxPoints:       maxPoints,
		Items:           items,
	}
}
