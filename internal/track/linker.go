package track

import "math"

// Centroid is one detected particle in a single frame's metadata, as
// emitted by the camera's centroid ROIs (M0 = intensity sum, M2 =
// intensity * radius^2).
type Centroid struct {
	ROINr int
	X, Y  float64
	M0    float64
	M2    float64
}

type tracked struct {
	id       uint64
	x, y     float64
	roiNr    int
	lifetime int
	points   []Point
}

// Linker maintains a rolling window of recently seen particles and links
// new centroids to them by nearest-neighbor distance.
type Linker struct {
	maxDistance     float64
	linkFrames      int
	maxTrajectories int
	maxPoints       int

	nextID  uint64
	active  []tracked
	history [][]tracked // rolling window, most recent last
}

// NewLinker configures a particle linker. maxPoints is trajectoryDuration+1
// per the component design (one slot per frame in the rolling window, plus
// the current frame).
func NewLinker(linkFrames int, maxDistance float64, maxTrajectories, trajectoryDuration int) *Linker {
	return &Linker{
		maxDistance:     maxDistance,
		linkFrames:      linkFrames,
		maxTrajectories: maxTrajectories,
		maxPoints:       trajectoryDuration + 1,
	}
}

// Update links the given centroids against previously tracked particles
// and returns a capacity-padded Trajectories snapshot for this frame.
func (l *Linker) Update(centroids []Centroid) Trajectories {
	// Candidates are the most recent sighting of every particle in the
	// rolling window.
	var candidates []tracked
	seen := make(map[uint64]bool)
	for h := len(l.history) - 1; h >= 0; h-- {
		for _, a := range l.history[h] {
			if !seen[a.id] {
				seen[a.id] = true
				candidates = append(candidates, a)
			}
		}
	}
	matched := make([]bool, len(candidates))
	next := make([]tracked, 0, len(centroids))

	for _, c := range centroids {
		bestIdx := -1
		bestDist := l.maxDistance
		for i, a := range candidates {
			if matched[i] {
				continue
			}
			d := math.Hypot(c.X-a.x, c.Y-a.y)
			if d <= bestDist {
				bestDist = d
				bestIdx = i
			}
		}

		var t tracked
		if bestIdx >= 0 {
			matched[bestIdx] = true
			prev := candidates[bestIdx]
			t = tracked{
				id:       prev.id,
				x:        c.X,
				y:        c.Y,
				roiNr:    c.ROINr,
				lifetime: prev.lifetime + 1,
				points:   append(append([]Point{}, prev.points...), Point{Valid: true, X: c.X, Y: c.Y}),
			}
		} else {
			l.nextID++
			t = tracked{
				id:       l.nextID,
				x:        c.X,
				y:        c.Y,
				roiNr:    c.ROINr,
				lifetime: 0,
				points:   []Point{{Valid: true, X: c.X, Y: c.Y}},
			}
		}
		if len(t.points) > l.maxPoints {
			t.points = t.points[len(t.points)-l.maxPoints:]
		}
		next = append(next, t)
	}

	l.active = next
	l.history = append(l.history, next)
	if len(l.history) > l.linkFrames {
		l.history = l.history[len(l.history)-l.linkFrames:]
	}

	return l.snapshot()
}

func (l *Linker) snapshot() Trajectories {
	out := NewTrajectories(l.maxTrajectories, l.maxPoints)
	n := len(l.active)
	if n > l.maxTrajectories {
		n = l.maxTrajectories
	}
	out.ActualCount = n
	for i := 0; i < n; i++ {
		a := l.active[i]
		out.Items[i].ROINr = a.roiNr
		out.Items[i].ParticleID = a.id
		out.Items[i].Lifetime = a.lifetime
		out.Items[i].PointCount = len(a.points)
		for j, p := range a.points {
			if j >= l.maxPoints {
				break
			}
			out.Items[i].Points[j] = p
		}
	}
	return out
}
