// Package stats implements AcquisitionStats: running queue-depth peak,
// frame counters, and rolling/overall frame-period means, as described
// in the acquisition core's component design. It also exposes the same
// counters as Prometheus instruments for the UI-visible stats ticker.
package stats

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// avgWindow is the minimum span, in wall-clock time, over which the
// rolling frame-period average is recomputed.
const avgWindow = 500 * time.Millisecond

// Clock abstracts wall-clock reads so tests can drive deterministic time.
type Clock func() time.Time

// Stats tracks acquisition counters since the last Reset. Every method
// takes the internal lock, so an instance may be updated from more than
// one goroutine (the pipeline's acq instance is updated by both the driver
// callback and the acq worker); readers call Snapshot for a consistent view.
type Stats struct {
	mu    sync.RWMutex
	clock Clock

	framesAcquired uint64
	framesLost     uint64

	firstT     time.Time
	firstCount uint64
	haveFirst  bool

	lastT     time.Time
	lastCount uint64

	framePeriod time.Duration
	overall     time.Duration

	lastAvgT     time.Time
	lastAvgCount uint64
	avgPeriod    time.Duration

	queueSize    int
	peakQueue    int
	queueCap     int

	metrics *metrics
}

type metrics struct {
	acquired  prometheus.Counter
	lost      prometheus.Counter
	queue     prometheus.Gauge
	peakQueue prometheus.Gauge
	period    prometheus.Histogram
}

// New creates a Stats tracker. If reg is non-nil, it registers Prometheus
// instruments under that registry labeled with name (e.g. the camera or
// run identifier), so multiple concurrent acquisitions don't collide.
func New(clock Clock, reg *prometheus.Registry, name string) *Stats {
	if clock == nil {
		clock = time.Now
	}
	s := &Stats{clock: clock, queueCap: 1}
	if reg != nil {
		s.metrics = newMetrics(reg, name)
	}
	return s
}

func newMetrics(reg *prometheus.Registry, name string) *metrics {
	labels := prometheus.Labels{"camera": name}
	m := &metrics{
		acquired: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "camacq_frames_acquired_total",
			Help:        "Frames accepted into the acquisition pipeline.",
			ConstLabels: labels,
		}),
		lost: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "camacq_frames_lost_total",
			Help:        "Frames detected missing via a frame_nr gap.",
			ConstLabels: labels,
		}),
		queue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "camacq_queue_depth",
			Help:        "Current depth of the acquisition queue.",
			ConstLabels: labels,
		}),
		peakQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "camacq_peak_queue_depth",
			Help:        "Highest observed queue depth since reset.",
			ConstLabels: labels,
		}),
		period: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "camacq_frame_period_seconds",
			Help:        "Observed inter-frame period.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
	reg.MustRegister(m.acquired, m.lost, m.queue, m.peakQueue, m.period)
	return m
}

// ReportAcquired records n newly acquired frames at the current clock time.
func (s *Stats) ReportAcquired(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.update(n)
	s.framesAcquired += n
	if s.metrics != nil {
		s.metrics.acquired.Add(float64(n))
	}
}

// ReportLost records n frames detected missing (frame_nr gap).
func (s *Stats) ReportLost(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.update(n)
	s.framesLost += n
	if s.metrics != nil {
		s.metrics.lost.Add(float64(n))
	}
}

// update implements the shared counter/period bookkeeping rule from the
// component design: on the very first report it seeds the window, on
// every subsequent report it derives the instantaneous and overall period,
// and re-derives the rolling average once avgWindow has elapsed.
func (s *Stats) update(n uint64) {
	t := s.clock()
	total := s.framesAcquired + s.framesLost + n

	if !s.haveFirst {
		s.firstT = t
		s.firstCount = total
		s.lastT = t
		s.lastCount = total
		s.lastAvgT = t
		s.lastAvgCount = total
		s.haveFirst = true
		return
	}

	if n > 0 {
		s.framePeriod = t.Sub(s.lastT) / time.Duration(n)
	}
	s.lastT = t
	s.lastCount = total

	if total > s.firstCount {
		s.overall = t.Sub(s.firstT) / time.Duration(total-s.firstCount)
	}

	if t.Sub(s.lastAvgT) >= avgWindow {
		if total > s.lastAvgCount {
			s.avgPeriod = t.Sub(s.lastAvgT) / time.Duration(total-s.lastAvgCount)
			if s.metrics != nil {
				s.metrics.period.Observe(s.avgPeriod.Seconds())
			}
		}
		s.lastAvgT = t
		s.lastAvgCount = total
	}
}

// SetQueueSize records the current queue depth and raises the running
// peak monotonically.
func (s *Stats) SetQueueSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queueSize = n
	if n > s.peakQueue {
		s.peakQueue = n
	}
	if s.metrics != nil {
		s.metrics.queue.Set(float64(n))
		s.metrics.peakQueue.Set(float64(s.peakQueue))
	}
}

// SetQueueCapacity clamps the tracked queue capacity to >= 1; callers use
// this purely for reporting (the queues themselves are unbounded).
func (s *Stats) SetQueueCapacity(n int) {
	if n < 1 {
		n = 1
	}
	s.mu.Lock()
	s.queueCap = n
	s.mu.Unlock()
}

// Snapshot is a point-in-time, immutable copy of the counters, safe to
// read from any goroutine.
type Snapshot struct {
	FramesAcquired   uint64
	FramesLost       uint64
	QueueSize        int
	PeakQueue        int
	QueueCapacity    int
	FramePeriod      time.Duration
	RollingAvgPeriod time.Duration
	OverallAvgPeriod time.Duration
}

// Snapshot returns a consistent copy of all counters under a read lock.
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		FramesAcquired:   s.framesAcquired,
		FramesLost:       s.framesLost,
		QueueSize:        s.queueSize,
		PeakQueue:        s.peakQueue,
		QueueCapacity:    s.queueCap,
		FramePeriod:      s.framePeriod,
		RollingAvgPeriod: s.avgPeriod,
		OverallAvgPeriod: s.overall,
	}
}

// InstantRate returns 1/period, or 0 if period is 0 (no data yet).
func (sn Snapshot) InstantRate() float64 { return rateOf(sn.FramePeriod) }

// RollingRate returns 1/rolling-average-period, or 0 if not yet available.
func (sn Snapshot) RollingRate() float64 { return rateOf(sn.RollingAvgPeriod) }

// OverallRate returns 1/overall-average-period, or 0 if not yet available.
func (sn Snapshot) OverallRate() float64 { return rateOf(sn.OverallAvgPeriod) }

func rateOf(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(time.Second) / float64(d)
}

// Reset clears all counters and re-arms the window, as if newly constructed.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s = Stats{clock: s.clock, queueCap: s.queueCap, metrics: s.metrics}
}
