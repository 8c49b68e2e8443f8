package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fakeClock(start time.Time) (Clock, func(time.Duration)) {
	cur := start
	return func() time.Time { return cur }, func(d time.Duration) { cur = cur.Add(d) }
}

func TestReportAcquiredSeedsWindow(t *testing.T) {
	clock, advance := fakeClock(time.Unix(0, 0))
	s := New(clock, nil, "test")

	s.ReportAcquired(1)
	snap := s.Snapshot()
	require.Equal(t, uint64(1), snap.FramesAcquired)
	require.Equal(t, time.Duration(0), snap.FramePeriod)

	advance(10 * time.Millisecond)
	s.ReportAcquired(1)
	snap = s.Snapshot()
	require.Equal(t, 10*time.Millisecond, snap.FramePeriod)
}

func TestQueuePeakMonotonic(t *testing.T) {
	clock, _ := fakeClock(time.Unix(0, 0))
	s := New(clock, nil, "test")

	s.SetQueueSize(3)
	s.SetQueueSize(7)
	s.SetQueueSize(2)

	snap := s.Snapshot()
	require.Equal(t, 2, snap.QueueSize)
	require.Equal(t, 7, snap.PeakQueue)
}

func TestQueueCapacityClampsToOne(t *testing.T) {
	s := New(nil, nil, "test")
	s.SetQueueCapacity(0)
	require.Equal(t, 1, s.Snapshot().QueueCapacity)
	s.SetQueueCapacity(-5)
	require.Equal(t, 1, s.Snapshot().QueueCapacity)
}

func TestRollingAverageRecomputesAfterWindow(t *testing.T) {
	clock, advance := fakeClock(time.Unix(0, 0))
	s := New(clock, nil, "test")

	s.ReportAcquired(1) // seed
	for i := 0; i < 50; i++ {
		advance(10 * time.Millisecond)
		s.ReportAcquired(1)
	}
	snap := s.Snapshot()
	require.InDelta(t, 10*time.Millisecond, snap.RollingAvgPeriod, float64(2*time.Millisecond))
	require.InDelta(t, 100.0, snap.RollingRate(), 20)
}

func TestReportLostContributesToOverall(t *testing.T) {
	clock, advance := fakeClock(time.Unix(0, 0))
	s := New(clock, nil, "test")

	s.ReportAcquired(1)
	advance(5 * time.Millisecond)
	s.ReportLost(2)
	advance(5 * time.Millisecond)
	s.ReportAcquired(1)

	snap := s.Snapshot()
	require.Equal(t, uint64(2), snap.FramesAcquired)
	require.Equal(t, uint64(2), snap.FramesLost)
	require.Greater(t, snap.OverallAvgPeriod, time.Duration(0))
}

func TestResetClearsCounters(t *testing.T) {
	s := New(nil, nil, "test")
	s.ReportAcquired(5)
	s.SetQueueSize(9)
	s.Reset()

	snap := s.Snapshot()
	require.Equal(t, uint64(0), snap.FramesAcquired)
	require.Equal(t, 0, snap.PeakQueue)
}

func TestRateHelpersZeroOnNoData(t *testing.T) {
	var snap Snapshot
	require.Equal(t, 0.0, snap.InstantRate())
	require.Equal(t, 0.0, snap.RollingRate())
	require.Equal(t, 0.0, snap.OverallRate())
}
