package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nikgalvaz/camacq/internal/bitmap"
	"github.com/nikgalvaz/camacq/internal/driver"
	"github.com/nikgalvaz/camacq/internal/frame"
	"github.com/nikgalvaz/camacq/internal/framepool"
	"github.com/nikgalvaz/camacq/internal/rgn"
	"github.com/nikgalvaz/camacq/internal/stats"
)

const testFrameBytes = 64

func testAcqCfg() frame.AcqCfg {
	return frame.AcqCfg{
		FrameBytes: testFrameBytes,
		ImpliedROI: rgn.Region{S1: 0, S2: 7, Sbin: 1, P1: 0, P2: 7, Pbin: 1},
		Format:     bitmap.NewFormatFromImageFormat(bitmap.Mono8, bitmap.BayerNone),
	}
}

// scriptedDriver is a driver.Handle test double that lets tests drive an
// exact, manually-paced sequence of frame_nr values instead of relying on
// internal/gen's free-running ticker.
type scriptedDriver struct {
	mu  sync.Mutex
	cb  driver.Callbacks
	buf []byte
}

func newScriptedDriver() *scriptedDriver {
	return &scriptedDriver{buf: make([]byte, testFrameBytes)}
}

func (d *scriptedDriver) Close() error                             { return nil }
func (d *scriptedDriver) Setup(driver.SettingsReader) (int, error) { return testFrameBytes, nil }
func (d *scriptedDriver) Stop() error                              { return nil }
func (d *scriptedDriver) Status() driver.Status                    { return driver.Active }
func (d *scriptedDriver) Trigger() error                           { return nil }
func (d *scriptedDriver) GetLatestFrameIndex() (int, error)        { return 0, nil }
func (d *scriptedDriver) Params() driver.Params                    { return nil }

func (d *scriptedDriver) Start(cb driver.Callbacks) error {
	d.mu.Lock()
	d.cb = cb
	d.mu.Unlock()
	return nil
}

func (d *scriptedDriver) GetLatestFrame(dst []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(dst, d.buf)
	return nil
}

// fire synchronously invokes EOF as a real driver would from its own
// callback goroutine.
func (d *scriptedDriver) fire(nr uint32) {
	d.mu.Lock()
	cb := d.cb
	d.mu.Unlock()
	now := uint64(time.Now().UnixNano())
	cb.EOF(driver.FrameInfo{FrameNr: nr, TsBOF: now, TsEOF: now + 1000})
}

func newTestPipeline(t *testing.T, cfg Config) (*Pipeline, *scriptedDriver) {
	t.Helper()
	pool := framepool.New(4)
	pool.Setup(testAcqCfg(), true, nil)
	acqStats := stats.New(nil, nil, "test-acq")
	diskStats := stats.New(nil, nil, "test-disk")
	drv := newScriptedDriver()
	p := New(cfg, drv, pool, acqStats, diskStats, nil, nil, testFrameBytes)
	return p, drv
}

func TestPipelineLosslessSequence(t *testing.T) {
	cfg := Config{Mode: SnapSequence, Storage: StorageNone, TotalFrames: 20, MaxInFlightSave: 50}
	p, drv := newTestPipeline(t, cfg)

	var delivered []uint32
	var mu sync.Mutex
	p.OnDiskFrame = func(nr uint32) {
		mu.Lock()
		delivered = append(delivered, nr)
		mu.Unlock()
	}

	require.NoError(t, p.Start(context.Background()))
	for i := uint32(1); i <= 20; i++ {
		drv.fire(i)
	}
	_, err := p.WaitForStop(false)
	require.NoError(t, err)

	require.EqualValues(t, 20, p.acqStats.Snapshot().FramesAcquired)
	require.EqualValues(t, 0, p.acqStats.Snapshot().FramesLost)
	require.Zero(t, p.OutOfOrderCount())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, delivered, 20)
	for i := 1; i < len(delivered); i++ {
		require.Greater(t, delivered[i], delivered[i-1], "disk must see strictly increasing frame_nr")
	}
}

func TestPipelineSkippedFrameDetection(t *testing.T) {
	cfg := Config{Mode: SnapSequence, Storage: StorageNone, TotalFrames: 5, MaxInFlightSave: 50}
	p, drv := newTestPipeline(t, cfg)

	var delivered []uint32
	var mu sync.Mutex
	p.OnDiskFrame = func(nr uint32) {
		mu.Lock()
		delivered = append(delivered, nr)
		mu.Unlock()
	}

	require.NoError(t, p.Start(context.Background()))
	for _, nr := range []uint32{1, 2, 3, 5, 6} {
		drv.fire(nr)
		time.Sleep(5 * time.Millisecond)
	}
	_, err := p.WaitForStop(false)
	require.NoError(t, err)

	snap := p.acqStats.Snapshot()
	require.EqualValues(t, 5, snap.FramesAcquired)
	require.EqualValues(t, 1, snap.FramesLost, "a single gap (4) must be reported as one lost frame")

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []uint32{1, 2, 3, 5, 6}, delivered)
}

func TestPipelineOutOfOrderFramesDropped(t *testing.T) {
	cfg := Config{Mode: SnapSequence, Storage: StorageNone, TotalFrames: 5, MaxInFlightSave: 50}
	p, drv := newTestPipeline(t, cfg)

	require.NoError(t, p.Start(context.Background()))
	drv.fire(5)
	time.Sleep(2 * time.Millisecond)
	drv.fire(3) // stale, must be dropped as out-of-order
	time.Sleep(2 * time.Millisecond)
	drv.fire(6)
	time.Sleep(2 * time.Millisecond)
	_, err := p.WaitForStop(false)
	require.NoError(t, err)

	require.EqualValues(t, 1, p.OutOfOrderCount())
	require.EqualValues(t, 2, p.acqStats.Snapshot().FramesAcquired)
}

func TestPipelineBackpressureDropsUnderSlowDisk(t *testing.T) {
	cfg := Config{Mode: SnapSequence, Storage: StorageNone, TotalFrames: 100, MaxInFlightSave: 20}
	p, drv := newTestPipeline(t, cfg)

	var held sync.WaitGroup
	held.Add(1)
	var delivered uint64
	p.OnDiskFrame = func(nr uint32) {
		if nr == 1 {
			held.Wait() // stall the disk thread on the very first frame
		}
		atomic.AddUint64(&delivered, 1)
	}

	require.NoError(t, p.Start(context.Background()))
	for i := uint32(1); i <= 100; i++ {
		drv.fire(i)
	}
	held.Done()

	_, err := p.WaitForStop(false)
	require.NoError(t, err)

	snap := p.acqStats.Snapshot()
	require.EqualValues(t, 100, snap.FramesAcquired)
	require.Greater(t, p.UnsavedCount(), uint64(0), "slow disk thread must force backpressure drops")
	require.Equal(t, snap.FramesAcquired, delivered+p.UnsavedCount(), "every accepted frame is either delivered to disk or counted as an unsaved drop")
}
