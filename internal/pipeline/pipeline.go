// Package pipeline implements the three-worker acquisition pipeline
// (C7): a driver-callback producer, an acquisition goroutine that deep
// copies frames and enforces ordering, and a disk goroutine that tracks
// particles and writes kept frames to a Sink, all coordinated through
// two condition-variable-backed queues and a shared FramePool.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/nikgalvaz/camacq/internal/applog"
	"github.com/nikgalvaz/camacq/internal/driver"
	"github.com/nikgalvaz/camacq/internal/frame"
	"github.com/nikgalvaz/camacq/internal/framepool"
	"github.com/nikgalvaz/camacq/internal/ring"
	"github.com/nikgalvaz/camacq/internal/stats"
	"github.com/nikgalvaz/camacq/internal/track"
)

// Config describes one acquisition run's shape.
type Config struct {
	Mode            AcqMode
	Storage         StorageKind
	SaveFirst       int
	SaveLast        int
	TotalFrames     int // T; meaningful only when Mode.Bounded()
	MaxInFlightSave int
	TrackingEnabled bool
}

// Pipeline wires a driver.Handle source, a FramePool, and a Sink into
// the three-worker acquisition flow described in the component design.
type Pipeline struct {
	cfg    Config
	src    driver.Handle
	pool   *framepool.Pool
	linker *track.Linker
	sink   Sink

	acqStats  *stats.Stats
	diskStats *stats.Stats

	toBeProcessed *queue
	toBeSaved     *queue

	scratch []byte

	haveLastAcq     bool
	lastAcqFrameNr  uint32
	outOfOrderCount uint64
	unsavedDropped  uint64

	abortRequested atomic.Bool
	abortBuffered  atomic.Bool
	naturalStop    atomic.Bool

	policy savePolicy
	ring   *ring.Buffer[*frame.Frame]

	totalSeen int
	seenMu    sync.Mutex

	// OnDiskFrame, if set, is called with each frame_nr as it is popped
	// by the disk thread, before tracking/writing — used by tests and by
	// UI-facing consumers that don't need a real Sink (storage=None runs).
	OnDiskFrame func(nr uint32)

	g *errgroup.Group
}

// New constructs a Pipeline. frameBytes sizes the producer's scratch
// buffer (the stand-in for the driver's live DMA slot). sink may be nil
// when cfg.Storage == StorageNone.
func New(cfg Config, src driver.Handle, pool *framepool.Pool, acqStats, diskStats *stats.Stats, linker *track.Linker, sink Sink, frameBytes int) *Pipeline {
	p := &Pipeline{
		cfg:           cfg,
		src:           src,
		pool:          pool,
		linker:        linker,
		sink:          sink,
		acqStats:      acqStats,
		diskStats:     diskStats,
		toBeProcessed: newQueue(),
		toBeSaved:     newQueue(),
		scratch:       make([]byte, frameBytes),
	}
	if cfg.Mode.Bounded() {
		p.policy = newSavePolicy(cfg.TotalFrames, cfg.SaveFirst, cfg.SaveLast)
	} else if cfg.SaveLast > 0 {
		p.ring = ring.New[*frame.Frame](cfg.SaveLast)
	}
	return p
}

// EOF implements driver.Callbacks: the producer step run on the driver's
// own callback goroutine. It never blocks on I/O and never allocates
// beyond pool.Take (O(1) when warm).
func (p *Pipeline) EOF(info driver.FrameInfo) {
	f := p.pool.Take()
	if err := p.src.GetLatestFrame(p.scratch); err != nil {
		applog.L().Warnw("pipeline: GetLatestFrame failed, dropping frame", "frame_nr", info.FrameNr, "err", err)
		p.pool.Release(f)
		return
	}
	f.SetDataPtr(p.scratch, frame.Info{
		FrameNr: info.FrameNr,
		TsBOF:   info.TsBOF,
		TsEOF:   info.TsEOF,
		ExpTime: info.ExpTime,
		WBRed:   info.WBRed,
		WBGreen: info.WBGreen,
		WBBlue:  info.WBBlue,
	})
	p.toBeProcessed.Push(f)
	p.acqStats.SetQueueSize(p.toBeProcessed.Len())
}

// Removal implements driver.Callbacks: the device vanished. Treated as
// an unbuffered abort so both workers wind down promptly.
func (p *Pipeline) Removal() {
	applog.L().Warnw("pipeline: device removal reported by driver")
	p.RequestAbort(true)
}

// Start launches the driver and the two worker goroutines.
func (p *Pipeline) Start(ctx context.Context) error {
	if err := p.src.Start(p); err != nil {
		return fmt.Errorf("pipeline: starting driver: %w", err)
	}
	g, _ := errgroup.WithContext(ctx)
	p.g = g
	g.Go(p.acqLoop)
	g.Go(p.diskLoop)
	return nil
}

// RequestAbort signals both workers to wind down. abortBuffered selects
// whether the disk thread drains toBeSaved (false) or drops pending
// saves and exits after its current frame (true).
func (p *Pipeline) RequestAbort(abortBuffered bool) {
	p.abortRequested.Store(true)
	p.abortBuffered.Store(abortBuffered)
	p.toBeProcessed.Close()
}

// WaitForStop stops the driver, joins both workers, and optionally logs
// a final stats snapshot. It returns true if the stop was triggered by
// RequestAbort rather than the driver stopping naturally.
func (p *Pipeline) WaitForStop(printStats bool) (abortedEarly bool, err error) {
	_ = p.src.Stop()
	p.toBeProcessed.Close()
	err = p.g.Wait()
	abortedEarly = p.abortRequested.Load()

	if printStats {
		acq := p.acqStats.Snapshot()
		disk := p.diskStats.Snapshot()
		applog.L().Infow("pipeline stopped",
			"aborted", abortedEarly,
			"frames_acquired", acq.FramesAcquired,
			"frames_lost", acq.FramesLost,
			"out_of_order", p.outOfOrderCount,
			"unsaved", p.unsavedDropped,
			"peak_queue", acq.PeakQueue,
			"disk_peak_queue", disk.PeakQueue,
		)
	}
	return abortedEarly, err
}

// Stats exposes the two worker-owned stats trackers for UI sampling.
func (p *Pipeline) Stats() (acq, disk *stats.Stats) { return p.acqStats, p.diskStats }

// OutOfOrderCount returns the number of frames dropped for arriving with
// a frame_nr not greater than the last accepted one.
func (p *Pipeline) OutOfOrderCount() uint64 { return atomic.LoadUint64(&p.outOfOrderCount) }

// UnsavedCount returns the number of frames dropped from toBeSaved under
// backpressure.
func (p *Pipeline) UnsavedCount() uint64 { return atomic.LoadUint64(&p.unsavedDropped) }

func (p *Pipeline) acqLoop() error {
	for {
		f, ok := p.toBeProcessed.Pop()
		if !ok {
			break
		}
		if p.abortRequested.Load() && p.abortBuffered.Load() {
			p.pool.Release(f)
			continue
		}

		if err := f.CopyData(nil); err != nil {
			applog.L().Warnw("pipeline: copy_data failed", "err", err)
			p.pool.Release(f)
			continue
		}
		if f.AcqCfg().HasMetadata {
			if err := f.DecodeMetadata(); err != nil {
				applog.L().Warnw("pipeline: decode_metadata failed", "err", err)
				p.pool.Release(f)
				continue
			}
		}

		nr := f.Info().FrameNr
		switch {
		case !p.haveLastAcq:
			p.haveLastAcq = true
			p.lastAcqFrameNr = nr
			p.acqStats.ReportAcquired(1)
		case nr == p.lastAcqFrameNr+1:
			p.lastAcqFrameNr = nr
			p.acqStats.ReportAcquired(1)
		case nr > p.lastAcqFrameNr+1:
			lost := uint64(nr - p.lastAcqFrameNr - 1)
			p.acqStats.ReportLost(lost)
			p.acqStats.ReportAcquired(1)
			p.lastAcqFrameNr = nr
		default:
			atomic.AddUint64(&p.outOfOrderCount, 1)
			p.pool.Release(f)
			continue
		}

		if dropped := p.toBeSaved.DropOldestIfOver(p.cfg.MaxInFlightSave); dropped != nil {
			atomic.AddUint64(&p.unsavedDropped, 1)
			p.pool.Release(dropped)
		}
		p.toBeSaved.Push(f)
		p.acqStats.SetQueueSize(p.toBeSaved.Len())
	}
	p.toBeSaved.Close()
	return nil
}

func (p *Pipeline) diskLoop() error {
	for {
		f, ok := p.toBeSaved.Pop()
		if !ok {
			break
		}
		if p.abortRequested.Load() && p.abortBuffered.Load() {
			p.pool.Release(f)
			continue
		}
		p.processSavedFrame(f)
	}
	p.flushRing()
	return nil
}

func (p *Pipeline) processSavedFrame(f *frame.Frame) {
	nr := f.Info().FrameNr
	if p.OnDiskFrame != nil {
		p.OnDiskFrame(nr)
	}

	var traj *track.Trajectories
	if p.cfg.TrackingEnabled && p.linker != nil {
		t := p.linker.Update(centroidsFromFrame(f))
		f.SetTrajectories(t)
		traj = &t
	}

	p.seenMu.Lock()
	idx := p.totalSeen
	p.totalSeen++
	p.seenMu.Unlock()

	keep := true
	hold := false
	switch {
	case p.cfg.Mode.Bounded():
		keep = p.policy.Keep(idx)
	case p.ring != nil:
		keep = idx < p.cfg.SaveFirst
		hold = !keep
	}

	if keep {
		p.writeFrame(idx, f, traj)
	}
	if hold {
		p.ring.Push(f)
		return // frame stays referenced by the ring until flushRing
	}
	p.pool.Release(f)
	p.diskStats.SetQueueSize(p.toBeSaved.Len())
}

func (p *Pipeline) writeFrame(idx int, f *frame.Frame, traj *track.Trajectories) {
	if p.cfg.Storage == StorageNone || p.sink == nil {
		return
	}
	if err := p.sink.WriteFrame(idx, f, traj); err != nil {
		applog.L().Warnw("pipeline: write frame failed", "frame_nr", f.Info().FrameNr, "err", err)
	}
}

// flushRing writes whatever is held in the live-mode save_last ring on a
// clean stop (not on an unbuffered abort, which discards pending saves).
func (p *Pipeline) flushRing() {
	if p.ring == nil || (p.abortRequested.Load() && p.abortBuffered.Load()) {
		return
	}
	for i, f := range p.ring.Items() {
		p.writeFrame(p.cfg.SaveFirst+i, f, f.Trajectories())
		p.pool.Release(f)
	}
}

// centroidsFromFrame reads particle centroid metadata out of the frame's
// decoded extended ROI metadata (DecodedMetadata.Extended, as populated by
// a PVCAMDecoder such as gen.Decoder). Returns nil when the frame carries
// no metadata or no ROI has extended centroid data attached.
func centroidsFromFrame(f *frame.Frame) []track.Centroid {
	ext := f.Extended()
	if len(ext) == 0 {
		return nil
	}
	views := f.ROIViews()
	centroids := make([]track.Centroid, 0, len(ext))
	for i, v := range views {
		m, ok := ext[i]
		if !ok {
			continue
		}
		centroids = append(centroids, track.Centroid{
			ROINr: i,
			X:     float64(v.X) + float64(v.Region.Region.Width())/2,
			Y:     float64(v.Y) + float64(v.Region.Region.Height())/2,
			M0:    m.M0,
			M2:    m.M2,
		})
	}
	return centroids
}

var _ driver.Callbacks = (*Pipeline)(nil)
