// Package gen implements a fake camera driver (C8): a synthetic frame
// source satisfying the driver.Driver/driver.Handle contract so the
// acquisition pipeline runs end-to-end without real hardware. It
// supports fixed-rate free-run, a variable-timed/smart-streaming
// exposure list cycled round-robin, and a time-lapse re-arm watchdog.
package gen

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/nikgalvaz/camacq/internal/applog"
	"github.com/nikgalvaz/camacq/internal/driver"
)

// defaultTimeLapseSlack is added to (delay + readout) before the watchdog
// decides a time-lapse trigger is overdue and re-arms it.
const defaultTimeLapseSlack = 20 * time.Millisecond

// Config configures the fake source.
type Config struct {
	FPS        float64         // free-run frame rate; ignored in time-lapse mode
	FrameBytes int             // synthetic flat frame payload size; ignored when HasMetadata
	Exposures  []time.Duration // VTM/SS exposure list, cycled round-robin; empty = fixed exposure
	FixedExp   time.Duration

	TimeLapse      bool
	TimeLapseDelay time.Duration
	TimeLapseSlack time.Duration // 0 -> defaultTimeLapseSlack

	// HasMetadata makes the fake source emit PVCAM-style multi-ROI
	// metadata (see metadata.go) instead of a flat pixel buffer, per
	// spec.md §4.6's requirement that the fake generator supply centroid
	// ROIs for particle tracking. CentroidROIs is the ROI count per
	// frame; 0 defaults to 4.
	HasMetadata  bool
	CentroidROIs int
}

// Source is the fake driver handle: one opened "camera".
type Source struct {
	cfg    Config
	layout metadataLayout
	params *paramTable

	mu      sync.Mutex
	status  driver.Status
	cb      driver.Callbacks
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	latest  []byte
	expIdx  int

	frameNr uint32
}

// Driver is the fake driver.Driver: a single named camera backed by Source.
type Driver struct {
	cfg  Config
	init bool
}

// New returns a fake driver configured to produce frames per cfg.
func New(cfg Config) *Driver {
	if cfg.TimeLapseSlack == 0 {
		cfg.TimeLapseSlack = defaultTimeLapseSlack
	}
	if cfg.HasMetadata && cfg.CentroidROIs <= 0 {
		cfg.CentroidROIs = 4
	}
	return &Driver{cfg: cfg}
}

func (d *Driver) InitLibrary() error        { d.init = true; return nil }
func (d *Driver) UninitLibrary() error      { d.init = false; return nil }
func (d *Driver) LibraryInitialized() bool  { return d.init }

func (d *Driver) Count() (uint16, error) { return 1, nil }

func (d *Driver) Name(i uint16) (string, error) {
	if i != 0 {
		return "", fmt.Errorf("gen: no camera at index %d", i)
	}
	return "fake-camera-0", nil
}

func (d *Driver) Open(name string, onRemoval func()) (driver.Handle, error) {
	if name != "fake-camera-0" {
		return nil, fmt.Errorf("gen: unknown camera %q", name)
	}
	s := &Source{cfg: d.cfg, params: newParamTable(), status: driver.Inactive}
	if d.cfg.HasMetadata {
		s.layout = metadataLayout{roiCount: d.cfg.CentroidROIs, roiW: 8, roiH: 8}
	}
	return s, nil
}

func (s *Source) Close() error {
	return s.Stop()
}

// Setup reports the frame size; a real driver would derive this from the
// negotiated ROI/format, the fake source just echoes its configured size.
func (s *Source) Setup(settings driver.SettingsReader) (int, error) {
	if s.cfg.HasMetadata {
		return s.layout.totalBytes(), nil
	}
	if s.cfg.FrameBytes <= 0 {
		return 0, fmt.Errorf("gen: FrameBytes must be positive")
	}
	return s.cfg.FrameBytes, nil
}

// Start launches the ticker-paced (or time-lapse-paced) production loop.
func (s *Source) Start(cb driver.Callbacks) error {
	s.mu.Lock()
	if s.status == driver.Active {
		s.mu.Unlock()
		return fmt.Errorf("gen: already active")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.cb = cb
	s.status = driver.Active
	s.mu.Unlock()

	s.wg.Add(1)
	if s.cfg.TimeLapse {
		go s.runTimeLapse(ctx)
	} else {
		go s.runFreeRun(ctx)
	}
	applog.L().Infow("fake driver started", "fps", s.cfg.FPS, "time_lapse", s.cfg.TimeLapse)
	return nil
}

func (s *Source) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.mu.Lock()
	s.status = driver.Inactive
	s.mu.Unlock()
	return nil
}

func (s *Source) Status() driver.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Source) Trigger() error {
	s.emit()
	return nil
}

func (s *Source) GetLatestFrame(dst []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(dst) < len(s.latest) {
		return fmt.Errorf("gen: destination buffer too small: need %d, have %d", len(s.latest), len(dst))
	}
	copy(dst, s.latest)
	return nil
}

func (s *Source) GetLatestFrameIndex() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.frameNr), nil
}

func (s *Source) Params() driver.Params { return s.params }

func (s *Source) runFreeRun(ctx context.Context) {
	defer s.wg.Done()
	fps := s.cfg.FPS
	if fps <= 0 {
		fps = 10
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.emit()
		}
	}
}

// runTimeLapse triggers on TimeLapseDelay, with a watchdog that re-arms
// if the expected next trigger is overdue by more than readout + slack.
func (s *Source) runTimeLapse(ctx context.Context) {
	defer s.wg.Done()
	delay := s.cfg.TimeLapseDelay
	if delay <= 0 {
		delay = time.Second
	}
	readout := s.currentExposure()
	watchdog := delay + readout + s.cfg.TimeLapseSlack

	timer := time.NewTimer(delay)
	defer timer.Stop()
	watchdogTimer := time.NewTimer(watchdog)
	defer watchdogTimer.Stop()

	rearm := func() {
		s.emit()
		readout = s.currentExposure()
		watchdog = delay + readout + s.cfg.TimeLapseSlack
		timer.Reset(delay)
		if !watchdogTimer.Stop() {
			select {
			case <-watchdogTimer.C:
			default:
			}
		}
		watchdogTimer.Reset(watchdog)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			rearm()
		case <-watchdogTimer.C:
			applog.L().Warnw("fake driver time-lapse watchdog re-arming overdue trigger")
			rearm()
		}
	}
}

func (s *Source) currentExposure() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cfg.Exposures) == 0 {
		if s.cfg.FixedExp > 0 {
			return s.cfg.FixedExp
		}
		return 10 * time.Millisecond
	}
	return s.cfg.Exposures[s.expIdx%len(s.cfg.Exposures)]
}

func (s *Source) emit() {
	exp := s.currentExposure()

	s.mu.Lock()
	s.frameNr++
	nr := s.frameNr
	s.mu.Unlock()

	var buf []byte
	if s.cfg.HasMetadata {
		buf = make([]byte, s.layout.totalBytes())
		s.layout.encode(buf, nr)
	} else {
		buf = make([]byte, s.cfg.FrameBytes)
		if _, err := rand.Read(buf); err != nil {
			applog.L().Warnw("fake driver synthetic frame fill failed", "err", err)
		}
	}

	bof := uint64(time.Now().UnixNano())
	eof := bof + uint64(exp)

	s.mu.Lock()
	s.latest = buf
	if len(s.cfg.Exposures) > 0 {
		s.expIdx = (s.expIdx + 1) % len(s.cfg.Exposures)
	}
	cb := s.cb
	s.mu.Unlock()

	if cb != nil {
		cb.EOF(driver.FrameInfo{
			FrameNr: nr,
			TsBOF:   bof,
			TsEOF:   eof,
			ExpTime: uint32(exp / time.Microsecond),
			WBRed:   1.0, WBGreen: 1.0, WBBlue: 1.0,
		})
	}
}

var (
	_ driver.Driver = (*Driver)(nil)
	_ driver.Handle = (*Source)(nil)
)
