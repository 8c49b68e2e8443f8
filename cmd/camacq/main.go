// Command camacq runs one camera acquisition session: it wires a driver
// (the fake generator when --gen-data is set), a FramePool, the
// three-worker pipeline, and an output sink, then drives the run to
// completion or until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nikgalvaz/camacq/internal/applog"
	"github.com/nikgalvaz/camacq/internal/bitmap"
	"github.com/nikgalvaz/camacq/internal/config"
	"github.com/nikgalvaz/camacq/internal/frame"
	"github.com/nikgalvaz/camacq/internal/framepool"
	"github.com/nikgalvaz/camacq/internal/gen"
	"github.com/nikgalvaz/camacq/internal/pipeline"
	"github.com/nikgalvaz/camacq/internal/prd"
	"github.com/nikgalvaz/camacq/internal/rgn"
	"github.com/nikgalvaz/camacq/internal/stats"
	"github.com/nikgalvaz/camacq/internal/track"
)

// Exit codes per the CLI contract.
const (
	exitOK              = 0
	exitSetupFailed     = 1
	exitCLIError        = 2
	exitRuntimeError    = 3
	exitNativeLibFailed = 4
)

type options struct {
	exitCode int

	acquisitionPath string
	storagePath     string
	logJSON         bool

	camIndex int
	genData  float64

	triggerMode   string
	exposeOutMode string
	exposure      string
	vtmExposures  []string

	acqFrames    int
	bufferFrames int
	allocator    string

	sbin, pbin int
	rois       string

	acqMode        string
	timeLapseDelay string

	saveAs        string
	saveDir       string
	saveDigits    int
	saveFirst     int
	saveLast      int
	saveStackSize string
	tiffOptFull   bool

	trackLinkFrames int
	trackMaxDist    float64
	trackCPUOnly    bool
	trackTrajectory bool

	colorWBRed   float64
	colorWBGreen float64
	colorWBBlue  float64
	debayerAlg   string
	colorCPUOnly bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := &options{}
	root := newRootCmd(opts)
	if err := root.ExecuteContext(context.Background()); err != nil {
		if opts.exitCode == exitOK {
			// cobra itself rejected the flags/args before execute() ran.
			opts.exitCode = exitCLIError
		}
		fmt.Fprintln(os.Stderr, err)
	}
	return opts.exitCode
}

func newRootCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "camacq",
		Short: "Run a scientific-camera acquisition session",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.exitCode = execute(cmd.Context(), opts, cmd.Flags().Changed)
			if opts.exitCode != exitOK {
				return fmt.Errorf("camacq: exit code %d", opts.exitCode)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	f := cmd.Flags()
	f.StringVar(&opts.acquisitionPath, "acquisition-config", "", "optional acquisition.yaml providing flag defaults")
	f.StringVar(&opts.storagePath, "storage-config", "", "optional storage.yaml providing flag defaults")
	f.BoolVar(&opts.logJSON, "log-json", false, "structured JSON logs instead of human-readable console output")

	f.IntVar(&opts.camIndex, "cam-index", 0, "camera index (logged only; the fake source has a single camera)")
	f.Float64Var(&opts.genData, "gen-data", 0, "replace driver with a fake source at N fps (0 disables)")

	f.StringVar(&opts.triggerMode, "trigger-mode", "", "driver trigger mode")
	f.StringVar(&opts.exposeOutMode, "expose-out-mode", "", "driver expose-out mode")
	f.StringVar(&opts.exposure, "exposure", "10ms", "exposure time, e.g. 10ms, 500us, 1s")
	f.StringSliceVar(&opts.vtmExposures, "vtm-exposures", nil, "VTM/SS exposure list, cycled round-robin")

	f.IntVar(&opts.acqFrames, "acq-frames", 0, "total frames for a bounded (snap) run")
	f.IntVar(&opts.bufferFrames, "buffer-frames", 16, "FramePool warm buffer size")
	f.StringVar(&opts.allocator, "allocator", "default", "default|align16|align32|align4k")

	f.IntVar(&opts.sbin, "sbin", 1, "serial binning factor")
	f.IntVar(&opts.pbin, "pbin", 1, "parallel binning factor")
	f.StringVar(&opts.rois, "rois", "", `ROI list "sA1,sA2,pA1,pA2;..."`)

	f.StringVar(&opts.acqMode, "acq-mode", "snap-seq", "snap-seq|snap-circ-buffer|snap-time-lapse|live-circ-buffer|live-time-lapse")
	f.StringVar(&opts.timeLapseDelay, "time-lapse-delay", "1s", "time-lapse trigger period")

	f.StringVar(&opts.saveAs, "save-as", "none", "none|prd|tiff|big-tiff")
	f.StringVar(&opts.saveDir, "save-dir", ".", "output directory")
	f.IntVar(&opts.saveDigits, "save-digits", 6, "digit width for per-frame filenames (logged only; PRD output is one <run-id>.prd file)")
	f.IntVar(&opts.saveFirst, "save-first", 0, "frames kept from the start of a bounded run")
	f.IntVar(&opts.saveLast, "save-last", 0, "frames kept from the end of a bounded run, or ring size in live modes")
	f.StringVar(&opts.saveStackSize, "save-stack-size", "0", "max size per output file (k/M/G suffix); validated only, output files are not rotated")
	f.BoolVar(&opts.tiffOptFull, "save-tiff-opt-full", false, "write full (non-differential) TIFF pages")

	f.IntVar(&opts.trackLinkFrames, "track-link-frames", 5, "rolling window size for particle linking")
	f.Float64Var(&opts.trackMaxDist, "track-max-dist", 10, "max centroid displacement considered the same particle")
	f.BoolVar(&opts.trackCPUOnly, "track-cpu-only", true, "force particle tracking onto CPU (no GPU path implemented)")
	f.BoolVar(&opts.trackTrajectory, "track-trajectory", false, "write trajectories into PRD extended static metadata")

	f.Float64Var(&opts.colorWBRed, "color-wb-scale-red", 1, "red white-balance scale")
	f.Float64Var(&opts.colorWBGreen, "color-wb-scale-green", 1, "green white-balance scale")
	f.Float64Var(&opts.colorWBBlue, "color-wb-scale-blue", 1, "blue white-balance scale")
	f.StringVar(&opts.debayerAlg, "color-debayer-alg", "nearest", "nearest|bilinear")
	f.BoolVar(&opts.colorCPUOnly, "color-cpu-only", true, "force debayer/RGB conversion onto CPU")

	return cmd
}

func execute(ctx context.Context, opts *options, changed func(string) bool) int {
	applog.Init(applog.Options{Development: !opts.logJSON})
	defer applog.Close()

	applog.L().Infow("camacq starting",
		"cam_index", opts.camIndex,
		"acq_mode", opts.acqMode,
		"save_as", opts.saveAs,
		"trigger_mode", opts.triggerMode,
		"expose_out_mode", opts.exposeOutMode,
		"debayer_alg", opts.debayerAlg,
		"track_cpu_only", opts.trackCPUOnly,
		"color_cpu_only", opts.colorCPUOnly,
		"save_digits", opts.saveDigits,
		"color_wb_scale", []float64{opts.colorWBRed, opts.colorWBGreen, opts.colorWBBlue},
	)

	if opts.acquisitionPath != "" {
		acqFileCfg, err := config.LoadAcquisitionConfig(opts.acquisitionPath)
		if err != nil {
			applog.L().Errorw("load acquisition config", "err", err)
			return exitCLIError
		}
		applyAcquisitionConfig(opts, acqFileCfg, changed)
	}
	if opts.storagePath != "" {
		storageFileCfg, err := config.LoadStorageConfig(opts.storagePath)
		if err != nil {
			applog.L().Errorw("load storage config", "err", err)
			return exitCLIError
		}
		applyStorageConfig(opts, storageFileCfg, changed)
	}

	acqMode, err := parseAcqMode(opts.acqMode)
	if err != nil {
		applog.L().Errorw("parse acq-mode", "err", err)
		return exitCLIError
	}
	storageKind, err := parseStorageKind(opts.saveAs)
	if err != nil {
		applog.L().Errorw("parse save-as", "err", err)
		return exitCLIError
	}
	if storageKind == pipeline.StorageTiff || storageKind == pipeline.StorageBigTiff {
		applog.L().Errorw("tiff output selected but no concrete TIFF encoder is wired in this build")
		return exitCLIError
	}
	exposure, err := config.ParseExposure(opts.exposure)
	if err != nil {
		applog.L().Errorw("parse exposure", "err", err)
		return exitCLIError
	}
	timeLapseDelay, err := config.ParseExposure(opts.timeLapseDelay)
	if err != nil {
		applog.L().Errorw("parse time-lapse-delay", "err", err)
		return exitCLIError
	}
	allocator, err := config.ParseAllocator(opts.allocator)
	if err != nil {
		applog.L().Errorw("parse allocator", "err", err)
		return exitCLIError
	}
	regions, err := config.ParseROIList(opts.rois, opts.sbin, opts.pbin)
	if err != nil {
		applog.L().Errorw("parse rois", "err", err)
		return exitCLIError
	}
	if _, err := config.ParseSize(opts.saveStackSize); err != nil {
		applog.L().Errorw("parse save-stack-size", "err", err)
		return exitCLIError
	}

	vtmExposures := make([]time.Duration, 0, len(opts.vtmExposures))
	for _, e := range opts.vtmExposures {
		d, err := config.ParseExposure(e)
		if err != nil {
			applog.L().Errorw("parse vtm-exposures entry", "entry", e, "err", err)
			return exitCLIError
		}
		vtmExposures = append(vtmExposures, d)
	}

	if opts.genData <= 0 {
		applog.L().Errorw("no real driver library bound in this build; pass --gen-data to use the fake source")
		return exitNativeLibFailed
	}

	impliedROI := rgn.Region{S1: 0, S2: 63, Sbin: opts.sbin, P1: 0, P2: 63, Pbin: opts.pbin}
	for _, r := range regions {
		impliedROI = impliedROI.Union(r)
	}
	format := bitmap.NewFormatFromImageFormat(bitmap.Mono8, bitmap.BayerNone)
	frameBytes := impliedROI.Width() * impliedROI.Height() * format.BytesPerPixel()
	if frameBytes <= 0 {
		frameBytes = 4096
	}

	// --track-trajectory is the only consumer of decoded centroid
	// metadata, so it's what switches the fake source into PVCAM-style
	// multi-ROI emission per spec.md §4.6.
	hasMetadata := opts.trackTrajectory

	drv := gen.New(gen.Config{
		FPS:            opts.genData,
		FrameBytes:     frameBytes,
		Exposures:      vtmExposures,
		FixedExp:       exposure,
		TimeLapse:      acqMode == pipeline.SnapTimeLapse || acqMode == pipeline.LiveTimeLapse,
		TimeLapseDelay: timeLapseDelay,
		HasMetadata:    hasMetadata,
	})
	if err := drv.InitLibrary(); err != nil {
		applog.L().Errorw("init driver library", "err", err)
		return exitNativeLibFailed
	}
	defer drv.UninitLibrary()

	handle, err := drv.Open("fake-camera-0", nil)
	if err != nil {
		applog.L().Errorw("open camera", "cam_index", opts.camIndex, "err", err)
		return exitNativeLibFailed
	}
	defer handle.Close()
	frameSize, err := handle.Setup(nil)
	if err != nil {
		applog.L().Errorw("driver setup", "err", err)
		return exitSetupFailed
	}
	if frameSize > 0 {
		frameBytes = frameSize
	}

	acqCfg := frame.AcqCfg{
		FrameBytes:  frameBytes,
		ROICount:    len(regions),
		HasMetadata: hasMetadata,
		ImpliedROI:  impliedROI,
		Format:      format,
		Allocator:   allocator,
	}

	var decoder frame.PVCAMDecoder
	if hasMetadata {
		decoder = gen.Decoder{}
	}

	pool := framepool.New(4)
	pool.Setup(acqCfg, true, decoder)
	if err := pool.EnsureReady(ctx, opts.bufferFrames, framepool.EnsureOpts{Prefetch: true}); err != nil {
		applog.L().Errorw("warm frame pool", "err", err)
		return exitSetupFailed
	}

	reg := prometheus.NewRegistry()
	runID := uuid.NewString()
	acqStats := stats.New(nil, reg, "acq-"+runID)
	diskStats := stats.New(nil, reg, "disk-"+runID)

	var linker *track.Linker
	if opts.trackTrajectory {
		linker = track.NewLinker(opts.trackLinkFrames, opts.trackMaxDist, 64, opts.trackLinkFrames)
	}

	sink, closeSink, err := buildSink(storageKind, opts, acqCfg, format, runID)
	if err != nil {
		applog.L().Errorw("build output sink", "err", err)
		return exitSetupFailed
	}
	if closeSink != nil {
		defer closeSink()
	}

	p := pipeline.New(pipeline.Config{
		Mode:            acqMode,
		Storage:         storageKind,
		SaveFirst:       opts.saveFirst,
		SaveLast:        opts.saveLast,
		TotalFrames:     opts.acqFrames,
		MaxInFlightSave: opts.bufferFrames * 4,
		TrackingEnabled: opts.trackTrajectory,
	}, handle, pool, acqStats, diskStats, linker, sink, frameBytes)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			applog.L().Infow("received interrupt, stopping")
			p.RequestAbort(false)
		case <-runCtx.Done():
		}
	}()

	if err := p.Start(runCtx); err != nil {
		applog.L().Errorw("start pipeline", "err", err)
		return exitRuntimeError
	}

	if acqMode.Bounded() && opts.acqFrames > 0 {
		waitForBoundedRun(p, opts.acqFrames)
	}

	aborted, err := p.WaitForStop(true)
	if err != nil {
		applog.L().Errorw("pipeline stopped with error", "err", err)
		return exitRuntimeError
	}
	if aborted {
		applog.L().Infow("run aborted")
	}
	return exitOK
}

// applyAcquisitionConfig overlays cfg onto opts for every field whose
// flag the user did not set explicitly: flags always win over the
// config file, which only supplies defaults, per the --acquisition-config
// flag's help text.
func applyAcquisitionConfig(opts *options, cfg *config.AcquisitionConfig, changed func(string) bool) {
	if cfg.Camera.Index != 0 && !changed("cam-index") {
		opts.camIndex = cfg.Camera.Index
	}
	if cfg.Camera.GenDataFPS != 0 && !changed("gen-data") {
		opts.genData = cfg.Camera.GenDataFPS
	}
	if cfg.Trigger.Mode != "" && !changed("trigger-mode") {
		opts.triggerMode = cfg.Trigger.Mode
	}
	if cfg.Trigger.ExposeOutMode != "" && !changed("expose-out-mode") {
		opts.exposeOutMode = cfg.Trigger.ExposeOutMode
	}
	if cfg.Trigger.Exposure != "" && !changed("exposure") {
		opts.exposure = cfg.Trigger.Exposure
	}
	if len(cfg.Trigger.VTMExposures) > 0 && !changed("vtm-exposures") {
		opts.vtmExposures = cfg.Trigger.VTMExposures
	}
	if cfg.Region.SBin != 0 && !changed("sbin") {
		opts.sbin = cfg.Region.SBin
	}
	if cfg.Region.PBin != 0 && !changed("pbin") {
		opts.pbin = cfg.Region.PBin
	}
	if len(cfg.Region.ROIs) > 0 && !changed("rois") {
		opts.rois = strings.Join(cfg.Region.ROIs, ";")
	}
	if cfg.Tracking.LinkFrames != 0 && !changed("track-link-frames") {
		opts.trackLinkFrames = cfg.Tracking.LinkFrames
	}
	if cfg.Tracking.MaxDistance != 0 && !changed("track-max-dist") {
		opts.trackMaxDist = cfg.Tracking.MaxDistance
	}
	if cfg.Tracking.CPUOnly != nil && !changed("track-cpu-only") {
		opts.trackCPUOnly = *cfg.Tracking.CPUOnly
	}
	if cfg.Tracking.Trajectory != nil && !changed("track-trajectory") {
		opts.trackTrajectory = *cfg.Tracking.Trajectory
	}
	if cfg.Color.WBScaleRed != 0 && !changed("color-wb-scale-red") {
		opts.colorWBRed = cfg.Color.WBScaleRed
	}
	if cfg.Color.WBScaleGreen != 0 && !changed("color-wb-scale-green") {
		opts.colorWBGreen = cfg.Color.WBScaleGreen
	}
	if cfg.Color.WBScaleBlue != 0 && !changed("color-wb-scale-blue") {
		opts.colorWBBlue = cfg.Color.WBScaleBlue
	}
	if cfg.Color.DebayerAlg != "" && !changed("color-debayer-alg") {
		opts.debayerAlg = cfg.Color.DebayerAlg
	}
	if cfg.Color.CPUOnly != nil && !changed("color-cpu-only") {
		opts.colorCPUOnly = *cfg.Color.CPUOnly
	}
	if cfg.AcqMode != "" && !changed("acq-mode") {
		opts.acqMode = cfg.AcqMode
	}
	if cfg.AcqFrames != 0 && !changed("acq-frames") {
		opts.acqFrames = cfg.AcqFrames
	}
	if cfg.BufferFrames != 0 && !changed("buffer-frames") {
		opts.bufferFrames = cfg.BufferFrames
	}
	if cfg.Allocator != "" && !changed("allocator") {
		opts.allocator = cfg.Allocator
	}
	if cfg.TimeLapseDelay != "" && !changed("time-lapse-delay") {
		opts.timeLapseDelay = cfg.TimeLapseDelay
	}
}

// applyStorageConfig overlays cfg onto opts the same way
// applyAcquisitionConfig does.
func applyStorageConfig(opts *options, cfg *config.StorageConfig, changed func(string) bool) {
	if cfg.SaveAs != "" && !changed("save-as") {
		opts.saveAs = cfg.SaveAs
	}
	if cfg.SaveDir != "" && !changed("save-dir") {
		opts.saveDir = cfg.SaveDir
	}
	if cfg.SaveDigits != 0 && !changed("save-digits") {
		opts.saveDigits = cfg.SaveDigits
	}
	if cfg.SaveFirst != 0 && !changed("save-first") {
		opts.saveFirst = cfg.SaveFirst
	}
	if cfg.SaveLast != 0 && !changed("save-last") {
		opts.saveLast = cfg.SaveLast
	}
	if cfg.SaveStackSize != "" && !changed("save-stack-size") {
		opts.saveStackSize = cfg.SaveStackSize
	}
	if cfg.TiffOptFull != nil && !changed("save-tiff-opt-full") {
		opts.tiffOptFull = *cfg.TiffOptFull
	}
}

// waitForBoundedRun polls the acquisition stats until the configured
// frame count has been reached, so a snap-mode run terminates on its own
// instead of requiring SIGINT.
func waitForBoundedRun(p *pipeline.Pipeline, total int) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		acq, _ := p.Stats()
		if int(acq.Snapshot().FramesAcquired) >= total {
			p.RequestAbort(false)
			return
		}
	}
}

func buildSink(kind pipeline.StorageKind, opts *options, acqCfg frame.AcqCfg, format bitmap.Format, runID string) (pipeline.Sink, func(), error) {
	switch kind {
	case pipeline.StorageNone:
		return nil, nil, nil
	case pipeline.StoragePrd:
		if err := os.MkdirAll(opts.saveDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create save-dir: %w", err)
		}
		path := filepath.Join(opts.saveDir, fmt.Sprintf("%s.prd", runID))
		w, err := prd.Create(path, prd.WriterConfig{
			BitDepth:        uint16(format.BitDepth()),
			Region:          prd.Region{S1: int16(acqCfg.ImpliedROI.S1), S2: int16(acqCfg.ImpliedROI.S2), Sbin: int16(acqCfg.ImpliedROI.Sbin), P1: int16(acqCfg.ImpliedROI.P1), P2: int16(acqCfg.ImpliedROI.P2), Pbin: int16(acqCfg.ImpliedROI.Pbin)},
			ImageFormat:     uint16(format.ImageFormat()),
			FrameSize:       uint32(acqCfg.FrameBytes),
			HasMetadata:     acqCfg.HasMetadata,
			HasTrajectories: opts.trackTrajectory,
			MaxTrajectories: 64,
			MaxPoints:       opts.trackLinkFrames + 1,
		})
		if err != nil {
			return nil, nil, err
		}
		sink := pipeline.NewPrdSink(w)
		return sink, func() { _ = w.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported save-as kind %v", kind)
	}
}

func parseAcqMode(s string) (pipeline.AcqMode, error) {
	switch s {
	case "snap-seq":
		return pipeline.SnapSequence, nil
	case "snap-circ-buffer":
		return pipeline.SnapCirc, nil
	case "snap-time-lapse":
		return pipeline.SnapTimeLapse, nil
	case "live-circ-buffer":
		return pipeline.LiveCirc, nil
	case "live-time-lapse":
		return pipeline.LiveTimeLapse, nil
	default:
		return 0, fmt.Errorf("unknown acq-mode %q", s)
	}
}

func parseStorageKind(s string) (pipeline.StorageKind, error) {
	switch s {
	case "none", "":
		return pipeline.StorageNone, nil
	case "prd":
		return pipeline.StoragePrd, nil
	case "tiff":
		return pipeline.StorageTiff, nil
	case "big-tiff":
		return pipeline.StorageBigTiff, nil
	default:
		return 0, fmt.Errorf("unknown save-as %q", s)
	}
}

