package capture

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"face-overlay/internal/debug/timing"
	"face-overlay/internal/landmark"
	"face-overlay/internal/logger"
	"face-overlay/internal/models"
	"face-overlay/internal/overlay"
	"face-overlay/internal/tracking"

	"gocv.io/x/gocv"
	"golang.org/x/time/rate"
)

const StageFrame = "frame"

// DetectorRetryInterval spaces out attempts to build a detector after a
// failure, e.g. while the landmark service is still starting.
const DetectorRetryInterval = 3 * time.Second

// Processor is the per-frame work done between capture and display.
// *tracking.Pipeline satisfies it.
type Processor interface {
	Configure(opts landmark.Options) error
	SetFilters(filters []overlay.Filter)
	SetDrawAnchors(enabled bool)
	Process(frame *gocv.Mat) (tracking.Stats, error)
}

// FilterSource turns enabled filter names into filters.
// *overlay.Registry satisfies it.
type FilterSource interface {
	Build(enabled []string) []overlay.Filter
}

type Loop struct {
	store     *models.RuntimeConfigStore
	open      Opener
	processor Processor
	filters   FilterSource
	display   Display
	tracker   *timing.Tracker
	logger    logger.Logger
	limiter   *rate.Limiter

	device     Device
	options    landmark.Options
	configured bool
	retryAt    time.Time
	retryEvery time.Duration
	now        func() time.Time
	frames     atomic.Int64
}

func NewLoop(store *models.RuntimeConfigStore, open Opener, processor Processor, filters FilterSource, display Display, tracker *timing.Tracker, log logger.Logger) *Loop {
	if log == nil {
		log = logger.NoOpLogger{}
	}
	if tracker == nil {
		tracker = timing.NewTracker(0)
	}
	return &Loop{
		store:     store,
		open:      open,
		processor: processor,
		filters:   filters,
		display:   display,
		tracker:   tracker,
		logger:    log,
		limiter:   rate.NewLimiter(rate.Every(time.Second), 3),

		retryEvery: DetectorRetryInterval,
		now:        time.Now,
	}
}

// Run processes frames until the display quits, ctx is cancelled or the
// stream ends, all of which return nil. Only a device that cannot be opened
// is an error. The device is closed on return.
func (l *Loop) Run(ctx context.Context) error {
	defer l.closeDevice()

	frame := gocv.NewMat()
	defer frame.Close()

	l.logger.Info("CaptureLoop", "capture loop started", nil)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("CaptureLoop", "capture loop cancelled", map[string]interface{}{
				"frames": l.Frames(),
			})
			return nil
		case <-l.display.Quit():
			l.logger.Info("CaptureLoop", "quit requested", map[string]interface{}{
				"frames": l.Frames(),
			})
			return nil
		default:
		}

		err := l.step(&frame)
		if errors.Is(err, ErrStreamEnded) {
			l.logger.Info("CaptureLoop", "stream ended", map[string]interface{}{
				"frames": l.Frames(),
			})
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (l *Loop) step(frame *gocv.Mat) error {
	cfg, reinit := l.store.PollReinitialize()
	if reinit || l.device == nil {
		if err := l.reopen(cfg); err != nil {
			return err
		}
	}
	l.configure(cfg)

	if !l.device.Read(frame) || frame.Empty() {
		return ErrStreamEnded
	}

	ctx := l.tracker.StartTiming(context.Background(), StageFrame)
	defer l.tracker.EndTiming(ctx)

	if cfg.Mirror {
		gocv.Flip(*frame, frame, 1)
	}

	l.processor.SetFilters(l.filters.Build(cfg.EnabledFilters))
	l.processor.SetDrawAnchors(cfg.DrawAnchors)
	if _, err := l.processor.Process(frame); err != nil {
		l.warn("frame processing failed", err)
	}

	if cfg.ShowHUD {
		overlay.DrawHUD(frame, overlay.HUDText)
	}

	if err := l.display.Show(*frame); err != nil {
		l.warn("display failed", err)
	}
	l.frames.Add(1)
	return nil
}

// reopen replaces the device using the snapshot taken by PollReinitialize.
// It runs without the store lock held.
func (l *Loop) reopen(cfg models.RuntimeConfig) error {
	l.closeDevice()

	device, err := l.open(cfg.CameraIndex, cfg.FrameWidth, cfg.FrameHeight)
	if err != nil {
		if !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		l.logger.Error("CaptureLoop", err, map[string]interface{}{
			"camera_index": cfg.CameraIndex,
		})
		return err
	}

	l.device = device
	l.logger.Info("CaptureLoop", "capture device opened", map[string]interface{}{
		"camera_index": cfg.CameraIndex,
		"resolution":   cfg.Resolution().String(),
	})
	return nil
}

// configure rebuilds the detector when the detector-relevant settings change.
// After a failed build the same settings are retried every retryEvery.
func (l *Loop) configure(cfg models.RuntimeConfig) {
	opts := tracking.OptionsFromConfig(cfg)
	if opts == l.options {
		if l.configured || l.now().Before(l.retryAt) {
			return
		}
	}
	l.options = opts

	if err := l.processor.Configure(opts); err != nil {
		l.configured = false
		l.retryAt = l.now().Add(l.retryEvery)
		l.logger.Error("CaptureLoop", err, map[string]interface{}{
			"stage":       "configure detector",
			"retry_after": l.retryEvery.String(),
		})
		return
	}
	l.configured = true
}

func (l *Loop) closeDevice() {
	if l.device == nil {
		return
	}
	if err := l.device.Close(); err != nil {
		l.logger.Error("CaptureLoop", err, map[string]interface{}{
			"stage": "close device",
		})
	}
	l.device = nil
}

func (l *Loop) warn(message string, err error) {
	if !l.limiter.Allow() {
		return
	}
	l.logger.Warning("CaptureLoop", message, map[string]interface{}{
		"error": err.Error(),
	})
}

// Frames reports how many frames have been displayed.
func (l *Loop) Frames() int64 {
	return l.frames.Load()
}
