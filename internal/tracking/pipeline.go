// Package tracking runs landmark detection on each frame and dispatches the
// active overlay filters to every detected face.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"face-overlay/internal/debug/timing"
	"face-overlay/internal/landmark"
	"face-overlay/internal/logger"
	"face-overlay/internal/models"
	"face-overlay/internal/overlay"

	"gocv.io/x/gocv"
	"golang.org/x/time/rate"
)

var ErrNoDetector = errors.New("landmark detector not configured")

const (
	StageDetect    = "detect"
	StageComposite = "composite"
)

// Stats describes one processed frame.
type Stats struct {
	Detected     int
	Processed    int
	Skipped      int
	FilterErrors int
	// Clamped counts filters drawn at the minimum size.
	Clamped      int
	Detect       time.Duration
	Composite    time.Duration
}

// Pipeline owns the detector and the active filter list. It is driven by a
// single goroutine; none of its methods may be called concurrently.
type Pipeline struct {
	factory     landmark.Factory
	detector    landmark.Detector
	options     landmark.Options
	filters     []overlay.Filter
	drawAnchors bool

	tracker    *timing.Tracker
	logger     logger.Logger
	limiter    *rate.Limiter
	suppressed int
}

// OptionsFromConfig maps the runtime settings onto video-mode detector options.
func OptionsFromConfig(cfg models.RuntimeConfig) landmark.Options {
	return landmark.Options{
		StaticMode:          false,
		MaxNumFaces:         cfg.MaxNumFaces,
		RefineLandmarks:     true,
		DetectionConfidence: cfg.DetectionConfidence,
		TrackingConfidence:  cfg.TrackingConfidence,
	}
}

// NewPipeline creates a pipeline without a detector; call Configure before
// the first Process.
func NewPipeline(factory landmark.Factory, tracker *timing.Tracker, log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.NoOpLogger{}
	}
	if tracker == nil {
		tracker = timing.NewTracker(0)
	}
	return &Pipeline{
		factory: factory,
		tracker: tracker,
		logger:  log,
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// Configure builds a detector for opts. Identical options keep the current
// detector; otherwise the replacement is built first and the old one closed,
// so a failed rebuild leaves the pipeline usable.
func (p *Pipeline) Configure(opts landmark.Options) error {
	if p.detector != nil && opts == p.options {
		return nil
	}

	detector, err := p.factory(opts)
	if err != nil {
		return fmt.Errorf("building landmark detector: %w", err)
	}

	if p.detector != nil {
		if err := p.detector.Close(); err != nil {
			p.logger.Error("TrackingPipeline", err, map[string]interface{}{
				"stage": "close previous detector",
			})
		}
	}

	p.detector = detector
	p.options = opts
	p.logger.Info("TrackingPipeline", "landmark detector configured", map[string]interface{}{
		"max_num_faces":        opts.MaxNumFaces,
		"detection_confidence": opts.DetectionConfidence,
		"tracking_confidence":  opts.TrackingConfidence,
	})
	return nil
}

// SetFilters replaces the filter list. Filters are applied in list order, so
// later ones paint over earlier ones.
func (p *Pipeline) SetFilters(filters []overlay.Filter) {
	p.filters = filters
}

func (p *Pipeline) SetDrawAnchors(enabled bool) {
	p.drawAnchors = enabled
}

// Process detects faces on frame and applies every filter to each of them in
// place. A frame without faces is left untouched. Per-face failures are
// logged and skipped; only a detector failure is returned.
func (p *Pipeline) Process(frame *gocv.Mat) (Stats, error) {
	var stats Stats
	if p.detector == nil {
		return stats, ErrNoDetector
	}

	ctx := p.tracker.StartTiming(context.Background(), StageDetect)
	faces, err := p.detector.Detect(*frame)
	stats.Detect = p.tracker.EndTiming(ctx)
	if err != nil {
		return stats, fmt.Errorf("detecting landmarks: %w", err)
	}

	stats.Detected = len(faces)
	if len(faces) == 0 {
		return stats, nil
	}
	if limit := p.options.MaxNumFaces; limit > 0 && len(faces) > limit {
		faces = faces[:limit]
	}

	ctx = p.tracker.StartTiming(context.Background(), StageComposite)
	width, height := frame.Cols(), frame.Rows()
	for i, face := range faces {
		anchors, err := overlay.Extract(face, width, height)
		if err != nil {
			stats.Skipped++
			p.throttled(func(extra map[string]interface{}) {
				extra["face"] = i
				extra["landmarks"] = len(face)
				p.logger.Error("TrackingPipeline", err, extra)
			})
			continue
		}

		for _, filter := range p.filters {
			err := filter.Apply(frame, face, anchors)
			if errors.Is(err, overlay.ErrDegenerateGeometry) {
				stats.Clamped++
				p.logger.Debug("TrackingPipeline", "degenerate eye distance, size clamped", map[string]interface{}{
					"filter": filter.Name(),
					"face":   i,
				})
				continue
			}
			if err != nil {
				stats.FilterErrors++
				p.throttled(func(extra map[string]interface{}) {
					extra["filter"] = filter.Name()
					extra["face"] = i
					extra["error"] = err.Error()
					p.logger.Warning("TrackingPipeline", "filter failed", extra)
				})
			}
		}

		if p.drawAnchors {
			overlay.DrawAnchors(frame, anchors)
		}
		stats.Processed++
	}
	stats.Composite = p.tracker.EndTiming(ctx)

	return stats, nil
}

// throttled runs emit when the limiter allows it, passing the number of
// messages dropped since the last one that went through.
func (p *Pipeline) throttled(emit func(fields map[string]interface{})) {
	if !p.limiter.Allow() {
		p.suppressed++
		return
	}
	fields := map[string]interface{}{}
	if p.suppressed > 0 {
		fields["suppressed"] = p.suppressed
		p.suppressed = 0
	}
	emit(fields)
}

// Close releases the detector.
func (p *Pipeline) Close() error {
	if p.detector == nil {
		return nil
	}
	err := p.detector.Close()
	p.detector = nil
	return err
}
