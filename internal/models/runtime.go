package models

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Resolution is a capture size preset offered by the configuration surface
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// ResolutionPresets lists the capture sizes the settings surface can select
var ResolutionPresets = []Resolution{
	{Width: 640, Height: 480},
	{Width: 1280, Height: 720},
	{Width: 1920, Height: 1080},
}

const (
	MinFaces      = 1
	MaxFaces      = 5
	MinConfidence = 0.1
	MaxConfidence = 1.0
	MaxCameraSlot = 4
)

// RuntimeConfig is the mutable settings record shared between the configuration
// surfaces and the capture loop. Values are always handled as copies.
type RuntimeConfig struct {
	CameraIndex         int      `validate:"gte=0"`
	FrameWidth          int      `validate:"gt=0"`
	FrameHeight         int      `validate:"gt=0"`
	MaxNumFaces         int      `validate:"min=1,max=5"`
	DetectionConfidence float64  `validate:"gte=0.1,lte=1"`
	TrackingConfidence  float64  `validate:"gte=0.1,lte=1"`
	EnabledFilters      []string `validate:"dive,required"`
	ReinitializeCamera  bool

	Mirror      bool
	ShowHUD     bool
	DrawAnchors bool
}

// DefaultRuntimeConfig returns the startup settings. ReinitializeCamera starts
// true so the first poll of the capture loop opens the device.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		CameraIndex:         0,
		FrameWidth:          640,
		FrameHeight:         480,
		MaxNumFaces:         1,
		DetectionConfidence: 0.5,
		TrackingConfidence:  0.5,
		EnabledFilters:      []string{"glasses"},
		ReinitializeCamera:  true,
		Mirror:              true,
		ShowHUD:             true,
	}
}

// Clone returns a deep copy
func (rc RuntimeConfig) Clone() RuntimeConfig {
	rc.EnabledFilters = slices.Clone(rc.EnabledFilters)
	return rc
}

// IsEnabled reports whether the named filter is active
func (rc RuntimeConfig) IsEnabled(name string) bool {
	return slices.Contains(rc.EnabledFilters, name)
}

// SetEnabled adds or removes a filter while keeping list order stable.
// Order of EnabledFilters is paint order.
func (rc *RuntimeConfig) SetEnabled(name string, enabled bool) {
	idx := slices.Index(rc.EnabledFilters, name)
	switch {
	case enabled && idx < 0:
		rc.EnabledFilters = append(rc.EnabledFilters, name)
	case !enabled && idx >= 0:
		rc.EnabledFilters = slices.Delete(rc.EnabledFilters, idx, idx+1)
	}
}

// Resolution returns the configured capture size
func (rc RuntimeConfig) Resolution() Resolution {
	return Resolution{Width: rc.FrameWidth, Height: rc.FrameHeight}
}

// RuntimeConfigStore guards a RuntimeConfig with a single mutex. Critical
// sections only copy fields.
type RuntimeConfigStore struct {
	mu       sync.Mutex
	cfg      RuntimeConfig
	validate *validator.Validate
}

func NewRuntimeConfigStore(initial RuntimeConfig) (*RuntimeConfigStore, error) {
	store := &RuntimeConfigStore{validate: newValidator()}
	if err := store.check(initial); err != nil {
		return nil, err
	}
	store.cfg = initial.Clone()
	return store, nil
}

// Read returns a snapshot of the current configuration
func (s *RuntimeConfigStore) Read() RuntimeConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Clone()
}

// Mutate applies fn to a copy of the configuration and commits the copy only if
// it validates. Concurrent mutations are serialized; the last one wins whole.
func (s *RuntimeConfigStore) Mutate(fn func(*RuntimeConfig)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.Clone()
	fn(&next)
	if err := s.check(next); err != nil {
		return err
	}
	s.cfg = next
	return nil
}

// PollReinitialize returns a snapshot and atomically clears ReinitializeCamera.
// The boolean reports whether a reinitialization was requested. The caller
// reopens the device outside the lock using the snapshot.
func (s *RuntimeConfigStore) PollReinitialize() (RuntimeConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.cfg.Clone()
	requested := s.cfg.ReinitializeCamera
	s.cfg.ReinitializeCamera = false
	return snapshot, requested
}

func (s *RuntimeConfigStore) check(cfg RuntimeConfig) error {
	err := s.validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return NewValidationError(fe.Field(), fe.Value(), describeTag(fe))
	}
	return err
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		cfg := sl.Current().Interface().(RuntimeConfig)
		if !slices.Contains(ResolutionPresets, cfg.Resolution()) {
			sl.ReportError(cfg.Resolution().String(), "Resolution", "Resolution", "preset", "")
		}
	}, RuntimeConfig{})
	return v
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min", "gte":
		return "value below minimum " + fe.Param()
	case "max", "lte":
		return "value above maximum " + fe.Param()
	case "gt":
		return "value must be positive"
	case "preset":
		return "resolution is not a supported preset"
	case "required":
		return "value must not be empty"
	default:
		return "failed " + fe.Tag() + " check"
	}
}
