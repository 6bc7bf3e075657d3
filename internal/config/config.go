// Package config loads the application settings: built-in defaults, an
// optional YAML file, a .env file and FACE_OVERLAY_* environment overrides,
// applied in that order and validated once at the end.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"face-overlay/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "FACE_OVERLAY_"

const (
	DisplayFyne   = "fyne"
	DisplayWindow = "window"
)

type CameraSettings struct {
	Index  int  `yaml:"index" validate:"gte=0"`
	Width  int  `yaml:"width" validate:"gt=0"`
	Height int  `yaml:"height" validate:"gt=0"`
	Mirror bool `yaml:"mirror"`
}

type DetectorSettings struct {
	URL                 string  `yaml:"url" validate:"required,url"`
	MaxNumFaces         int     `yaml:"max_num_faces" validate:"min=1,max=5"`
	DetectionConfidence float64 `yaml:"min_detection_confidence" validate:"gte=0.1,lte=1"`
	TrackingConfidence  float64 `yaml:"min_tracking_confidence" validate:"gte=0.1,lte=1"`
	JPEGQuality         int     `yaml:"jpeg_quality" validate:"min=1,max=100"`
}

type FilterSettings struct {
	Enabled       []string `yaml:"enabled" validate:"dive,required"`
	GlassesAsset  string   `yaml:"glasses_asset" validate:"required"`
	MustacheAsset string   `yaml:"mustache_asset" validate:"required"`
}

type DisplaySettings struct {
	Mode        string `yaml:"mode" validate:"oneof=fyne window"`
	ShowHUD     bool   `yaml:"show_hud"`
	DrawAnchors bool   `yaml:"draw_anchors"`
}

type LogSettings struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn warning error"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
}

// Settings is the full application configuration.
type Settings struct {
	Camera   CameraSettings   `yaml:"camera"`
	Detector DetectorSettings `yaml:"detector"`
	Filters  FilterSettings   `yaml:"filters"`
	Display  DisplaySettings  `yaml:"display"`
	Log      LogSettings      `yaml:"log"`
}

// Default mirrors models.DefaultRuntimeConfig and adds the startup-only values.
func Default() Settings {
	rc := models.DefaultRuntimeConfig()
	return Settings{
		Camera: CameraSettings{
			Index:  rc.CameraIndex,
			Width:  rc.FrameWidth,
			Height: rc.FrameHeight,
			Mirror: rc.Mirror,
		},
		Detector: DetectorSettings{
			URL:                 "ws://127.0.0.1:8765/landmarks",
			MaxNumFaces:         rc.MaxNumFaces,
			DetectionConfidence: rc.DetectionConfidence,
			TrackingConfidence:  rc.TrackingConfidence,
			JPEGQuality:         85,
		},
		Filters: FilterSettings{
			Enabled:       rc.EnabledFilters,
			GlassesAsset:  "assets/glasses.png",
			MustacheAsset: "assets/mustache.png",
		},
		Display: DisplaySettings{
			Mode:        DisplayFyne,
			ShowHUD:     rc.ShowHUD,
			DrawAnchors: rc.DrawAnchors,
		},
		Log: LogSettings{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored; variables already set are not overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}

// Load builds Settings from defaults, the YAML file at path (skipped when
// path is empty) and the environment. The settings watcher reloads through it
// too, so environment overrides survive file edits.
func Load(path string) (Settings, error) {
	s := Default()

	if path != "" {
		if err := s.mergeFile(path); err != nil {
			return Settings{}, err
		}
	}

	if err := s.applyEnv(os.LookupEnv); err != nil {
		return Settings{}, err
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s *Settings) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("parsing settings file %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func (s *Settings) applyEnv(lookup lookupFunc) error {
	// LOG_LEVEL is honored unprefixed for compatibility with existing deployments.
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		s.Log.Level = strings.ToLower(v)
	}

	strs := map[string]*string{
		"LANDMARK_URL":   &s.Detector.URL,
		"DISPLAY":        &s.Display.Mode,
		"LOG_LEVEL":      &s.Log.Level,
		"LOG_FILE":       &s.Log.File,
		"GLASSES_ASSET":  &s.Filters.GlassesAsset,
		"MUSTACHE_ASSET": &s.Filters.MustacheAsset,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"CAMERA_INDEX":  &s.Camera.Index,
		"FRAME_WIDTH":   &s.Camera.Width,
		"FRAME_HEIGHT":  &s.Camera.Height,
		"MAX_NUM_FACES": &s.Detector.MaxNumFaces,
	}
	for key, dst := range ints {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return models.NewValidationError(EnvPrefix+key, v, "must be an integer")
		}
		*dst = n
	}

	floats := map[string]*float64{
		"DETECTION_CONFIDENCE": &s.Detector.DetectionConfidence,
		"TRACKING_CONFIDENCE":  &s.Detector.TrackingConfidence,
	}
	for key, dst := range floats {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return models.NewValidationError(EnvPrefix+key, v, "must be a number")
		}
		*dst = f
	}

	bools := map[string]*bool{
		"MIRROR":       &s.Camera.Mirror,
		"SHOW_HUD":     &s.Display.ShowHUD,
		"DRAW_ANCHORS": &s.Display.DrawAnchors,
	}
	for key, dst := range bools {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return models.NewValidationError(EnvPrefix+key, v, "must be a boolean")
		}
		*dst = b
	}

	if v, ok := lookup(EnvPrefix + "FILTERS"); ok {
		s.Filters.Enabled = splitList(v)
	}
	s.Log.Level = strings.ToLower(s.Log.Level)
	s.Display.Mode = strings.ToLower(s.Display.Mode)
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var validate = validator.New()

// Validate checks the startup-only fields and then the runtime subset with the
// same rules the settings store enforces.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return models.NewValidationError(fe.Namespace(), fe.Value(), "failed "+fe.Tag()+" check")
		}
		return err
	}

	if _, err := models.NewRuntimeConfigStore(s.RuntimeConfig()); err != nil {
		return err
	}
	return nil
}

// RuntimeConfig extracts the live-tunable subset. ReinitializeCamera is set so
// the capture loop opens the device on its first poll.
func (s Settings) RuntimeConfig() models.RuntimeConfig {
	return models.RuntimeConfig{
		CameraIndex:         s.Camera.Index,
		FrameWidth:          s.Camera.Width,
		FrameHeight:         s.Camera.Height,
		MaxNumFaces:         s.Detector.MaxNumFaces,
		DetectionConfidence: s.Detector.DetectionConfidence,
		TrackingConfidence:  s.Detector.TrackingConfidence,
		EnabledFilters:      append([]string(nil), s.Filters.Enabled...),
		ReinitializeCamera:  true,
		Mirror:              s.Camera.Mirror,
		ShowHUD:             s.Display.ShowHUD,
		DrawAnchors:         s.Display.DrawAnchors,
	}
}

// ApplyTo copies the runtime subset into cfg, requesting a device reopen only
// when the camera or its resolution changed.
func (s Settings) ApplyTo(cfg *models.RuntimeConfig) {
	next := s.RuntimeConfig()
	next.ReinitializeCamera = cfg.ReinitializeCamera ||
		next.CameraIndex != cfg.CameraIndex ||
		next.Resolution() != cfg.Resolution()
	*cfg = next
}
