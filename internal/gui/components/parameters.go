package components

import (
	"slices"
	"strconv"
	"strings"

	"face-overlay/internal/models"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// Mutation edits a copy of the runtime settings; the receiver commits it.
type Mutation func(cfg *models.RuntimeConfig)

// SettingsPanel shows filter toggles that take effect immediately and an
// advanced section whose values are only committed by Apply, together with a
// camera reinitialization.
type SettingsPanel struct {
	container *fyne.Container
	advanced  *fyne.Container
	onChange  func(Mutation)

	filterChecks map[string]*widget.Check
	mirrorCheck  *widget.Check
	hudCheck     *widget.Check
	anchorsCheck *widget.Check

	cameraSelect     *widget.Select
	resolutionSelect *widget.Select
	maxFacesSlider   *widget.Slider
	maxFacesLabel    *widget.Label
	detectionSlider  *widget.Slider
	detectionLabel   *widget.Label
	trackingSlider   *widget.Slider
	trackingLabel    *widget.Label

	AdvancedButton *widget.Button
	ApplyButton    *widget.Button

	// loading suppresses change callbacks while widgets are synced from a config.
	loading bool
}

func NewSettingsPanel(kinds []string, initial models.RuntimeConfig) *SettingsPanel {
	sp := &SettingsPanel{
		filterChecks: make(map[string]*widget.Check, len(kinds)),
	}
	sp.setupPanel(kinds)
	sp.Load(initial)
	return sp
}

func (sp *SettingsPanel) setupPanel(kinds []string) {
	filters := container.NewVBox(widget.NewLabel("Filters"))
	for _, kind := range kinds {
		kind := kind
		check := widget.NewCheck(displayName(kind), func(enabled bool) {
			sp.emit(func(cfg *models.RuntimeConfig) {
				cfg.SetEnabled(kind, enabled)
			})
		})
		sp.filterChecks[kind] = check
		filters.Add(check)
	}

	sp.mirrorCheck = widget.NewCheck("Mirror", func(enabled bool) {
		sp.emit(func(cfg *models.RuntimeConfig) { cfg.Mirror = enabled })
	})
	sp.hudCheck = widget.NewCheck("Show HUD", func(enabled bool) {
		sp.emit(func(cfg *models.RuntimeConfig) { cfg.ShowHUD = enabled })
	})
	sp.anchorsCheck = widget.NewCheck("Draw Anchors", func(enabled bool) {
		sp.emit(func(cfg *models.RuntimeConfig) { cfg.DrawAnchors = enabled })
	})

	cameras := make([]string, 0, models.MaxCameraSlot+1)
	for i := 0; i <= models.MaxCameraSlot; i++ {
		cameras = append(cameras, strconv.Itoa(i))
	}
	sp.cameraSelect = widget.NewSelect(cameras, nil)

	resolutions := make([]string, len(models.ResolutionPresets))
	for i, r := range models.ResolutionPresets {
		resolutions[i] = r.String()
	}
	sp.resolutionSelect = widget.NewSelect(resolutions, nil)

	sp.maxFacesSlider = widget.NewSlider(models.MinFaces, models.MaxFaces)
	sp.maxFacesSlider.Step = 1
	sp.maxFacesLabel = widget.NewLabel("")
	sp.maxFacesSlider.OnChanged = func(value float64) {
		sp.maxFacesLabel.SetText("Max Faces: " + strconv.Itoa(int(value)))
	}

	sp.detectionSlider, sp.detectionLabel = confidenceSlider("Detection Confidence")
	sp.trackingSlider, sp.trackingLabel = confidenceSlider("Tracking Confidence")

	sp.ApplyButton = widget.NewButton("Apply Settings", sp.apply)

	sp.advanced = container.NewVBox(
		widget.NewLabel("Camera Index"),
		sp.cameraSelect,
		widget.NewLabel("Resolution"),
		sp.resolutionSelect,
		container.NewVBox(sp.maxFacesLabel, sp.maxFacesSlider),
		container.NewVBox(sp.detectionLabel, sp.detectionSlider),
		container.NewVBox(sp.trackingLabel, sp.trackingSlider),
		sp.anchorsCheck,
		sp.ApplyButton,
	)
	sp.advanced.Hide()

	sp.AdvancedButton = widget.NewButton("Show/Hide Advanced Settings", sp.ToggleAdvanced)

	sp.container = container.NewVBox(
		filters,
		widget.NewSeparator(),
		sp.mirrorCheck,
		sp.hudCheck,
		sp.AdvancedButton,
		sp.advanced,
	)
}

func confidenceSlider(title string) (*widget.Slider, *widget.Label) {
	slider := widget.NewSlider(models.MinConfidence, models.MaxConfidence)
	slider.Step = 0.1
	label := widget.NewLabel("")
	slider.OnChanged = func(value float64) {
		label.SetText(title + ": " + strconv.FormatFloat(value, 'f', 1, 64))
	}
	return slider, label
}

func (sp *SettingsPanel) GetContainer() *fyne.Container {
	return sp.container
}

// SetChangeHandler receives every mutation the panel produces.
func (sp *SettingsPanel) SetChangeHandler(handler func(Mutation)) {
	sp.onChange = handler
}

// Load syncs every widget to cfg without emitting changes.
func (sp *SettingsPanel) Load(cfg models.RuntimeConfig) {
	sp.loading = true
	defer func() { sp.loading = false }()

	for kind, check := range sp.filterChecks {
		check.SetChecked(cfg.IsEnabled(kind))
	}
	sp.mirrorCheck.SetChecked(cfg.Mirror)
	sp.hudCheck.SetChecked(cfg.ShowHUD)
	sp.anchorsCheck.SetChecked(cfg.DrawAnchors)

	selectOption(sp.cameraSelect, strconv.Itoa(cfg.CameraIndex))
	selectOption(sp.resolutionSelect, cfg.Resolution().String())
	sp.maxFacesSlider.SetValue(float64(cfg.MaxNumFaces))
	sp.maxFacesSlider.OnChanged(sp.maxFacesSlider.Value)
	sp.detectionSlider.SetValue(cfg.DetectionConfidence)
	sp.detectionSlider.OnChanged(sp.detectionSlider.Value)
	sp.trackingSlider.SetValue(cfg.TrackingConfidence)
	sp.trackingSlider.OnChanged(sp.trackingSlider.Value)
}

func (sp *SettingsPanel) ToggleAdvanced() {
	if sp.advanced.Visible() {
		sp.advanced.Hide()
	} else {
		sp.advanced.Show()
	}
}

func (sp *SettingsPanel) AdvancedVisible() bool {
	return sp.advanced.Visible()
}

// apply commits the advanced values. A camera or resolution set outside the
// offered presets (file or environment) shows as an empty select and is kept.
func (sp *SettingsPanel) apply() {
	camera, cameraErr := strconv.Atoi(sp.cameraSelect.Selected)
	var (
		resolution   models.Resolution
		resolutionOK bool
	)
	for _, r := range models.ResolutionPresets {
		if r.String() == sp.resolutionSelect.Selected {
			resolution, resolutionOK = r, true
		}
	}
	maxFaces := int(sp.maxFacesSlider.Value)
	detection := roundTenth(sp.detectionSlider.Value)
	tracking := roundTenth(sp.trackingSlider.Value)

	sp.emit(func(cfg *models.RuntimeConfig) {
		if cameraErr == nil {
			cfg.CameraIndex = camera
		}
		if resolutionOK {
			cfg.FrameWidth = resolution.Width
			cfg.FrameHeight = resolution.Height
		}
		cfg.MaxNumFaces = maxFaces
		cfg.DetectionConfidence = detection
		cfg.TrackingConfidence = tracking
		cfg.ReinitializeCamera = true
	})
}

// selectOption selects value, or clears the select when value is not offered.
func selectOption(s *widget.Select, value string) {
	if slices.Contains(s.Options, value) {
		s.SetSelected(value)
		return
	}
	s.ClearSelected()
}

func (sp *SettingsPanel) emit(m Mutation) {
	if sp.loading || sp.onChange == nil {
		return
	}
	sp.onChange(m)
}

// roundTenth snaps slider values such as 0.30000000000000004 to one decimal.
func roundTenth(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

func displayName(kind string) string {
	if kind == "" {
		return kind
	}
	return "Enable " + strings.ToUpper(kind[:1]) + kind[1:]
}
