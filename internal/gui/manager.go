// Package gui hosts the fyne settings and preview window. The capture loop
// talks to it only through the capture.Display methods and the settings
// store; every widget update is marshalled onto the fyne goroutine.
package gui

import (
	"sync"
	"sync/atomic"
	"time"

	"face-overlay/internal/gui/components"
	"face-overlay/internal/logger"
	"face-overlay/internal/models"
	"face-overlay/internal/opencv/conversion"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"gocv.io/x/gocv"
)

const WindowTitle = "AR Filter Settings"

type Manager struct {
	window fyne.Window
	store  *models.RuntimeConfigStore
	logger logger.Logger

	settings *components.SettingsPanel
	preview  *components.ImageDisplay
	status   *components.StatusBar

	quit     chan struct{}
	quitOnce sync.Once
	running  atomic.Bool
	// inFlight is set while a frame waits for the fyne goroutine; frames
	// arriving meanwhile are dropped instead of queued.
	inFlight atomic.Bool
}

// NewManager builds the main window. kinds lists the filters offered as
// toggles, in registry order.
func NewManager(app fyne.App, store *models.RuntimeConfigStore, kinds []string, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NoOpLogger{}
	}

	m := &Manager{
		window:   app.NewWindow(WindowTitle),
		store:    store,
		logger:   log,
		settings: components.NewSettingsPanel(kinds, store.Read()),
		preview:  components.NewImageDisplay(),
		status:   components.NewStatusBar(),
		quit:     make(chan struct{}),
	}
	m.settings.SetChangeHandler(m.handleChange)

	m.window.SetContent(container.NewBorder(
		nil,
		m.status.GetContainer(),
		container.NewVScroll(m.settings.GetContainer()),
		nil,
		m.preview.GetContainer(),
	))
	m.window.SetMaster()
	m.window.SetCloseIntercept(func() {
		m.RequestQuit()
		m.window.Close()
	})

	log.Info("GUIManager", "window created", map[string]interface{}{
		"filters": kinds,
	})
	return m
}

func (m *Manager) Window() fyne.Window {
	return m.window
}

// ShowAndRun blocks until the window is closed or the app quits.
func (m *Manager) ShowAndRun() {
	m.running.Store(true)
	defer m.running.Store(false)
	m.window.ShowAndRun()
}

// Running reports whether the fyne event loop is still active.
func (m *Manager) Running() bool {
	return m.running.Load()
}

func (m *Manager) handleChange(mutation components.Mutation) {
	if err := m.store.Mutate(mutation); err != nil {
		m.status.SetStatus("Rejected: " + err.Error())
		m.logger.Warning("GUIManager", "settings change rejected", map[string]interface{}{
			"error": err.Error(),
		})
		m.settings.Load(m.store.Read())
		return
	}
	m.status.SetStatus("Settings updated")
}

// Show converts frame and hands it to the preview. It never blocks the
// capture loop: while the previous frame is still pending it drops this one.
func (m *Manager) Show(frame gocv.Mat) error {
	if !m.inFlight.CompareAndSwap(false, true) {
		return nil
	}

	img, err := conversion.MatToRGBA(frame)
	if err != nil {
		m.inFlight.Store(false)
		return err
	}

	fyne.Do(func() {
		m.preview.SetImage(img)
		m.inFlight.Store(false)
	})
	return nil
}

func (m *Manager) Quit() <-chan struct{} {
	return m.quit
}

func (m *Manager) RequestQuit() {
	m.quitOnce.Do(func() {
		close(m.quit)
		m.logger.Info("GUIManager", "quit requested", nil)
	})
}

// SyncSettings reloads the widgets from the store, e.g. after the settings
// file changed underneath them.
func (m *Manager) SyncSettings() {
	cfg := m.store.Read()
	fyne.Do(func() {
		m.settings.Load(cfg)
		m.status.SetStatus("Settings reloaded")
	})
}

func (m *Manager) UpdateMetrics(fps float64, frame time.Duration) {
	fyne.Do(func() {
		m.status.SetMetrics(fps, frame)
	})
}

// Shutdown closes the window if the event loop is still running; closing the
// master window ends the app.
func (m *Manager) Shutdown() {
	m.RequestQuit()
	if !m.Running() {
		return
	}
	fyne.Do(func() {
		m.window.Close()
	})
}
