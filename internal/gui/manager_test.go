package gui

import (
	"testing"
	"time"

	"face-overlay/internal/gui/components"
	"face-overlay/internal/models"

	"fyne.io/fyne/v2/test"
	"gocv.io/x/gocv"
)

func newManager(t *testing.T) (*Manager, *models.RuntimeConfigStore) {
	t.Helper()
	app := test.NewTempApp(t)

	store, err := models.NewRuntimeConfigStore(models.DefaultRuntimeConfig())
	if err != nil {
		t.Fatal(err)
	}
	return NewManager(app, store, []string{"glasses", "mustache"}, nil), store
}

func TestHandleChangeCommitsValidMutation(t *testing.T) {
	m, store := newManager(t)

	m.handleChange(func(cfg *models.RuntimeConfig) {
		cfg.SetEnabled("mustache", true)
	})

	if !store.Read().IsEnabled("mustache") {
		t.Fatal("mutation not committed")
	}
	if m.status.Status() != "Settings updated" {
		t.Fatalf("status = %q", m.status.Status())
	}
}

func TestHandleChangeRejectsInvalidMutation(t *testing.T) {
	m, store := newManager(t)

	var bad components.Mutation = func(cfg *models.RuntimeConfig) {
		cfg.MaxNumFaces = 12
		cfg.CameraIndex = 4
	}
	m.handleChange(bad)

	got := store.Read()
	if got.MaxNumFaces != 1 || got.CameraIndex != 0 {
		t.Fatalf("invalid mutation partially applied: %+v", got)
	}
	if m.status.Status() == "Settings updated" {
		t.Fatal("rejection not reported")
	}
}

func TestQuitIsIdempotent(t *testing.T) {
	m, _ := newManager(t)

	m.RequestQuit()
	m.RequestQuit()

	select {
	case <-m.Quit():
	default:
		t.Fatal("quit channel not closed")
	}
}

func TestShowUpdatesPreview(t *testing.T) {
	m, _ := newManager(t)

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0), 48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	if err := m.Show(frame); err != nil {
		t.Fatalf("show: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.inFlight.Load() {
		if time.Now().After(deadline) {
			t.Fatal("preview never updated")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if m.preview.Image() == nil {
		t.Fatal("preview has no image")
	}
	r, g, b, _ := m.preview.Image().At(10, 10).RGBA()
	if b>>8 != 255 || r != 0 || g != 0 {
		t.Fatalf("preview pixel = %d %d %d, want blue", r>>8, g>>8, b>>8)
	}
}

func TestShowRejectsEmptyFrame(t *testing.T) {
	m, _ := newManager(t)

	empty := gocv.NewMat()
	defer empty.Close()

	if err := m.Show(empty); err == nil {
		t.Fatal("expected error for empty frame")
	}
	if m.inFlight.Load() {
		t.Fatal("failed conversion left a frame in flight")
	}
}
