package components

import (
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

type StatusBar struct {
	container    *fyne.Container
	statusLabel  *widget.Label
	framesLabel  *widget.Label
	latencyLabel *widget.Label
}

func NewStatusBar() *StatusBar {
	statusLabel := widget.NewLabel("Ready")
	framesLabel := widget.NewLabel("FPS: --")
	latencyLabel := widget.NewLabel("Frame: --")

	metricsContainer := container.NewHBox(
		framesLabel,
		widget.NewSeparator(),
		latencyLabel,
	)

	mainContainer := container.NewBorder(
		nil, nil,
		statusLabel,
		metricsContainer,
	)

	return &StatusBar{
		container:    mainContainer,
		statusLabel:  statusLabel,
		framesLabel:  framesLabel,
		latencyLabel: latencyLabel,
	}
}

func (sb *StatusBar) GetContainer() *fyne.Container {
	return sb.container
}

func (sb *StatusBar) SetStatus(status string) {
	sb.statusLabel.SetText(status)
}

func (sb *StatusBar) Status() string {
	return sb.statusLabel.Text
}

func (sb *StatusBar) SetMetrics(fps float64, frame time.Duration) {
	sb.framesLabel.SetText(fmt.Sprintf("FPS: %.1f", fps))
	sb.latencyLabel.SetText(fmt.Sprintf("Frame: %.1f ms", float64(frame)/float64(time.Millisecond)))
}
