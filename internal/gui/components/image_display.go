package components

import (
	"image"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
)

const (
	PreviewMinWidth  = 640
	PreviewMinHeight = 480
)

// ImageDisplay shows the latest processed frame, scaled to fit.
type ImageDisplay struct {
	container *fyne.Container
	image     *canvas.Image
}

func NewImageDisplay() *ImageDisplay {
	img := canvas.NewImageFromImage(nil)
	img.FillMode = canvas.ImageFillContain
	img.ScaleMode = canvas.ImageScaleFastest
	img.SetMinSize(fyne.NewSize(PreviewMinWidth, PreviewMinHeight))

	return &ImageDisplay{
		container: container.NewStack(img),
		image:     img,
	}
}

func (id *ImageDisplay) GetContainer() *fyne.Container {
	return id.container
}

// SetImage must run on the fyne goroutine.
func (id *ImageDisplay) SetImage(img image.Image) {
	if img == nil {
		return
	}
	id.image.Image = img
	id.image.Refresh()
}

// Image returns the frame currently shown.
func (id *ImageDisplay) Image() image.Image {
	return id.image.Image
}
