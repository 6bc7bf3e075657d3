package overlay

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

const HUDText = "Press 'q' to quit"

var (
	eyeMarkerColor   = color.RGBA{R: 255, G: 255, A: 255}
	mouthMarkerColor = color.RGBA{R: 255, B: 255, A: 255}
	hudColor         = color.RGBA{R: 200, G: 200, B: 200, A: 255}
)

// DrawAnchors marks the eye centers and the mouth anchor of one face.
func DrawAnchors(frame *gocv.Mat, anchors AnchorSet) {
	gocv.Circle(frame, anchors.LeftEyeCenter, 5, eyeMarkerColor, -1)
	gocv.Circle(frame, anchors.RightEyeCenter, 5, eyeMarkerColor, -1)
	gocv.Circle(frame, anchors.EyesCenter, 3, eyeMarkerColor, -1)
	gocv.Circle(frame, anchors.MouthCenter, 5, mouthMarkerColor, -1)
}

// DrawHUD writes the usage hint in the top-left corner.
func DrawHUD(frame *gocv.Mat, text string) {
	gocv.PutText(frame, text, image.Point{X: 10, Y: 30}, gocv.FontHersheySimplex, 0.6, hudColor, 2)
}
