// Package overlay places accessory images on detected faces: it derives pixel
// anchors from landmarks, rotates assets without clipping and alpha-composites
// them onto BGR frames.
package overlay

import (
	"errors"
	"fmt"
	"image"

	"face-overlay/internal/landmark"
)

var ErrInvalidLandmarkIndex = errors.New("landmark index out of range")

// AnchorSet holds the pixel-space points overlays are placed against. It is
// derived fresh for every face in every frame.
type AnchorSet struct {
	EyesCenter  image.Point
	MouthCenter image.Point
	// LeftEye and RightEye are the upper lid points the tilt is measured from.
	LeftEye  image.Point
	RightEye image.Point
	// LeftEyeCenter and RightEyeCenter are the midpoints of each eye's lids.
	LeftEyeCenter  image.Point
	RightEyeCenter image.Point
}

var anchorLandmarks = []int{
	landmark.LeftEyeUpperLid,
	landmark.LeftEyeLowerLid,
	landmark.RightEyeUpperLid,
	landmark.RightEyeLowerLid,
	landmark.UpperLip,
	landmark.LowerLip,
}

// Extract computes the anchors of one face on a width x height frame.
// Coordinates are truncated, not rounded.
func Extract(face landmark.Face, width, height int) (AnchorSet, error) {
	for _, id := range anchorLandmarks {
		if id >= len(face) {
			return AnchorSet{}, fmt.Errorf("%w: id %d with %d landmarks", ErrInvalidLandmarkIndex, id, len(face))
		}
	}

	w, h := float64(width), float64(height)

	leftEye := midpoint(face[landmark.LeftEyeUpperLid], face[landmark.LeftEyeLowerLid], w, h)
	rightEye := midpoint(face[landmark.RightEyeUpperLid], face[landmark.RightEyeLowerLid], w, h)

	return AnchorSet{
		EyesCenter: image.Point{
			X: floorDiv(leftEye.X+rightEye.X, 2),
			Y: floorDiv(leftEye.Y+rightEye.Y, 2),
		},
		MouthCenter:    midpoint(face[landmark.UpperLip], face[landmark.LowerLip], w, h),
		LeftEye:        scale(face[landmark.LeftEyeUpperLid], w, h),
		RightEye:       scale(face[landmark.RightEyeUpperLid], w, h),
		LeftEyeCenter:  leftEye,
		RightEyeCenter: rightEye,
	}, nil
}

func midpoint(a, b landmark.Point, w, h float64) image.Point {
	return image.Point{
		X: int((a.X + b.X) / 2 * w),
		Y: int((a.Y + b.Y) / 2 * h),
	}
}

func scale(p landmark.Point, w, h float64) image.Point {
	return image.Point{X: int(p.X * w), Y: int(p.Y * h)}
}

// floorDiv rounds toward negative infinity so anchors just outside the frame
// keep moving in the same direction.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
