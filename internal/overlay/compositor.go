package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"face-overlay/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// RotatedSize returns the smallest canvas holding a w x h image rotated by
// angle degrees.
func RotatedSize(w, h int, angle float64) image.Point {
	rad := angle * math.Pi / 180
	cos, sin := math.Abs(math.Cos(rad)), math.Abs(math.Sin(rad))

	return image.Point{
		X: extent(float64(h)*sin + float64(w)*cos),
		Y: extent(float64(h)*cos + float64(w)*sin),
	}
}

// extent rounds a bounding dimension up, ignoring float noise such as
// cos(90°) not being exactly zero.
func extent(v float64) int {
	n := int(math.Ceil(v - 1e-6))
	if n < 1 {
		return 1
	}
	return n
}

// Rotate turns a BGRA image about its center by angle degrees, counter-clockwise
// for positive angles. The canvas grows to RotatedSize and the uncovered area is
// fully transparent, so no source pixel is lost.
func Rotate(src gocv.Mat, angle float64) (gocv.Mat, error) {
	if err := safe.ValidateMatType(src, gocv.MatTypeCV8UC4, "rotate"); err != nil {
		return gocv.NewMat(), err
	}

	w, h := src.Cols(), src.Rows()
	size := RotatedSize(w, h, angle)

	m := rotationMatrix(w, h, size, angle)
	defer m.Close()

	dst := gocv.NewMat()
	gocv.WarpAffineWithParams(src, &dst, m, size, gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})
	if dst.Empty() {
		dst.Close()
		return gocv.NewMat(), fmt.Errorf("warp affine produced empty image for %dx%d at %.2f°", w, h, angle)
	}

	return dst, nil
}

// rotationMatrix builds the 2x3 affine that rotates about the exact source
// center and translates it onto the exact center of the enlarged canvas.
func rotationMatrix(w, h int, size image.Point, angle float64) gocv.Mat {
	rad := angle * math.Pi / 180
	alpha, beta := math.Cos(rad), math.Sin(rad)

	cx, cy := float64(w-1)/2, float64(h-1)/2
	ncx, ncy := float64(size.X-1)/2, float64(size.Y-1)/2

	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	m.SetDoubleAt(0, 0, alpha)
	m.SetDoubleAt(0, 1, beta)
	m.SetDoubleAt(0, 2, ncx-alpha*cx-beta*cy)
	m.SetDoubleAt(1, 0, -beta)
	m.SetDoubleAt(1, 1, alpha)
	m.SetDoubleAt(1, 2, ncy+beta*cx-alpha*cy)
	return m
}

// Composite alpha-blends a BGRA overlay onto a BGR frame so that the overlay's
// center lands on center. Parts outside the frame are clipped; an overlay that
// misses the frame entirely leaves it untouched.
func Composite(dst *gocv.Mat, overlay gocv.Mat, center image.Point) error {
	if err := safe.ValidateMatType(*dst, gocv.MatTypeCV8UC3, "composite destination"); err != nil {
		return err
	}
	if err := safe.ValidateMatType(overlay, gocv.MatTypeCV8UC4, "composite overlay"); err != nil {
		return err
	}

	ow, oh := overlay.Cols(), overlay.Rows()
	origin := image.Point{X: center.X - ow/2, Y: center.Y - oh/2}
	placed := image.Rectangle{Min: origin, Max: origin.Add(image.Point{X: ow, Y: oh})}

	area := placed.Intersect(image.Rect(0, 0, dst.Cols(), dst.Rows()))
	if area.Empty() {
		return nil
	}

	frame, err := dst.DataPtrUint8()
	if err != nil {
		return fmt.Errorf("destination data access failed: %w", err)
	}
	pixels, err := overlay.DataPtrUint8()
	if err != nil {
		return fmt.Errorf("overlay data access failed: %w", err)
	}

	frameStep, overlayStep := dst.Step(), overlay.Step()

	for y := area.Min.Y; y < area.Max.Y; y++ {
		drow := frame[y*frameStep:]
		orow := pixels[(y-origin.Y)*overlayStep:]
		for x := area.Min.X; x < area.Max.X; x++ {
			d := drow[x*3 : x*3+3]
			o := orow[(x-origin.X)*4 : (x-origin.X)*4+4]
			blend(d, o)
		}
	}

	return nil
}

// blend applies dst = (1 - a) * dst + a * src with a = alpha / 255.
func blend(d, o []uint8) {
	switch o[3] {
	case 0:
		return
	case 255:
		d[0], d[1], d[2] = o[0], o[1], o[2]
		return
	}

	a := float64(o[3]) / 255
	for c := 0; c < 3; c++ {
		v := (1-a)*float64(d[c]) + a*float64(o[c])
		d[c] = uint8(math.Min(255, v+0.5))
	}
}
