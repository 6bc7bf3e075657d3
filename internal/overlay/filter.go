package overlay

import (
	"errors"
	"fmt"
	"image"
	"math"

	"face-overlay/internal/landmark"

	"gocv.io/x/gocv"
)

// ErrDegenerateGeometry reports that Apply clamped the accessory to the one
// pixel floor. The accessory is still drawn.
var ErrDegenerateGeometry = errors.New("eye distance too small, overlay size clamped")

const (
	KindGlasses  = "glasses"
	KindMustache = "mustache"
)

// Filter draws one accessory onto a frame for one face. Implementations keep
// no state between calls.
type Filter interface {
	Name() string
	Apply(frame *gocv.Mat, face landmark.Face, anchors AnchorSet) error
}

// Placement is the per-call transform of an accessory: rotation, target size
// before rotation, and the frame point its center goes to.
type Placement struct {
	Angle  float64
	Width  int
	Height int
	Anchor image.Point
	// Clamped is set when the eye distance was too small and the size was
	// raised to the one pixel floor.
	Clamped bool
}

// Geometry describes how an accessory scales and where it sits.
type Geometry struct {
	// WidthScale multiplies the horizontal eye distance.
	WidthScale float64
	// AspectDivisor gives height = width / AspectDivisor.
	AspectDivisor float64
	Anchor        func(AnchorSet) image.Point
}

var (
	GlassesGeometry = Geometry{
		WidthScale:    2,
		AspectDivisor: 3,
		Anchor:        func(a AnchorSet) image.Point { return a.EyesCenter },
	}
	MustacheGeometry = Geometry{
		WidthScale:    1.3,
		AspectDivisor: 2,
		Anchor:        func(a AnchorSet) image.Point { return a.MouthCenter },
	}
)

// RotationAngle returns the angle of the p1→p2 line in degrees.
func RotationAngle(p1, p2 image.Point) float64 {
	return math.Atan2(float64(p2.Y-p1.Y), float64(p2.X-p1.X)) * 180 / math.Pi
}

// Place computes the accessory transform from the eye pair. The angle is
// negated so the asset follows the head tilt in image coordinates.
func (g Geometry) Place(anchors AnchorSet) Placement {
	dx := math.Abs(float64(anchors.RightEye.X - anchors.LeftEye.X))

	p := Placement{
		Angle:  -RotationAngle(anchors.LeftEye, anchors.RightEye),
		Width:  int(dx * g.WidthScale),
		Anchor: g.Anchor(anchors),
	}
	p.Height = int(float64(p.Width) / g.AspectDivisor)

	if p.Width < 1 {
		p.Width, p.Clamped = 1, true
	}
	if p.Height < 1 {
		p.Height, p.Clamped = 1, true
	}
	return p
}

// Accessory is a Filter backed by a BGRA asset. The asset is borrowed from the
// registry and never modified.
type Accessory struct {
	name     string
	geometry Geometry
	asset    gocv.Mat
}

func NewAccessory(name string, geometry Geometry, asset gocv.Mat) *Accessory {
	return &Accessory{name: name, geometry: geometry, asset: asset}
}

func NewGlasses(asset gocv.Mat) *Accessory {
	return NewAccessory(KindGlasses, GlassesGeometry, asset)
}

func NewMustache(asset gocv.Mat) *Accessory {
	return NewAccessory(KindMustache, MustacheGeometry, asset)
}

func (a *Accessory) Name() string {
	return a.name
}

func (a *Accessory) Apply(frame *gocv.Mat, face landmark.Face, anchors AnchorSet) error {
	p := a.geometry.Place(anchors)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(a.asset, &resized, image.Point{X: p.Width, Y: p.Height}, 0, 0, gocv.InterpolationLinear)
	if resized.Empty() {
		return fmt.Errorf("%s: resize to %dx%d failed", a.name, p.Width, p.Height)
	}

	rotated, err := Rotate(resized, p.Angle)
	if err != nil {
		return fmt.Errorf("%s: %w", a.name, err)
	}
	defer rotated.Close()

	if err := Composite(frame, rotated, p.Anchor); err != nil {
		return fmt.Errorf("%s: %w", a.name, err)
	}
	if p.Clamped {
		return fmt.Errorf("%s: %w", a.name, ErrDegenerateGeometry)
	}
	return nil
}
