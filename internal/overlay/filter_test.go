package overlay

import (
	"errors"
	"image"
	"math"
	"testing"

	"face-overlay/internal/landmark"
)

func TestRotationAngle(t *testing.T) {
	cases := []struct {
		p1, p2 image.Point
		want   float64
	}{
		{image.Pt(0, 0), image.Pt(10, 0), 0},
		{image.Pt(0, 0), image.Pt(10, 10), 45},
		{image.Pt(0, 0), image.Pt(10, -10), -45},
		{image.Pt(0, 0), image.Pt(0, 10), 90},
	}
	for _, c := range cases {
		if got := RotationAngle(c.p1, c.p2); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("RotationAngle(%v, %v) = %v, want %v", c.p1, c.p2, got, c.want)
		}
	}
}

func TestGeometryPlace(t *testing.T) {
	level := AnchorSet{
		EyesCenter:  image.Pt(320, 244),
		MouthCenter: image.Pt(320, 345),
		LeftEye:     image.Pt(256, 240),
		RightEye:    image.Pt(384, 240),
	}
	tilted := level
	tilted.RightEye = image.Pt(356, 340)

	cases := []struct {
		name     string
		geometry Geometry
		anchors  AnchorSet
		want     Placement
	}{
		{
			name:     "glasses level",
			geometry: GlassesGeometry,
			anchors:  level,
			want:     Placement{Angle: 0, Width: 256, Height: 85, Anchor: image.Pt(320, 244)},
		},
		{
			name:     "mustache level",
			geometry: MustacheGeometry,
			anchors:  level,
			want:     Placement{Angle: 0, Width: 166, Height: 83, Anchor: image.Pt(320, 345)},
		},
		{
			name:     "glasses tilted",
			geometry: GlassesGeometry,
			anchors:  tilted,
			want:     Placement{Angle: -45, Width: 200, Height: 66, Anchor: image.Pt(320, 244)},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := c.geometry.Place(c.anchors)
			if math.Abs(got.Angle-c.want.Angle) > 1e-9 {
				t.Errorf("angle = %v, want %v", got.Angle, c.want.Angle)
			}
			got.Angle = c.want.Angle
			if got != c.want {
				t.Errorf("got %+v, want %+v", got, c.want)
			}
		})
	}
}

func TestGeometryPlaceClampsDegenerateEyes(t *testing.T) {
	anchors := AnchorSet{
		EyesCenter: image.Pt(50, 50),
		LeftEye:    image.Pt(50, 50),
		RightEye:   image.Pt(50, 50),
	}
	p := GlassesGeometry.Place(anchors)
	if p.Width != 1 || p.Height != 1 || !p.Clamped {
		t.Fatalf("expected clamped 1x1 placement, got %+v", p)
	}

	// Wide enough for width but not for height.
	anchors.RightEye = image.Pt(51, 50)
	p = GlassesGeometry.Place(anchors)
	if p.Width != 2 || p.Height != 1 || !p.Clamped {
		t.Fatalf("expected 2x1 clamped placement, got %+v", p)
	}
}

func TestGlassesApplyScenario(t *testing.T) {
	frame := newFrame(640, 480, 0)
	defer frame.Close()
	asset := newAsset(200, 80, 0, 0, 255, 255)
	defer asset.Close()

	face := scenarioFace()
	anchors, err := Extract(face, frame.Cols(), frame.Rows())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	glasses := NewGlasses(asset)
	if glasses.Name() != KindGlasses {
		t.Fatalf("name = %q", glasses.Name())
	}
	if err := glasses.Apply(&frame, face, anchors); err != nil {
		t.Fatalf("apply: %v", err)
	}

	bounds := paintedBounds(t, frame, 0)
	if bounds.Dx() < 200 || bounds.Dy() < 80 {
		t.Fatalf("painted region %v smaller than the asset", bounds)
	}
	cx, cy := boundsCenter(bounds)
	if math.Abs(cx-320) > 1 || math.Abs(cy-244) > 1 {
		t.Fatalf("painted center (%.1f, %.1f), want (320, 244)", cx, cy)
	}
	if asset.Cols() != 200 || asset.Rows() != 80 {
		t.Fatal("asset was modified")
	}
}

func TestApplyTiltedStaysCentered(t *testing.T) {
	frame := newFrame(640, 480, 0)
	defer frame.Close()
	asset := newAsset(200, 80, 0, 255, 0, 255)
	defer asset.Close()

	anchors := AnchorSet{
		EyesCenter: image.Pt(320, 244),
		LeftEye:    image.Pt(260, 210),
		RightEye:   image.Pt(380, 279),
	}
	if err := NewGlasses(asset).Apply(&frame, landmark.Face{}, anchors); err != nil {
		t.Fatalf("apply: %v", err)
	}

	cx, cy := boundsCenter(paintedBounds(t, frame, 0))
	if math.Abs(cx-320) > 1 || math.Abs(cy-244) > 1 {
		t.Fatalf("painted center (%.1f, %.1f), want (320, 244)", cx, cy)
	}
}

func TestApplyDegenerateDrawsClamped(t *testing.T) {
	frame := newFrame(64, 48, 0)
	defer frame.Close()
	asset := newAsset(20, 8, 255, 255, 255, 255)
	defer asset.Close()

	anchors := AnchorSet{
		EyesCenter:  image.Pt(32, 24),
		MouthCenter: image.Pt(32, 40),
		LeftEye:     image.Pt(32, 24),
		RightEye:    image.Pt(32, 24),
	}
	for _, f := range []Filter{NewGlasses(asset), NewMustache(asset)} {
		if err := f.Apply(&frame, landmark.Face{}, anchors); !errors.Is(err, ErrDegenerateGeometry) {
			t.Fatalf("%s: got %v, want ErrDegenerateGeometry", f.Name(), err)
		}
	}
	if px := pixelAt(t, frame, 32, 24); px[0] == 0 && px[1] == 0 && px[2] == 0 {
		t.Fatal("clamped glasses not drawn at the eyes center")
	}
}
