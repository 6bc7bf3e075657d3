// Package landmark defines the face landmark types and the detector contract
// consumed by the tracking pipeline. The model itself lives outside this module.
package landmark

import "gocv.io/x/gocv"

// Face mesh landmark indices following the MediaPipe face-mesh layout.
const (
	LeftEyeUpperLid  = 159
	LeftEyeLowerLid  = 145
	RightEyeUpperLid = 386
	RightEyeLowerLid = 374
	UpperLip         = 13
	LowerLip         = 14

	// MeshSize is the landmark count without iris refinement.
	MeshSize = 468
	// RefinedMeshSize adds the ten iris points produced with refine_landmarks.
	RefinedMeshSize = 478
)

// Point is a landmark normalized to the frame, X and Y in [0,1].
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Face is the ordered landmark set of one detected face.
type Face []Point

// Detector analyzes a BGR frame and returns the landmarks of every detected face.
type Detector interface {
	// Detect returns an empty slice when no face is found.
	Detect(frame gocv.Mat) ([]Face, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Options configure a detector at construction. A detector cannot be
// reconfigured; build a new one instead.
type Options struct {
	StaticMode          bool    `json:"static_image_mode"`
	MaxNumFaces         int     `json:"max_num_faces"`
	RefineLandmarks     bool    `json:"refine_landmarks"`
	DetectionConfidence float64 `json:"min_detection_confidence"`
	TrackingConfidence  float64 `json:"min_tracking_confidence"`
}

// DefaultOptions returns video-mode options for a single face.
func DefaultOptions() Options {
	return Options{
		StaticMode:          false,
		MaxNumFaces:         1,
		RefineLandmarks:     true,
		DetectionConfidence: 0.5,
		TrackingConfidence:  0.5,
	}
}

// Factory builds a Detector for the given options.
type Factory func(opts Options) (Detector, error)
