// Package capture drives the frame loop: it owns the capture device, reopens
// it when the settings ask for it, and hands every frame through the tracking
// pipeline to a display.
package capture

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

var (
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrStreamEnded       = errors.New("capture stream ended")
)

// Device yields BGR frames. *gocv.VideoCapture satisfies it.
type Device interface {
	Read(frame *gocv.Mat) bool
	Close() error
}

// Opener opens the device at index and requests the given frame size.
type Opener func(index, width, height int) (Device, error)

// OpenCamera opens a local camera through OpenCV. The driver may ignore the
// requested size; frames are processed at whatever size it delivers.
func OpenCamera(index, width, height int) (Device, error) {
	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("%w: camera %d: %v", ErrDeviceUnavailable, index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: camera %d did not open", ErrDeviceUnavailable, index)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	return vc, nil
}

// Display presents processed frames and reports when the user asks to quit.
type Display interface {
	Show(frame gocv.Mat) error
	Quit() <-chan struct{}
}
