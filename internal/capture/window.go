package capture

import (
	"sync"

	"gocv.io/x/gocv"
)

// WindowDisplay shows frames in a native OpenCV window. Pressing q or closing
// the window quits. OpenCV's HighGUI wants to be driven from one thread, so
// the loop using this display should run on the main goroutine.
type WindowDisplay struct {
	window *gocv.Window
	quit   chan struct{}
	once   sync.Once
}

func NewWindowDisplay(title string) *WindowDisplay {
	return &WindowDisplay{
		window: gocv.NewWindow(title),
		quit:   make(chan struct{}),
	}
}

func (d *WindowDisplay) Show(frame gocv.Mat) error {
	select {
	case <-d.quit:
		return nil
	default:
	}

	d.window.IMShow(frame)
	key := d.window.WaitKey(1)
	if key == 'q' || key == 'Q' || !d.window.IsOpen() {
		d.once.Do(func() { close(d.quit) })
	}
	return nil
}

func (d *WindowDisplay) Quit() <-chan struct{} {
	return d.quit
}

// Close destroys the window.
func (d *WindowDisplay) Close() error {
	d.once.Do(func() { close(d.quit) })
	return d.window.Close()
}
