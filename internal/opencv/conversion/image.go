package conversion

import (
	"fmt"
	"image"
	"image/color"

	"face-overlay/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// MatToRGBA converts a BGR or BGRA Mat into a standard Go image for display.
// Three-channel input is treated as opaque.
func MatToRGBA(src gocv.Mat) (*image.RGBA, error) {
	if err := safe.ValidateMatForOperation(src, "Mat to image conversion"); err != nil {
		return nil, err
	}

	channels := src.Channels()
	if channels != 3 && channels != 4 {
		return nil, fmt.Errorf("unsupported channel count: %d", channels)
	}
	if src.Type() != gocv.MatTypeCV8UC3 && src.Type() != gocv.MatTypeCV8UC4 {
		return nil, fmt.Errorf("unsupported MatType %d for image conversion", int(src.Type()))
	}

	data, err := src.DataPtrUint8()
	if err != nil {
		return nil, fmt.Errorf("Mat data access failed: %w", err)
	}

	rows, cols, step := src.Rows(), src.Cols(), src.Step()
	dst := image.NewRGBA(image.Rect(0, 0, cols, rows))

	for y := 0; y < rows; y++ {
		in := data[y*step : y*step+cols*channels]
		out := dst.Pix[y*dst.Stride : y*dst.Stride+cols*4]
		for x := 0; x < cols; x++ {
			b, g, r := in[x*channels], in[x*channels+1], in[x*channels+2]
			a := uint8(255)
			if channels == 4 {
				a = in[x*channels+3]
				// image.RGBA is premultiplied
				r = premultiply(r, a)
				g = premultiply(g, a)
				b = premultiply(b, a)
			}
			out[x*4], out[x*4+1], out[x*4+2], out[x*4+3] = r, g, b, a
		}
	}

	return dst, nil
}

// ImageToBGRA converts any decoded image into a CV_8UC4 Mat with straight
// (non-premultiplied) alpha in B, G, R, A channel order.
func ImageToBGRA(img image.Image) (gocv.Mat, error) {
	bounds := img.Bounds()
	if err := safe.ValidateDimensions(bounds.Dx(), bounds.Dy(), "image to BGRA conversion"); err != nil {
		return gocv.NewMat(), err
	}

	dst := gocv.NewMatWithSize(bounds.Dy(), bounds.Dx(), gocv.MatTypeCV8UC4)
	data, err := dst.DataPtrUint8()
	if err != nil {
		dst.Close()
		return gocv.NewMat(), fmt.Errorf("Mat data access failed: %w", err)
	}

	step := dst.Step()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := data[(y-bounds.Min.Y)*step:]
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			i := (x - bounds.Min.X) * 4
			row[i], row[i+1], row[i+2], row[i+3] = c.B, c.G, c.R, c.A
		}
	}

	return dst, nil
}

func premultiply(c, a uint8) uint8 {
	return uint8((uint16(c)*uint16(a) + 127) / 255)
}
