package overlay

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"face-overlay/internal/opencv/conversion"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrAssetLoad = errors.New("overlay asset load failed")

// LoadAsset decodes an image file into a BGRA Mat. Images without an alpha
// channel come out fully opaque.
func LoadAsset(path string) (gocv.Mat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %v", ErrAssetLoad, err)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: decoding %s: %v", ErrAssetLoad, path, err)
	}

	mat, err := conversion.ImageToBGRA(img)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: converting %s image %s: %v", ErrAssetLoad, format, path, err)
	}

	return mat, nil
}
