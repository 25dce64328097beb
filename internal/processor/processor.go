package processor

import (
	"bytes"
	"image"
	"image/jpeg"
	"io"

	"github.com/disintegration/imaging"
)

// Load images, apply actions on them and then encode
type ImageProcessor struct {
	img image.Image
}

func (i *ImageProcessor) LoadJPEG(r io.Reader) error {
	img, err := jpeg.Decode(r)
	i.img = img
	return err
}

func (i *ImageProcessor) Resize(width, height int) {
	i.img = imaging.Resize(i.img, width, height, imaging.Lanczos)
}

func (i *ImageProcessor) GetJPEG() ([]byte, error) {
	buf := new(bytes.Buffer)
	err := jpeg.Encode(buf, i.img, &jpeg.Options{Quality: 90})
	return buf.Bytes(), err
}

func (i *ImageProcessor) GetBounds() (int, int) {
	return i.img.Bounds().Size().X, i.img.Bounds().Size().Y
}

// BoundJPEG downsizes a JPEG to maxWidth, keeping aspect ratio. Frames
// already within bounds pass through untouched.
func BoundJPEG(data []byte, maxWidth int) ([]byte, error) {
	imgp := &ImageProcessor{}
	if err := imgp.LoadJPEG(bytes.NewReader(data)); err != nil {
		return nil, err
	}

	width, _ := imgp.GetBounds()
	if maxWidth <= 0 || width <= maxWidth {
		return data, nil
	}

	imgp.Resize(maxWidth, 0)
	return imgp.GetJPEG()
}
