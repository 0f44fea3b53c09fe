// Package imageio decodes scan files into grayscale images for the pipeline.
package imageio

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"lungperfusion/internal/models"
	"lungperfusion/pkg/apperrors"
)

// Load reads and decodes the scan at path. Every failure is an image_load
// AppError so that it is reported before the pipeline starts.
func Load(path string) (*models.GrayscaleImage, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewImageLoadError(fmt.Sprintf("cannot open %s", path), err)
	}
	defer file.Close()

	return Decode(file, path)
}

// Decode decodes an image stream. name is only used in error messages.
func Decode(r io.Reader, name string) (*models.GrayscaleImage, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, apperrors.NewImageLoadError(fmt.Sprintf("cannot decode %s", name), err)
	}

	gray, err := FromImage(img)
	if err != nil {
		return nil, apperrors.NewImageLoadError(fmt.Sprintf("cannot convert %s image %s", format, name), err)
	}
	if gray.Empty() {
		return nil, apperrors.NewImageLoadError(fmt.Sprintf("%s has zero area", name), nil)
	}

	return gray, nil
}

// DecodeBytes is Decode over an in-memory buffer.
func DecodeBytes(data []byte, name string) (*models.GrayscaleImage, error) {
	return Decode(bytes.NewReader(data), name)
}

// FromImage converts a decoded image to a grayscale image. 8- and 16-bit
// gray images keep their samples and depth; anything else is reduced to
// 8-bit luma (0.299 R + 0.587 G + 0.114 B).
func FromImage(img image.Image) (*models.GrayscaleImage, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src := img.(type) {
	case *image.Gray:
		pix := make([]uint16, 0, w*h)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				pix = append(pix, uint16(src.GrayAt(x, y).Y))
			}
		}
		return models.NewGrayscaleImage(w, h, 8, pix)

	case *image.Gray16:
		pix := make([]uint16, 0, w*h)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				pix = append(pix, src.Gray16At(x, y).Y)
			}
		}
		return models.NewGrayscaleImage(w, h, 16, pix)
	}

	pix := make([]uint16, 0, w*h)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			pix = append(pix, uint16(luma(img.At(x, y))))
		}
	}
	return models.NewGrayscaleImage(w, h, 8, pix)
}

// luma returns the 8-bit BT.601 luminance of c, rounded to nearest
func luma(c color.Color) uint8 {
	r, g, bl, _ := c.RGBA()
	y := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 257.0
	if y > 255 {
		y = 255
	}
	return uint8(y + 0.5)
}

// ToImage converts a grayscale image back to the standard library form,
// using Gray16 when the source was 16-bit.
func ToImage(g *models.GrayscaleImage) image.Image {
	rect := image.Rect(0, 0, g.Width, g.Height)
	if g.BitDepth == 16 {
		out := image.NewGray16(rect)
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				out.SetGray16(x, y, color.Gray16{Y: g.At(x, y)})
			}
		}
		return out
	}

	out := image.NewGray(rect)
	for i, v := range g.Pix {
		out.Pix[(i/g.Width)*out.Stride+i%g.Width] = uint8(v)
	}
	return out
}
