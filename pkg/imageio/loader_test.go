package imageio

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"lungperfusion/pkg/apperrors"
)

func grayPattern(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x*10 + y)})
		}
	}
	return img
}

func TestDecodeGrayPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, grayPattern(4, 3)))

	img, err := DecodeBytes(buf.Bytes(), "scan.png")
	require.NoError(t, err)
	assert.Equal(t, 4, img.Width)
	assert.Equal(t, 3, img.Height)
	assert.Equal(t, 8, img.BitDepth)
	assert.Equal(t, uint16(32), img.At(3, 2))
}

func TestDecodeGray16KeepsDepth(t *testing.T) {
	src := image.NewGray16(image.Rect(0, 0, 2, 2))
	src.SetGray16(1, 1, color.Gray16{Y: 40000})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	img, err := DecodeBytes(buf.Bytes(), "scan16.png")
	require.NoError(t, err)
	assert.Equal(t, 16, img.BitDepth)
	assert.Equal(t, uint16(40000), img.At(1, 1))
	assert.Equal(t, uint16(0xffff), img.MaxValue())

	back, ok := ToImage(img).(*image.Gray16)
	require.True(t, ok)
	assert.Equal(t, uint16(40000), back.Gray16At(1, 1).Y)
}

func TestLoadTIFF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anterior.tif")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, tiff.Encode(f, grayPattern(5, 5), nil))
	require.NoError(t, f.Close())

	img, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint16(44), img.At(4, 4))

	gray, ok := ToImage(img).(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, uint8(44), gray.GrayAt(4, 4).Y)
}

func TestFromImageConvertsColour(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	src.Set(1, 0, color.RGBA{R: 255, A: 255})

	img, err := FromImage(src)
	require.NoError(t, err)
	assert.Equal(t, 8, img.BitDepth)
	assert.Equal(t, uint16(255), img.At(0, 0))
	assert.Equal(t, uint16(76), img.At(1, 0))
}

func TestLoadErrorsAreImageLoad(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindImageLoad))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = DecodeBytes([]byte("not an image"), "junk.bin")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindImageLoad))
	assert.Equal(t, apperrors.StageLoad, apperrors.StageOf(err))
}
