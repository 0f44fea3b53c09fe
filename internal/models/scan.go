package models

import (
	"fmt"
	"image"
)

// GrayscaleImage is a planar scan as a row-major array of intensity samples.
// It is never modified once constructed.
type GrayscaleImage struct {
	// Width and Height are the image dimensions in pixels
	Width  int
	Height int

	// BitDepth is the sample depth of the source file (8 or 16)
	BitDepth int

	// Pix holds Width*Height samples, row by row
	Pix []uint16
}

// NewGrayscaleImage builds an image from a copy of the given samples.
// A nil pix allocates a zero-filled image.
func NewGrayscaleImage(width, height, bitDepth int, pix []uint16) (*GrayscaleImage, error) {
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", width, height)
	}
	if bitDepth != 8 && bitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}

	img := &GrayscaleImage{
		Width:    width,
		Height:   height,
		BitDepth: bitDepth,
		Pix:      make([]uint16, width*height),
	}
	if pix != nil {
		if len(pix) != width*height {
			return nil, fmt.Errorf("expected %d samples, got %d", width*height, len(pix))
		}
		copy(img.Pix, pix)
	}

	return img, nil
}

// At returns the intensity at (x, y).
func (g *GrayscaleImage) At(x, y int) uint16 {
	return g.Pix[y*g.Width+x]
}

// MaxValue returns the largest representable sample for the bit depth.
func (g *GrayscaleImage) MaxValue() uint16 {
	if g.BitDepth == 16 {
		return 0xffff
	}
	return 0xff
}

// Empty reports whether the image has no pixels.
func (g *GrayscaleImage) Empty() bool {
	return g == nil || g.Width == 0 || g.Height == 0 || len(g.Pix) == 0
}

// BinaryMask is a two-valued image: every pixel is either 0 or High.
type BinaryMask struct {
	Width  int
	Height int

	// High is the value stored for foreground pixels
	High uint8

	Pix []uint8
}

// NewBinaryMask allocates an all-background mask.
func NewBinaryMask(width, height int, high uint8) *BinaryMask {
	if high == 0 {
		high = 255
	}
	return &BinaryMask{
		Width:  width,
		Height: height,
		High:   high,
		Pix:    make([]uint8, width*height),
	}
}

// Foreground reports whether (x, y) is set. Out-of-bounds is background.
func (m *BinaryMask) Foreground(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Pix[y*m.Width+x] != 0
}

// Set marks (x, y) as foreground or background.
func (m *BinaryMask) Set(x, y int, on bool) {
	if on {
		m.Pix[y*m.Width+x] = m.High
	} else {
		m.Pix[y*m.Width+x] = 0
	}
}

// Area counts the foreground pixels.
func (m *BinaryMask) Area() int {
	n := 0
	for _, v := range m.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// Bounds returns the smallest rectangle holding every foreground pixel.
// It is empty when the mask has no foreground.
func (m *BinaryMask) Bounds() image.Rectangle {
	minX, minY := m.Width, m.Height
	maxX, maxY := -1, -1
	for y := 0; y < m.Height; y++ {
		row := m.Pix[y*m.Width : (y+1)*m.Width]
		for x, v := range row {
			if v == 0 {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			maxY = y
		}
	}
	if maxX < 0 {
		return image.Rectangle{}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// Clone returns an independent copy.
func (m *BinaryMask) Clone() *BinaryMask {
	c := NewBinaryMask(m.Width, m.Height, m.High)
	copy(c.Pix, m.Pix)
	return c
}

// SameSize reports whether both masks share dimensions.
func (m *BinaryMask) SameSize(o *BinaryMask) bool {
	return o != nil && m.Width == o.Width && m.Height == o.Height
}

// Equal compares foreground pixel sets, ignoring the High value.
func (m *BinaryMask) Equal(o *BinaryMask) bool {
	if !m.SameSize(o) {
		return false
	}
	for i := range m.Pix {
		if (m.Pix[i] != 0) != (o.Pix[i] != 0) {
			return false
		}
	}
	return true
}

// LabelMap assigns each foreground pixel the id of its connected component.
// Label 0 is background; components are numbered 1..Count.
type LabelMap struct {
	Width  int
	Height int
	Count  int
	Labels []int32
}

// At returns the label at (x, y).
func (l *LabelMap) At(x, y int) int {
	return int(l.Labels[y*l.Width+x])
}

// Point2D is a sub-pixel image position.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
