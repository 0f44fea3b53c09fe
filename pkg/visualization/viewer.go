// Package visualization renders pipeline intermediates and results. It only
// consumes values produced by the pipeline and never feeds back into it.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"lungperfusion/internal/models"
	"lungperfusion/pkg/sectors"
)

// SectorColors tint the Upper, Middle and Lower bands in overlays
var SectorColors = [3]color.RGBA{
	{R: 230, G: 80, B: 60, A: 255},
	{R: 70, G: 180, B: 90, A: 255},
	{R: 60, G: 110, B: 220, A: 255},
}

// ScanImage converts a scan to 8-bit gray, stretching its intensity range
// to 0-255 so low-count scans stay visible.
func ScanImage(g *models.GrayscaleImage) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, g.Width, g.Height))

	var lo, hi uint16 = math.MaxUint16, 0
	for _, v := range g.Pix {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	span := float64(hi) - float64(lo)

	for i, v := range g.Pix {
		var y uint8
		if span > 0 {
			y = uint8(math.Round((float64(v) - float64(lo)) / span * 255))
		}
		out.Pix[(i/g.Width)*out.Stride+i%g.Width] = y
	}
	return out
}

// MaskImage renders a mask with foreground at its High value.
func MaskImage(m *models.BinaryMask) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Pix {
		out.Pix[(i/m.Width)*out.Stride+i%m.Width] = v
	}
	return out
}

// Palette returns n distinct opaque colours. Hues are spread with the golden
// ratio so that neighbouring labels contrast.
func Palette(n int) []color.RGBA {
	const golden = 0.618033988749895
	colors := make([]color.RGBA, n)
	h := 0.0
	for i := range colors {
		h = math.Mod(h+golden, 1)
		colors[i] = hsvToRGBA(h, 0.65, 0.95)
	}
	return colors
}

func hsvToRGBA(h, s, v float64) color.RGBA {
	i := math.Floor(h * 6)
	f := h*6 - i
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)

	var r, g, b float64
	switch int(i) % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return color.RGBA{R: uint8(r*255 + 0.5), G: uint8(g*255 + 0.5), B: uint8(b*255 + 0.5), A: 255}
}

// LabelImage colours each component of a label map; background stays black.
func LabelImage(labels *models.LabelMap) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, labels.Width, labels.Height))
	palette := Palette(labels.Count)
	for i, l := range labels.Labels {
		x, y := i%labels.Width, i/labels.Width
		if l == 0 {
			out.SetRGBA(x, y, color.RGBA{A: 255})
			continue
		}
		out.SetRGBA(x, y, palette[l-1])
	}
	return out
}

// SectorOverlay blends the sector bands of each partition over the scan.
func SectorOverlay(g *models.GrayscaleImage, partitions []*sectors.Partition) *image.RGBA {
	base := ScanImage(g)
	out := image.NewRGBA(image.Rect(0, 0, g.Width, g.Height))
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			v := base.GrayAt(x, y).Y
			out.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}

	for _, p := range partitions {
		if p == nil {
			continue
		}
		for s, m := range p.Masks {
			tint := SectorColors[s]
			for i, on := range m.Pix {
				if on == 0 {
					continue
				}
				x, y := i%m.Width, i/m.Width
				v := base.GrayAt(x, y).Y
				out.SetRGBA(x, y, color.RGBA{
					R: blend(v, tint.R),
					G: blend(v, tint.G),
					B: blend(v, tint.B),
					A: 255,
				})
			}
		}
	}
	return out
}

func blend(a, b uint8) uint8 {
	return uint8((uint16(a) + uint16(b)) / 2)
}

// SavePNG writes img to filename, creating parent directories.
func SavePNG(img image.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	if err := png.Encode(file, img); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode %s: %w", filename, err)
	}
	return file.Close()
}
