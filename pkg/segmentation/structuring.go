package segmentation

import (
	"fmt"
	"image"
	"math"
	"strings"
)

// Shape names accepted by NewStructuringElement
const (
	ShapeEllipse = "ellipse"
	ShapeRect    = "rect"
)

// StructuringElement is the footprint used by erosion and dilation.
// Offsets are relative to the anchor at (Cols/2, Rows/2).
type StructuringElement struct {
	Rows int
	Cols int

	// Anchor is the footprint cell aligned with the output pixel
	Anchor image.Point

	cells   []bool
	offsets []image.Point
}

// NewStructuringElement builds an element of the given shape.
func NewStructuringElement(shape string, rows, cols int) (StructuringElement, error) {
	switch strings.ToLower(shape) {
	case ShapeEllipse, "":
		return NewEllipse(rows, cols)
	case ShapeRect:
		return NewRect(rows, cols)
	default:
		return StructuringElement{}, fmt.Errorf("unknown structuring element shape %q", shape)
	}
}

// NewRect returns a fully populated rows x cols element.
func NewRect(rows, cols int) (StructuringElement, error) {
	if rows <= 0 || cols <= 0 {
		return StructuringElement{}, fmt.Errorf("structuring element size must be positive, got %dx%d", rows, cols)
	}
	cells := make([]bool, rows*cols)
	for i := range cells {
		cells[i] = true
	}
	return newElement(rows, cols, cells), nil
}

// NewEllipse returns the elliptical element inscribed in a rows x cols box.
// The rasterisation matches OpenCV's MORPH_ELLIPSE: row i spans the columns
// within c*sqrt(1 - dy^2/r^2) of the centre, rounded half to even.
func NewEllipse(rows, cols int) (StructuringElement, error) {
	if rows <= 0 || cols <= 0 {
		return StructuringElement{}, fmt.Errorf("structuring element size must be positive, got %dx%d", rows, cols)
	}

	r := rows / 2
	c := cols / 2
	invR2 := 0.0
	if r > 0 {
		invR2 = 1.0 / float64(r*r)
	}

	cells := make([]bool, rows*cols)
	for i := 0; i < rows; i++ {
		j1, j2 := 0, 0
		dy := i - r
		if abs(dy) <= r {
			dx := int(math.RoundToEven(float64(c) * math.Sqrt(float64(r*r-dy*dy)*invR2)))
			j1 = max(c-dx, 0)
			j2 = min(c+dx+1, cols)
		}
		for j := j1; j < j2; j++ {
			cells[i*cols+j] = true
		}
	}

	return newElement(rows, cols, cells), nil
}

func newElement(rows, cols int, cells []bool) StructuringElement {
	se := StructuringElement{
		Rows:   rows,
		Cols:   cols,
		Anchor: image.Pt(cols/2, rows/2),
		cells:  cells,
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if cells[i*cols+j] {
				se.offsets = append(se.offsets, image.Pt(j-se.Anchor.X, i-se.Anchor.Y))
			}
		}
	}
	return se
}

// Contains reports whether footprint cell (row, col) is set.
func (se StructuringElement) Contains(row, col int) bool {
	if row < 0 || col < 0 || row >= se.Rows || col >= se.Cols {
		return false
	}
	return se.cells[row*se.Cols+col]
}

// Offsets returns the anchor-relative positions of the footprint.
func (se StructuringElement) Offsets() []image.Point {
	out := make([]image.Point, len(se.offsets))
	copy(out, se.offsets)
	return out
}

// Size returns the number of cells in the footprint.
func (se StructuringElement) Size() int {
	return len(se.offsets)
}

// String draws the footprint, one row per line.
func (se StructuringElement) String() string {
	var sb strings.Builder
	for i := 0; i < se.Rows; i++ {
		for j := 0; j < se.Cols; j++ {
			if se.cells[i*se.Cols+j] {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('.')
			}
		}
		if i < se.Rows-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
