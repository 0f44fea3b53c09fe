// Package sectors splits a lung mask into upper, middle and lower bands.
package sectors

import (
	"lungperfusion/internal/models"
	"lungperfusion/pkg/apperrors"
)

// RowRange is a half-open range of image rows [Start, End)
type RowRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Height returns the number of rows in the range
func (r RowRange) Height() int {
	return r.End - r.Start
}

// Contains reports whether row y lies in the range
func (r RowRange) Contains(y int) bool {
	return y >= r.Start && y < r.End
}

// Partition is a lung mask split into three disjoint horizontal bands
type Partition struct {
	// Masks are ordered Upper, Middle, Lower
	Masks [3]*models.BinaryMask

	// Rows holds the band of each mask; all zero for an empty lung
	Rows [3]RowRange
}

// Mask returns the mask of the given sector
func (p *Partition) Mask(s models.Sector) *models.BinaryMask {
	return p.Masks[s]
}

// Split partitions lung by the vertical extent of its foreground. With
// height = yMax-yMin+1 and h = height/3, the bands are [yMin, yMin+h),
// [yMin+h, yMin+2h) and [yMin+2h, yMax]; the lower band takes the remainder.
// An empty lung yields three empty masks.
func Split(lung *models.BinaryMask) (*Partition, error) {
	if lung == nil || len(lung.Pix) != lung.Width*lung.Height {
		return nil, apperrors.NewInvalidInputError(apperrors.StagePartition, "lung mask is missing or malformed", nil)
	}

	p := &Partition{}
	for i := range p.Masks {
		p.Masks[i] = models.NewBinaryMask(lung.Width, lung.Height, lung.High)
	}

	bounds := lung.Bounds()
	if bounds.Empty() {
		return p, nil
	}

	yMin, yMax := bounds.Min.Y, bounds.Max.Y-1
	sectorHeight := (yMax - yMin + 1) / 3
	p.Rows = [3]RowRange{
		{Start: yMin, End: yMin + sectorHeight},
		{Start: yMin + sectorHeight, End: yMin + 2*sectorHeight},
		{Start: yMin + 2*sectorHeight, End: yMax + 1},
	}

	for i, rows := range p.Rows {
		dst := p.Masks[i]
		for y := rows.Start; y < rows.End; y++ {
			off := y * lung.Width
			for x := 0; x < lung.Width; x++ {
				if lung.Pix[off+x] != 0 {
					dst.Pix[off+x] = dst.High
				}
			}
		}
	}

	return p, nil
}
