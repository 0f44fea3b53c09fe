package segmentation

import (
	"fmt"
	"image"
	"sort"

	"lungperfusion/internal/models"
	"lungperfusion/pkg/apperrors"
)

// ComponentStats describes one labelled connected component
type ComponentStats struct {
	Label    int             `json:"label"`
	Area     int             `json:"area"`
	Bounds   image.Rectangle `json:"bounds"`
	Centroid models.Point2D  `json:"centroid"`
}

// TouchesBorder reports whether the component reaches an image edge.
func (c ComponentStats) TouchesBorder(width, height int) bool {
	return c.Bounds.Min.X == 0 || c.Bounds.Min.Y == 0 ||
		c.Bounds.Max.X == width || c.Bounds.Max.Y == height
}

// neighbours8 are the offsets of the 8-connected neighbourhood
var neighbours8 = [8]image.Point{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// LabelComponents labels the 8-connected foreground components of mask.
// Labels are assigned in raster order of each component's first pixel.
// The returned stats are indexed by label-1.
func LabelComponents(mask *models.BinaryMask) (*models.LabelMap, []ComponentStats) {
	w, h := mask.Width, mask.Height
	labels := &models.LabelMap{
		Width:  w,
		Height: h,
		Labels: make([]int32, w*h),
	}

	var stats []ComponentStats
	stack := make([]int, 0, 64)

	for start := range mask.Pix {
		if mask.Pix[start] == 0 || labels.Labels[start] != 0 {
			continue
		}

		label := int32(len(stats) + 1)
		labels.Labels[start] = label
		stack = append(stack[:0], start)

		area := 0
		var sumX, sumY float64
		minX, minY := w, h
		maxX, maxY := -1, -1

		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%w, idx/w

			area++
			sumX += float64(x)
			sumY += float64(y)
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)

			for _, n := range neighbours8 {
				nx, ny := x+n.X, y+n.Y
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				nIdx := ny*w + nx
				if mask.Pix[nIdx] != 0 && labels.Labels[nIdx] == 0 {
					labels.Labels[nIdx] = label
					stack = append(stack, nIdx)
				}
			}
		}

		stats = append(stats, ComponentStats{
			Label:    int(label),
			Area:     area,
			Bounds:   image.Rect(minX, minY, maxX+1, maxY+1),
			Centroid: models.Point2D{X: sumX / float64(area), Y: sumY / float64(area)},
		})
	}

	labels.Count = len(stats)
	return labels, stats
}

// RankComponents orders components by area, largest first. Equal areas keep
// the lower label first so the ranking is reproducible.
func RankComponents(stats []ComponentStats) []ComponentStats {
	ranked := make([]ComponentStats, len(stats))
	copy(ranked, stats)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Area != ranked[j].Area {
			return ranked[i].Area > ranked[j].Area
		}
		return ranked[i].Label < ranked[j].Label
	})
	return ranked
}

// ComponentMask renders a single label as a new mask at the given high value.
func ComponentMask(labels *models.LabelMap, label int, high uint8) *models.BinaryMask {
	mask := models.NewBinaryMask(labels.Width, labels.Height, high)
	want := int32(label)
	for i, l := range labels.Labels {
		if l == want {
			mask.Pix[i] = mask.High
		}
	}
	return mask
}

// Ordering controls the order in which selected lungs are returned
type Ordering string

const (
	// OrderByRank keeps the order produced by the selection policy
	OrderByRank Ordering = "rank"

	// OrderLeftToRight sorts the selected lungs by centroid column
	OrderLeftToRight Ordering = "left-to-right"
)

// Extraction holds everything ComponentExtractor derived from a mask
type Extraction struct {
	// Labels is the full 8-connected label map
	Labels *models.LabelMap

	// Ranked lists every component, largest first
	Ranked []ComponentStats

	// Selected are the components chosen as lungs, in output order
	Selected []ComponentStats

	// Lungs holds one mask per selected component
	Lungs []*models.BinaryMask
}

// ComponentExtractor labels a cleaned mask and picks the lung components
type ComponentExtractor struct {
	Policy   SelectionPolicy
	Ordering Ordering
}

// NewComponentExtractor returns an extractor using the given policy.
// A nil policy selects SkipLargestPolicy.
func NewComponentExtractor(policy SelectionPolicy) *ComponentExtractor {
	if policy == nil {
		policy = SkipLargestPolicy()
	}
	return &ComponentExtractor{Policy: policy, Ordering: OrderByRank}
}

// Extract labels mask, ranks its components and renders the selected ones.
func (ce *ComponentExtractor) Extract(mask *models.BinaryMask) (*Extraction, error) {
	if err := checkMask(mask, apperrors.StageExtract); err != nil {
		return nil, err
	}

	labels, stats := LabelComponents(mask)
	ranked := RankComponents(stats)

	selected, err := ce.Policy.Select(ranked, mask)
	if err != nil {
		return nil, err
	}

	switch ce.Ordering {
	case OrderByRank, "":
	case OrderLeftToRight:
		sort.SliceStable(selected, func(i, j int) bool {
			return selected[i].Centroid.X < selected[j].Centroid.X
		})
	default:
		return nil, apperrors.NewInvalidInputError(apperrors.StageExtract,
			fmt.Sprintf("unknown lung ordering %q", ce.Ordering), nil)
	}

	lungs := make([]*models.BinaryMask, len(selected))
	for i, c := range selected {
		lungs[i] = ComponentMask(labels, c.Label, mask.High)
	}

	return &Extraction{
		Labels:   labels,
		Ranked:   ranked,
		Selected: selected,
		Lungs:    lungs,
	}, nil
}
