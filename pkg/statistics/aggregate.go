// Package statistics computes per-sector intensity summaries of a lung.
package statistics

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"lungperfusion/internal/models"
	"lungperfusion/pkg/apperrors"
)

// LungStatistics is the sector triple of one lung plus its total Kct
type LungStatistics struct {
	Sectors [3]models.SectorStatistics
	Total   float64
}

// Samples gathers the image intensities under the foreground of mask.
func Samples(mask *models.BinaryMask, img *models.GrayscaleImage) []float64 {
	samples := make([]float64, 0, 256)
	for i, v := range mask.Pix {
		if v != 0 {
			samples = append(samples, float64(img.Pix[i]))
		}
	}
	return samples
}

// Summarize computes area, mean, population standard deviation and Kct of
// the pixels under mask. An empty mask gives all zeros.
func Summarize(sector models.Sector, mask *models.BinaryMask, img *models.GrayscaleImage) models.SectorStatistics {
	samples := Samples(mask, img)
	s := models.SectorStatistics{Sector: sector, Area: len(samples)}
	if len(samples) == 0 {
		return s
	}

	s.MeanIntensity, s.StdDev = stat.PopMeanStdDev(samples, nil)
	s.Kct = floats.Sum(samples)
	return s
}

// Percentages returns 100*v/sum(values) for each value, or all zeros when
// the sum is not positive.
func Percentages(values []float64) []float64 {
	out := make([]float64, len(values))
	total := floats.Sum(values)
	if total <= 0 {
		return out
	}
	for i, v := range values {
		out[i] = 100 * v / total
	}
	return out
}

// Aggregate summarises the three sector masks of a lung against the
// original image and fills in each sector's share of the lung total.
func Aggregate(sectorMasks [3]*models.BinaryMask, img *models.GrayscaleImage) (*LungStatistics, error) {
	if img.Empty() {
		return nil, apperrors.NewInvalidInputError(apperrors.StageAggregate, "image is empty", nil)
	}
	for _, m := range sectorMasks {
		if m == nil || m.Width != img.Width || m.Height != img.Height || len(m.Pix) != len(img.Pix) {
			return nil, apperrors.NewInvalidInputError(apperrors.StageAggregate, "sector mask does not match image dimensions", nil)
		}
	}

	result := &LungStatistics{}
	kcts := make([]float64, len(sectorMasks))
	for i, m := range sectorMasks {
		result.Sectors[i] = Summarize(models.Sectors[i], m, img)
		kcts[i] = result.Sectors[i].Kct
	}

	result.Total = floats.Sum(kcts)
	for i, p := range Percentages(kcts) {
		result.Sectors[i].Percentage = p
	}

	return result, nil
}
