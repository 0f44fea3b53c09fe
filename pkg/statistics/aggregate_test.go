package statistics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lungperfusion/internal/models"
	"lungperfusion/pkg/apperrors"
)

func TestPercentagesConserveTotal(t *testing.T) {
	cases := [][]float64{
		{1, 1, 1},
		{0, 0, 5},
		{123456.5, 0.25, 98765.125},
		{1e-9, 2e-9, 3e-9},
		{7, 0, 0},
	}

	for _, kcts := range cases {
		pct := Percentages(kcts)
		sum := 0.0
		for _, p := range pct {
			assert.GreaterOrEqual(t, p, 0.0)
			sum += p
		}
		assert.InDelta(t, 100.0, sum, 1e-6, "kcts %v", kcts)
	}
}

func TestPercentagesZeroTotal(t *testing.T) {
	assert.Equal(t, []float64{0, 0, 0}, Percentages([]float64{0, 0, 0}))
}

func TestSummarize(t *testing.T) {
	img, err := models.NewGrayscaleImage(4, 1, 8, []uint16{2, 4, 4, 250})
	require.NoError(t, err)

	mask := models.NewBinaryMask(4, 1, 255)
	mask.Set(0, 0, true)
	mask.Set(1, 0, true)
	mask.Set(2, 0, true)

	s := Summarize(models.Middle, mask, img)
	assert.Equal(t, models.Middle, s.Sector)
	assert.Equal(t, 3, s.Area)
	assert.InDelta(t, 10.0/3.0, s.MeanIntensity, 1e-12)
	// population variance of {2,4,4} is 8/9
	assert.InDelta(t, math.Sqrt(8.0/9.0), s.StdDev, 1e-12)
	assert.Equal(t, 10.0, s.Kct)
}

func TestAggregate(t *testing.T) {
	pix := make([]uint16, 3*3)
	for i := range pix {
		pix[i] = uint16(10 * (i/3 + 1)) // rows of 10, 20, 30
	}
	img, err := models.NewGrayscaleImage(3, 3, 8, pix)
	require.NoError(t, err)

	var masks [3]*models.BinaryMask
	for row := range masks {
		masks[row] = models.NewBinaryMask(3, 3, 255)
		for x := 0; x < 3; x++ {
			masks[row].Set(x, row, true)
		}
	}

	got, err := Aggregate(masks, img)
	require.NoError(t, err)

	assert.Equal(t, 180.0, got.Total)
	wantKct := []float64{30, 60, 90}
	for i, s := range got.Sectors {
		assert.Equal(t, models.Sectors[i], s.Sector)
		assert.Equal(t, 3, s.Area)
		assert.Equal(t, wantKct[i], s.Kct)
		assert.Equal(t, 0.0, s.StdDev)
		assert.InDelta(t, 100*wantKct[i]/180, s.Percentage, 1e-9)
	}
}

func TestAggregateDegenerateSectors(t *testing.T) {
	img, err := models.NewGrayscaleImage(5, 5, 8, nil)
	require.NoError(t, err)

	var empty [3]*models.BinaryMask
	for i := range empty {
		empty[i] = models.NewBinaryMask(5, 5, 255)
	}

	got, err := Aggregate(empty, img)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.Total)
	for _, s := range got.Sectors {
		assert.Equal(t, 0, s.Area)
		assert.Equal(t, 0.0, s.MeanIntensity)
		assert.Equal(t, 0.0, s.StdDev)
		assert.Equal(t, 0.0, s.Kct)
		assert.Equal(t, 0.0, s.Percentage)
	}

	// pixels present but all zero intensity: total 0, percentages 0
	empty[1].Set(2, 2, true)
	got, err = Aggregate(empty, img)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Sectors[1].Area)
	assert.Equal(t, 0.0, got.Sectors[1].Percentage)
}

func TestAggregateRejectsMismatchedMasks(t *testing.T) {
	img, err := models.NewGrayscaleImage(4, 4, 8, nil)
	require.NoError(t, err)

	masks := [3]*models.BinaryMask{
		models.NewBinaryMask(4, 4, 255),
		models.NewBinaryMask(3, 4, 255),
		models.NewBinaryMask(4, 4, 255),
	}
	_, err = Aggregate(masks, img)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidInput))
	assert.Equal(t, apperrors.StageAggregate, apperrors.StageOf(err))
}
