package perfusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lungperfusion/internal/models"
	"lungperfusion/pkg/apperrors"
)

func lungResult(label string, kct ...float64) models.LungResult {
	l := models.LungResult{Label: label}
	for i, k := range kct {
		l.Sectors[i] = models.SectorStatistics{Sector: models.Sectors[i], Kct: k}
		l.TotalKct += k
	}
	return l
}

func TestCombineGeometricMean(t *testing.T) {
	anterior := &Result{Lungs: []models.LungResult{
		lungResult("Right Lung", 100, 400, 900),
		lungResult("Left Lung", 50, 50, 50),
	}}
	posterior := &Result{Lungs: []models.LungResult{
		lungResult("Left Lung", 50, 50, 50),
		lungResult("Right Lung", 400, 100, 100),
	}}

	combined, err := CombineGeometricMean(anterior, posterior)
	require.NoError(t, err)
	require.Len(t, combined, 2)

	right := combined[0]
	assert.Equal(t, "Right Lung", right.Label)
	assert.InDeltaSlice(t, []float64{200, 200, 300}, right.SectorKct[:], 1e-9)
	assert.InDelta(t, 700.0, right.TotalKct, 1e-9)
	assert.InDeltaSlice(t, []float64{200.0 / 7, 200.0 / 7, 300.0 / 7}, right.SectorPercentage[:], 1e-9)

	left := combined[1]
	assert.InDelta(t, 150.0, left.TotalKct, 1e-9)
	assert.InDelta(t, 100*700.0/850, right.Share, 1e-9)
	assert.InDelta(t, 100.0, right.Share+left.Share, 1e-9)
}

func TestCombineGeometricMeanRequiresMatchingLabels(t *testing.T) {
	anterior := &Result{Lungs: []models.LungResult{lungResult("Lung 1", 1, 1, 1)}}
	posterior := &Result{Lungs: []models.LungResult{lungResult("Lung 2", 1, 1, 1)}}

	_, err := CombineGeometricMean(anterior, posterior)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidInput))

	_, err = CombineGeometricMean(nil, posterior)
	assert.Error(t, err)
}

func TestProcessStudyBothViews(t *testing.T) {
	img := bodyScan(t)
	study, err := DefaultProcessor().ProcessStudy(map[models.Projection]View{
		models.Anterior:  {Image: img},
		models.Posterior: {Image: img},
	})
	require.NoError(t, err)

	require.Len(t, study.Projections, 2)
	require.Len(t, study.Combined, 2)

	ant := study.Projections[models.Anterior]
	for _, cl := range study.Combined {
		lung, ok := ant.Lung(cl.Label)
		require.True(t, ok)
		for i := range cl.SectorKct {
			assert.InDelta(t, lung.Sectors[i].Kct, cl.SectorKct[i], 1e-6)
		}
		assert.InDelta(t, 50.0, cl.Share, 1e-9)
	}
}

func TestProcessStudySingleViewAndFailures(t *testing.T) {
	p := largestProcessor(t)

	study, err := p.ProcessStudy(map[models.Projection]View{
		models.Anterior: {Image: twoBlobScan(t)},
	})
	require.NoError(t, err)
	assert.Len(t, study.Projections, 1)
	assert.Empty(t, study.Combined)

	_, err = p.ProcessStudy(nil)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidInput))

	_, err = p.ProcessStudy(map[models.Projection]View{"lateral": {Image: twoBlobScan(t)}})
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidProjection))

	_, err = DefaultProcessor().ProcessStudy(map[models.Projection]View{
		models.Anterior:  {Image: bodyScan(t)},
		models.Posterior: {Image: twoBlobScan(t)},
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindInsufficientComponents))
}

// chestScan is a 100 x 120 scan with a body contour, a large lung of
// intensity 200 on the viewer's left and a small lung of intensity 150 on
// the right. mirrored flips it horizontally, as a posterior view of the same
// patient would be.
func chestScan(t *testing.T, mirrored bool) *models.GrayscaleImage {
	t.Helper()
	const width, height, frame = 100, 120, 12
	lungs := []struct {
		e         ellipse
		intensity uint16
	}{
		{ellipse{35, 60, 12, 32}, 200},
		{ellipse{66, 60, 8, 24}, 150},
	}

	pix := make([]uint16, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint16(backgroundIntensity)
			if x < frame || y < frame || x >= width-frame || y >= height-frame {
				v = 120
			}
			for _, l := range lungs {
				dx := float64(x-l.e.cx) / float64(l.e.a)
				dy := float64(y-l.e.cy) / float64(l.e.b)
				if dx*dx+dy*dy <= 1 {
					v = l.intensity
				}
			}
			col := x
			if mirrored {
				col = width - 1 - x
			}
			pix[y*width+col] = v
		}
	}
	img, err := models.NewGrayscaleImage(width, height, 8, pix)
	require.NoError(t, err)
	return img
}

func TestProcessStudyPairsSameLungAcrossMirroredViews(t *testing.T) {
	study, err := DefaultProcessor().ProcessStudy(map[models.Projection]View{
		models.Anterior:  {Image: chestScan(t, false)},
		models.Posterior: {Image: chestScan(t, true)},
	})
	require.NoError(t, err)

	ant := study.Projections[models.Anterior]
	post := study.Projections[models.Posterior]
	for _, tc := range []struct {
		label string
		mean  float64
	}{
		{"Right Lung", 200},
		{"Left Lung", 150},
	} {
		a, ok := ant.Lung(tc.label)
		require.True(t, ok, tc.label)
		p, ok := post.Lung(tc.label)
		require.True(t, ok, tc.label)

		for i := range a.Sectors {
			assert.InDelta(t, tc.mean, a.Sectors[i].MeanIntensity, 1e-9, "anterior %s", tc.label)
			assert.InDelta(t, tc.mean, p.Sectors[i].MeanIntensity, 1e-9, "posterior %s", tc.label)
			assert.Equal(t, a.Sectors[i].Area, p.Sectors[i].Area, "%s sector %d", tc.label, i)
		}
		assert.InDelta(t, a.TotalKct, p.TotalKct, 1e-6, tc.label)
	}

	require.Len(t, study.Combined, 2)
	right := study.Combined[0]
	assert.Equal(t, "Right Lung", right.Label)
	rightAnt, _ := ant.Lung("Right Lung")
	assert.InDelta(t, rightAnt.TotalKct, right.TotalKct, 1e-6)
	assert.Greater(t, right.Share, 50.0)
}
