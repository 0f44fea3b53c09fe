package perfusion

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"lungperfusion/internal/models"
	"lungperfusion/pkg/apperrors"
	"lungperfusion/pkg/statistics"
)

// View is one projection image of a study with its lung names
type View struct {
	Image  *models.GrayscaleImage
	Labels models.LabelPair
}

// CombinedLung is the conjugate-view estimate for one lung
type CombinedLung struct {
	Label string `json:"label"`

	// SectorKct is the geometric mean of the anterior and posterior Kct,
	// ordered Upper, Middle, Lower
	SectorKct [3]float64 `json:"sector_kct"`

	// SectorPercentage is each sector's share of this lung
	SectorPercentage [3]float64 `json:"sector_percentage"`

	TotalKct float64 `json:"total_kct"`

	// Share is this lung's percentage of both lungs
	Share float64 `json:"share"`
}

// StudyResult holds the per-projection results of one study and, when both
// projections were supplied, their geometric-mean combination
type StudyResult struct {
	Projections map[models.Projection]*Result `json:"projections"`
	Combined    []CombinedLung                `json:"combined,omitempty"`
}

// ProcessStudy processes the views of a single study concurrently, one
// goroutine per projection, at most Workers at a time. Any failure fails
// the whole study.
func (p *Processor) ProcessStudy(views map[models.Projection]View) (*StudyResult, error) {
	if len(views) == 0 {
		return nil, apperrors.NewInvalidInputError(apperrors.StageProcess, "study has no views", nil)
	}

	projections := make([]models.Projection, 0, len(views))
	for proj := range views {
		if !proj.Valid() {
			return nil, apperrors.NewInvalidProjectionError(fmt.Sprintf("unknown projection %q", proj), nil)
		}
		projections = append(projections, proj)
	}
	sort.Slice(projections, func(i, j int) bool { return projections[i] < projections[j] })

	results := make([]*Result, len(projections))
	errs := make([]error, len(projections))

	var wg sync.WaitGroup
	sem := p.semaphore()
	for i, proj := range projections {
		wg.Add(1)
		go func(i int, proj models.Projection) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			view := views[proj]
			results[i], errs[i] = p.Process(view.Image, proj, view.Labels)
		}(i, proj)
	}
	wg.Wait()

	study := &StudyResult{Projections: make(map[models.Projection]*Result, len(projections))}
	for i, proj := range projections {
		if errs[i] != nil {
			return nil, fmt.Errorf("%s view: %w", proj, errs[i])
		}
		study.Projections[proj] = results[i]
	}

	ant, hasAnt := study.Projections[models.Anterior]
	post, hasPost := study.Projections[models.Posterior]
	if hasAnt && hasPost {
		combined, err := CombineGeometricMean(ant, post)
		if err != nil {
			return nil, err
		}
		study.Combined = combined
	}

	return study, nil
}

// CombineGeometricMean pairs the lungs of an anterior and a posterior result
// by label and combines every sector as sqrt(Kct_ant * Kct_post). Lungs are
// returned in the anterior result's order.
func CombineGeometricMean(anterior, posterior *Result) ([]CombinedLung, error) {
	if anterior == nil || posterior == nil {
		return nil, apperrors.NewInvalidInputError(apperrors.StageProcess, "both projections are required", nil)
	}

	combined := make([]CombinedLung, 0, len(anterior.Lungs))
	totals := make([]float64, 0, len(anterior.Lungs))
	for _, ant := range anterior.Lungs {
		post, ok := posterior.Lung(ant.Label)
		if !ok {
			return nil, apperrors.NewInvalidInputError(apperrors.StageProcess,
				fmt.Sprintf("lung %q has no posterior counterpart", ant.Label), nil)
		}

		cl := CombinedLung{Label: ant.Label}
		for i := range cl.SectorKct {
			cl.SectorKct[i] = math.Sqrt(ant.Sectors[i].Kct * post.Sectors[i].Kct)
		}
		pct := statistics.Percentages(cl.SectorKct[:])
		copy(cl.SectorPercentage[:], pct)
		for _, k := range cl.SectorKct {
			cl.TotalKct += k
		}

		combined = append(combined, cl)
		totals = append(totals, cl.TotalKct)
	}

	for i, share := range statistics.Percentages(totals) {
		combined[i].Share = share
	}

	return combined, nil
}
