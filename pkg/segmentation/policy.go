package segmentation

import (
	"fmt"
	"strings"

	"lungperfusion/internal/models"
	"lungperfusion/pkg/apperrors"
)

// Policy names accepted by PolicyByName
const (
	PolicySkipLargest = "skip-largest"
	PolicyLargest     = "largest"
)

// SelectionPolicy picks the lung components out of a ranked component list
type SelectionPolicy interface {
	// Select receives components ordered largest first and the mask they
	// were labelled from
	Select(ranked []ComponentStats, mask *models.BinaryMask) ([]ComponentStats, error)
	Name() string
}

// RankWindowPolicy skips the Skip largest components and takes the next Take.
type RankWindowPolicy struct {
	Skip int
	Take int

	// RequireSkippedOnBorder rejects inputs where a skipped component does
	// not reach the image edge, i.e. where it may be a lung rather than the
	// body contour or background artifact it is assumed to be
	RequireSkippedOnBorder bool

	name string
}

// SkipLargestPolicy discards the largest component, assumed to be a body
// contour or background artifact left by thresholding, and takes the next two.
func SkipLargestPolicy() *RankWindowPolicy {
	return &RankWindowPolicy{Skip: 1, Take: 2, name: PolicySkipLargest}
}

// LargestPolicy takes the two largest components.
func LargestPolicy() *RankWindowPolicy {
	return &RankWindowPolicy{Skip: 0, Take: 2, name: PolicyLargest}
}

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (*RankWindowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PolicySkipLargest, "":
		return SkipLargestPolicy(), nil
	case PolicyLargest:
		return LargestPolicy(), nil
	default:
		return nil, fmt.Errorf("unknown component selection policy %q", name)
	}
}

// Name returns the policy name
func (p *RankWindowPolicy) Name() string {
	if p.name != "" {
		return p.name
	}
	return fmt.Sprintf("rank-window(skip=%d,take=%d)", p.Skip, p.Take)
}

// Select implements SelectionPolicy.
func (p *RankWindowPolicy) Select(ranked []ComponentStats, mask *models.BinaryMask) ([]ComponentStats, error) {
	if p.Skip < 0 || p.Take < 1 {
		return nil, apperrors.NewInvalidInputError(apperrors.StageExtract,
			fmt.Sprintf("policy %s needs skip >= 0 and take >= 1", p.Name()), nil)
	}

	need := p.Skip + p.Take
	if len(ranked) < need {
		return nil, apperrors.NewInsufficientComponentsError(apperrors.StageExtract,
			fmt.Sprintf("found %d components, policy %s needs at least %d", len(ranked), p.Name(), need), nil)
	}

	if p.RequireSkippedOnBorder && mask != nil {
		for _, c := range ranked[:p.Skip] {
			if !c.TouchesBorder(mask.Width, mask.Height) {
				return nil, apperrors.NewPreconditionError(apperrors.StageExtract,
					fmt.Sprintf("skipped component %d (area %d) does not touch the image border", c.Label, c.Area), nil)
			}
		}
	}

	selected := make([]ComponentStats, p.Take)
	copy(selected, ranked[p.Skip:need])
	return selected, nil
}
