// Package segmentation turns a grayscale lung scan into lung masks:
// fixed-threshold binarization, morphological cleanup and connected
// component extraction.
package segmentation

import (
	"lungperfusion/internal/models"
	"lungperfusion/pkg/apperrors"
)

const (
	// DefaultThreshold is the intensity above which a pixel is foreground
	DefaultThreshold uint16 = 66

	// DefaultHigh is the value written for foreground pixels
	DefaultHigh uint8 = 255
)

// Binarizer applies a fixed binary threshold
type Binarizer struct {
	Threshold uint16
	High      uint8
}

// DefaultBinarizer returns a binarizer with T=66 and H=255.
func DefaultBinarizer() Binarizer {
	return Binarizer{Threshold: DefaultThreshold, High: DefaultHigh}
}

// Apply returns a new mask where pixel = High iff intensity > Threshold.
func (b Binarizer) Apply(img *models.GrayscaleImage) (*models.BinaryMask, error) {
	if img.Empty() {
		return nil, apperrors.NewInvalidInputError(apperrors.StageBinarize, "image is empty or has zero area", nil)
	}
	if len(img.Pix) != img.Width*img.Height {
		return nil, apperrors.NewInvalidInputError(apperrors.StageBinarize, "image sample count does not match its dimensions", nil)
	}

	mask := models.NewBinaryMask(img.Width, img.Height, b.High)
	for i, v := range img.Pix {
		if v > b.Threshold {
			mask.Pix[i] = mask.High
		}
	}

	return mask, nil
}
