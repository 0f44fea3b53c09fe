package segmentation

import (
	"lungperfusion/internal/models"
	"lungperfusion/pkg/apperrors"
)

// Default kernel sizes (rows x cols) tuned for planar perfusion scans
const (
	DefaultOpenRows  = 7
	DefaultOpenCols  = 11
	DefaultCloseRows = 4
	DefaultCloseCols = 5
)

// Erode returns a new mask where a pixel is foreground iff every footprint
// neighbour p+o is foreground. Pixels outside the image count as background,
// so foreground touching the border is eroded as well.
func Erode(mask *models.BinaryMask, se StructuringElement) *models.BinaryMask {
	out := models.NewBinaryMask(mask.Width, mask.Height, mask.High)
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			keep := true
			for _, o := range se.offsets {
				if !mask.Foreground(x+o.X, y+o.Y) {
					keep = false
					break
				}
			}
			if keep {
				out.Pix[y*mask.Width+x] = out.High
			}
		}
	}
	return out
}

// Dilate returns a new mask where a pixel is foreground iff some footprint
// neighbour p-o is foreground. The footprint is reflected so that Dilate and
// Erode form an adjoint pair and Open/Close are idempotent. Pixels outside
// the image count as background.
//
// OpenCV's dilate tests p+o instead. The two agree for footprints symmetric
// about their anchor, such as the default 7x11 ellipse. For the 4x5 closing
// ellipse (rows dy = -2..+1) they do not: a closing built on p+o moves
// region edges by one row per pass and is not idempotent, so masks here can
// differ from OpenCV output by one row along top and bottom edges.
func Dilate(mask *models.BinaryMask, se StructuringElement) *models.BinaryMask {
	out := models.NewBinaryMask(mask.Width, mask.Height, mask.High)
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			for _, o := range se.offsets {
				if mask.Foreground(x-o.X, y-o.Y) {
					out.Pix[y*mask.Width+x] = out.High
					break
				}
			}
		}
	}
	return out
}

// MorphologyEngine cleans a thresholded mask with an opening followed by a
// closing
type MorphologyEngine struct {
	// Opening removes foreground blobs smaller than its footprint
	Opening StructuringElement

	// Closing fills background gaps smaller than its footprint
	Closing StructuringElement
}

// NewMorphologyEngine builds elliptical opening and closing elements.
func NewMorphologyEngine(openRows, openCols, closeRows, closeCols int) (*MorphologyEngine, error) {
	opening, err := NewEllipse(openRows, openCols)
	if err != nil {
		return nil, err
	}
	closing, err := NewEllipse(closeRows, closeCols)
	if err != nil {
		return nil, err
	}
	return &MorphologyEngine{Opening: opening, Closing: closing}, nil
}

// DefaultMorphologyEngine uses the 7x11 opening and 4x5 closing ellipses.
func DefaultMorphologyEngine() *MorphologyEngine {
	engine, _ := NewMorphologyEngine(DefaultOpenRows, DefaultOpenCols, DefaultCloseRows, DefaultCloseCols)
	return engine
}

// Open erodes then dilates with the opening element.
func (e *MorphologyEngine) Open(mask *models.BinaryMask) (*models.BinaryMask, error) {
	if err := checkMask(mask, apperrors.StageOpen); err != nil {
		return nil, err
	}
	return Dilate(Erode(mask, e.Opening), e.Opening), nil
}

// Close dilates then erodes with the closing element.
func (e *MorphologyEngine) Close(mask *models.BinaryMask) (*models.BinaryMask, error) {
	if err := checkMask(mask, apperrors.StageClose); err != nil {
		return nil, err
	}
	return Erode(Dilate(mask, e.Closing), e.Closing), nil
}

// Apply runs Open then Close and returns the cleaned mask.
func (e *MorphologyEngine) Apply(mask *models.BinaryMask) (*models.BinaryMask, error) {
	opened, err := e.Open(mask)
	if err != nil {
		return nil, err
	}
	return e.Close(opened)
}

func checkMask(mask *models.BinaryMask, stage string) error {
	if mask == nil || mask.Width == 0 || mask.Height == 0 {
		return apperrors.NewInvalidInputError(stage, "mask is empty or has zero area", nil)
	}
	if len(mask.Pix) != mask.Width*mask.Height {
		return apperrors.NewInvalidInputError(stage, "mask pixel count does not match its dimensions", nil)
	}
	return nil
}
