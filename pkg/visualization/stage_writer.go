package visualization

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"lungperfusion/pkg/apperrors"
	"lungperfusion/pkg/perfusion"
)

// StageWriter saves every intermediate of a Process call as a PNG under
// Dir/<projection>/. It implements perfusion.Observer.
type StageWriter struct {
	Dir    string
	Logger *logrus.Logger

	// Errors collects write failures; rendering never fails the pipeline
	Errors []error
}

// NewStageWriter creates a writer rooted at dir
func NewStageWriter(dir string, logger *logrus.Logger) *StageWriter {
	return &StageWriter{Dir: dir, Logger: logger}
}

// Name returns the observer name
func (w *StageWriter) Name() string {
	return "stage-writer"
}

// OnStage renders the event's data
func (w *StageWriter) OnStage(event perfusion.StageEvent) {
	dir := filepath.Join(w.Dir, string(event.Projection))

	switch event.Stage {
	case apperrors.StageBinarize:
		w.save(ScanImage(event.Source), filepath.Join(dir, "00_source.png"))
		w.save(MaskImage(event.Mask), filepath.Join(dir, "01_binary.png"))
	case apperrors.StageOpen:
		w.save(MaskImage(event.Mask), filepath.Join(dir, "02_opened.png"))
	case apperrors.StageClose:
		w.save(MaskImage(event.Mask), filepath.Join(dir, "03_closed.png"))
	case apperrors.StageExtract:
		w.save(LabelImage(event.Extraction.Labels), filepath.Join(dir, "04_components.png"))
		for i, lung := range event.Extraction.Lungs {
			w.save(MaskImage(lung), filepath.Join(dir, fmt.Sprintf("05_lung_%d.png", i+1)))
		}
	case apperrors.StagePartition:
		for s, m := range event.Partition.Masks {
			w.save(MaskImage(m), filepath.Join(dir, fmt.Sprintf("06_lung_%d_sector_%d.png", event.Lung+1, s+1)))
		}
	case perfusion.StageComplete:
		if event.Result != nil && event.Result.Trace != nil {
			w.save(SectorOverlay(event.Source, event.Result.Trace.Partitions), filepath.Join(dir, "07_sectors.png"))
		}
	}
}

func (w *StageWriter) save(img image.Image, filename string) {
	if err := SavePNG(img, filename); err != nil {
		w.Errors = append(w.Errors, err)
		if w.Logger != nil {
			w.Logger.WithError(err).WithField("file", filename).Warn("Failed to save intermediary result")
		}
	}
}
