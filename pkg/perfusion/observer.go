package perfusion

import (
	"time"

	"github.com/sirupsen/logrus"

	"lungperfusion/internal/models"
	"lungperfusion/pkg/apperrors"
	"lungperfusion/pkg/sectors"
	"lungperfusion/pkg/segmentation"
)

// StageComplete is the stage name of the final event of a Process call
const StageComplete = "complete"

// StageEvent carries the output of one pipeline stage to observers.
// Only the fields relevant to the stage are set.
type StageEvent struct {
	Stage      string
	Projection models.Projection
	Duration   time.Duration

	// Source is the scan being processed
	Source *models.GrayscaleImage

	// Mask is set for the binarize, open and close stages
	Mask *models.BinaryMask

	// Extraction is set for the extract stage
	Extraction *segmentation.Extraction

	// Lung, Label and Partition are set for the partition and aggregate
	// stages, LungStats for aggregate only. Lung is the extraction index.
	Lung      int
	Label     string
	Partition *sectors.Partition
	LungStats *models.LungResult

	// Result is set for StageComplete
	Result *Result
}

// Observer consumes stage events. Observers never influence the pipeline;
// they are called after a stage finished and must not modify the event data.
type Observer interface {
	OnStage(event StageEvent)
	Name() string
}

// LoggingObserver logs pipeline progress
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) *LoggingObserver {
	return &LoggingObserver{logger: logger}
}

// Name returns the observer name
func (o *LoggingObserver) Name() string {
	return "logging"
}

// OnStage logs the event
func (o *LoggingObserver) OnStage(event StageEvent) {
	fields := logrus.Fields{
		"stage":       event.Stage,
		"projection":  event.Projection,
		"duration_ms": float64(event.Duration.Microseconds()) / 1000,
	}

	switch event.Stage {
	case apperrors.StageBinarize, apperrors.StageOpen, apperrors.StageClose:
		if event.Mask != nil {
			fields["foreground"] = event.Mask.Area()
		}
		o.logger.WithFields(fields).Debug("Stage finished")

	case apperrors.StageExtract:
		if event.Extraction != nil {
			fields["components"] = len(event.Extraction.Ranked)
			areas := make([]int, len(event.Extraction.Selected))
			for i, c := range event.Extraction.Selected {
				areas[i] = c.Area
			}
			fields["selected_areas"] = areas
		}
		o.logger.WithFields(fields).Debug("Components extracted")

	case apperrors.StageAggregate:
		fields["lung"] = event.Label
		if event.LungStats != nil {
			fields["total_kct"] = event.LungStats.TotalKct
			for _, s := range event.LungStats.Sectors {
				fields[s.Sector.String()+"_pct"] = s.Percentage
			}
		}
		o.logger.WithFields(fields).Info("Lung quantified")

	case StageComplete:
		o.logger.WithFields(fields).Info("Projection processed")

	default:
		o.logger.WithFields(fields).Debug("Stage finished")
	}
}
