// Package perfusion runs the lung perfusion quantification pipeline:
// threshold, morphological cleanup, lung extraction, sector partition and
// per-sector statistics.
package perfusion

import (
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"

	"lungperfusion/internal/models"
	"lungperfusion/pkg/apperrors"
	"lungperfusion/pkg/config"
	"lungperfusion/pkg/sectors"
	"lungperfusion/pkg/segmentation"
	"lungperfusion/pkg/statistics"
)

// Trace exposes the intermediate products of one Process call so that a
// presentation layer can render them
type Trace struct {
	Binary     *models.BinaryMask
	Opened     *models.BinaryMask
	Closed     *models.BinaryMask
	Extraction *segmentation.Extraction

	// Partitions are indexed like Result.Lungs
	Partitions []*sectors.Partition
}

// Result is the outcome of processing one projection
type Result struct {
	Projection models.Projection `json:"projection"`
	Labels     models.LabelPair  `json:"labels"`

	// Lungs are in extraction order; Lungs[i] carries Labels.Names()[i]
	Lungs []models.LungResult `json:"lungs"`

	// LungShares is each lung's percentage of the summed Kct of both lungs
	LungShares []float64 `json:"lung_shares"`

	Elapsed time.Duration `json:"elapsed"`
	Trace   *Trace        `json:"-"`
}

// Processor runs the pipeline. It holds no per-image state, so one
// Processor may serve concurrent Process calls.
type Processor struct {
	Binarizer  segmentation.Binarizer
	Morphology *segmentation.MorphologyEngine
	Extractor  *segmentation.ComponentExtractor

	// Labels are the default lung names per projection
	Labels map[models.Projection]models.LabelPair

	// Workers bounds the goroutines one call runs at once; < 1 means one
	Workers int

	mu        sync.Mutex
	observers []Observer
}

// NewProcessor builds a processor from configuration
func NewProcessor(cfg *config.Config) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seg := cfg.Segmentation

	opening, err := segmentation.NewStructuringElement(seg.Opening.Shape, seg.Opening.Rows, seg.Opening.Cols)
	if err != nil {
		return nil, err
	}
	closing, err := segmentation.NewStructuringElement(seg.Closing.Shape, seg.Closing.Rows, seg.Closing.Cols)
	if err != nil {
		return nil, err
	}

	policy, err := segmentation.PolicyByName(seg.Policy)
	if err != nil {
		return nil, err
	}
	policy.RequireSkippedOnBorder = seg.RequireSkippedOnBorder

	extractor := segmentation.NewComponentExtractor(policy)
	extractor.Ordering = cfg.LungOrdering()

	labels := make(map[models.Projection]models.LabelPair, len(models.Projections))
	for _, p := range models.Projections {
		labels[p] = cfg.LabelsFor(p)
	}

	return &Processor{
		Binarizer:  segmentation.Binarizer{Threshold: seg.Threshold, High: seg.High},
		Morphology: &segmentation.MorphologyEngine{Opening: opening, Closing: closing},
		Extractor:  extractor,
		Labels:     labels,
		Workers:    cfg.Processing.NumCores,
	}, nil
}

// DefaultProcessor builds a processor from DefaultConfig
func DefaultProcessor() *Processor {
	p, err := NewProcessor(config.DefaultConfig())
	if err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return p
}

// Subscribe registers an observer for stage events
func (p *Processor) Subscribe(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

// notify delivers an event to every observer. Calls are serialised so
// observers need no locking of their own.
func (p *Processor) notify(event StageEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, o := range p.observers {
		o.OnStage(event)
	}
}

func (p *Processor) semaphore() chan struct{} {
	return make(chan struct{}, max(p.Workers, 1))
}

// checkLabels requires two distinct names so every lung of a result can be
// looked up by label
func checkLabels(labels models.LabelPair) error {
	if labels.First == "" || labels.Second == "" {
		return apperrors.NewInvalidInputError(apperrors.StageProcess,
			fmt.Sprintf("lung labels must be given as a pair, got %q and %q", labels.First, labels.Second), nil)
	}
	if labels.First == labels.Second {
		return apperrors.NewInvalidInputError(apperrors.StageProcess,
			fmt.Sprintf("lung labels must differ, got %q twice", labels.First), nil)
	}
	return nil
}

// ParseProjection validates a projection designation
func ParseProjection(s string) (models.Projection, error) {
	p := models.NormalizeProjection(s)
	if !p.Valid() {
		return "", apperrors.NewInvalidProjectionError(
			fmt.Sprintf("unknown projection %q, expected %q or %q", s, models.Anterior, models.Posterior), nil)
	}
	return p, nil
}

// Process quantifies one projection image. labels names the two lungs in
// extraction order; a zero LabelPair uses the processor's default for the
// projection, anything else must hold two distinct names. The assignment
// of anatomical side to extraction order is the caller's convention and is
// not checked against the image; with left-to-right ordering the first
// lung is the one nearer the image's left edge.
func (p *Processor) Process(img *models.GrayscaleImage, projection models.Projection, labels models.LabelPair) (*Result, error) {
	start := time.Now()

	if !projection.Valid() {
		return nil, apperrors.NewInvalidProjectionError(
			fmt.Sprintf("unknown projection %q, expected %q or %q", projection, models.Anterior, models.Posterior), nil)
	}
	if labels.IsZero() {
		labels = p.Labels[projection]
		if labels.IsZero() {
			labels = models.LabelPair{First: "Lung 1", Second: "Lung 2"}
		}
	}
	if err := checkLabels(labels); err != nil {
		return nil, err
	}

	trace := &Trace{}
	event := func(stage string, began time.Time) StageEvent {
		return StageEvent{Stage: stage, Projection: projection, Source: img, Duration: time.Since(began), Lung: -1}
	}

	began := time.Now()
	binary, err := p.Binarizer.Apply(img)
	if err != nil {
		return nil, err
	}
	trace.Binary = binary
	ev := event(apperrors.StageBinarize, began)
	ev.Mask = binary
	p.notify(ev)

	began = time.Now()
	opened, err := p.Morphology.Open(binary)
	if err != nil {
		return nil, err
	}
	trace.Opened = opened
	ev = event(apperrors.StageOpen, began)
	ev.Mask = opened
	p.notify(ev)

	began = time.Now()
	closed, err := p.Morphology.Close(opened)
	if err != nil {
		return nil, err
	}
	trace.Closed = closed
	ev = event(apperrors.StageClose, began)
	ev.Mask = closed
	p.notify(ev)

	began = time.Now()
	extraction, err := p.Extractor.Extract(closed)
	if err != nil {
		return nil, err
	}
	trace.Extraction = extraction
	ev = event(apperrors.StageExtract, began)
	ev.Extraction = extraction
	p.notify(ev)

	names := labels.Names()
	if len(extraction.Lungs) != len(names) {
		return nil, apperrors.NewInvalidInputError(apperrors.StageExtract,
			fmt.Sprintf("selection policy %s returned %d lungs, expected %d", p.Extractor.Policy.Name(), len(extraction.Lungs), len(names)), nil)
	}

	// The lungs are independent: quantify them concurrently and keep the
	// results in extraction order.
	lungs := make([]models.LungResult, len(extraction.Lungs))
	partitions := make([]*sectors.Partition, len(extraction.Lungs))
	durations := make([]time.Duration, len(extraction.Lungs))
	errs := make([]error, len(extraction.Lungs))

	var wg sync.WaitGroup
	sem := p.semaphore()
	for i, lung := range extraction.Lungs {
		wg.Add(1)
		go func(i int, lung *models.BinaryMask) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			began := time.Now()

			partition, err := sectors.Split(lung)
			if err != nil {
				errs[i] = err
				return
			}
			stats, err := statistics.Aggregate(partition.Masks, img)
			if err != nil {
				errs[i] = err
				return
			}

			partitions[i] = partition
			lungs[i] = models.LungResult{
				Label:     names[i],
				Component: extraction.Selected[i].Label,
				Sectors:   stats.Sectors,
				TotalKct:  stats.Total,
			}
			durations[i] = time.Since(began)
		}(i, lung)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("quantifying %s: %w", names[i], err)
		}
	}
	trace.Partitions = partitions

	for i := range lungs {
		ev = StageEvent{
			Stage:      apperrors.StagePartition,
			Projection: projection,
			Source:     img,
			Lung:       i,
			Label:      names[i],
			Partition:  partitions[i],
		}
		p.notify(ev)

		ev.Stage = apperrors.StageAggregate
		ev.Duration = durations[i]
		ev.LungStats = &lungs[i]
		p.notify(ev)
	}

	totals := make([]float64, len(lungs))
	for i, l := range lungs {
		totals[i] = l.TotalKct
	}

	result := &Result{
		Projection: projection,
		Labels:     labels,
		Lungs:      lungs,
		LungShares: statistics.Percentages(totals),
		Elapsed:    time.Since(start),
		Trace:      trace,
	}

	ev = StageEvent{Stage: StageComplete, Projection: projection, Source: img, Lung: -1, Duration: result.Elapsed, Result: result}
	p.notify(ev)

	return result, nil
}

// TotalKct sums the Kct of every lung in the result
func (r *Result) TotalKct() float64 {
	totals := make([]float64, len(r.Lungs))
	for i, l := range r.Lungs {
		totals[i] = l.TotalKct
	}
	return floats.Sum(totals)
}

// Lung returns the lung result with the given label
func (r *Result) Lung(label string) (models.LungResult, bool) {
	for _, l := range r.Lungs {
		if l.Label == label {
			return l, true
		}
	}
	return models.LungResult{}, false
}
