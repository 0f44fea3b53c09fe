package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"lungperfusion/internal/logger"
	"lungperfusion/internal/models"
	"lungperfusion/pkg/config"
	"lungperfusion/pkg/imageio"
	"lungperfusion/pkg/perfusion"
	"lungperfusion/pkg/visualization"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logger.WithError(err).Error("Quantification failed")
		os.Exit(1)
	}
}

type options struct {
	input            string
	posterior        string
	projection       string
	configPath       string
	writeConfig      string
	labels           string
	saveIntermediary bool
	intermediaryDir  string
	chart            string
	jsonOutput       bool
	logLevel         string
	cores            int
}

func parseFlags(args []string) (*options, *flag.FlagSet, error) {
	opts := &options{}
	fs := flag.NewFlagSet("lungperfusion", flag.ContinueOnError)
	fs.StringVar(&opts.input, "input", "", "Planar perfusion scan (PNG, JPEG, GIF, BMP or TIFF)")
	fs.StringVar(&opts.posterior, "posterior", "", "Posterior scan of the same study; -input is then the anterior view")
	fs.StringVar(&opts.projection, "projection", "anterior", "Projection of -input: anterior or posterior")
	fs.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&opts.writeConfig, "write-config", "", "Write the default configuration to this path and exit")
	fs.StringVar(&opts.labels, "labels", "", "Comma separated names of the two lungs in extraction order")
	fs.BoolVar(&opts.saveIntermediary, "save-intermediary", false, "Save every pipeline stage as PNG")
	fs.StringVar(&opts.intermediaryDir, "intermediary-dir", "", "Directory for intermediary results")
	fs.StringVar(&opts.chart, "chart", "", "Write a sector bar chart to this file (.png, .svg or .pdf)")
	fs.BoolVar(&opts.jsonOutput, "json", false, "Print results as JSON")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	fs.IntVar(&opts.cores, "cores", 0, "Number of CPU cores to use (default from configuration)")
	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	return opts, fs, nil
}

func run(args []string, stdout io.Writer) error {
	opts, fs, err := parseFlags(args)
	if err != nil {
		return err
	}

	if opts.writeConfig != "" {
		if err := config.CreateDefaultConfigFile(opts.writeConfig); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Default configuration written to %s\n", opts.writeConfig)
		return nil
	}

	if opts.input == "" {
		fs.Usage()
		return fmt.Errorf("-input is required")
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	applyOverrides(cfg, opts)

	logger.SetLevel(cfg.Output.LogLevel)
	if cfg.Output.Verbose {
		logger.SetLevel("debug")
	}
	logger.UseTextFormatter()

	processor, err := perfusion.NewProcessor(cfg)
	if err != nil {
		return err
	}
	processor.Subscribe(perfusion.NewLoggingObserver(logger.Logger))

	var writer *visualization.StageWriter
	if cfg.Output.SaveIntermediaryResults {
		writer = visualization.NewStageWriter(cfg.Output.IntermediaryDir, logger.Logger)
		processor.Subscribe(writer)
	}

	labels, err := parseLabels(opts.labels)
	if err != nil {
		return err
	}

	if opts.posterior != "" {
		err = runStudy(processor, cfg, opts, labels, stdout)
	} else {
		err = runSingle(processor, cfg, opts, labels, stdout)
	}
	if err != nil {
		return err
	}

	if writer != nil {
		logger.WithField("dir", cfg.Output.IntermediaryDir).
			WithField("failures", len(writer.Errors)).
			Info("Intermediary results saved")
	}
	return nil
}

func applyOverrides(cfg *config.Config, opts *options) {
	if opts.saveIntermediary {
		cfg.Output.SaveIntermediaryResults = true
	}
	if opts.intermediaryDir != "" {
		cfg.Output.IntermediaryDir = opts.intermediaryDir
	}
	if opts.chart != "" {
		cfg.Output.Chart = opts.chart
	}
	if opts.logLevel != "" {
		cfg.Output.LogLevel = opts.logLevel
	}
	if opts.cores > 0 {
		cfg.Processing.NumCores = opts.cores
	}
}

func parseLabels(s string) (models.LabelPair, error) {
	if strings.TrimSpace(s) == "" {
		return models.LabelPair{}, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return models.LabelPair{}, fmt.Errorf("-labels needs exactly two comma separated names, got %q", s)
	}
	return models.LabelPair{First: strings.TrimSpace(parts[0]), Second: strings.TrimSpace(parts[1])}, nil
}

func runSingle(p *perfusion.Processor, cfg *config.Config, opts *options, labels models.LabelPair, stdout io.Writer) error {
	projection, err := perfusion.ParseProjection(opts.projection)
	if err != nil {
		return err
	}

	img, err := imageio.Load(opts.input)
	if err != nil {
		return err
	}

	result, err := p.Process(img, projection, labels)
	if err != nil {
		return err
	}

	if cfg.Output.Chart != "" {
		if err := visualization.SaveSectorChart(result, cfg.Output.Chart); err != nil {
			return err
		}
		logger.WithField("file", cfg.Output.Chart).Info("Sector chart saved")
	}

	if opts.jsonOutput {
		return writeJSON(stdout, result)
	}
	return writeResultTable(stdout, filepath.Base(opts.input), result)
}

func runStudy(p *perfusion.Processor, cfg *config.Config, opts *options, labels models.LabelPair, stdout io.Writer) error {
	anterior, err := imageio.Load(opts.input)
	if err != nil {
		return err
	}
	posterior, err := imageio.Load(opts.posterior)
	if err != nil {
		return err
	}

	// Caller labels name the anterior extraction order; the posterior view
	// is mirrored.
	postLabels := models.LabelPair{}
	if !labels.IsZero() {
		postLabels = models.LabelPair{First: labels.Second, Second: labels.First}
	}

	study, err := p.ProcessStudy(map[models.Projection]perfusion.View{
		models.Anterior:  {Image: anterior, Labels: labels},
		models.Posterior: {Image: posterior, Labels: postLabels},
	})
	if err != nil {
		return err
	}

	if cfg.Output.Chart != "" {
		for _, proj := range models.Projections {
			ext := filepath.Ext(cfg.Output.Chart)
			name := strings.TrimSuffix(cfg.Output.Chart, ext) + "_" + string(proj) + ext
			if err := visualization.SaveSectorChart(study.Projections[proj], name); err != nil {
				return err
			}
		}
	}

	if opts.jsonOutput {
		return writeJSON(stdout, study)
	}

	if err := writeResultTable(stdout, filepath.Base(opts.input), study.Projections[models.Anterior]); err != nil {
		return err
	}
	fmt.Fprintln(stdout)
	if err := writeResultTable(stdout, filepath.Base(opts.posterior), study.Projections[models.Posterior]); err != nil {
		return err
	}
	fmt.Fprintln(stdout)
	return writeCombinedTable(stdout, study.Combined)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeResultTable(w io.Writer, source string, result *perfusion.Result) error {
	fmt.Fprintf(w, "%s (%s)\n", source, result.Projection)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Lung\tSector\tArea\tMean\tStdDev\tKct\tPercent\t")
	for i, lung := range result.Lungs {
		for _, s := range lung.Sectors {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%.2f\t%.0f\t%.2f%%\t\n",
				lung.Label, s.Sector, s.Area, s.MeanIntensity, s.StdDev, s.Kct, s.Percentage)
		}
		fmt.Fprintf(tw, "%s\tTotal\t\t\t\t%.0f\t%.2f%%\t\n", lung.Label, lung.TotalKct, result.LungShares[i])
	}
	return tw.Flush()
}

func writeCombinedTable(w io.Writer, combined []perfusion.CombinedLung) error {
	fmt.Fprintln(w, "Geometric mean (anterior x posterior)")

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Lung\tSector\tKct\tPercent\t")
	for _, lung := range combined {
		for i, s := range models.Sectors {
			fmt.Fprintf(tw, "%s\t%s\t%.0f\t%.2f%%\t\n", lung.Label, s, lung.SectorKct[i], lung.SectorPercentage[i])
		}
		fmt.Fprintf(tw, "%s\tTotal\t%.0f\t%.2f%%\t\n", lung.Label, lung.TotalKct, lung.Share)
	}
	return tw.Flush()
}
