package visualization

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"lungperfusion/internal/models"
	"lungperfusion/pkg/perfusion"
)

// SaveSectorChart draws a grouped bar chart of the sector percentages of
// every lung in result. The file format follows the filename extension.
func SaveSectorChart(result *perfusion.Result, filename string) error {
	if result == nil || len(result.Lungs) == 0 {
		return fmt.Errorf("no lungs to chart")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Sector perfusion (%s)", result.Projection)
	p.Y.Label.Text = "Share of lung Kct (%)"
	p.Y.Min = 0
	p.Y.Max = 100

	width := vg.Points(18)
	colors := Palette(len(result.Lungs))
	n := float64(len(result.Lungs))

	for i, lung := range result.Lungs {
		values := make(plotter.Values, len(lung.Sectors))
		for s, stats := range lung.Sectors {
			values[s] = stats.Percentage
		}

		bars, err := plotter.NewBarChart(values, width)
		if err != nil {
			return err
		}
		bars.Color = colors[i]
		bars.LineStyle.Width = vg.Length(0)
		bars.Offset = vg.Length(float64(i)-(n-1)/2) * width
		p.Add(bars)
		p.Legend.Add(lung.Label, bars)
	}

	names := make([]string, len(models.Sectors))
	for i, s := range models.Sectors {
		names[i] = s.String()
	}
	p.NominalX(names...)

	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := p.Save(8*vg.Inch, 5*vg.Inch, filename); err != nil {
		return fmt.Errorf("failed to save chart %s: %w", filename, err)
	}
	return nil
}
