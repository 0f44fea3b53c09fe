package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lungperfusion/internal/models"
	"lungperfusion/pkg/config"
	"lungperfusion/pkg/perfusion"
)

// writeScan writes a 60 x 100 PNG with two bright rectangular lungs
func writeScan(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 60, 100))
	for y := 20; y < 80; y++ {
		for x := 8; x < 24; x++ {
			img.SetGray(x, y, color.Gray{Y: 200})
			img.SetGray(x+28, y, color.Gray{Y: 200})
		}
	}

	path := filepath.Join(dir, "scan.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

// writeConfig selects the two largest components, matching writeScan
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Segmentation.Policy = "largest"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, config.SaveConfig(cfg, path))
	return path
}

func TestRunJSON(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	err := run([]string{
		"-input", writeScan(t, dir),
		"-config", writeConfig(t, dir),
		"-projection", "posterior",
		"-json",
	}, &out)
	require.NoError(t, err)

	var result perfusion.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, models.Posterior, result.Projection)
	require.Len(t, result.Lungs, 2)
	assert.Equal(t, "Left Lung", result.Lungs[0].Label)
}

func TestRunTableWithLabelsChartAndIntermediates(t *testing.T) {
	dir := t.TempDir()
	chart := filepath.Join(dir, "out", "chart.png")
	stages := filepath.Join(dir, "stages")
	var out bytes.Buffer

	err := run([]string{
		"-input", writeScan(t, dir),
		"-config", writeConfig(t, dir),
		"-labels", "Lung A, Lung B",
		"-chart", chart,
		"-save-intermediary",
		"-intermediary-dir", stages,
	}, &out)
	require.NoError(t, err)

	table := out.String()
	assert.Contains(t, table, "scan.png (anterior)")
	assert.Contains(t, table, "Lung A")
	assert.Contains(t, table, "Lung B")
	assert.Contains(t, table, "Middle")
	assert.FileExists(t, chart)
	assert.FileExists(t, filepath.Join(stages, "anterior", "03_closed.png"))
}

func TestRunStudy(t *testing.T) {
	dir := t.TempDir()
	scan := writeScan(t, dir)
	var out bytes.Buffer

	err := run([]string{"-input", scan, "-posterior", scan, "-config", writeConfig(t, dir), "-json"}, &out)
	require.NoError(t, err)

	var study perfusion.StudyResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &study))
	assert.Len(t, study.Projections, 2)
	require.Len(t, study.Combined, 2)
	assert.Equal(t, "Right Lung", study.Combined[0].Label)

	out.Reset()
	require.NoError(t, run([]string{"-input", scan, "-posterior", scan, "-config", writeConfig(t, dir)}, &out))
	assert.Contains(t, out.String(), "Geometric mean")
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	scan := writeScan(t, dir)

	tests := []struct {
		name string
		args []string
	}{
		{"missing input", []string{}},
		{"unknown projection", []string{"-input", scan, "-projection", "lateral", "-config", writeConfig(t, dir)}},
		{"missing file", []string{"-input", filepath.Join(dir, "absent.png")}},
		{"single label", []string{"-input", scan, "-labels", "Left Lung"}},
		{"too few components", []string{"-input", scan}},
		{"unknown flag", []string{"-bogus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			assert.Error(t, run(tt.args, &out))
		})
	}
}

func TestRunWriteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	var out bytes.Buffer

	require.NoError(t, run([]string{"-write-config", path}, &out))
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Segmentation, cfg.Segmentation)
}

func TestParseLabels(t *testing.T) {
	lp, err := parseLabels(" Left , Right ")
	require.NoError(t, err)
	assert.Equal(t, models.LabelPair{First: "Left", Second: "Right"}, lp)

	lp, err = parseLabels("")
	require.NoError(t, err)
	assert.True(t, lp.IsZero())

	_, err = parseLabels("a,b,c")
	assert.Error(t, err)
}
