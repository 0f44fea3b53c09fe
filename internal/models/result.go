package models

import (
	"fmt"
	"strings"
)

// Sector is one of the three horizontal bands of a lung
type Sector int

const (
	Upper Sector = iota
	Middle
	Lower
)

// Sectors lists the bands in their fixed reporting order.
var Sectors = [3]Sector{Upper, Middle, Lower}

func (s Sector) String() string {
	switch s {
	case Upper:
		return "Upper"
	case Middle:
		return "Middle"
	case Lower:
		return "Lower"
	default:
		return fmt.Sprintf("Sector(%d)", int(s))
	}
}

// MarshalText renders the sector by name in JSON and YAML output.
func (s Sector) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a sector name written by MarshalText.
func (s *Sector) UnmarshalText(text []byte) error {
	for _, candidate := range Sectors {
		if strings.EqualFold(string(text), candidate.String()) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown sector %q", text)
}

// SectorStatistics holds the intensity summary of one sector
type SectorStatistics struct {
	Sector Sector `json:"sector"`

	// Area is the number of lung pixels in the sector
	Area int `json:"area"`

	// MeanIntensity and StdDev describe the sector's intensities
	// (population standard deviation)
	MeanIntensity float64 `json:"mean_intensity"`
	StdDev        float64 `json:"std_dev"`

	// Kct is the summed intensity of the sector
	Kct float64 `json:"kct"`

	// Percentage is the sector's share of the lung's total Kct
	Percentage float64 `json:"percentage"`
}

// LungResult is the per-lung output of the pipeline
type LungResult struct {
	// Label is the caller-supplied name, e.g. "Left Lung"
	Label string `json:"label"`

	// Component is the label id the lung had in the component map
	Component int `json:"component"`

	// Sectors are always ordered Upper, Middle, Lower
	Sectors [3]SectorStatistics `json:"sectors"`

	TotalKct float64 `json:"total_kct"`
}

// Projection is the acquisition view of a planar scan
type Projection string

const (
	Anterior  Projection = "anterior"
	Posterior Projection = "posterior"
)

// Projections lists the recognised views.
var Projections = []Projection{Anterior, Posterior}

// Valid reports whether p is a recognised view.
func (p Projection) Valid() bool {
	return p == Anterior || p == Posterior
}

// NormalizeProjection lower-cases and trims a user-supplied designation.
// It does not validate the result.
func NormalizeProjection(s string) Projection {
	return Projection(strings.ToLower(strings.TrimSpace(s)))
}

// LabelPair names the two extracted lungs in extraction order.
// Which anatomical side comes first is a convention of the caller:
// laterality cannot be recovered from pixel data.
type LabelPair struct {
	First  string `yaml:"first" json:"first"`
	Second string `yaml:"second" json:"second"`
}

// Names returns the labels as an ordered slice.
func (lp LabelPair) Names() []string {
	return []string{lp.First, lp.Second}
}

// IsZero reports whether neither label is set.
func (lp LabelPair) IsZero() bool {
	return lp.First == "" && lp.Second == ""
}
