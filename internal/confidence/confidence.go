// Package confidence scores extracted text for reproducibility across
// regression runs. It generalizes the teacher's weighted-factor scorer
// (internal/processor/confidence_calculator.go — factors, a DefaultWeights
// table, and math.Round(score*100)/100 rounding) from accounting-document
// fields (template match, vendor match, balance validation) to the
// linguistic density/word/marker/length factors the pipeline scores OCR
// text on.
package confidence

import (
	"math"
	"regexp"
	"strings"
)

// DefaultMarkers is the configurable marker token set used by marker_score.
var DefaultMarkers = []string{
	"date", "fecha", "total", "invoice", "factura", "name", "nombre", "id", "dni", "tax", "iva",
}

var wordPattern = regexp.MustCompile(`\b[A-Za-zÀ-ÿ]{2,}\b`)

// Scorer computes the weighted confidence score of extracted text. The zero
// value uses DefaultMarkers.
type Scorer struct {
	Markers []string
}

// New returns a Scorer configured with the default marker set.
func New() *Scorer {
	return &Scorer{Markers: DefaultMarkers}
}

// Score returns a value in [0,1] rounded to two decimals. Empty input
// yields exactly 0.0.
func (s *Scorer) Score(text string) float64 {
	if len(text) == 0 {
		return 0.0
	}

	density := density(text)
	wordFactor := wordFactor(text)
	markerScore := s.markerScore(text)
	lengthFactor := math.Min(1, float64(len(text))/100.0)

	raw := (0.4*density + 0.4*wordFactor + markerScore) * lengthFactor
	return math.Round(raw*100) / 100
}

func density(text string) float64 {
	if len(text) == 0 {
		return 0
	}
	alnum := 0
	for _, r := range text {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			alnum++
		}
	}
	return float64(alnum) / float64(len([]rune(text)))
}

func wordFactor(text string) float64 {
	matches := wordPattern.FindAllString(text, -1)
	return math.Min(1, float64(len(matches))/10.0)
}

func (s *Scorer) markerScore(text string) float64 {
	markers := s.Markers
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	lower := strings.ToLower(text)
	found := 0
	for _, m := range markers {
		if strings.Contains(lower, strings.ToLower(m)) {
			found++
		}
	}
	return math.Min(0.2, 0.05*float64(found))
}
