package model

import (
	"errors"
	"strings"
)

// ErrReportSchema is returned by tool parsers when output is valid JSON but
// not in the shape the tool is expected to produce.
var ErrReportSchema = errors.New("unexpected report schema")

// ErrToolReported is returned by tool parsers when the report itself says the
// run failed, e.g. no rules could be loaded, so an empty result is not a
// clean bill of health.
var ErrToolReported = errors.New("scanner reported a failed run")

// Report is the normalized content of one tool run.
type Report struct {
	Findings []Finding
	// Warnings are errors the tool reported for individual files while still
	// producing a report.
	Warnings []string
}

// DefaultConfidence is used when a tool does not rate its own certainty.
const DefaultConfidence = 0.85

// ConfidenceFromLevel maps the HIGH/MEDIUM/LOW ratings most tools share.
func ConfidenceFromLevel(level string) float64 {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "HIGH":
		return 0.9
	case "MEDIUM":
		return 0.6
	case "LOW":
		return 0.3
	default:
		return DefaultConfidence
	}
}
