package semgrep

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/ASK1E/SASTRA/internal/model"
)

const scannerName = "semgrep"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type semgrepResult struct {
	Results *[]struct {
		CheckID string `json:"check_id"`
		Path    string `json:"path"`
		Start   struct {
			Line int `json:"line"`
		} `json:"start"`
		Extra struct {
			Message  string `json:"message"`
			Severity string `json:"severity"`
			Metadata struct {
				Confidence string `json:"confidence"`
			} `json:"metadata"`
		} `json:"extra"`
	} `json:"results"`
	Errors []struct {
		Message string `json:"message"`
		Level   string `json:"level"`
	} `json:"errors"`
}

func Parse(raw []byte) (model.Report, error) {
	var parsed semgrepResult
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return model.Report{}, fmt.Errorf("invalid semgrep json: %w", err)
	}
	if parsed.Results == nil {
		return model.Report{}, fmt.Errorf("%w: semgrep output has no results array", model.ErrReportSchema)
	}

	if len(*parsed.Results) == 0 {
		for _, e := range parsed.Errors {
			if strings.EqualFold(e.Level, "error") {
				return model.Report{}, fmt.Errorf("%w: %s", model.ErrToolReported, e.Message)
			}
		}
	}

	findings := make([]model.Finding, 0, len(*parsed.Results))
	for _, r := range *parsed.Results {
		findings = append(findings, model.Finding{
			Scanner:     scannerName,
			RuleID:      r.CheckID,
			Title:       r.CheckID,
			Description: r.Extra.Message,
			Severity:    mapSeverity(r.Extra.Severity),
			File:        r.Path,
			Line:        r.Start.Line,
			Confidence:  model.ConfidenceFromLevel(r.Extra.Metadata.Confidence),
			Fingerprint: model.Fingerprint(scannerName, r.CheckID, r.Path, r.Start.Line, r.CheckID),
		})
	}

	warnings := make([]string, 0, len(parsed.Errors))
	for _, e := range parsed.Errors {
		warnings = append(warnings, e.Message)
	}
	return model.Report{Findings: findings, Warnings: warnings}, nil
}

// mapSeverity covers both the legacy ERROR/WARNING/INFO levels and the newer
// CRITICAL..LOW scale.
func mapSeverity(s string) model.Severity {
	switch strings.ToUpper(s) {
	case "CRITICAL":
		return model.SeverityCritical
	case "ERROR", "HIGH":
		return model.SeverityHigh
	case "WARNING", "MEDIUM":
		return model.SeverityMedium
	case "INFO", "LOW":
		return model.SeverityLow
	default:
		return model.SeverityInfo
	}
}
