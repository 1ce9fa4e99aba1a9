package bandit

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/ASK1E/SASTRA/internal/model"
)

const scannerName = "bandit"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// banditIssue accepts both the current field names and the short ones some
// bandit formatters and older releases emit.
type banditIssue struct {
	TestID          string `json:"test_id"`
	TestName        string `json:"test_name"`
	Filename        string `json:"filename"`
	LineNumber      *int   `json:"line_number"`
	Line            *int   `json:"line"`
	IssueText       string `json:"issue_text"`
	IssueSeverity   string `json:"issue_severity"`
	Severity        string `json:"severity"`
	IssueConfidence string `json:"issue_confidence"`
	Confidence      string `json:"confidence"`
}

type banditResult struct {
	Results *[]banditIssue `json:"results"`
	Errors  []struct {
		Filename string `json:"filename"`
		Reason   string `json:"reason"`
	} `json:"errors"`
}

func Parse(raw []byte) (model.Report, error) {
	var parsed banditResult
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return model.Report{}, fmt.Errorf("invalid bandit json: %w", err)
	}
	if parsed.Results == nil {
		return model.Report{}, fmt.Errorf("%w: bandit output has no results array", model.ErrReportSchema)
	}

	findings := make([]model.Finding, 0, len(*parsed.Results))
	for _, r := range *parsed.Results {
		line := firstInt(r.LineNumber, r.Line)
		title := r.TestName
		if title == "" {
			title = r.TestID
		}
		findings = append(findings, model.Finding{
			Scanner:     scannerName,
			RuleID:      r.TestID,
			Title:       title,
			Description: r.IssueText,
			Severity:    mapSeverity(firstString(r.IssueSeverity, r.Severity)),
			File:        r.Filename,
			Line:        line,
			Confidence:  model.ConfidenceFromLevel(firstString(r.IssueConfidence, r.Confidence)),
			Fingerprint: model.Fingerprint(scannerName, r.TestID, r.Filename, line, title),
		})
	}

	warnings := make([]string, 0, len(parsed.Errors))
	for _, e := range parsed.Errors {
		warnings = append(warnings, e.Reason)
	}
	return model.Report{Findings: findings, Warnings: warnings}, nil
}

func mapSeverity(s string) model.Severity {
	switch strings.ToUpper(s) {
	case "CRITICAL":
		return model.SeverityCritical
	case "HIGH":
		return model.SeverityHigh
	case "MEDIUM":
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

func firstInt(values ...*int) int {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
