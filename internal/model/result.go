package model

import (
	"path/filepath"
	"strings"

	"github.com/samber/lo"
)

type ResultKind string

const (
	ResultSuccess    ResultKind = "success"
	ResultToolError  ResultKind = "tool_error"
	ResultParseError ResultKind = "parse_error"
)

// ScanResult is the outcome of one scan. Findings is only populated for
// ResultSuccess; Diagnostic only for the two error kinds.
type ScanResult struct {
	Kind       ResultKind
	Findings   []Finding
	Diagnostic string
	// Warnings holds non-fatal errors the tool reported next to its findings.
	Warnings []string
}

func Success(findings []Finding, warnings ...string) ScanResult {
	if findings == nil {
		findings = []Finding{}
	}
	return ScanResult{Kind: ResultSuccess, Findings: findings, Warnings: warnings}
}

func ToolError(diagnostic string) ScanResult {
	return ScanResult{Kind: ResultToolError, Diagnostic: diagnostic}
}

func ParseError(diagnostic string) ScanResult {
	return ScanResult{Kind: ResultParseError, Diagnostic: diagnostic}
}

func (r ScanResult) OK() bool {
	return r.Kind == ResultSuccess
}

// Redact returns a copy of r that no longer mentions the workspace path:
// findings are attributed to display and any diagnostic text is rewritten.
// The bare file name is scrubbed as well, since a container sees the
// workspace mounted under a different directory.
func (r ScanResult) Redact(workspacePath, display string) ScanResult {
	scrub := func(s string) string {
		if workspacePath == "" {
			return s
		}
		s = strings.ReplaceAll(s, workspacePath, display)
		if base := filepath.Base(workspacePath); base != "." && base != string(filepath.Separator) {
			s = strings.ReplaceAll(s, base, display)
		}
		return s
	}
	r.Findings = lo.Map(r.Findings, func(f Finding, _ int) Finding {
		return f.WithFile(display)
	})
	r.Warnings = lo.Map(r.Warnings, func(w string, _ int) string {
		return scrub(w)
	})
	r.Diagnostic = scrub(r.Diagnostic)
	return r
}

// Summary counts findings per severity.
func (r ScanResult) Summary() map[Severity]int {
	return lo.CountValuesBy(r.Findings, func(f Finding) Severity {
		return f.Severity
	})
}
