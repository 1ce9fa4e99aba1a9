package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Finding is one normalized issue reported by an analysis tool.
type Finding struct {
	Scanner     string   `json:"scanner"`
	RuleID      string   `json:"rule_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	File        string   `json:"file,omitempty"`
	Line        int      `json:"line,omitempty"`
	Confidence  float64  `json:"confidence"`
	Fingerprint string   `json:"fingerprint"`
}

// Fingerprint identifies a finding independently of the scan that produced it.
func Fingerprint(scanner, ruleID, file string, line int, title string) string {
	data := strings.Join([]string{scanner, ruleID, file, strconv.Itoa(line), title}, ":")
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// WithFile returns a copy of f attributed to file, with the fingerprint recomputed.
func (f Finding) WithFile(file string) Finding {
	f.File = file
	f.Fingerprint = Fingerprint(f.Scanner, f.RuleID, f.File, f.Line, f.Title)
	return f
}
