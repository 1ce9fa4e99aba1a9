package model

import (
	"encoding/hex"
	"strings"
	"testing"
)

// TestFingerprintStability ensures same inputs always produce same output
func TestFingerprintStability(t *testing.T) {
	a := Fingerprint("bandit", "B101", "a.py", 1, "assert used")
	b := Fingerprint("bandit", "B101", "a.py", 1, "assert used")

	if a != b {
		t.Fatal("fingerprint not deterministic")
	}
}

// TestFingerprintDifferenceOnInput verifies different inputs produce different outputs
func TestFingerprintDifferenceOnInput(t *testing.T) {
	a := Fingerprint("bandit", "B101", "a.py", 1, "assert used")
	b := Fingerprint("bandit", "B102", "a.py", 1, "assert used")
	c := Fingerprint("bandit", "B101", "b.py", 1, "assert used")
	d := Fingerprint("bandit", "B101", "a.py", 2, "assert used")

	if a == b {
		t.Fatal("fingerprint not sensitive to rule_id change")
	}
	if a == c {
		t.Fatal("fingerprint not sensitive to file change")
	}
	if a == d {
		t.Fatal("fingerprint not sensitive to line change")
	}
}

// TestFingerprintFormat ensures a hex SHA256
func TestFingerprintFormat(t *testing.T) {
	f := Fingerprint("bandit", "B101", "test.py", 1, "test")
	if len(f) != 64 {
		t.Fatalf("expected 64-char SHA256, got %d", len(f))
	}
	if _, err := hex.DecodeString(f); err != nil {
		t.Fatalf("fingerprint not valid hex: %v", err)
	}
}

func TestScanResultRedact(t *testing.T) {
	res := Success([]Finding{
		{Scanner: "bandit", RuleID: "B101", Title: "assert_used", File: "/tmp/scan-123.py", Line: 3, Severity: SeverityHigh},
		{Scanner: "bandit", RuleID: "B105", Title: "hardcoded_password", File: "/tmp/scan-123.py", Line: 9, Severity: SeverityLow},
	}, "error parsing /tmp/scan-123.py")

	out := res.Redact("/tmp/scan-123.py", "app.py")

	for _, f := range out.Findings {
		if f.File != "app.py" {
			t.Errorf("expected app.py, got %s", f.File)
		}
		if f.Fingerprint != Fingerprint(f.Scanner, f.RuleID, "app.py", f.Line, f.Title) {
			t.Errorf("fingerprint not recomputed for %s", f.RuleID)
		}
	}
	if out.Warnings[0] != "error parsing app.py" {
		t.Errorf("workspace path leaked into warning: %s", out.Warnings[0])
	}
	if res.Findings[0].File != "/tmp/scan-123.py" {
		t.Error("redact mutated the original result")
	}

	summary := out.Summary()
	if summary[SeverityHigh] != 1 || summary[SeverityLow] != 1 {
		t.Errorf("unexpected summary %v", summary)
	}
}

func TestScanResultRedactDiagnostic(t *testing.T) {
	out := ToolError("/tmp/scan-9.py: no such file").Redact("/tmp/scan-9.py", "app.py")
	if out.Diagnostic != "app.py: no such file" {
		t.Errorf("unexpected diagnostic %q", out.Diagnostic)
	}
}

func TestScanResultRedactContainerPath(t *testing.T) {
	out := ToolError("[main] ERROR /scan/scan-123.py: no such file").Redact("/tmp/sastra/scan-123.py", "app.py")
	if strings.Contains(out.Diagnostic, "scan-123") {
		t.Errorf("workspace name leaked into diagnostic: %q", out.Diagnostic)
	}
	if out.Diagnostic != "[main] ERROR /scan/app.py: no such file" {
		t.Errorf("unexpected diagnostic %q", out.Diagnostic)
	}

	warned := Success(nil, "scan-123.py:4: syntax error").Redact("/tmp/sastra/scan-123.py", "app.py")
	if warned.Warnings[0] != "app.py:4: syntax error" {
		t.Errorf("unexpected warning %q", warned.Warnings[0])
	}
}
