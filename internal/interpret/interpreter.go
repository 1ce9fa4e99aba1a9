// Package interpret turns a finished tool run into a ScanResult.
package interpret

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ASK1E/SASTRA/internal/model"
	"github.com/ASK1E/SASTRA/internal/scanners"
)

// maxDiagnostic bounds how much tool output is echoed back in a diagnostic.
const maxDiagnostic = 4096

type Interpreter struct {
	parser  scanners.Parser
	isClean func(code int) bool
}

func New(parser scanners.Parser, isClean func(code int) bool) *Interpreter {
	return &Interpreter{parser: parser, isClean: isClean}
}

// ForTool builds an interpreter using the tool's parser and clean exit codes.
func ForTool(tool scanners.Tool) *Interpreter {
	return New(tool.Parser, tool.IsClean)
}

// Interpret applies, in order: parseable stdout wins regardless of exit code;
// empty stdout with a clean exit is an empty success; unparseable stdout is a
// parse error; anything else is a tool error. A report that itself declares
// the run failed is a tool error too.
func (i *Interpreter) Interpret(exitCode int, stdout, stderr []byte) model.ScanResult {
	out := bytes.TrimSpace(stdout)

	if len(out) == 0 {
		if i.isClean(exitCode) {
			return model.Success(nil)
		}
		return model.ToolError(toolDiagnostic(exitCode, stderr))
	}

	report, err := i.parser.Parse(out)
	if errors.Is(err, model.ErrToolReported) {
		return model.ToolError(truncate(err.Error(), maxDiagnostic))
	}
	if err != nil {
		return model.ParseError(fmt.Sprintf("exit code %d: %v; output starts with %q",
			exitCode, err, truncate(string(out), 256)))
	}
	return model.Success(report.Findings, report.Warnings...)
}

func toolDiagnostic(exitCode int, stderr []byte) string {
	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		return fmt.Sprintf("scanner exited with code %d and produced no output", exitCode)
	}
	return truncate(msg, maxDiagnostic)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
