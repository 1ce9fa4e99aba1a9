package security

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"
)

type Reason string

const (
	NoExtension         Reason = "no_extension"
	DisallowedExtension Reason = "disallowed_extension"
	TooLarge            Reason = "too_large"
	BinaryContent       Reason = "binary_content"
)

// RejectionError reports why an upload was refused before any scan work began.
type RejectionError struct {
	Reason Reason
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return "upload rejected: " + string(e.Reason)
	}
	return fmt.Sprintf("upload rejected: %s: %s", e.Reason, e.Detail)
}

func reject(reason Reason, format string, args ...any) error {
	return &RejectionError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Policy is the process-wide upload policy. It is read-only once built.
type Policy struct {
	allowed  map[string]struct{}
	maxBytes int64
}

// NewPolicy builds a policy from extensions given with or without a leading dot,
// in any case.
func NewPolicy(extensions []string, maxBytes int64) Policy {
	normalized := lo.FilterMap(extensions, func(ext string, _ int) (string, bool) {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		return ext, ext != ""
	})
	return Policy{
		allowed:  lo.SliceToMap(normalized, func(ext string) (string, struct{}) { return ext, struct{}{} }),
		maxBytes: maxBytes,
	}
}

func (p Policy) MaxBytes() int64 {
	return p.maxBytes
}

// Extension returns the lower-cased extension of filename without the dot, or
// "" when there is none. A leading dot alone (".bashrc") is not an extension.
func Extension(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	idx := strings.LastIndex(base, ".")
	if idx <= 0 || idx == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[idx+1:])
}

// ValidateName applies the extension rules alone. It lets a caller refuse an
// upload from its name before reading the body.
func (p Policy) ValidateName(filename string) error {
	ext := Extension(filename)
	if ext == "" {
		return reject(NoExtension, "%q has no extension", filename)
	}
	if _, ok := p.allowed[ext]; !ok {
		return reject(DisallowedExtension, "extension %q is not allowed", ext)
	}
	return nil
}

// Validate checks upload metadata. Extension rules are applied before the size rule.
func (p Policy) Validate(filename string, size int64) error {
	if err := p.ValidateName(filename); err != nil {
		return err
	}
	if size > p.maxBytes {
		return reject(TooLarge, "%d bytes exceeds limit of %d", size, p.maxBytes)
	}
	return nil
}

// ValidateContent rejects content that does not sniff as text.
func (p Policy) ValidateContent(content []byte) error {
	if len(content) == 0 {
		return nil
	}
	detected := mimetype.Detect(content)
	for m := detected; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return nil
		}
	}
	return reject(BinaryContent, "detected %s", detected.String())
}
