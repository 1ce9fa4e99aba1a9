//go:build tools

// Package tools tracks build-time tool dependencies so `go generate` (mockgen)
// resolves against the versions pinned in go.mod.
package tools

import (
	_ "go.uber.org/mock/mockgen"
)
