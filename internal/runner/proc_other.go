//go:build !unix

package runner

import "os/exec"

// On non-unix platforms exec.CommandContext's default Kill is used.
func setProcessGroup(_ *exec.Cmd) {}
