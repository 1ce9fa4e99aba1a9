//go:build unix

package runner

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the tool in its own process group and makes the
// context cancellation kill the whole group, so helpers the tool forks do not
// outlive a timeout.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
