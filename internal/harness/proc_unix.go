//go:build unix

package harness

import (
	"os/exec"
	"syscall"
)

// killProcessGroup starts the program in its own process group and makes
// cancellation kill the whole group, so children of a wrapper script do not
// outlive a timed-out evaluation.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
}
