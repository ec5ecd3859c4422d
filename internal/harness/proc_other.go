//go:build !unix

package harness

import "os/exec"

// killProcessGroup keeps the default behaviour of killing the process only.
func killProcessGroup(cmd *exec.Cmd) {}
