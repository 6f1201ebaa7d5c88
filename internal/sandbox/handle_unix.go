//go:build unix

package sandbox

import (
	"os/exec"
	"syscall"
)

// unixHandle runs the child in its own process group so that a timeout
// kill reaches the plugin and everything it forked.
type unixHandle struct {
	cmd *exec.Cmd
}

func newHandle(cmd *exec.Cmd) processHandle {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
	return &unixHandle{cmd: cmd}
}

func (h *unixHandle) Start() error {
	return h.cmd.Start()
}

func (h *unixHandle) Wait() error {
	return h.cmd.Wait()
}

func (h *unixHandle) KillTree() error {
	if h.cmd.Process == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(h.cmd.Process.Pid)
	if err != nil {
		// Group already gone; fall back to the process itself.
		return h.cmd.Process.Kill()
	}
	return syscall.Kill(-pgid, syscall.SIGKILL)
}
