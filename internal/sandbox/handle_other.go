//go:build !unix

package sandbox

import "os/exec"

// otherHandle is the portable fallback. Without process groups only the
// direct child is killed on timeout; descendants it spawned may outlive
// the deadline.
type otherHandle struct {
	cmd *exec.Cmd
}

func newHandle(cmd *exec.Cmd) processHandle {
	return &otherHandle{cmd: cmd}
}

func (h *otherHandle) Start() error {
	return h.cmd.Start()
}

func (h *otherHandle) Wait() error {
	return h.cmd.Wait()
}

func (h *otherHandle) KillTree() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}
