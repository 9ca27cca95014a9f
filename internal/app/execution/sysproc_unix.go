//go:build unix

package execution

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup makes the interpreter lead its own process group so a
// stop reaches everything it spawned.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateGroup(p *os.Process) error {
	return signalGroup(p, syscall.SIGTERM)
}

func killGroup(p *os.Process) error {
	return signalGroup(p, syscall.SIGKILL)
}

func signalGroup(p *os.Process, sig syscall.Signal) error {
	err := syscall.Kill(-p.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	if err != nil {
		// Fall back to the leader alone.
		if serr := p.Signal(sig); serr != nil && !errors.Is(serr, os.ErrProcessDone) {
			return serr
		}
	}
	return nil
}
