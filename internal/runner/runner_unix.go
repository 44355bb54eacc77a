//go:build unix

package runner

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func configure(cmd *exec.Cmd, spec Spec) error {
	attr := &syscall.SysProcAttr{Setpgid: true}
	if spec.UID != nil || spec.GID != nil {
		cred := &syscall.Credential{
			Uid:         uint32(os.Getuid()),
			Gid:         uint32(os.Getgid()),
			NoSetGroups: true,
		}
		if spec.UID != nil {
			cred.Uid = *spec.UID
		}
		if spec.GID != nil {
			cred.Gid = *spec.GID
		}
		attr.Credential = cred
	}
	cmd.SysProcAttr = attr
	return nil
}

// terminate signals the whole process group so shell pipelines die too.
func terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := unix.Kill(-cmd.Process.Pid, unix.SIGTERM)
	if errors.Is(err, unix.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}

func outcomeOf(state *os.ProcessState) Outcome {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return Outcome{ExitCode: -1, Signal: unix.SignalName(ws.Signal())}
	}
	return Outcome{ExitCode: state.ExitCode()}
}
