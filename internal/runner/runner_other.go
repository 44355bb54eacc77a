//go:build !unix

package runner

import (
	"errors"
	"os"
	"os/exec"
)

func configure(_ *exec.Cmd, spec Spec) error {
	if spec.UID != nil || spec.GID != nil {
		return errors.New("uid/gid switching is not supported on this platform")
	}
	return nil
}

func terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func outcomeOf(state *os.ProcessState) Outcome {
	return Outcome{ExitCode: state.ExitCode()}
}
