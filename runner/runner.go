// Package runner provides the execution capability bound to workflow
// tasks: a Spec describing the command to run and runners that run it.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"time"

	"github.com/sirupsen/logrus"
)

// ExitTimeout is the exit code reported for commands killed by their
// timeout.
const ExitTimeout = 124

// Interface

// Spec describes a single command execution. Image names the runtime
// environment the command expects; the local runner ignores it and runs
// the command directly on the host.
type Spec struct {
	Image   string            `json:"image,omitempty"`
	Command []string          `json:"command"`
	Env     map[string]string `json:"env,omitempty"`
	Dir     string            `json:"dir,omitempty"`
	Timeout time.Duration     `json:"timeout,omitempty"`
}

// Runner executes a task command and reports its exit code. An expired
// timeout surfaces as ExitTimeout together with an error wrapping
// context.DeadlineExceeded. A non-zero exit code of a command that ran to
// completion is not an error.
type Runner interface {
	Run(ctx context.Context, spec Spec) (int, error)
}

// Func adapts a function to the Runner interface.
type Func func(ctx context.Context, spec Spec) (int, error)

// Run calls f.
func (f Func) Run(ctx context.Context, spec Spec) (int, error) {
	return f(ctx, spec)
}

// Implementation

type local struct {
	l *logrus.Entry
}

// NewLocal returns a runner executing commands as host processes.
func NewLocal(l *logrus.Entry) Runner {
	return local{l: l}
}

func (r local) fullPath(name string) (string, error) {
	p := name
	if !path.IsAbs(p) {
		var err error
		if p, err = exec.LookPath(p); err != nil {
			if r.l != nil {
				r.l.Errorf("Lookup of %q failed: %v", name, err)
			}
			return "", err
		}
	}
	return p, nil
}

func (r local) Run(ctx context.Context, spec Spec) (int, error) {
	if len(spec.Command) == 0 {
		return -1, errors.New("empty command")
	}
	p, err := r.fullPath(spec.Command[0])
	if err != nil {
		return -1, err
	}

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p, spec.Command[1:]...)
	cmd.Dir = spec.Dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if len(spec.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range spec.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	if r.l != nil {
		r.l.Debugf("Executing command: %s", cmd)
	}
	err = cmd.Run()
	switch {
	case err == nil:
		return 0, nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		if r.l != nil {
			r.l.Errorf("Command %s timed out after %s", cmd, spec.Timeout)
		}
		return ExitTimeout, fmt.Errorf("command %q timed out: %w",
			spec.Command[0], context.DeadlineExceeded)
	case ctx.Err() != nil:
		return -1, fmt.Errorf("command %q canceled: %w", spec.Command[0], ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if r.l != nil {
			r.l.Errorf("Command %s failed: %v", cmd, err)
		}
		return exitErr.ExitCode(), nil
	}
	if r.l != nil {
		r.l.Errorf("Command %s failed to start: %v", cmd, err)
	}
	return -1, err
}
