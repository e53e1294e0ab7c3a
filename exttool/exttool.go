// Package exttool runs the external neuroimaging programs (defacers, brain
// extraction, registration, validation) as blocking processes whose exit code
// decides success.
package exttool

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	bidsonym "github.com/PeerHerholz/BIDSonym"
)

// Runner runs a program to completion.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs programs with os/exec. Output is captured and logged at
// debug level, and included in the error on failure.
type ExecRunner struct {
	Log *zap.Logger
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}

	log.Info("running external tool", zap.String("tool", name), zap.Strings("args", args))

	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if len(out) > 0 {
		log.Debug("tool output", zap.String("tool", name), zap.String("output", string(out)))
	}

	if err == nil {
		log.Info("external tool finished", zap.String("tool", name))
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return bidsonym.ExternalToolError.New("%s exited with status %d: %s", name, exitErr.ExitCode(), tail(string(out), 20))
	}
	if errors.Is(err, exec.ErrNotFound) {
		return bidsonym.ExternalToolError.New("%s is not installed or not on PATH", name)
	}
	return bidsonym.ExternalToolError.Wrap(err)
}

// tail returns the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
