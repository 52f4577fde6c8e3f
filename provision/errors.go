package provision

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CloneError reports a git clone that exited non-zero. Output holds the tail
// of the clone's combined output.
type CloneError struct {
	Repo     string
	ExitCode int
	Output   string
	Err      error
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("cloning %s: exit code %d: %s", e.Repo, e.ExitCode, strings.TrimSpace(e.Output))
}

func (e *CloneError) Unwrap() error {
	return e.Err
}

// BuildError reports a build command that exited non-zero. Output holds the
// tail of the build's combined output.
type BuildError struct {
	Command  string
	ExitCode int
	Output   string
	Err      error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %q failed: exit code %d: %s", e.Command, e.ExitCode, strings.TrimSpace(e.Output))
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

func exitCode(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
