// Package runtime maps a configured runtime name onto a launch strategy for
// the server process. The supported set is closed: node, python and go, plus
// their aliases. Anything else is refused before any filesystem or process
// work happens.
package runtime

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/gatewerk/mcpgate/bridge"
	"github.com/gatewerk/mcpgate/config"
)

// Runtime launches a provisioned server process.
type Runtime interface {
	// Name reports the canonical runtime name.
	Name() string

	// CheckToolchain verifies the toolchain is usable on this host by
	// running its version command.
	CheckToolchain(ctx context.Context) error

	// Start launches the server from its working tree. The base config
	// carries the caller's logger and timeout bounds; the runtime fills in
	// command, arguments, environment and directory from the server spec.
	Start(spec config.ServerSpec, dir string, base bridge.Config) (*bridge.Bridge, error)
}

// Option adjusts runtime construction.
type Option func(*settings)

type settings struct {
	log *zap.SugaredLogger
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *settings) { s.log = l }
}

// Select resolves a runtime name or alias, case-insensitively. The alias
// table is fixed; an unknown name fails fast with UnknownRuntimeError.
func Select(name string, opts ...Option) (Runtime, error) {
	s := settings{log: zap.NewNop().Sugar()}
	for _, o := range opts {
		o(&s)
	}

	switch strings.ToLower(strings.TrimSpace(name)) {
	case "node", "nodejs", "javascript", "typescript":
		return &nodeRuntime{log: s.log}, nil
	case "python", "python3", "py":
		return &pythonRuntime{log: s.log}, nil
	case "go", "golang":
		return &goRuntime{log: s.log}, nil
	default:
		return nil, &UnknownRuntimeError{Name: name}
	}
}

// UnknownRuntimeError reports a runtime name outside the supported set.
type UnknownRuntimeError struct {
	Name string
}

func (e *UnknownRuntimeError) Error() string {
	return fmt.Sprintf("unsupported runtime %q (supported: node, python, go)", e.Name)
}

// ToolchainError reports a toolchain whose version probe failed.
type ToolchainError struct {
	Runtime string
	Bin     string
	Err     error
}

func (e *ToolchainError) Error() string {
	return fmt.Sprintf("%s toolchain unavailable (%s): %v", e.Runtime, e.Bin, e.Err)
}

func (e *ToolchainError) Unwrap() error {
	return e.Err
}

// probe runs a toolchain version command and reports its presence.
func probe(ctx context.Context, log *zap.SugaredLogger, runtime, bin string, args ...string) error {
	out, err := exec.CommandContext(ctx, bin, args...).CombinedOutput()
	if err != nil {
		return &ToolchainError{Runtime: runtime, Bin: bin, Err: err}
	}
	log.Debugw("toolchain present", "Runtime", runtime, "Version", strings.TrimSpace(string(out)))
	return nil
}

// launch fills the process fields of base from the server spec and starts
// the bridge. Every runtime ends up here.
func launch(spec config.ServerSpec, dir string, base bridge.Config) (*bridge.Bridge, error) {
	base.Command = spec.Command
	base.Args = spec.Args
	base.Env = spec.Env
	base.Dir = dir
	return bridge.Start(base)
}
