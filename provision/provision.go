// Package provision readies a server's working tree: a deterministic
// directory per logical name, a git clone when the server declares a
// repository, and a shell build step. Everything here runs before the server
// process exists, so a failure leaves nothing running.
package provision

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/gatewerk/mcpgate/config"
	"github.com/gatewerk/mcpgate/internal/envutil"
	"github.com/gatewerk/mcpgate/internal/tailbuf"
)

// outputTail bounds how much clone/build output is kept for error reports.
const outputTail = 4 * 1024

// Provisioner lays out working trees under a base directory.
type Provisioner struct {
	baseDir string
	gitBin  string
	log     *zap.SugaredLogger
}

// Option is a Provisioner construction option.
type Option func(*Provisioner)

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(p *Provisioner) { p.log = l }
}

// WithGitBin overrides the git executable.
func WithGitBin(path string) Option {
	return func(p *Provisioner) { p.gitBin = path }
}

// New builds a Provisioner rooted at baseDir.
func New(baseDir string, opts ...Option) *Provisioner {
	p := &Provisioner{
		baseDir: baseDir,
		gitBin:  "git",
		log:     zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Prepare makes a server's working tree ready to run: ensure the directory
// exists, clone the repository when one is declared and not yet present,
// then run the build command. It returns the working tree path.
func (p *Provisioner) Prepare(ctx context.Context, spec config.ServerSpec) (string, error) {
	dir, err := p.EnsureWorkingTree(spec.Name)
	if err != nil {
		return "", err
	}
	if err := p.CloneIfNeeded(ctx, spec.Repository, dir); err != nil {
		return "", err
	}
	if err := p.RunBuild(ctx, dir, spec.BuildCommand, spec.Env); err != nil {
		return "", err
	}
	return dir, nil
}

// WorkingTree reports the directory a server provisions into. The mapping
// from logical name to path is deterministic, the same name always lands in
// the same tree.
func (p *Provisioner) WorkingTree(name string) string {
	return filepath.Join(p.baseDir, sanitize(name))
}

// EnsureWorkingTree creates the server's working tree if needed.
func (p *Provisioner) EnsureWorkingTree(name string) (string, error) {
	dir := p.WorkingTree(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating working tree: %w", err)
	}
	return dir, nil
}

// CloneIfNeeded clones repo into dir unless dir already holds a checkout.
// The .git directory is the marker; a tree that has one is reused as is, so
// provisioning the same server twice clones once.
func (p *Provisioner) CloneIfNeeded(ctx context.Context, repo, dir string) error {
	if repo == "" {
		return nil
	}
	if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
		p.log.Debugw("repository already cloned", "Dir", dir)
		return nil
	}

	p.log.Infow("cloning repository", "Repo", repo, "Dir", dir)
	cmd := exec.CommandContext(ctx, p.gitBin, "clone", repo, dir)
	out := tailbuf.New(outputTail)
	cmd.Stdout = out
	cmd.Stderr = out
	err := cmd.Run()
	if out.Len() > 0 {
		p.log.Debugf("git clone output:\n%s", out.String())
	}
	if err != nil {
		return &CloneError{Repo: repo, ExitCode: exitCode(err), Output: out.String(), Err: err}
	}
	return nil
}

// RunBuild runs command through the shell in dir. Entries from env are
// appended to the ambient environment, so on key collision the explicit
// entry wins. Build output is logged whether the build worked or not.
func (p *Provisioner) RunBuild(ctx context.Context, dir, command string, env map[string]string) error {
	if command == "" {
		return nil
	}

	p.log.Infow("running build", "Dir", dir, "Command", command)
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = envutil.Overlay(env)
	out := tailbuf.New(outputTail)
	cmd.Stdout = out
	cmd.Stderr = out
	err := cmd.Run()
	if out.Len() > 0 {
		p.log.Debugf("build output:\n%s", out.String())
	}
	if err != nil {
		return &BuildError{Command: command, ExitCode: exitCode(err), Output: out.String(), Err: err}
	}
	return nil
}

// sanitize maps a logical name onto a single path element.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
}
