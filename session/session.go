// Package session pairs one running server process with the lock that
// serializes callers onto it. The wire protocol supports one request/reply
// cycle at a time, so every caller goes through the session.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gatewerk/mcpgate/bridge"
	"github.com/gatewerk/mcpgate/config"
	"github.com/gatewerk/mcpgate/provision"
	"github.com/gatewerk/mcpgate/runtime"
)

// StartConfig carries everything needed to bring a configured server up.
type StartConfig struct {
	// Spec is the server's configuration entry.
	Spec config.ServerSpec

	// BaseDir is where working trees live.
	BaseDir string

	// GitBin overrides the git executable used for cloning, when set.
	GitBin string

	// QueryTimeout and HandshakeTimeout bound the per-query and initialize
	// waits. Zero means the bridge defaults.
	QueryTimeout     time.Duration
	HandshakeTimeout time.Duration

	// ClientName and ClientVersion identify this side in the handshake.
	ClientName    string
	ClientVersion string

	Logger *zap.SugaredLogger
}

// Session is one live server conversation. At most one cycle is in flight at
// any time; waiting callers proceed in whatever order sync.Mutex wakes them,
// which is not strict FIFO. A failed query reports its error and nothing
// more; the server stays up for the next caller, and nothing restarts it
// automatically.
type Session struct {
	log  *zap.SugaredLogger
	name string

	mu sync.Mutex
	b  *bridge.Bridge
}

// Start brings a server up: resolve the runtime, verify its toolchain,
// provision the working tree, launch the process, run the handshake. Each
// step must succeed before the next begins, so a clone or build failure
// means no process was ever started.
func Start(ctx context.Context, cfg StartConfig) (*Session, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	rt, err := runtime.Select(cfg.Spec.Runtime, runtime.WithLogger(log))
	if err != nil {
		return nil, err
	}
	if err := rt.CheckToolchain(ctx); err != nil {
		return nil, err
	}

	popts := []provision.Option{provision.WithLogger(log)}
	if cfg.GitBin != "" {
		popts = append(popts, provision.WithGitBin(cfg.GitBin))
	}
	dir, err := provision.New(cfg.BaseDir, popts...).Prepare(ctx, cfg.Spec)
	if err != nil {
		return nil, err
	}

	log.Infow("starting server", "Server", cfg.Spec.Name, "Runtime", rt.Name(), "Dir", dir)
	b, err := rt.Start(cfg.Spec, dir, bridge.Config{
		QueryTimeout:     cfg.QueryTimeout,
		HandshakeTimeout: cfg.HandshakeTimeout,
		ClientName:       cfg.ClientName,
		ClientVersion:    cfg.ClientVersion,
		Logger:           log,
	})
	if err != nil {
		return nil, err
	}
	if err := b.Initialize(ctx); err != nil {
		return nil, multierr.Append(err, b.Close())
	}

	log.Infow("server ready", "Server", cfg.Spec.Name, "Pid", b.Pid())
	return &Session{log: log, name: cfg.Spec.Name, b: b}, nil
}

// Name reports the server's logical name.
func (s *Session) Name() string {
	return s.name
}

// State reports the underlying bridge state.
func (s *Session) State() bridge.State {
	return s.b.State()
}

// Query sends one payload line under the session lock and returns the
// trimmed reply line.
func (s *Session) Query(ctx context.Context, payload string) (string, error) {
	var reply string
	err := s.Do(func(b *bridge.Bridge) error {
		var err error
		reply, err = b.Query(ctx, payload)
		return err
	})
	return reply, err
}

// Do runs fn while holding the session lock. The bridge is only valid inside
// fn. The lock is released however fn returns, including by panic.
func (s *Session) Do(fn func(b *bridge.Bridge) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.b)
}

// Close shuts the server down. It does not take the session lock, so a
// caller stuck waiting on a reply is cut loose rather than waited for.
func (s *Session) Close() error {
	return s.b.Close()
}
