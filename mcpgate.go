// Package mcpgate fronts line-oriented MCP servers over HTTP. The config
// package loads the servers document, session starts and guards one server,
// and gate serves it to the network; Open is the shortcut that chains the
// first two for callers embedding a server directly.
package mcpgate

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/gatewerk/mcpgate/config"
	"github.com/gatewerk/mcpgate/session"
)

// Option adjusts how Open starts the session.
type Option func(cfg *session.StartConfig)

// WithBaseDir sets the directory that holds per-server working trees. The
// default is an mcp-servers directory under the OS temp dir.
func WithBaseDir(dir string) Option {
	return func(cfg *session.StartConfig) {
		cfg.BaseDir = dir
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(cfg *session.StartConfig) {
		cfg.Logger = l.Sugar()
	}
}

// Open loads the servers document at configPath and starts the server
// registered under serverName: toolchain check, clone and build when the
// entry asks for them, process launch, handshake. The returned session is
// ready for queries; closing it stops the server.
func Open(ctx context.Context, configPath, serverName string, opts ...Option) (*session.Session, error) {
	doc, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	spec, err := doc.Server(serverName)
	if err != nil {
		return nil, err
	}

	cfg := session.StartConfig{
		Spec:    spec,
		BaseDir: filepath.Join(os.TempDir(), "mcp-servers"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return session.Start(ctx, cfg)
}
