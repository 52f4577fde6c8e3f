package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gatewerk/mcpgate/config"
	"github.com/gatewerk/mcpgate/gate"
	"github.com/gatewerk/mcpgate/session"
)

func main() {
	app := &cli.App{
		Name:  "mcpgate",
		Usage: "serve one MCP server's stdio interface over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to the servers configuration file. Discovered upward from the working directory when unset.",
				EnvVars: []string{"MCP_CONFIG_FILE"},
			},
			&cli.StringFlag{
				Name:     "server",
				Usage:    "Name of the server entry to serve.",
				EnvVars:  []string{"MCP_SERVER_NAME"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "listen-addr",
				Usage:   "The address for the HTTP server to listen on.",
				EnvVars: []string{"LISTEN_ADDR"},
				Value:   "0.0.0.0:3000",
			},
			&cli.StringFlag{
				Name:    "base-dir",
				Usage:   "Directory holding the per-server working trees.",
				EnvVars: []string{"MCP_SERVERS_DIR"},
			},
			&cli.StringFlag{
				Name:  "query-timeout",
				Usage: "Duration to wait for a reply line before answering 504.",
				Value: "30s",
			},
			&cli.StringFlag{
				Name:  "handshake-timeout",
				Usage: "Duration to wait for the server to accept the initialize handshake.",
				Value: "30s",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Minimum log level. One of [debug,info,warn,error].",
				Value: "info",
			},
			&cli.StringFlag{
				Name:  "tls-cert",
				Usage: "Path to a PEM certificate. Serves HTTPS together with --tls-key.",
			},
			&cli.StringFlag{
				Name:  "tls-key",
				Usage: "Path to the PEM private key for --tls-cert.",
			},
			&cli.BoolFlag{
				Name:  "self-signed-tls",
				Usage: "Serve HTTPS with a freshly generated self-signed certificate.",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx *cli.Context) error {
	level, err := zapcore.ParseLevel(ctx.String("log-level"))
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	logger, err := zap.NewDevelopment(zap.IncreaseLevel(level))
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	queryTimeout, err := time.ParseDuration(ctx.String("query-timeout"))
	if err != nil {
		return fmt.Errorf("parsing query timeout: %w", err)
	}
	handshakeTimeout, err := time.ParseDuration(ctx.String("handshake-timeout"))
	if err != nil {
		return fmt.Errorf("parsing handshake timeout: %w", err)
	}

	configPath := ctx.String("config")
	if configPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting working directory: %w", err)
		}
		configPath = config.Discover(wd)
		if configPath == "" {
			return fmt.Errorf("no %s found here or in any parent directory, use --config", config.DefaultFileName)
		}
	}
	doc, err := config.Load(configPath)
	if err != nil {
		return err
	}
	spec, err := doc.Server(ctx.String("server"))
	if err != nil {
		return err
	}

	baseDir := ctx.String("base-dir")
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "mcp-servers")
	}

	auth, err := gate.AuthFromEnv()
	if err != nil {
		return err
	}

	tlsConfig, err := loadTLS(ctx)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := session.Start(runCtx, session.StartConfig{
		Spec:             spec,
		BaseDir:          baseDir,
		QueryTimeout:     queryTimeout,
		HandshakeTimeout: handshakeTimeout,
		Logger:           logger.Sugar(),
	})
	if err != nil {
		return fmt.Errorf("starting server %q: %w", spec.Name, err)
	}

	g, err := gate.New(sess,
		gate.WithLogger(logger),
		gate.WithListenAddr(ctx.String("listen-addr")),
		gate.WithAuth(auth),
		gate.WithTLSConfig(tlsConfig),
	)
	if err != nil {
		return multierr.Append(fmt.Errorf("building gate: %w", err), sess.Close())
	}

	runErr := make(chan error, 1)
	go func() { runErr <- g.Run() }()

	select {
	case err = <-runErr:
	case <-runCtx.Done():
		logger.Sugar().Info("shutting down")
		err = multierr.Append(g.Stop(), <-runErr)
	}
	return multierr.Append(err, sess.Close())
}

func loadTLS(ctx *cli.Context) (*tls.Config, error) {
	certFile, keyFile := ctx.String("tls-cert"), ctx.String("tls-key")
	switch {
	case ctx.Bool("self-signed-tls"):
		if certFile != "" || keyFile != "" {
			return nil, fmt.Errorf("--self-signed-tls conflicts with --tls-cert/--tls-key")
		}
		return gate.SelfSignedTLSConfig()
	case certFile != "" && keyFile != "":
		return gate.LoadTLSConfig(certFile, keyFile)
	case certFile != "" || keyFile != "":
		return nil, fmt.Errorf("--tls-cert and --tls-key must be given together")
	default:
		return nil, nil
	}
}
