package mcpgate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gatewerk/mcpgate/config"
	"github.com/gatewerk/mcpgate/gate"
	"github.com/gatewerk/mcpgate/internal/netutil"
)

const handshakeReply = `{"jsonrpc":"2.0","id":0,"result":{"protocolVersion":"2024-11-05","serverInfo":{"name":"stub","version":"1.0"}}}`

const echoServer = `read -r _
printf '%s\n' '` + handshakeReply + `'
read -r _
exec cat`

func TestGatewayEndToEnd(t *testing.T) {
	ctx := context.Background()
	logger, err := zap.NewProduction()
	require.NoError(t, err)

	// A fake node toolchain so runtime selection passes without node installed.
	binDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "node"), []byte("#!/bin/sh\necho v20.0.0\n"), 0o755))
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	// Write a servers document and load the echo entry back out of it.
	configDir := t.TempDir()
	doc := config.Document{
		Version: "1.0",
		Servers: map[string]config.ServerSpec{
			"echo": {
				Runtime: "node",
				Command: "sh",
				Args:    []string{"-c", echoServer},
			},
		},
	}
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	configPath := filepath.Join(configDir, config.DefaultFileName)
	require.NoError(t, os.WriteFile(configPath, b, 0o644))

	var nfe *config.ServerNotFoundError
	_, err = Open(ctx, configPath, "no-such-server")
	require.ErrorAs(t, err, &nfe)

	sess, err := Open(ctx, configPath, "echo",
		WithBaseDir(t.TempDir()),
		WithLogger(logger),
	)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })

	port, err := netutil.GetEphemeralTCPPort()
	require.NoError(t, err)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	g, err := gate.New(sess,
		gate.WithListenAddr(addr),
		gate.WithAuth(gate.Auth{APIKey: "integ-test-key"}),
	)
	require.NoError(t, err)
	go g.Run()
	t.Cleanup(func() { require.NoError(t, g.Stop()) })

	client, err := gate.NewClient("http://"+addr, gate.WithClientToken("integ-test-key"))
	require.NoError(t, err)
	require.NoError(t, client.WaitHealthy(ctx))

	health, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "echo", health.Server)
	assert.Equal(t, "ready", health.State)

	// In parallel, push distinct queries through the gate and expect each
	// caller to get its own line back.
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < 4; i++ {
		i := i
		group.Go(func() error {
			for j := 0; j < 3; j++ {
				payload := fmt.Sprintf(`{"id":"%d-%d","method":"ping"}`, i, j)
				reply, err := client.Query(groupCtx, payload)
				if err != nil {
					return err
				}
				if reply != payload {
					return fmt.Errorf("reply %q does not match query %q", reply, payload)
				}
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())
}
