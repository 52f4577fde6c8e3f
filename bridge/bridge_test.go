package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gatewerk/mcpgate/internal/jsonrpc"
)

const handshakeReply = `{"jsonrpc":"2.0","id":0,"result":{"protocolVersion":"2024-11-05","serverInfo":{"name":"stub","version":"1.0"}}}`

// echoServer handshakes and then echoes every line back.
const echoServer = `read -r _
printf '%s\n' '` + handshakeReply + `'
read -r _
exec cat`

// startServer launches a stub server implemented as a shell script.
func startServer(t *testing.T, script string, cfg Config) *Bridge {
	t.Helper()
	cfg.Command = "sh"
	cfg.Args = []string{"-c", script}
	if cfg.Logger == nil {
		cfg.Logger = zaptest.NewLogger(t).Sugar()
	}
	if cfg.CloseGrace == 0 {
		cfg.CloseGrace = 200 * time.Millisecond
	}
	b, err := Start(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestQueryEchoesPayload(t *testing.T) {
	b := startServer(t, echoServer, Config{})
	ctx := context.Background()

	require.NoError(t, b.Initialize(ctx))
	assert.Equal(t, StateReady, b.State())

	payload := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	reply, err := b.Query(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, payload, reply)
	assert.Equal(t, StateReady, b.State())

	// A second cycle over the same process.
	reply, err = b.Query(ctx, "second")
	require.NoError(t, err)
	assert.Equal(t, "second", reply)
}

func TestQueryTrimsReply(t *testing.T) {
	b := startServer(t, echoServer, Config{})
	ctx := context.Background()
	require.NoError(t, b.Initialize(ctx))

	reply, err := b.Query(ctx, "  padded  ")
	require.NoError(t, err)
	assert.Equal(t, "padded", reply)
}

func TestQueryConnClosed(t *testing.T) {
	// Reads the query line and exits without replying.
	script := `read -r _
printf '%s\n' '` + handshakeReply + `'
read -r _
read -r _
exit 0`
	b := startServer(t, script, Config{})
	ctx := context.Background()
	require.NoError(t, b.Initialize(ctx))

	start := time.Now()
	_, err := b.Query(ctx, "anyone there")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnClosed)
	assert.Less(t, time.Since(start), 5*time.Second, "must fail fast, not hang")

	var pe *ProcessError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "query", pe.Op)
}

func TestQueryTimeout(t *testing.T) {
	// Reads the query line and goes quiet, stdin stays open so Close can
	// end it without a kill.
	script := `read -r _
printf '%s\n' '` + handshakeReply + `'
read -r _
read -r _
read -r _
exit 0`
	timeout := 300 * time.Millisecond
	b := startServer(t, script, Config{QueryTimeout: timeout})
	ctx := context.Background()
	require.NoError(t, b.Initialize(ctx))

	start := time.Now()
	_, err := b.Query(ctx, "ping")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReplyTimeout)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+time.Second)

	// The process is still there, the failure is the query's alone.
	assert.NotEqual(t, StateClosed, b.State())
}

func TestQueryEmptyReply(t *testing.T) {
	script := `read -r _
printf '%s\n' '` + handshakeReply + `'
read -r _
read -r _
printf '   \n'
read -r _
exit 0`
	b := startServer(t, script, Config{})
	ctx := context.Background()
	require.NoError(t, b.Initialize(ctx))

	_, err := b.Query(ctx, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyReply)
	assert.NotErrorIs(t, err, ErrConnClosed)
	assert.NotErrorIs(t, err, ErrReplyTimeout)
}

func TestLateReplyDiscarded(t *testing.T) {
	// The first reply arrives well past the query bound, the second is
	// immediate. The late line must be dropped, not handed to the second
	// query.
	script := `read -r _
printf '%s\n' '` + handshakeReply + `'
read -r _
read -r a
sleep 1
printf 'reply-to-%s\n' "$a"
read -r b
printf 'reply-to-%s\n' "$b"
read -r _
exit 0`
	b := startServer(t, script, Config{QueryTimeout: 300 * time.Millisecond})
	ctx := context.Background()
	require.NoError(t, b.Initialize(ctx))

	_, err := b.Query(ctx, "one")
	require.ErrorIs(t, err, ErrReplyTimeout)

	// Let the stale reply land on the pipe before asking again.
	time.Sleep(1200 * time.Millisecond)

	reply, err := b.Query(ctx, "two")
	require.NoError(t, err)
	assert.Equal(t, "reply-to-two", reply)
}

func TestQueryRejectsOverlap(t *testing.T) {
	// Replies arrive a second late, wide enough for the second query to
	// observe the first one still in flight.
	script := `read -r _
printf '%s\n' '` + handshakeReply + `'
read -r _
while read -r line; do sleep 1; printf '%s\n' "$line"; done`
	b := startServer(t, script, Config{})
	ctx := context.Background()
	require.NoError(t, b.Initialize(ctx))

	done := make(chan error, 1)
	go func() {
		_, err := b.Query(ctx, "first")
		done <- err
	}()

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, StateQuerying, b.State())
	_, err := b.Query(ctx, "second")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, <-done)
}

func TestInitializeToleratesMalformedReply(t *testing.T) {
	// Some servers chat before speaking JSON-RPC. The handshake logs and
	// carries on.
	script := `read -r _
printf 'starting up...\n'
read -r _
exec cat`
	b := startServer(t, script, Config{})
	ctx := context.Background()
	require.NoError(t, b.Initialize(ctx))

	reply, err := b.Query(ctx, "after")
	require.NoError(t, err)
	assert.Equal(t, "after", reply)
}

func TestInitializeFailsOnErrorReply(t *testing.T) {
	script := `read -r _
printf '%s\n' '{"jsonrpc":"2.0","id":0,"error":{"code":-32600,"message":"unsupported protocol"}}'
read -r _
exit 0`
	b := startServer(t, script, Config{})

	err := b.Initialize(context.Background())
	require.Error(t, err)

	var je *jsonrpc.Error
	require.ErrorAs(t, err, &je)
	assert.Equal(t, -32600, je.Code)
	assert.NotEqual(t, StateReady, b.State())
}

func TestInitializeTimeout(t *testing.T) {
	script := `read -r _
read -r _
exit 0`
	timeout := 300 * time.Millisecond
	b := startServer(t, script, Config{HandshakeTimeout: timeout})

	start := time.Now()
	err := b.Initialize(context.Background())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReplyTimeout)
	assert.GreaterOrEqual(t, elapsed, timeout)
}

func TestInitializeRunsOnce(t *testing.T) {
	b := startServer(t, echoServer, Config{})
	ctx := context.Background()
	require.NoError(t, b.Initialize(ctx))

	err := b.Initialize(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestStderrFloodDoesNotWedgeHandshake(t *testing.T) {
	// The child dumps far more than a pipe buffer to stderr before it
	// answers anything. Only a drain running before the first write keeps
	// this from deadlocking.
	script := `dd if=/dev/zero bs=1024 count=256 2>/dev/null | tr '\0' x >&2
read -r _
printf '%s\n' '` + handshakeReply + `'
read -r _
exec cat`
	b := startServer(t, script, Config{HandshakeTimeout: 10 * time.Second})
	ctx := context.Background()
	require.NoError(t, b.Initialize(ctx))

	reply, err := b.Query(ctx, "still alive")
	require.NoError(t, err)
	assert.Equal(t, "still alive", reply)
}

func TestQueryBeforeInitialize(t *testing.T) {
	b := startServer(t, echoServer, Config{})

	_, err := b.Query(context.Background(), "too soon")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestQueryAfterClose(t *testing.T) {
	b := startServer(t, echoServer, Config{})
	ctx := context.Background()
	require.NoError(t, b.Initialize(ctx))
	require.NoError(t, b.Close())
	assert.Equal(t, StateClosed, b.State())

	_, err := b.Query(ctx, "late")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseKillsStubbornProcess(t *testing.T) {
	// Ignores stdin entirely, Close has to kill it.
	b := startServer(t, "exec sleep 60", Config{CloseGrace: 100 * time.Millisecond})

	start := time.Now()
	require.NoError(t, b.Close())
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, StateClosed, b.State())
}

func TestCloseIdempotent(t *testing.T) {
	b := startServer(t, echoServer, Config{})
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}

func TestStartSpawnFailure(t *testing.T) {
	_, err := Start(Config{Command: "/does/not/exist/mcp-server"})
	require.Error(t, err)

	var pe *ProcessError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "spawn", pe.Op)
}
