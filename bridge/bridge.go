package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gatewerk/mcpgate/internal/envutil"
)

const (
	// DefaultQueryTimeout bounds the wait for each query's reply line.
	DefaultQueryTimeout = 30 * time.Second

	// DefaultHandshakeTimeout bounds the wait for the initialize reply.
	DefaultHandshakeTimeout = 30 * time.Second

	// closeGrace is how long Close waits for the child to exit on its own
	// after stdin closes, before killing it.
	closeGrace = 5 * time.Second
)

// Config describes the child process to run.
type Config struct {
	// Command is the executable to launch, with Args as its arguments.
	Command string
	Args    []string

	// Env entries are appended to the ambient environment, so on key
	// collision the explicit entry wins.
	Env map[string]string

	// Dir is the child's working directory. Empty means inherit.
	Dir string

	// QueryTimeout and HandshakeTimeout override the default bounds when
	// positive.
	QueryTimeout     time.Duration
	HandshakeTimeout time.Duration

	// CloseGrace overrides how long Close waits for a voluntary exit
	// before killing the child. Zero means the default.
	CloseGrace time.Duration

	// ClientName and ClientVersion identify this side in the handshake.
	ClientName    string
	ClientVersion string

	Logger *zap.SugaredLogger
}

// Bridge is one running child process with the conversation state needed to
// exchange newline-delimited request/reply pairs over its standard streams.
//
// A Bridge has no internal lock. Callers must hold it to one method call at
// a time, normally through session.Session. Close may be called from any
// goroutine.
type Bridge struct {
	log *zap.SugaredLogger
	cmd *exec.Cmd

	stdin  *bufio.Writer
	stdinC io.Closer

	// lines carries stdout lines from the reader goroutine and is closed
	// when the child's output ends.
	lines chan string

	// stale counts replies owed on the pipe by queries that stopped
	// waiting. Touched only on the serialized query path.
	stale int

	queryTimeout     time.Duration
	handshakeTimeout time.Duration
	closeGrace       time.Duration
	clientName       string
	clientVersion    string

	state atomic.Int32

	closing    chan struct{} // closed by Close to release the goroutines
	readerDone chan struct{}
	drainDone  chan struct{}
	exited     chan struct{} // closed once the child is reaped

	closeOnce sync.Once
	closeErr  error
}

// Start launches the child with stdin, stdout and stderr piped and begins
// draining stderr. The returned bridge is in StateSpawned; call Initialize
// before querying, and Close it when done regardless of what happened in
// between.
func Start(cfg Config) (*Bridge, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.CloseGrace <= 0 {
		cfg.CloseGrace = closeGrace
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "mcpgate"
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = "dev"
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = envutil.Overlay(cfg.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, procErr("spawn", fmt.Errorf("opening stdin pipe: %w", err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, procErr("spawn", fmt.Errorf("opening stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, procErr("spawn", fmt.Errorf("opening stderr pipe: %w", err))
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, procErr("spawn", fmt.Errorf("starting %q: %w", cfg.Command, err))
	}

	b := &Bridge{
		log:              log,
		cmd:              cmd,
		stdin:            bufio.NewWriter(stdin),
		stdinC:           stdin,
		lines:            make(chan string),
		queryTimeout:     cfg.QueryTimeout,
		handshakeTimeout: cfg.HandshakeTimeout,
		closeGrace:       cfg.CloseGrace,
		clientName:       cfg.ClientName,
		clientVersion:    cfg.ClientVersion,
		closing:          make(chan struct{}),
		readerDone:       make(chan struct{}),
		drainDone:        make(chan struct{}),
		exited:           make(chan struct{}),
	}
	b.state.Store(int32(StateSpawned))

	// The drain must be running before anything is written to stdin, a
	// child that logs during startup must never block on a full stderr
	// buffer while we block writing to it.
	go b.drainStderr(stderr)
	go b.readLines(stdout)
	go b.watch()

	log.Debugw("process started", "Pid", cmd.Process.Pid, "Command", cfg.Command, "Args", cfg.Args)
	return b, nil
}

// Query writes one payload line, flushes, and returns the next reply line
// with surrounding whitespace trimmed. It fails with ErrConnClosed when the
// child's output ends first, ErrReplyTimeout when no line arrives within the
// query bound, and ErrEmptyReply when the line holds only whitespace. The
// child is left running in every case.
func (b *Bridge) Query(ctx context.Context, payload string) (string, error) {
	if b.State() == StateClosed {
		return "", procErr("query", ErrClosed)
	}
	if !b.state.CompareAndSwap(int32(StateReady), int32(StateQuerying)) {
		return "", procErr("query", fmt.Errorf("%w: state %s", ErrNotReady, b.State()))
	}
	defer b.state.CompareAndSwap(int32(StateQuerying), int32(StateReady))

	if err := b.writeLine("query", payload); err != nil {
		return "", err
	}
	line, err := b.readReply(ctx, b.queryTimeout, "query")
	if err != nil {
		return "", err
	}
	reply := strings.TrimSpace(line)
	if reply == "" {
		return "", procErr("query", ErrEmptyReply)
	}
	return reply, nil
}

// State reports the bridge's lifecycle state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// Pid reports the child's process id.
func (b *Bridge) Pid() int {
	return b.cmd.Process.Pid
}

// Close ends the conversation by closing the child's stdin, then waits for
// the exit, killing the child if it is still around after a grace period.
// Close is idempotent and safe to call while a query is in flight; the query
// fails fast instead of waiting out its bound.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.state.Store(int32(StateClosed))
		close(b.closing)

		var errs error
		if err := b.stdinC.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = multierr.Append(errs, fmt.Errorf("closing stdin: %w", err))
		}
		select {
		case <-b.exited:
		case <-time.After(b.closeGrace):
			b.log.Debugw("process still running after stdin closed, killing it", "Pid", b.cmd.Process.Pid)
			if err := b.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				errs = multierr.Append(errs, fmt.Errorf("killing process: %w", err))
			}
			<-b.exited
		}
		b.closeErr = errs
	})
	return b.closeErr
}

// writeLine sends payload plus a newline and flushes, so the line crosses
// the pipe before the reply wait begins.
func (b *Bridge) writeLine(op, payload string) error {
	if _, err := b.stdin.WriteString(payload); err != nil {
		return b.writeErr(op, err)
	}
	if err := b.stdin.WriteByte('\n'); err != nil {
		return b.writeErr(op, err)
	}
	if err := b.stdin.Flush(); err != nil {
		return b.writeErr(op, err)
	}
	return nil
}

// writeErr maps a dead pipe onto ErrConnClosed, so the caller sees the same
// failure whether the child died just before or just after the write.
func (b *Bridge) writeErr(op string, err error) error {
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed) {
		return procErr(op, fmt.Errorf("%w: %v", ErrConnClosed, err))
	}
	return procErr(op, fmt.Errorf("writing request: %w", err))
}

// readReply returns the next reply line within the given bound, first
// discarding lines owed to queries that stopped waiting. When the bound or
// the context expires the pending reply is recorded as owed.
func (b *Bridge) readReply(ctx context.Context, timeout time.Duration, op string) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case line, ok := <-b.lines:
			if !ok {
				return "", procErr(op, ErrConnClosed)
			}
			if b.stale > 0 {
				b.stale--
				b.log.Debugw("discarded stale reply line", "Bytes", len(line), "StillOwed", b.stale)
				continue
			}
			return line, nil
		case <-timer.C:
			b.stale++
			return "", procErr(op, fmt.Errorf("%w after %s", ErrReplyTimeout, timeout))
		case <-ctx.Done():
			b.stale++
			return "", procErr(op, ctx.Err())
		case <-b.closing:
			return "", procErr(op, ErrClosed)
		}
	}
}

// readLines owns stdout for the bridge's whole life and hands lines to
// whoever is waiting in readReply. A final partial line before EOF counts as
// a line. Closing the channel is the end-of-output signal.
func (b *Bridge) readLines(r io.Reader) {
	defer close(b.readerDone)
	defer close(b.lines)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			select {
			case b.lines <- line:
			case <-b.closing:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				b.log.Debugf("stdout read error: %s", err)
			}
			return
		}
	}
}

// drainStderr keeps the child's stderr from filling up and surfaces it in
// the debug log.
func (b *Bridge) drainStderr(r io.Reader) {
	defer close(b.drainDone)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if s := strings.TrimRight(line, "\r\n"); s != "" {
			b.log.Debugf("stderr: %s", s)
		}
		if err != nil {
			return
		}
	}
}

// watch reaps the child once both stream readers are done. The order
// matters, Wait closes the parent's pipe ends.
func (b *Bridge) watch() {
	<-b.readerDone
	<-b.drainDone
	err := b.cmd.Wait()
	b.state.Store(int32(StateClosed))
	close(b.exited)
	b.log.Debugw("process exited", "Error", err)
}
