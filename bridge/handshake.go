package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gatewerk/mcpgate/internal/jsonrpc"
)

// protocolVersion is the protocol revision offered in the handshake.
const protocolVersion = "2024-11-05"

type initializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    clientCapabilities `json:"capabilities"`
	ClientInfo      clientInfo         `json:"clientInfo"`
}

type clientCapabilities struct{}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeResult struct {
	ProtocolVersion string `json:"protocolVersion"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

// Initialize runs the fixed two step handshake: write an "initialize"
// request, wait up to the handshake bound for one reply line, then write the
// "notifications/initialized" notification. The reply is parsed leniently. A
// line that is not valid JSON-RPC is logged and tolerated, but an explicit
// error object means the server refused, and the handshake fails.
func (b *Bridge) Initialize(ctx context.Context) error {
	if !b.state.CompareAndSwap(int32(StateSpawned), int32(StateInitializing)) {
		return procErr("initialize", fmt.Errorf("%w: state %s", ErrNotReady, b.State()))
	}

	req, err := jsonrpc.NewRequest(0, "initialize", initializeParams{
		ProtocolVersion: protocolVersion,
		ClientInfo:      clientInfo{Name: b.clientName, Version: b.clientVersion},
	})
	if err != nil {
		return procErr("initialize", fmt.Errorf("building initialize request: %w", err))
	}
	line, err := req.Encode()
	if err != nil {
		return procErr("initialize", fmt.Errorf("encoding initialize request: %w", err))
	}
	if err := b.writeLine("initialize", string(line)); err != nil {
		return err
	}

	raw, err := b.readReply(ctx, b.handshakeTimeout, "initialize")
	if err != nil {
		return err
	}
	reply, perr := jsonrpc.Parse([]byte(strings.TrimSpace(raw)))
	switch {
	case perr != nil:
		b.log.Warnf("initialize reply is not valid JSON-RPC, continuing anyway: %s", perr)
	case reply.Error != nil:
		return procErr("initialize", fmt.Errorf("server rejected initialize: %w", reply.Error))
	case !reply.IsResponse():
		b.log.Warnw("initialize reply is not a response, continuing anyway", "Method", reply.Method)
	default:
		var res initializeResult
		if len(reply.Result) > 0 && json.Unmarshal(reply.Result, &res) == nil {
			b.log.Debugw("handshake accepted", "Server", res.ServerInfo.Name, "ServerVersion", res.ServerInfo.Version, "ProtocolVersion", res.ProtocolVersion)
		}
	}

	note, err := jsonrpc.NewNotification("notifications/initialized", nil)
	if err != nil {
		return procErr("initialize", fmt.Errorf("building initialized notification: %w", err))
	}
	line, err = note.Encode()
	if err != nil {
		return procErr("initialize", fmt.Errorf("encoding initialized notification: %w", err))
	}
	if err := b.writeLine("initialize", string(line)); err != nil {
		return err
	}

	if !b.state.CompareAndSwap(int32(StateInitializing), int32(StateReady)) {
		return procErr("initialize", ErrClosed)
	}
	return nil
}
