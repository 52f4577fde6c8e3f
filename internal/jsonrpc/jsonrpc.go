// Package jsonrpc holds the minimal JSON-RPC 2.0 envelope used during the
// bridge handshake. It is deliberately lenient: unknown fields are ignored and
// a version mismatch is not an error, because the peer process's compliance
// cannot be assumed.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC protocol version emitted on every message.
const Version = "2.0"

// Message is a loose JSON-RPC message: a request (method + id), a
// notification (method, no id), or a response (result or error).
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the JSON-RPC error object carried on failed responses.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewRequest builds a request message with the given numeric id.
func NewRequest(id int64, method string, params interface{}) (*Message, error) {
	m := &Message{JSONRPC: Version, Method: method}

	idRaw, err := json.Marshal(id)
	if err != nil {
		return nil, fmt.Errorf("marshaling id: %w", err)
	}
	m.ID = idRaw

	if params != nil {
		p, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshaling params: %w", err)
		}
		m.Params = p
	}
	return m, nil
}

// NewNotification builds a notification message, which carries no id and
// expects no reply.
func NewNotification(method string, params interface{}) (*Message, error) {
	m := &Message{JSONRPC: Version, Method: method}
	if params != nil {
		p, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshaling params: %w", err)
		}
		m.Params = p
	}
	return m, nil
}

// Encode renders the message as a single line of JSON without a trailing
// newline. json.Marshal never emits newlines, which the line protocol relies
// on.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Parse decodes a single message. It fails only on malformed JSON; callers
// decide what to do about missing or surprising fields.
func Parse(line []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(line, &m); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}
	return &m, nil
}

// IsResponse reports whether the message looks like a response, i.e. carries
// a result or an error member.
func (m *Message) IsResponse() bool {
	return m.Result != nil || m.Error != nil
}
