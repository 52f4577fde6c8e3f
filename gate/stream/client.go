package stream

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Client dials the gate's streaming query endpoint.
type Client struct {
	HTTPClient *http.Client
	URL        string
	Logger     *zap.SugaredLogger

	// Token is sent as a bearer token on the upgrade request when set.
	Token string
}

// Open establishes the WebSocket connection.
func (c *Client) Open(ctx context.Context) (*Stream, error) {
	c.Logger.Debugw("dialing WebSocket for queries", "URL", c.URL)
	opts := &websocket.DialOptions{
		HTTPClient:      c.HTTPClient,
		CompressionMode: websocket.CompressionContextTakeover,
	}
	if c.Token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + c.Token}}
	}
	wsConn, _, err := websocket.Dial(ctx, c.URL, opts)
	if err != nil {
		c.Logger.Debugf("dial error: %s", err)
		return nil, fmt.Errorf("establishing WebSocket conn for queries: %w", err)
	}
	wsConn.SetReadLimit(readLimit)

	return &Stream{log: c.Logger.Named("stream"), conn: wsConn}, nil
}

// Stream is one open query channel. Frames answer in order, so a mutex holds
// callers to one query/reply pair at a time.
type Stream struct {
	log  *zap.SugaredLogger
	conn *websocket.Conn
	mu   sync.Mutex
}

// Query sends one payload line and waits for its reply frame.
func (s *Stream) Query(ctx context.Context, payload string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := wsjson.Write(ctx, s.conn, QueryFrame{Payload: payload}); err != nil {
		return "", fmt.Errorf("writing query frame: %w", err)
	}
	var reply ReplyFrame
	if err := wsjson.Read(ctx, s.conn, &reply); err != nil {
		return "", fmt.Errorf("reading reply frame: %w", err)
	}
	if reply.Error != "" {
		return "", fmt.Errorf("remote query failed: %s", reply.Error)
	}
	return reply.Result, nil
}

// Close ends the conversation with a normal closure.
func (s *Stream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "done")
}
