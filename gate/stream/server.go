package stream

import (
	"net/http"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/gatewerk/mcpgate/session"
)

const readLimit = 1 << 20

// Server upgrades a request to a WebSocket connection and answers query
// frames over it until the client closes.
type Server struct {
	Log     *zap.SugaredLogger
	Session *session.Session
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		s.Log.Debugf("error accepting WebSocket conn: %s", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.Log.Debug("accepted WebSocket conn")
	wsConn.SetReadLimit(readLimit)

	ctx := r.Context()
	for {
		var frame QueryFrame
		err := wsjson.Read(ctx, wsConn, &frame)
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			s.Log.Debug("got normal closure from client, wrapping up")
			return
		}
		if err != nil {
			s.Log.Debugf("frame reader got error: %s", err)
			wsConn.Close(websocket.StatusInternalError, err.Error())
			return
		}

		var reply ReplyFrame
		result, qerr := s.Session.Query(ctx, frame.Payload)
		if qerr != nil {
			reply.Error = qerr.Error()
		} else {
			reply.Result = result
		}
		if err := wsjson.Write(ctx, wsConn, reply); err != nil {
			s.Log.Debugf("error writing reply frame: %s", err)
			wsConn.Close(websocket.StatusInternalError, err.Error())
			return
		}
	}
}
