// Package gate exposes one shared server session over HTTP: a query endpoint
// that forwards a request line and returns the reply line, a streaming
// WebSocket variant of the same, and a health endpoint.
package gate

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gatewerk/mcpgate/bridge"
	"github.com/gatewerk/mcpgate/gate/stream"
	"github.com/gatewerk/mcpgate/session"
)

// Gate is the HTTP front of one server session.
type Gate struct {
	log *zap.SugaredLogger

	session      *session.Session
	auth         Auth
	listenAddr   string
	tlsConfig    *tls.Config
	streamServer *stream.Server

	httpServer *http.Server
}

type Option func(g *Gate)

func WithListenAddr(s string) Option {
	return func(g *Gate) {
		g.listenAddr = s
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) {
		g.log = l.Named("gate").Sugar()
	}
}

func WithLogLevel(l zapcore.Level) Option {
	return func(g *Gate) {
		g.log = g.log.WithOptions(zap.IncreaseLevel(l))
	}
}

// WithAuth sets the bearer auth policy.
func WithAuth(a Auth) Option {
	return func(g *Gate) {
		g.auth = a
	}
}

// WithTLSConfig serves HTTPS with the given config instead of plain HTTP.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(g *Gate) {
		g.tlsConfig = cfg
	}
}

// New builds a gate in front of an already-started session.
func New(s *session.Session, opts ...Option) (*Gate, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	g := &Gate{
		log:        logger.Named("gate").Sugar(),
		session:    s,
		listenAddr: "0.0.0.0:3000",
	}
	for _, o := range opts {
		o(g)
	}
	g.streamServer = &stream.Server{
		Log:     g.log.Named("stream_server"),
		Session: s,
	}

	router := httprouter.New()
	router.GET("/health", g.health)
	router.POST("/api/v1", g.query)
	router.GET("/api/v1", g.queryWS)

	// Built before Run so Stop always has a server to close, even when Run
	// never reached the listen step.
	g.httpServer = &http.Server{Handler: router}
	return g, nil
}

// Run serves until Stop is called, returning nil on a clean shutdown.
func (g *Gate) Run() error {
	tcpListener, err := net.Listen("tcp", g.listenAddr)
	if err != nil {
		return fmt.Errorf("listening TCP: %w", err)
	}
	listener := net.Listener(tcpListener)
	if g.tlsConfig != nil {
		listener = tls.NewListener(tcpListener, g.tlsConfig)
	}

	g.log.Infow("gate listening", "Addr", g.listenAddr, "Server", g.session.Name(), "TLS", g.tlsConfig != nil, "Auth", g.auth.Enabled())
	err = g.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop closes the HTTP server. The session stays up; its lifecycle belongs
// to whoever started it.
func (g *Gate) Stop() error {
	return g.httpServer.Close()
}

// QueryRequest is the body of POST /api/v1.
type QueryRequest struct {
	Command string `json:"command"`
}

// QueryResponse carries the server's reply line.
type QueryResponse struct {
	Result string `json:"result"`
}

// ErrorResponse is the body of every non-200 answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Server    string `json:"server"`
	State     string `json:"state"`
	Timestamp string `json:"timestamp"`
}

func (g *Gate) health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Service:   "mcpgate",
		Server:    g.session.Name(),
		State:     g.session.State().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// query forwards one command line to the session and answers with the reply
// line. Query failures come back as HTTP errors; the session stays up either
// way.
func (g *Gate) query(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !g.authorize(w, r) {
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if req.Command == "" {
		writeError(w, http.StatusBadRequest, "Bad Request", "request contained no command")
		return
	}

	reqID := uuid.NewString()
	g.log.Debugw("query received", "RequestID", reqID, "Bytes", len(req.Command))

	reply, err := g.session.Query(r.Context(), req.Command)
	if err != nil {
		g.log.Errorw("query failed", "RequestID", reqID, "Error", err)
		writeError(w, statusFor(err), "Query Failed", err.Error())
		return
	}

	g.log.Debugw("query answered", "RequestID", reqID, "Bytes", len(reply))
	writeJSON(w, http.StatusOK, QueryResponse{Result: reply})
}

func (g *Gate) queryWS(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !g.authorize(w, r) {
		return
	}
	g.streamServer.ServeHTTP(w, r)
}

// statusFor maps query failures onto gateway-style status codes: the child
// not answering in time is a gateway timeout, everything else wrong with the
// conversation is a bad gateway, and whatever remains is a plain 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, bridge.ErrReplyTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, bridge.ErrConnClosed), errors.Is(err, bridge.ErrEmptyReply), errors.Is(err, bridge.ErrClosed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func writeError(w http.ResponseWriter, status int, errText, msg string) {
	writeJSON(w, status, ErrorResponse{Error: errText, Message: msg})
}
