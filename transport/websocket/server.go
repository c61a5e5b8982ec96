package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/rocketscienceinc/tictactoe-session/internal/connection"
)

const shutdownTimeout = 5 * time.Second

type acceptor interface {
	Accept(ctx context.Context, conn net.Conn) error
}

// Server is a websocket gateway into the session. Every text frame carries newline terminated protocol
// lines, exactly as on the TCP port.
type Server struct {
	logger         *slog.Logger
	session        acceptor
	originPatterns []string
}

type Option func(*Server)

// WithOriginPatterns - cross origin hosts allowed to open the gateway, matched with path.Match.
// Same origin requests and clients that send no Origin header are always allowed.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) {
		s.originPatterns = append(s.originPatterns, patterns...)
	}
}

func New(logger *slog.Logger, sess acceptor, opts ...Option) *Server {
	server := &Server{
		logger:  logger.With("component", "websocket"),
		session: sess,
	}

	for _, opt := range opts {
		opt(server)
	}

	return server
}

func (that *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Get("/ws", that.upgradeToWebSocket)

	return router
}

// Start - starts WebSocket server and stops it when ctx is cancelled.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           that.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shutdown server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// upgradeToWebSocket - upgrades the request and keeps it open for as long as the session uses the stream.
func (that *Server) upgradeToWebSocket(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "upgradeToWebSocket", "addr", req.RemoteAddr)

	wsConn, err := websocket.Accept(writer, req, &websocket.AcceptOptions{
		OriginPatterns: that.originPatterns,
	})
	if err != nil {
		log.Warn("failed to accept websocket connection", "origin", req.Header.Get("Origin"), "error", err)
		return
	}
	wsConn.SetReadLimit(connection.MaxMessageSize)

	ctx := req.Context()
	stream := newNotifyConn(connection.WithRemoteAddr(
		websocket.NetConn(ctx, wsConn, websocket.MessageText),
		remoteAddr(req),
	))

	if err = that.session.Accept(ctx, stream); err != nil {
		log.Warn("session refused connection", "error", err)
		_ = wsConn.Close(websocket.StatusTryAgainLater, "session unavailable")
		return
	}

	log.Debug("websocket connection handed to session")

	select {
	case <-stream.closed:
	case <-ctx.Done():
	}
}

func remoteAddr(req *http.Request) net.Addr {
	addrPort, err := netip.ParseAddrPort(req.RemoteAddr)
	if err != nil {
		return nil
	}

	return net.TCPAddrFromAddrPort(addrPort)
}

// notifyConn reports when the session closes the stream.
type notifyConn struct {
	net.Conn
	once   sync.Once
	closed chan struct{}
}

func newNotifyConn(conn net.Conn) *notifyConn {
	return &notifyConn{
		Conn:   conn,
		closed: make(chan struct{}),
	}
}

func (that *notifyConn) Close() error {
	err := that.Conn.Close()
	that.once.Do(func() {
		close(that.closed)
	})

	return err
}
