package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/rocketscienceinc/tictactoe-session/internal/connection"
	"github.com/rocketscienceinc/tictactoe-session/internal/protocol"
)

var ErrBroadcastClosed = errors.New("broadcast closed")

// connTask serves one connection: it forwards requests to the actor one at a time, relays replies
// and pushes notifications from the broadcast.
type connTask struct {
	server *Server
	cc     *ConnectionContext
	socket net.Conn
	conn   *connection.Connection
	logger *slog.Logger
}

func newConnTask(server *Server, cc *ConnectionContext, socket net.Conn) *connTask {
	logger := server.logger.With("component", "conn", "conn_id", cc.ID, "addr", cc.Addr)

	return &connTask{
		server: server,
		cc:     cc,
		socket: socket,
		conn: connection.New(logger, socket, connection.WithMalformedHook(func(error) {
			server.metrics.MalformedMessage()
		})),
		logger: logger,
	}
}

func (that *connTask) run(ctx context.Context) {
	log := that.logger.With("method", "run")

	defer func() {
		if err := that.socket.Close(); err != nil {
			log.Debug("failed to close socket", "error", err)
		}
		that.server.release(that.cc.ID)
	}()

	stop := make(chan struct{})
	defer close(stop)

	incoming := make(chan protocol.Request)
	readErr := make(chan error, 1)
	go that.readLoop(incoming, readErr, stop)

	var pending <-chan protocol.Message
	requests := incoming
	notifications := that.cc.subscription.C()

	for {
		select {
		case <-ctx.Done():
			log.Debug("connection cancelled")
			return

		case err := <-readErr:
			switch {
			case errors.Is(err, io.EOF):
				log.Info("peer closed connection")
			case errors.Is(err, connection.ErrPeerReset):
				log.Warn("peer reset connection", "error", err)
			default:
				log.Warn("failed to receive", "error", err)
			}
			return

		case req := <-requests:
			if _, ok := req.(protocol.Disconnect); ok {
				log.Info("peer requested disconnect")
				that.send(protocol.Ack{})
				return
			}

			reply, err := that.server.submit(ctx, that.cc.ID, req)
			if err != nil {
				log.Warn("failed to submit request", "action", req.Action(), "error", err)
				that.send(protocol.ServerError(err.Error()))
				return
			}

			// one request in flight: stop reading until it is answered
			pending, requests = reply, nil

		case msg := <-pending:
			pending, requests = nil, incoming
			if !that.send(msg) {
				return
			}

		case n, ok := <-notifications:
			if !ok {
				log.Info("session closed")
				that.send(protocol.ServerError(ErrBroadcastClosed.Error()))
				return
			}

			if lagged := that.cc.subscription.TakeLagged(); lagged > 0 {
				log.Warn("notifications dropped", "count", lagged)
				that.server.metrics.BroadcastLagged(lagged)
			}

			if !that.send(n) {
				return
			}
		}
	}
}

func (that *connTask) readLoop(out chan<- protocol.Request, errs chan<- error, stop <-chan struct{}) {
	for {
		req, err := that.conn.Receive()
		if err != nil {
			errs <- err
			return
		}

		select {
		case out <- req:
		case <-stop:
			return
		}
	}
}

func (that *connTask) send(msg protocol.Message) bool {
	if err := that.conn.Send(msg); err != nil {
		that.logger.Warn("failed to send", "action", msg.Action(), "error", err)
		return false
	}
	return true
}
