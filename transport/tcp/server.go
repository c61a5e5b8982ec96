package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
)

type acceptor interface {
	Accept(ctx context.Context, conn net.Conn) error
}

// Server accepts raw TCP peers and hands each stream to the session.
type Server struct {
	logger  *slog.Logger
	session acceptor
}

func New(logger *slog.Logger, sess acceptor) *Server {
	return &Server{
		logger:  logger.With("component", "tcp"),
		session: sess,
	}
}

// Start - listens on port until ctx is cancelled.
func (that *Server) Start(ctx context.Context, port string) error {
	var lc net.ListenConfig

	listener, err := lc.Listen(ctx, "tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", port, err)
	}

	return that.Serve(ctx, listener)
}

// Serve - accepts connections from listener until ctx is cancelled or the session stops. The listener is
// closed on return.
func (that *Server) Serve(ctx context.Context, listener net.Listener) error {
	log := that.logger.With("method", "Serve")
	log.Info("listening", "addr", listener.Addr().String())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to accept connection: %w", err)
		}

		log.Debug("accepted connection", "addr", conn.RemoteAddr().String())

		if err = that.session.Accept(ctx, conn); err != nil {
			_ = conn.Close()

			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed to hand over connection: %w", err)
		}
	}
}
