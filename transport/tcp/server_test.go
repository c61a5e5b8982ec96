package tcp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-session/internal/entity"
	"github.com/rocketscienceinc/tictactoe-session/internal/protocol"
	"github.com/rocketscienceinc/tictactoe-session/internal/session"
)

type acceptFunc func(ctx context.Context, conn net.Conn) error

func (f acceptFunc) Accept(ctx context.Context, conn net.Conn) error {
	return f(ctx, conn)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func listen(t *testing.T) net.Listener {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	return listener
}

func TestServer_Serve(t *testing.T) {
	t.Run("Local peer hosts a real session", func(t *testing.T) {
		// Given: a running session behind the listener
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sess := session.New(newTestLogger(), session.Options{})
		go func() {
			_ = sess.Run(ctx)
		}()

		listener := listen(t)
		served := make(chan error, 1)
		go func() {
			served <- New(newTestLogger(), sess).Serve(ctx, listener)
		}()

		// When: a local client joins the match
		client, err := net.Dial("tcp", listener.Addr().String())
		require.NoError(t, err)
		defer client.Close()

		data, err := protocol.Marshal(protocol.JoinMatch{Player: nil})
		require.NoError(t, err)
		_, err = client.Write(append(data, '\n'))
		require.NoError(t, err)

		// Then: it is accepted as the host and joins as O
		require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
		scanner := bufio.NewScanner(client)
		var reply protocol.Message
		for scanner.Scan() {
			msg, err := protocol.Unmarshal(scanner.Bytes())
			require.NoError(t, err)
			if _, ok := msg.(protocol.Notification); !ok {
				reply = msg
				break
			}
		}
		assert.Equal(t, protocol.JoinedAs(entity.PlayerO), reply)

		// When: the context is cancelled
		cancel()

		// Then: Serve returns cleanly
		select {
		case err = <-served:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Serve did not return")
		}
	})

	t.Run("Refused hand over closes the peer", func(t *testing.T) {
		// Given: a session that refuses everything
		errRefused := errors.New("refused")
		listener := listen(t)
		served := make(chan error, 1)
		go func() {
			served <- New(newTestLogger(), acceptFunc(func(context.Context, net.Conn) error {
				return errRefused
			})).Serve(context.Background(), listener)
		}()

		// When: a client connects
		client, err := net.Dial("tcp", listener.Addr().String())
		require.NoError(t, err)
		defer client.Close()

		// Then: Serve reports the failure and the client is closed
		select {
		case err = <-served:
			assert.ErrorIs(t, err, errRefused)
		case <-time.After(5 * time.Second):
			t.Fatal("Serve did not return")
		}

		require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, err = client.Read(make([]byte, 1))
		assert.Error(t, err)
	})
}
