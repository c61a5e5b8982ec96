package session

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-session/internal/connection"
	"github.com/rocketscienceinc/tictactoe-session/internal/entity"
	"github.com/rocketscienceinc/tictactoe-session/internal/metrics"
	"github.com/rocketscienceinc/tictactoe-session/internal/protocol"
)

const waitTimeout = 5 * time.Second

type testClient struct {
	t        *testing.T
	conn     net.Conn
	messages chan protocol.Message
}

// connect hands the session an in-memory peer that appears to come from ip. Nothing reads the returned
// end until it is passed to newTestClient.
func connect(ctx context.Context, t *testing.T, server *Server, ip string, port int) net.Conn {
	t.Helper()

	clientSide, serverSide := net.Pipe()
	remote := &net.TCPAddr{IP: net.ParseIP(ip), Port: port}
	require.NoError(t, server.Accept(ctx, connection.WithRemoteAddr(serverSide, remote)))

	t.Cleanup(func() {
		_ = clientSide.Close()
	})

	return clientSide
}

func newTestClient(t *testing.T, conn net.Conn) *testClient {
	client := &testClient{
		t:        t,
		conn:     conn,
		messages: make(chan protocol.Message, 256),
	}

	go func() {
		defer close(client.messages)
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			msg, err := protocol.Unmarshal(scanner.Bytes())
			if err == nil {
				client.messages <- msg
			}
		}
	}()

	return client
}

// dial connects an in-memory peer that appears to come from ip.
func dial(ctx context.Context, t *testing.T, server *Server, ip string, port int) *testClient {
	t.Helper()

	return newTestClient(t, connect(ctx, t, server, ip, port))
}

func (that *testClient) send(req protocol.Request) {
	that.t.Helper()

	data, err := protocol.Marshal(req)
	require.NoError(that.t, err)
	_, err = that.conn.Write(append(data, '\n'))
	require.NoError(that.t, err)
}

func (that *testClient) writeRaw(line string) {
	that.t.Helper()

	_, err := that.conn.Write([]byte(line))
	require.NoError(that.t, err)
}

// reply skips notifications and returns the next response or error.
func (that *testClient) reply() protocol.Message {
	that.t.Helper()

	for {
		select {
		case msg, ok := <-that.messages:
			require.True(that.t, ok, "connection closed while waiting for a reply")
			if _, isNotification := msg.(protocol.Notification); isNotification {
				continue
			}
			return msg
		case <-time.After(waitTimeout):
			that.t.Fatal("timed out waiting for a reply")
			return nil
		}
	}
}

func (that *testClient) request(req protocol.Request) protocol.Message {
	that.t.Helper()

	that.send(req)
	return that.reply()
}

func (that *testClient) waitFor(want protocol.Notification) {
	that.t.Helper()

	for {
		select {
		case msg, ok := <-that.messages:
			require.True(that.t, ok, "connection closed while waiting for %v", want)
			if msg == protocol.Message(want) {
				return
			}
		case <-time.After(waitTimeout):
			that.t.Fatalf("timed out waiting for %v", want)
		}
	}
}

func (that *testClient) waitClosed() {
	that.t.Helper()

	deadline := time.After(waitTimeout)
	for {
		select {
		case _, ok := <-that.messages:
			if !ok {
				return
			}
		case <-deadline:
			that.t.Fatal("timed out waiting for the connection to close")
		}
	}
}

func runServer(t *testing.T, opts ...Option) (context.Context, *Server, func() error) {
	t.Helper()

	return runServerWithOptions(t, Options{}, opts...)
}

func runServerWithOptions(t *testing.T, options Options, opts ...Option) (context.Context, *Server, func() error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	server := New(newTestLogger(), options, opts...)

	errs := make(chan error, 1)
	go func() {
		errs <- server.Run(ctx)
	}()

	stopped := false
	var runErr error
	stop := func() error {
		if stopped {
			return runErr
		}
		stopped = true
		cancel()

		select {
		case runErr = <-errs:
		case <-time.After(waitTimeout):
			t.Fatal("session did not stop")
		}
		return runErr
	}
	t.Cleanup(func() {
		_ = stop()
	})

	return ctx, server, stop
}

func TestServer_Match(t *testing.T) {
	// Given: a running session with a local host and a remote guest
	archive := newRecordingArchive()
	ctx, server, _ := runServer(t, WithArchive(archive))

	host := dial(ctx, t, server, "127.0.0.1", 5000)
	guest := dial(ctx, t, server, "10.0.0.2", 5000)

	// When: the host joins as X and the guest joins
	assert.Equal(t, protocol.JoinedAs(entity.PlayerX), host.request(protocol.JoinMatch{Player: ptr(entity.PlayerX)}))
	assert.Equal(t, protocol.JoinedAs(entity.PlayerO), guest.request(protocol.JoinMatch{}))

	// Then: the match is running with O to move
	snapshot, err := server.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, PhasePlaying, snapshot.Phase)
	require.NotNil(t, snapshot.Game)
	turn, ok := snapshot.Game.Turn()
	require.True(t, ok)
	assert.Equal(t, entity.PlayerO, turn)
	require.Len(t, snapshot.Connections, 2)
	assert.Equal(t, entity.Role{Kind: entity.RoleHost, Player: entity.PlayerX}, snapshot.Connections[0].Role)

	// When: the host moves out of turn
	assert.Equal(t, protocol.ErrNotYourTurn, host.request(protocol.PlayTurn{Tile: entity.B2}))

	// When: the guest moves
	resp := guest.request(protocol.PlayTurn{Tile: entity.B2})
	done, ok := resp.(protocol.TurnDone)
	require.True(t, ok, "got %#v", resp)
	assert.Equal(t, entity.PlayerO, done.Game.Board[entity.B2])
	host.waitFor(protocol.ServerInfo{Text: "O marked B2"})

	// When: the guest chats and leaves
	assert.Equal(t, protocol.Ack{}, guest.request(protocol.Chat{Msg: "gg"}))
	host.waitFor(protocol.ChatNotification{From: "O", Msg: "gg"})
	assert.Equal(t, protocol.Ack{}, guest.request(protocol.Disconnect{}))
	guest.waitClosed()

	// Then: the host wins by forfeit
	host.waitFor(protocol.ServerInfo{Text: "O left"})
	host.waitFor(protocol.ServerInfo{Text: "O forfeited, game concluded: X won"})

	select {
	case record := <-archive.records:
		assert.True(t, record.Forfeit)
		assert.Equal(t, entity.Win(entity.PlayerX), record.Conclusion)
		assert.Equal(t, entity.PlayerO, record.Board[entity.B2])
	case <-time.After(waitTimeout):
		t.Fatal("match was not archived")
	}

	resp = host.request(protocol.PlayTurn{Tile: entity.A1})
	protoErr, ok := resp.(*protocol.Error)
	require.True(t, ok, "got %#v", resp)
	assert.Equal(t, protocol.CodeGameConcluded, protoErr.Code)
}

func TestServer_HostRole(t *testing.T) {
	t.Run("Only the first loopback peer hosts", func(t *testing.T) {
		ctx, server, _ := runServer(t)

		dial(ctx, t, server, "127.0.0.1", 5000)
		dial(ctx, t, server, "127.0.0.1", 5001)
		dial(ctx, t, server, "10.0.0.2", 5000)

		snapshot, err := server.Snapshot(ctx)
		require.NoError(t, err)
		require.Len(t, snapshot.Connections, 3)
		assert.Equal(t, entity.HostRole(), snapshot.Connections[0].Role)
		assert.Equal(t, entity.ObserverRole(), snapshot.Connections[1].Role)
		assert.Equal(t, entity.ObserverRole(), snapshot.Connections[2].Role)
	})

	t.Run("Host role is free again once the host leaves", func(t *testing.T) {
		// Given: a host and a remote observer
		ctx, server, _ := runServer(t)
		host := dial(ctx, t, server, "127.0.0.1", 5000)
		observer := dial(ctx, t, server, "10.0.0.2", 5000)

		// When: the host leaves
		assert.Equal(t, protocol.Ack{}, host.request(protocol.Disconnect{}))
		observer.waitFor(protocol.ServerInfo{Text: "host left"})

		// Then: the next loopback peer becomes host
		dial(ctx, t, server, "127.0.0.1", 5001)

		snapshot, err := server.Snapshot(ctx)
		require.NoError(t, err)
		require.Len(t, snapshot.Connections, 2)
		assert.Equal(t, "127.0.0.1:5001", snapshot.Connections[1].Addr)
		assert.Equal(t, entity.HostRole(), snapshot.Connections[1].Role)
		assert.Equal(t, PhaseWaitingForHost, snapshot.Phase)
	})
}

func TestServer_MalformedInput(t *testing.T) {
	ctx, server, _ := runServer(t)
	client := dial(ctx, t, server, "10.0.0.2", 5000)

	client.writeRaw("not json\n")
	resp := client.reply()
	protoErr, ok := resp.(*protocol.Error)
	require.True(t, ok, "got %#v", resp)
	assert.Equal(t, protocol.CodeInvalidMessage, protoErr.Code)

	// the connection is still usable
	assert.Equal(t, protocol.Ack{}, client.request(protocol.Chat{Msg: "still here"}))
}

func TestServer_Shutdown(t *testing.T) {
	// Given: a session with a connected peer
	ctx, server, stop := runServer(t)
	client := dial(ctx, t, server, "10.0.0.2", 5000)
	client.waitFor(protocol.ServerInfo{Text: "10.0.0.2:5000 joined as observer"})

	// When: the session stops
	require.NoError(t, stop())

	// Then: the peer is disconnected and the session refuses new work
	client.waitClosed()

	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	assert.ErrorIs(t, server.Accept(context.Background(), serverSide), ErrActorStopped)

	_, err := server.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrActorStopped)
}

func TestServer_SlowSubscriber(t *testing.T) {
	// Given: a one slot broadcast buffer and a peer that is not reading
	registry := prometheus.NewRegistry()
	ctx, server, _ := runServerWithOptions(t, Options{BroadcastBuffer: 1},
		WithMetrics(metrics.New(metrics.WithRegistry(registry))))

	chatter := dial(ctx, t, server, "10.0.0.2", 5000)
	slowConn := connect(ctx, t, server, "10.0.0.3", 5000)

	// When: far more notifications are published than the slow peer can buffer
	for i := 0; i < 10; i++ {
		assert.Equal(t, protocol.Ack{}, chatter.request(protocol.Chat{Msg: fmt.Sprintf("spam %d", i)}))
	}

	// Then: once it starts reading, it is still connected and answered
	slow := newTestClient(t, slowConn)
	slow.send(protocol.Chat{Msg: "still here"})

	var acked, echoed bool
	for !acked || !echoed {
		select {
		case msg, ok := <-slow.messages:
			require.True(t, ok, "slow peer was disconnected")
			switch msg {
			case protocol.Message(protocol.Ack{}):
				acked = true
			case protocol.Message(protocol.ChatNotification{From: "10.0.0.3:5000", Msg: "still here"}):
				echoed = true
			}
		case <-time.After(waitTimeout):
			t.Fatal("timed out waiting for the slow peer")
		}
	}

	snapshot, err := server.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snapshot.Connections, 2)
	assert.Positive(t, counterValue(t, registry, "tictactoe_broadcast_lagged_total"))
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := registry.Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() == name {
			require.Len(t, family.GetMetric(), 1)
			return family.GetMetric()[0].GetCounter().GetValue()
		}
	}

	t.Fatalf("metric %s not found", name)
	return 0
}
