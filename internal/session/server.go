package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rocketscienceinc/tictactoe-session/internal/connection"
	"github.com/rocketscienceinc/tictactoe-session/internal/entity"
	"github.com/rocketscienceinc/tictactoe-session/internal/metrics"
	"github.com/rocketscienceinc/tictactoe-session/internal/protocol"
)

const tracerName = "github.com/rocketscienceinc/tictactoe-session/internal/session"

var ErrActorStopped = errors.New("session actor stopped")

// Phase is where the session is in its lifecycle.
type Phase string

const (
	PhaseWaitingForHost    Phase = "waiting_for_host"
	PhaseWaitingForPlayers Phase = "waiting_for_players"
	PhasePlaying           Phase = "playing"
)

type matchArchive interface {
	Record(record entity.MatchRecord)
}

type Options struct {
	// BroadcastBuffer is how many notifications a subscriber may fall behind before the oldest are dropped.
	BroadcastBuffer int
	// RequestQueue is how many requests may wait for the actor before senders block.
	RequestQueue int
}

type Option func(*Server)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithArchive - concluded matches are handed to archive.
func WithArchive(archive matchArchive) Option {
	return func(s *Server) {
		s.archive = archive
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Server) {
		s.tracer = tracer
	}
}

type requestEvent struct {
	id    uuid.UUID
	req   protocol.Request
	reply chan protocol.Message
}

// Server is the session actor. Every piece of session state is owned by the goroutine running Run;
// connection tasks talk to it only through channels.
type Server struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	archive matchArchive
	tracer  trace.Tracer

	accepted chan net.Conn
	requests chan requestEvent
	closed   chan uuid.UUID
	inspect  chan chan Snapshot
	done     chan struct{}
	tasks    sync.WaitGroup

	broadcast *Broadcaster
	registry  *Registry
	handlers  map[string]handlerFunc

	phase     Phase
	game      *entity.Game
	matchID   uuid.UUID
	players   map[entity.Player]string
	startedAt time.Time
}

func New(logger *slog.Logger, options Options, opts ...Option) *Server {
	if options.BroadcastBuffer < 1 {
		options.BroadcastBuffer = 16
	}
	if options.RequestQueue < 1 {
		options.RequestQueue = 64
	}

	server := &Server{
		logger: logger,
		tracer: otel.Tracer(tracerName),

		accepted: make(chan net.Conn),
		requests: make(chan requestEvent, options.RequestQueue),
		closed:   make(chan uuid.UUID, options.RequestQueue),
		inspect:  make(chan chan Snapshot),
		done:     make(chan struct{}),

		broadcast: NewBroadcaster(options.BroadcastBuffer),
		registry:  NewRegistry(),
		phase:     PhaseWaitingForHost,
	}

	for _, opt := range opts {
		opt(server)
	}

	server.handlers = map[string]handlerFunc{
		protocol.ActionJoinMatch: server.handleJoinMatch,
		protocol.ActionGameInfo:  server.handleGameInfo,
		protocol.ActionChat:      server.handleChat,
		protocol.ActionPlayTurn:  server.handlePlayTurn,
	}

	return server
}

// Run - processes events until ctx is cancelled, then cancels every connection task and waits for them.
func (that *Server) Run(ctx context.Context) error {
	log := that.logger.With("method", "Run")
	log.Info("session started")

	defer func() {
		that.shutdown()
		log.Info("session stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case conn := <-that.accepted:
			that.onAccepted(conn)
		case ev := <-that.requests:
			that.onRequest(ctx, ev)
		case id := <-that.closed:
			that.onClosed(id)
		case reply := <-that.inspect:
			reply <- that.snapshot()
		}
	}
}

// Accept - hands a freshly accepted stream to the session. The session owns conn from then on.
func (that *Server) Accept(ctx context.Context, conn net.Conn) error {
	select {
	case that.accepted <- conn:
		return nil
	case <-that.done:
		return ErrActorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot - a consistent copy of the session state.
func (that *Server) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)

	select {
	case that.inspect <- reply:
	case <-that.done:
		return Snapshot{}, ErrActorStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}

	select {
	case snapshot := <-reply:
		return snapshot, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// submit - queues req on behalf of connection id. The reply channel receives exactly one message,
// unless the actor no longer knows the connection.
func (that *Server) submit(ctx context.Context, id uuid.UUID, req protocol.Request) (<-chan protocol.Message, error) {
	reply := make(chan protocol.Message, 1)

	select {
	case that.requests <- requestEvent{id: id, req: req, reply: reply}:
		return reply, nil
	case <-that.done:
		return nil, ErrActorStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// release - tells the actor the task for id has finished.
func (that *Server) release(id uuid.UUID) {
	select {
	case that.closed <- id:
	case <-that.done:
	}
}

func (that *Server) onAccepted(socket net.Conn) {
	log := that.logger.With("method", "onAccepted")

	role := entity.ObserverRole()
	if connection.IsLoopback(socket.RemoteAddr()) && !that.registry.HasHost() {
		role = entity.HostRole()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cc := &ConnectionContext{
		ID:           uuid.New(),
		Addr:         addrString(socket.RemoteAddr()),
		Role:         role,
		ConnectedAt:  time.Now(),
		cancel:       cancel,
		subscription: that.broadcast.Subscribe(),
	}

	if !that.registry.Add(cc) {
		log.Error("duplicate connection id", "id", cc.ID)
		cancel()
		that.broadcast.Unsubscribe(cc.subscription)
		_ = socket.Close()
		return
	}
	that.metrics.ConnectionOpened()

	// unblock any pending read or write once the connection is cancelled
	context.AfterFunc(ctx, func() {
		_ = socket.SetDeadline(time.Now())
	})

	task := newConnTask(that, cc, socket)
	that.tasks.Add(1)
	go func() {
		defer that.tasks.Done()
		task.run(ctx)
	}()

	log.Info("connection accepted", "id", cc.ID, "addr", cc.Addr, "role", role.Kind)
	that.publish(protocol.ServerInfo{Text: fmt.Sprintf("%s joined as %s", cc.Addr, role.Kind)})
}

func (that *Server) onRequest(ctx context.Context, ev requestEvent) {
	log := that.logger.With("method", "onRequest")

	cc, ok := that.registry.Get(ev.id)
	if !ok {
		log.Debug("dropping request from unknown connection", "id", ev.id, "action", ev.req.Action())
		that.metrics.RequestHandled(ev.req.Action(), metrics.ResultDropped)
		return
	}

	_, span := that.tracer.Start(ctx, "session.request", trace.WithAttributes(
		attribute.String("session.action", ev.req.Action()),
		attribute.String("session.connection", cc.ID.String()),
		attribute.String("session.role", cc.Role.Kind),
	))
	defer span.End()

	resp, err := that.dispatch(cc, ev.req)
	if err != nil {
		var protoErr *protocol.Error
		if !errors.As(err, &protoErr) {
			log.Error("request failed", "id", cc.ID, "action", ev.req.Action(), "error", err)
			protoErr = protocol.ServerError(err.Error())
		}

		span.SetStatus(codes.Error, protoErr.Error())
		that.metrics.RequestHandled(ev.req.Action(), metrics.ResultError)
		ev.reply <- protoErr
		return
	}

	that.metrics.RequestHandled(ev.req.Action(), metrics.ResultOK)
	ev.reply <- resp
}

func (that *Server) onClosed(id uuid.UUID) {
	log := that.logger.With("method", "onClosed")

	cc, ok := that.registry.Remove(id)
	if !ok {
		return
	}

	cc.cancel()
	that.broadcast.Unsubscribe(cc.subscription)
	that.metrics.ConnectionClosed()

	log.Info("connection closed", "id", cc.ID, "addr", cc.Addr, "role", cc.Role.Kind)
	that.publish(protocol.ServerInfo{Text: cc.Label() + " left"})

	that.forfeitIfPlaying(cc)
}

func (that *Server) shutdown() {
	that.broadcast.Close()
	for _, cc := range that.registry.All() {
		cc.cancel()
	}
	close(that.done)

	that.tasks.Wait()
}

func (that *Server) publish(n protocol.Notification) {
	that.broadcast.Publish(n)
	that.metrics.Broadcast()
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}
	return addr.String()
}
