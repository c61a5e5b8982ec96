package connection

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/tictactoe-session/internal/protocol"
)

const (
	// MaxMessageSize caps how many bytes may be buffered without seeing a newline.
	MaxMessageSize = 64 << 10

	readChunkSize = 512
)

var ErrPeerReset = errors.New("connection reset by peer")

// Connection frames protocol messages, one JSON document per line, over a duplex byte stream.
// Receive must only be called from one goroutine; Send may be called from any.
type Connection struct {
	logger *slog.Logger

	stream io.Reader
	chunk  []byte
	buffer bytes.Buffer
	eof    bool

	writeMu sync.Mutex
	writer  *bufio.Writer

	onMalformed func(err error)
}

type Option func(*Connection)

// WithMalformedHook - fn is called for every line that could not be decoded.
func WithMalformedHook(fn func(err error)) Option {
	return func(c *Connection) {
		c.onMalformed = fn
	}
}

func New(logger *slog.Logger, stream io.ReadWriter, opts ...Option) *Connection {
	conn := &Connection{
		logger: logger,
		stream: stream,
		chunk:  make([]byte, readChunkSize),
		writer: bufio.NewWriter(stream),
	}

	for _, opt := range opts {
		opt(conn)
	}

	return conn
}

// Receive - returns the next request from the stream.
//
// A line that does not decode is answered with an InvalidMessage error and skipped. io.EOF is
// returned when the stream ends cleanly; ErrPeerReset when it ends in the middle of a message.
func (that *Connection) Receive() (protocol.Request, error) {
	for {
		req, ok, err := that.nextBuffered()
		if err != nil {
			return nil, err
		}
		if ok {
			return req, nil
		}

		if that.eof {
			return that.finish()
		}

		n, err := that.stream.Read(that.chunk)
		that.buffer.Write(that.chunk[:n])

		switch {
		case errors.Is(err, io.EOF):
			that.eof = true
		case err != nil:
			return nil, fmt.Errorf("failed to read from stream: %w", err)
		}
	}
}

// Send - writes msg followed by a newline and flushes.
func (that *Connection) Send(msg protocol.Message) error {
	data, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}

	that.writeMu.Lock()
	defer that.writeMu.Unlock()

	if _, err = that.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	if err = that.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %w", err)
	}

	return nil
}

// nextBuffered decodes complete lines already in the buffer until one yields a request.
func (that *Connection) nextBuffered() (protocol.Request, bool, error) {
	for {
		idx := bytes.IndexByte(that.buffer.Bytes(), '\n')
		if idx < 0 {
			break
		}

		line := bytes.TrimSpace(that.buffer.Next(idx + 1))
		if len(line) == 0 {
			continue
		}

		req, err := decodeRequest(line)
		if err == nil {
			return req, true, nil
		}

		if err = that.reject(err); err != nil {
			return nil, false, err
		}
	}

	if that.buffer.Len() > MaxMessageSize {
		that.buffer.Reset()
		if err := that.reject(fmt.Errorf("%w: message exceeds %d bytes", protocol.ErrMalformed, MaxMessageSize)); err != nil {
			return nil, false, err
		}
	}

	return nil, false, nil
}

// finish handles whatever is left once the stream reported end of file.
func (that *Connection) finish() (protocol.Request, error) {
	defer that.buffer.Reset()

	tail := bytes.TrimSpace(that.buffer.Bytes())
	if len(tail) == 0 {
		return nil, io.EOF
	}

	req, err := decodeRequest(tail)
	if err != nil {
		return nil, fmt.Errorf("%w: %d undecodable bytes", ErrPeerReset, len(tail))
	}

	return req, nil
}

// reject reports a malformed line back to the peer. Only a failed write is returned.
func (that *Connection) reject(cause error) error {
	that.logger.Warn("discarding malformed message", "error", cause)

	if that.onMalformed != nil {
		that.onMalformed(cause)
	}

	return that.Send(protocol.InvalidMessage(cause.Error()))
}

func decodeRequest(line []byte) (protocol.Request, error) {
	msg, err := protocol.Unmarshal(line)
	if err != nil {
		return nil, err
	}

	req, ok := msg.(protocol.Request)
	if !ok {
		return nil, fmt.Errorf("%w: clients may only send requests, got %s", protocol.ErrMalformed, msg.Type())
	}

	return req, nil
}
