package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/gocomet/ride-realtime/pkg/clock"
	"github.com/gocomet/ride-realtime/pkg/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Lifecycle frames synthesized by the socket itself. They are delivered
// through the same callback as frames read from the wire.
const (
	EventConnect         = "connect"
	EventDisconnect      = "disconnect"
	EventConnectError    = "connect_error"
	EventError           = "error"
	EventReconnectFailed = "reconnect_failed"
)

var (
	ErrSocketNotConnected = errors.New("socket is not connected")
	ErrSocketClosed       = errors.New("socket is closed")
	ErrSendBufferFull     = errors.New("socket send buffer full")
)

// Frame is one named message on the channel. On the wire it is encoded as
// {"event": "...", "data": {...}}.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals payload into a Frame.
func NewFrame(event string, payload interface{}) (Frame, error) {
	if payload == nil {
		return Frame{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return Frame{Event: event, Data: data}, nil
}

// ErrorPayload is the data of connect_error, error and disconnect frames.
type ErrorPayload struct {
	Message string `json:"message"`
}

// SocketOptions configures a reconnecting client socket.
type SocketOptions struct {
	URL   string
	Query url.Values

	Reconnection         bool
	ReconnectionAttempts int
	ReconnectionDelay    time.Duration

	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	SendBufferSize   int

	Clock  clock.Clock
	Logger *logger.Logger
}

func (o *SocketOptions) setDefaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = 256
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = logger.NewNop()
	}
}

// link is one physical websocket connection. A Socket owns at most one
// link at a time and replaces it on reconnect.
type link struct {
	conn *websocket.Conn
	send chan []byte
	stop chan struct{}
	once sync.Once
}

func (l *link) shutdown() {
	l.once.Do(func() { close(l.stop) })
}

// Socket is a client websocket with bounded automatic reconnection.
// onFrame is invoked from the socket's goroutines and must not block.
type Socket struct {
	ID string

	opts    SocketOptions
	onFrame func(Frame)
	dialer  *websocket.Dialer
	logger  *logger.Logger

	mu       sync.Mutex
	query    url.Values
	current  *link
	attempts int
	retry    clock.Timer
	started  bool
	closed   bool
}

// NewSocket creates a socket. Nothing is dialed until Connect.
func NewSocket(opts SocketOptions, onFrame func(Frame)) *Socket {
	opts.setDefaults()
	id := uuid.NewString()
	return &Socket{
		ID:      id,
		opts:    opts,
		onFrame: onFrame,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		logger: opts.Logger.With(logger.String("socket_id", id)),
		query:  cloneValues(opts.Query),
	}
}

// Connect starts the first dial attempt in the background.
func (s *Socket) Connect() {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.dial()
}

// SetQuery replaces the connection parameters used by future reconnects.
func (s *Socket) SetQuery(q url.Values) {
	s.mu.Lock()
	s.query = cloneValues(q)
	s.mu.Unlock()
}

// Connected reports whether a link is currently established.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Emit queues one frame for the writer.
func (s *Socket) Emit(event string, payload interface{}) error {
	frame, err := NewFrame(event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSocketClosed
	}
	if s.current == nil {
		return ErrSocketNotConnected
	}
	select {
	case s.current.send <- data:
		return nil
	default:
		s.logger.Warn("Socket send buffer full", logger.String("event", event))
		return ErrSendBufferFull
	}
}

// Close stops reconnection and closes the active link. It is idempotent.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	current := s.current
	s.current = nil
	s.mu.Unlock()

	if current != nil {
		current.shutdown()
	}
	s.logger.Debug("Socket closed")
	return nil
}

func (s *Socket) endpoint() (string, error) {
	u, err := url.Parse(s.opts.URL)
	if err != nil {
		return "", fmt.Errorf("invalid socket url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	s.mu.Lock()
	q := u.Query()
	for key, values := range s.query {
		q.Del(key)
		for _, v := range values {
			q.Add(key, v)
		}
	}
	s.mu.Unlock()
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Socket) dial() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.retry = nil
	s.mu.Unlock()

	target, err := s.endpoint()
	if err != nil {
		s.emitLocal(EventConnectError, ErrorPayload{Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.HandshakeTimeout)
	conn, _, err := s.dialer.DialContext(ctx, target, nil)
	cancel()
	if err != nil {
		s.logger.Warn("Socket dial failed", logger.Err(err))
		s.emitLocal(EventConnectError, ErrorPayload{Message: err.Error()})
		s.scheduleReconnect()
		return
	}

	l := &link{
		conn: conn,
		send: make(chan []byte, s.opts.SendBufferSize),
		stop: make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.current = l
	s.attempts = 0
	s.mu.Unlock()

	s.logger.Info("Socket connected")
	s.emitLocal(EventConnect, nil)

	go s.writePump(l)
	go s.readPump(l)
}

func (s *Socket) scheduleReconnect() {
	s.mu.Lock()
	if s.closed || !s.opts.Reconnection {
		s.mu.Unlock()
		return
	}
	if s.attempts >= s.opts.ReconnectionAttempts {
		attempts := s.attempts
		s.mu.Unlock()
		s.logger.Warn("Socket reconnection attempts exhausted", logger.Int("attempts", attempts))
		s.emitLocal(EventReconnectFailed, ErrorPayload{Message: "reconnection attempts exhausted"})
		return
	}
	s.attempts++
	attempt := s.attempts
	s.retry = s.opts.Clock.AfterFunc(s.opts.ReconnectionDelay, func() { go s.dial() })
	s.mu.Unlock()

	s.logger.Info("Socket reconnect scheduled",
		logger.Int("attempt", attempt),
		logger.Duration("delay", s.opts.ReconnectionDelay),
	)
}

// readPump decodes frames until the link fails or is shut down.
func (s *Socket) readPump(l *link) {
	var readErr error
	for {
		_, message, err := l.conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		s.decode(message)
	}

	s.mu.Lock()
	owned := s.current == l
	if owned {
		s.current = nil
	}
	closed := s.closed
	s.mu.Unlock()

	l.shutdown()
	if closed || !owned {
		return
	}

	if websocket.IsUnexpectedCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Warn("Socket read error", logger.Err(readErr))
	}
	s.emitLocal(EventDisconnect, ErrorPayload{Message: readErr.Error()})
	s.scheduleReconnect()
}

// decode accepts one frame per message or several newline separated frames.
func (s *Socket) decode(message []byte) {
	dec := json.NewDecoder(bytes.NewReader(message))
	for {
		var frame Frame
		err := dec.Decode(&frame)
		if err == io.EOF {
			return
		}
		if err != nil {
			s.logger.Warn("Failed to decode frame", logger.Err(err))
			s.emitLocal(EventError, ErrorPayload{Message: "malformed frame"})
			return
		}
		if frame.Event == "" {
			continue
		}
		s.onFrame(frame)
	}
}

// writePump owns all writes to the link, including keepalive pings.
func (s *Socket) writePump(l *link) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		l.conn.Close()
	}()

	for {
		select {
		case message := <-l.send:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("Socket write failed", logger.Err(err))
				return
			}

		case <-ticker.C:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-l.stop:
			l.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (s *Socket) emitLocal(event string, payload interface{}) {
	frame, err := NewFrame(event, payload)
	if err != nil {
		return
	}
	s.onFrame(frame)
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for key, values := range v {
		out[key] = append([]string(nil), values...)
	}
	return out
}
