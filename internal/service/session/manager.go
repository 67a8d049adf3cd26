// Package session owns the single realtime channel of the current identity.
package session

import (
	"context"
	"net/url"
	"time"

	"github.com/gocomet/ride-realtime/internal/credential"
	"github.com/gocomet/ride-realtime/internal/domain/identity"
	"github.com/gocomet/ride-realtime/internal/notify"
	"github.com/gocomet/ride-realtime/internal/observability"
	"github.com/gocomet/ride-realtime/internal/protocol"
	"github.com/gocomet/ride-realtime/internal/state"
	"github.com/gocomet/ride-realtime/pkg/errors"
	"github.com/gocomet/ride-realtime/pkg/eventloop"
	"github.com/gocomet/ride-realtime/pkg/logger"
	"github.com/gocomet/ride-realtime/pkg/websocket"
)

const storeTimeout = 3 * time.Second

// Socket is the channel handle the manager owns exclusively
type Socket interface {
	Connect()
	SetQuery(q url.Values)
	Connected() bool
	Emit(event string, payload interface{}) error
	Close() error
}

// Dialer creates an unconnected socket delivering frames to onFrame
type Dialer func(opts websocket.SocketOptions, onFrame func(websocket.Frame)) Socket

// DialWebsocket is the production Dialer
func DialWebsocket(opts websocket.SocketOptions, onFrame func(websocket.Frame)) Socket {
	return websocket.NewSocket(opts, onFrame)
}

// FrameHandler consumes frames that passed the session guard
type FrameHandler func(frame websocket.Frame)

// TeardownHook runs whenever the channel is torn down. clearState is true
// when the identity the state belonged to is gone.
type TeardownHook func(clearState bool)

// Config holds session configuration
type Config struct {
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	PingInterval      time.Duration
}

// Manager is the Session Connection Manager. Every method must run on the
// event loop.
type Manager struct {
	cfg      Config
	exec     eventloop.Executor
	store    *state.Store
	creds    credential.Store
	notifier notify.Notifier
	metrics  observability.Recorder
	dial     Dialer
	logger   *logger.Logger

	handler  FrameHandler
	hooks    []TeardownHook
	binding  identity.Binding
	endpoint string
	socket   Socket
	gen      uint64
	// errorRaised suppresses repeated connection notifications until the
	// next successful handshake.
	errorRaised bool
}

// NewManager creates a manager with no open channel
func NewManager(
	cfg Config,
	exec eventloop.Executor,
	store *state.Store,
	creds credential.Store,
	notifier notify.Notifier,
	metrics observability.Recorder,
	dial Dialer,
	log *logger.Logger,
) *Manager {
	if dial == nil {
		dial = DialWebsocket
	}
	if metrics == nil {
		metrics = observability.Nop{}
	}
	return &Manager{
		cfg:      cfg,
		exec:     exec,
		store:    store,
		creds:    creds,
		notifier: notifier,
		metrics:  metrics,
		dial:     dial,
		logger:   log.Named("session"),
	}
}

// SetHandler attaches the dispatch table to the inbound stream
func (m *Manager) SetHandler(h FrameHandler) {
	m.handler = h
}

// OnTeardown registers a hook run on every teardown
func (m *Manager) OnTeardown(h TeardownHook) {
	m.hooks = append(m.hooks, h)
}

// Binding returns the identity the current channel was opened for
func (m *Manager) Binding() identity.Binding {
	return m.binding
}

// Reconcile brings the channel in line with binding and endpoint. Conflicting
// roles log every role out and return ErrMultipleRoles. An incomplete binding
// or an empty endpoint closes the channel and is not an error.
func (m *Manager) Reconcile(binding identity.Binding, endpoint string) error {
	if binding.Conflicting() {
		m.logger.Error("Multiple roles logged in, forcing logout",
			logger.Any("roles", binding.LoggedIn),
		)
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := credential.LogoutAll(ctx, m.creds); err != nil {
			m.logger.Error("Failed to clear credentials", logger.Err(err))
		}
		m.teardown(true)
		m.binding = identity.Binding{}
		m.endpoint = ""
		m.notifier.Notify(notify.FromError(errors.ErrMultipleRoles))
		m.notifier.Navigate(notify.Navigation{Target: notify.TargetLogin, Reason: notify.CodeMultipleRoles})
		return errors.ErrMultipleRoles
	}

	if !binding.Complete() || endpoint == "" {
		if m.socket != nil {
			m.logger.Info("Identity incomplete, closing channel")
		}
		m.teardown(!binding.Same(m.binding))
		m.binding = binding
		m.endpoint = endpoint
		return nil
	}

	if m.socket != nil && binding.Same(m.binding) && endpoint == m.endpoint {
		// Same session; pick up tokens rotated outside the channel.
		if binding.AuthToken != m.binding.AuthToken || binding.RefreshToken != m.binding.RefreshToken {
			m.binding.AuthToken = binding.AuthToken
			m.binding.RefreshToken = binding.RefreshToken
			m.socket.SetQuery(m.query())
		}
		return nil
	}

	m.teardown(!binding.Same(m.binding))
	m.binding = binding
	m.endpoint = endpoint
	m.open()
	return nil
}

func (m *Manager) open() {
	m.gen++
	gen := m.gen
	opts := websocket.SocketOptions{
		URL:                  m.endpoint,
		Query:                m.query(),
		Reconnection:         true,
		ReconnectionAttempts: m.cfg.ReconnectAttempts,
		ReconnectionDelay:    m.cfg.ReconnectDelay,
		PingInterval:         m.cfg.PingInterval,
		Logger:               m.logger,
	}
	m.socket = m.dial(opts, func(f websocket.Frame) {
		m.exec.Post(func() { m.receive(gen, f) })
	})
	m.errorRaised = false

	m.store.UpdateSession(func(s *state.Session) {
		s.Status = state.StatusConnecting
		s.Role = m.binding.Role
		s.UserID = m.binding.ID
		s.Generation = gen
	})
	m.metrics.SessionStatus(string(state.StatusConnecting))
	m.logger.Info("Opening realtime channel",
		logger.String("role", string(m.binding.Role)),
		logger.String("user_id", m.binding.ID),
		logger.Uint64("generation", gen),
	)
	m.socket.Connect()
}

func (m *Manager) query() url.Values {
	return url.Values{
		protocol.ParamToken:        {m.binding.AuthToken},
		protocol.ParamRefreshToken: {m.binding.RefreshToken},
	}
}

// receive drops frames from a replaced or closed channel
func (m *Manager) receive(gen uint64, f websocket.Frame) {
	if gen != m.gen || m.socket == nil {
		m.metrics.FrameDropped(f.Event, "stale_session")
		m.logger.Debug("Dropped frame from stale session",
			logger.String("event", f.Event),
			logger.Uint64("generation", gen),
		)
		return
	}
	if m.handler != nil {
		m.handler(f)
	}
}

// Close tears the channel down and resets status. Safe to call repeatedly.
func (m *Manager) Close() {
	m.teardown(false)
}

// Logout removes the credentials of the current role and tears everything down
func (m *Manager) Logout() {
	role := m.binding.Role
	if role.IsValid() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := credential.Logout(ctx, m.creds, role); err != nil {
			m.logger.Error("Failed to remove credentials", logger.Err(err))
		}
	}
	m.teardown(true)
	m.binding = identity.Binding{}
	m.endpoint = ""
}

func (m *Manager) teardown(clearState bool) {
	if m.socket != nil {
		m.logger.Info("Closing realtime channel", logger.Uint64("generation", m.gen))
		if err := m.socket.Close(); err != nil {
			m.logger.Warn("Failed to close channel", logger.Err(err))
		}
		m.socket = nil
		// Frames already queued for the old channel fail the generation check.
		m.gen++
	}
	for _, h := range m.hooks {
		h(clearState)
	}
	if m.store.Session().Status != state.StatusDisconnected {
		m.metrics.SessionStatus(string(state.StatusDisconnected))
	}
	m.store.UpdateSession(func(s *state.Session) {
		s.Status = state.StatusDisconnected
		s.Generation = m.gen
		if clearState {
			s.Role = identity.RoleNone
			s.UserID = ""
		}
	})
}

// Connected reports whether frames can be emitted
func (m *Manager) Connected() bool {
	return m.socket != nil && m.store.Session().Status == state.StatusConnected
}

// Emit sends a frame over the current channel
func (m *Manager) Emit(event string, payload interface{}) error {
	if !m.Connected() {
		return errors.ErrNotConnected
	}
	if err := m.socket.Emit(event, payload); err != nil {
		m.logger.Warn("Failed to emit frame", logger.String("event", event), logger.Err(err))
		return errors.WithCause(errors.ErrNotConnected, err)
	}
	m.logger.Debug("Emitted frame", logger.String("event", event))
	return nil
}

// Identity returns the role and id of the running session
func (m *Manager) Identity() (identity.Role, string) {
	return m.binding.Role, m.binding.ID
}

// AccessToken returns the current access token
func (m *Manager) AccessToken() string {
	return m.binding.AuthToken
}

// MarkConnected handles a completed handshake
func (m *Manager) MarkConnected() {
	m.errorRaised = false
	m.setStatus(state.StatusConnected)
	m.logger.Info("Realtime channel connected", logger.Uint64("generation", m.gen))
}

// MarkDisconnected handles a dropped link. Reconnection is left to the socket.
func (m *Manager) MarkDisconnected(reason string) {
	m.setStatus(state.StatusDisconnected)
	m.logger.Info("Realtime channel disconnected", logger.String("reason", reason))
}

// MarkError handles error and connect_error frames: the session becomes
// disconnected and one recoverable notification is raised per outage.
func (m *Manager) MarkError(event, message string) {
	if event == websocket.EventConnectError {
		m.metrics.ConnectError()
	}
	m.setStatus(state.StatusDisconnected)
	m.logger.Warn("Realtime channel error",
		logger.String("event", event),
		logger.String("message", message),
	)
	if m.errorRaised {
		return
	}
	m.errorRaised = true
	if message == "" {
		message = "Connection to the server was lost"
	}
	m.notifier.Notify(notify.FromError(errors.Transport(notify.CodeConnection, message, nil)))
}

// MarkGaveUp handles exhaustion of the reconnection budget
func (m *Manager) MarkGaveUp() {
	m.setStatus(state.StatusDisconnected)
	m.logger.Warn("Reconnection attempts exhausted")
	m.notifier.Notify(notify.New(notify.LevelError, notify.CodeReconnectGaveUp, "Unable to reach the server"))
}

// RotateCredentials stores a refreshed token pair in place. The channel is
// kept; the next reconnect carries the new tokens.
func (m *Manager) RotateCredentials(p protocol.TokenRefreshed) error {
	if p.Token == "" {
		return errors.Protocol("INVALID_TOKEN_REFRESH", "Token refresh without a token", nil)
	}
	role := m.binding.Role
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := credential.Rotate(ctx, m.creds, role, p.Token, p.RefreshToken); err != nil {
		return errors.Internal("Failed to store refreshed credentials", err)
	}
	m.binding.AuthToken = p.Token
	if p.RefreshToken != "" {
		m.binding.RefreshToken = p.RefreshToken
	}
	if m.socket != nil {
		m.socket.SetQuery(m.query())
	}

	fields := []logger.Field{logger.String("role", string(role))}
	if claims, err := credential.ParseClaims(p.Token); err == nil && !claims.ExpiresAt.IsZero() {
		fields = append(fields, logger.Time("expires_at", claims.ExpiresAt))
	}
	m.logger.Info("Credentials rotated", fields...)
	return nil
}

// Block force-terminates the session of a blocked user
func (m *Manager) Block(p protocol.UserBlocked) {
	msg := p.Message
	if msg == "" {
		msg = errors.ErrUserBlocked.Message
	}
	m.logger.Warn("User blocked, forcing logout",
		logger.String("role", string(m.binding.Role)),
		logger.String("reason", p.Reason),
	)
	m.Logout()
	m.notifier.Notify(notify.New(notify.LevelError, notify.CodeUserBlocked, msg))
	m.notifier.Navigate(notify.Navigation{Target: notify.TargetLogin, Reason: notify.CodeUserBlocked})
}

func (m *Manager) setStatus(status state.SessionStatus) {
	if m.store.Session().Status == status {
		return
	}
	m.store.UpdateSession(func(s *state.Session) { s.Status = status })
	m.metrics.SessionStatus(string(status))
}
