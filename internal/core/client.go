// Package core wires the session, dispatch, coordinator and chat services
// into one client. Every intent is marshalled onto the event loop; state is
// read through snapshots.
package core

import (
	"context"
	"time"

	"github.com/gocomet/ride-realtime/internal/credential"
	domainchat "github.com/gocomet/ride-realtime/internal/domain/chat"
	"github.com/gocomet/ride-realtime/internal/domain/identity"
	"github.com/gocomet/ride-realtime/internal/geolocation"
	"github.com/gocomet/ride-realtime/internal/notify"
	"github.com/gocomet/ride-realtime/internal/observability"
	"github.com/gocomet/ride-realtime/internal/service/chat"
	"github.com/gocomet/ride-realtime/internal/service/coordinator"
	"github.com/gocomet/ride-realtime/internal/service/dispatch"
	"github.com/gocomet/ride-realtime/internal/service/session"
	"github.com/gocomet/ride-realtime/internal/state"
	"github.com/gocomet/ride-realtime/pkg/clock"
	"github.com/gocomet/ride-realtime/pkg/eventloop"
	"github.com/gocomet/ride-realtime/pkg/logger"
)

// Options configures the services
type Options struct {
	// Endpoint is the realtime URL. Empty means no session is ever opened.
	Endpoint       string
	Session        session.Config
	Coordinator    coordinator.Config
	TypingDebounce time.Duration
}

// Deps are the collaborators supplied by the host process
type Deps struct {
	Exec        eventloop.Executor
	Clock       clock.Clock
	Credentials credential.Store
	API         coordinator.RideAPI
	Location    *geolocation.Tracker
	Notifier    notify.Notifier
	Alerter     coordinator.Alerter
	Archiver    coordinator.Archiver
	Metrics     observability.Recorder
	// Dialer replaces the websocket dialer in tests.
	Dialer session.Dialer
	Logger *logger.Logger
}

// Client is the realtime core as seen by the rendering layer
type Client struct {
	opts     Options
	exec     eventloop.Executor
	store    *state.Store
	creds    credential.Store
	location *geolocation.Tracker
	session  *session.Manager
	coord    *coordinator.Coordinator
	chat     *chat.Channel
	table    *dispatch.Table
	logger   *logger.Logger
}

// New wires a client. No channel is opened until Reconcile runs.
func New(opts Options, d Deps) *Client {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Metrics == nil {
		d.Metrics = observability.Nop{}
	}
	if d.Location == nil {
		d.Location = geolocation.NewTracker(d.Clock, 0)
	}
	store := state.New()

	mgr := session.NewManager(opts.Session, d.Exec, store, d.Credentials, d.Notifier, d.Metrics, d.Dialer, d.Logger)
	coord := coordinator.New(opts.Coordinator, coordinator.Deps{
		Exec:     d.Exec,
		Clock:    d.Clock,
		Store:    store,
		Channel:  mgr,
		API:      d.API,
		Location: d.Location,
		Notifier: d.Notifier,
		Alerter:  d.Alerter,
		Archiver: d.Archiver,
		Metrics:  d.Metrics,
		Logger:   d.Logger,
	})
	ch := chat.NewChannel(d.Exec, d.Clock, store, mgr, opts.TypingDebounce, d.Metrics, d.Logger)
	table := dispatch.New(&dispatch.Env{
		Session:  mgr,
		Rides:    coord,
		Chat:     ch,
		Notifier: d.Notifier,
		Logger:   d.Logger,
	}, dispatch.Registrations(), d.Metrics)

	mgr.SetHandler(table.Dispatch)
	mgr.OnTeardown(func(clearState bool) {
		coord.Halt()
		ch.Halt()
		if clearState {
			coord.Reset()
		}
	})
	coord.OnRideCleared(ch.Halt)

	return &Client{
		opts:     opts,
		exec:     d.Exec,
		store:    store,
		creds:    d.Credentials,
		location: d.Location,
		session:  mgr,
		coord:    coord,
		chat:     ch,
		table:    table,
		logger:   d.Logger.Named("core"),
	}
}

// do runs fn on the event loop and returns its error
func (c *Client) do(fn func() error) error {
	var err error
	if doErr := c.exec.Do(func() { err = fn() }); doErr != nil {
		return doErr
	}
	return err
}

// Reconcile aligns the session with binding
func (c *Client) Reconcile(binding identity.Binding) error {
	return c.do(func() error { return c.session.Reconcile(binding, c.opts.Endpoint) })
}

// ReconcileFromStore reads the identity binding from the credential store
// and reconciles the session with it.
func (c *Client) ReconcileFromStore(ctx context.Context) error {
	binding, err := credential.Binding(ctx, c.creds)
	if err != nil {
		return err
	}
	return c.Reconcile(binding)
}

// Login stores credentials for role and reconciles
func (c *Client) Login(ctx context.Context, role identity.Role, creds credential.Credentials) error {
	if err := credential.Save(ctx, c.creds, role, creds); err != nil {
		return err
	}
	return c.ReconcileFromStore(ctx)
}

// Logout removes the current role's credentials and closes the session
func (c *Client) Logout() error {
	return c.do(func() error {
		c.session.Logout()
		return nil
	})
}

// Accept accepts the pending offer
func (c *Client) Accept() error {
	return c.do(c.coord.Accept)
}

// Decline declines the pending offer
func (c *Client) Decline() error {
	return c.do(c.coord.Decline)
}

// SendMessage sends a chat message on the active ride
func (c *Client) SendMessage(content string, typ domainchat.Type, fileURL string) error {
	return c.do(func() error { return c.chat.Send(content, typ, fileURL) })
}

// NotifyTyping reports a keystroke in the chat composer
func (c *Client) NotifyTyping() error {
	return c.do(c.chat.NotifyTyping)
}

// AttachChat marks the chat view visible
func (c *Client) AttachChat() error {
	return c.do(func() error {
		c.chat.Attach()
		return nil
	})
}

// DetachChat marks the chat view hidden
func (c *Client) DetachChat() error {
	return c.do(func() error {
		c.chat.Detach()
		return nil
	})
}

// CancelRide asks the server to cancel the active ride
func (c *Client) CancelRide(reason string) error {
	return c.do(func() error { return c.coord.CancelRide(reason) })
}

// LeaveRide clears a concluded ride
func (c *Client) LeaveRide() error {
	return c.do(c.coord.LeaveRide)
}

// StartRide submits the rider's PIN. It blocks on the ride API.
func (c *Client) StartRide(ctx context.Context, pin string) error {
	return c.coord.StartRide(ctx, pin)
}

// CompleteRide completes the started ride. It blocks on the ride API.
func (c *Client) CompleteRide(ctx context.Context) error {
	return c.coord.CompleteRide(ctx)
}

// UpdateLocation records a position fix from the device
func (c *Client) UpdateLocation(p geolocation.Position) {
	c.location.Update(p)
}

// AccessToken returns the token of the running session. It must not be
// called from the event loop.
func (c *Client) AccessToken() string {
	var token string
	_ = c.exec.Do(func() { token = c.session.AccessToken() })
	return token
}

// Session returns the session slice
func (c *Client) Session() state.Session { return c.store.Session() }

// Ride returns the ride slice
func (c *Client) Ride() state.Ride { return c.store.Ride() }

// Chat returns the chat slice
func (c *Client) Chat() state.Chat { return c.store.Chat() }

// Subscribe registers l for slice changes
func (c *Client) Subscribe(l state.Listener) func() { return c.store.Subscribe(l) }

// Events lists the inbound frame names the client handles
func (c *Client) Events() []string { return c.table.Events() }

// Close tears the session down, keeping credentials
func (c *Client) Close() {
	_ = c.exec.Do(c.session.Close)
	c.logger.Info("Realtime client closed")
}
