// Package coordinator drives the ride offer flow and the lifecycle of the
// accepted ride.
package coordinator

import (
	"context"
	"time"

	"github.com/gocomet/ride-realtime/internal/domain/identity"
	"github.com/gocomet/ride-realtime/internal/domain/ride"
	"github.com/gocomet/ride-realtime/internal/geolocation"
	"github.com/gocomet/ride-realtime/internal/notify"
	"github.com/gocomet/ride-realtime/internal/observability"
	"github.com/gocomet/ride-realtime/internal/protocol"
	"github.com/gocomet/ride-realtime/internal/state"
	"github.com/gocomet/ride-realtime/pkg/clock"
	"github.com/gocomet/ride-realtime/pkg/errors"
	"github.com/gocomet/ride-realtime/pkg/eventloop"
	"github.com/gocomet/ride-realtime/pkg/logger"
)

// Channel is the outbound side of the session
type Channel interface {
	Connected() bool
	Emit(event string, payload interface{}) error
	Identity() (identity.Role, string)
}

// RideAPI verifies PINs and completes rides over HTTP
type RideAPI interface {
	VerifyPin(ctx context.Context, bookingID, pin string) error
	CompleteRide(ctx context.Context, bookingID, userID string) error
}

// Alerter plays the attention cue of a new offer
type Alerter interface {
	Alert(offer ride.Offer)
}

// Archiver persists rides that reached a terminal status
type Archiver interface {
	Archive(ctx context.Context, r *ride.Ride) error
}

// Config holds coordinator configuration
type Config struct {
	// DefaultTimeout applies to offers without a usable requestTimeout.
	DefaultTimeout time.Duration
	// CompletionRadius is the proximity threshold in meters.
	CompletionRadius float64
	APITimeout       time.Duration
}

// Coordinator is the Ride Request Coordinator. Methods run on the event loop
// unless documented otherwise.
type Coordinator struct {
	cfg      Config
	exec     eventloop.Executor
	clock    clock.Clock
	store    *state.Store
	channel  Channel
	api      RideAPI
	location geolocation.Source
	notifier notify.Notifier
	alerter  Alerter
	archiver Archiver
	metrics  observability.Recorder
	logger   *logger.Logger

	countdown clock.Timer
	// offerSeq invalidates ticks armed for a replaced or resolved offer.
	offerSeq uint64
	// lastOffer seeds the ride created by booking:accept:result.
	lastOffer *ride.Offer
	onCleared []func()
}

// Deps groups the collaborators of a Coordinator
type Deps struct {
	Exec     eventloop.Executor
	Clock    clock.Clock
	Store    *state.Store
	Channel  Channel
	API      RideAPI
	Location geolocation.Source
	Notifier notify.Notifier
	Alerter  Alerter
	Archiver Archiver
	Metrics  observability.Recorder
	Logger   *logger.Logger
}

// New creates a coordinator in the Idle state
func New(cfg Config, d Deps) *Coordinator {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.CompletionRadius <= 0 {
		cfg.CompletionRadius = 100
	}
	if cfg.APITimeout <= 0 {
		cfg.APITimeout = 10 * time.Second
	}
	if d.Metrics == nil {
		d.Metrics = observability.Nop{}
	}
	if d.Alerter == nil {
		d.Alerter = NotifyAlerter{Notifier: d.Notifier}
	}
	return &Coordinator{
		cfg:      cfg,
		exec:     d.Exec,
		clock:    d.Clock,
		store:    d.Store,
		channel:  d.Channel,
		api:      d.API,
		location: d.Location,
		notifier: d.Notifier,
		alerter:  d.Alerter,
		archiver: d.Archiver,
		metrics:  d.Metrics,
		logger:   d.Logger.Named("coordinator"),
	}
}

// OnRideCleared registers fn to run whenever the ride view is cleared
func (c *Coordinator) OnRideCleared(fn func()) {
	c.onCleared = append(c.onCleared, fn)
}

// NotifyAlerter raises the attention cue as a notification
type NotifyAlerter struct {
	Notifier notify.Notifier
}

// Alert implements Alerter
func (a NotifyAlerter) Alert(o ride.Offer) {
	a.Notifier.Notify(notify.New(notify.LevelInfo, notify.CodeAttention, "New ride request from "+o.Customer.Name))
}

// Tracks reports whether id names the pending offer, the offer awaiting an
// accept result or the active ride. An empty id matches whenever any of
// them exists.
func (c *Coordinator) Tracks(id string) bool {
	r := c.store.Ride()
	if id == "" {
		return r.Offer != nil || r.Active != nil || c.lastOffer != nil
	}
	if r.Offer != nil && r.Offer.BookingID == id {
		return true
	}
	if c.lastOffer != nil && c.lastOffer.BookingID == id {
		return true
	}
	return r.Active.Matches(id)
}

// ActiveRideID returns the booking id of the active ride, empty if none
func (c *Coordinator) ActiveRideID() string {
	if r := c.store.Ride().Active; r != nil {
		return r.BookingID
	}
	return ""
}

// ReceiveOffer makes req the active offer and starts its countdown. A pending
// offer is replaced silently.
func (c *Coordinator) ReceiveOffer(req protocol.RideRequest) error {
	offer := req.Offer(c.clock.Now(), c.cfg.DefaultTimeout)

	if prev := c.store.Ride().Offer; prev != nil {
		c.metrics.OfferOutcome(observability.OfferSuperseded)
		c.logger.Info("Pending offer superseded",
			logger.String("previous_booking_id", prev.BookingID),
			logger.String("booking_id", offer.BookingID),
		)
	}
	c.stopCountdown()
	c.offerSeq++
	seq := c.offerSeq
	c.lastOffer = &offer

	seconds := offer.CountdownSeconds()
	c.store.UpdateRide(func(r *state.Ride) {
		o := offer
		r.Offer = &o
		r.Countdown = seconds
	})
	c.metrics.OfferOutcome(observability.OfferReceived)
	c.logger.Info("Ride offer received",
		logger.String("request_id", offer.RequestID),
		logger.String("booking_id", offer.BookingID),
		logger.Int("countdown", seconds),
	)
	c.notifier.Notify(notify.New(notify.LevelInfo, notify.CodeRideOffer, "New ride request"))
	c.alerter.Alert(offer)

	if seconds <= 0 {
		c.expire(seq)
		return nil
	}
	c.armTick(seq)
	return nil
}

func (c *Coordinator) armTick(seq uint64) {
	c.countdown = c.clock.AfterFunc(time.Second, func() {
		c.exec.Post(func() { c.tick(seq) })
	})
}

func (c *Coordinator) tick(seq uint64) {
	if seq != c.offerSeq || c.store.Ride().Offer == nil {
		return
	}
	var remaining int
	c.store.UpdateRide(func(r *state.Ride) {
		r.Countdown--
		remaining = r.Countdown
	})
	if remaining <= 0 {
		c.expire(seq)
		return
	}
	c.armTick(seq)
}

// expire treats a countdown that ran out as an explicit decline
func (c *Coordinator) expire(seq uint64) {
	if seq != c.offerSeq {
		return
	}
	offer := c.store.Ride().Offer
	if offer == nil {
		return
	}
	c.resolveOffer()
	c.lastOffer = nil
	if err := c.channel.Emit(protocol.EmitDeclineBooking, c.decision(*offer, true)); err != nil {
		c.logger.Warn("Failed to emit decline for expired offer", logger.Err(err))
	}
	c.notifier.Dismiss(notify.CodeRideOffer)
	c.metrics.OfferOutcome(observability.OfferExpired)
	c.logger.Info("Ride offer expired", logger.String("booking_id", offer.BookingID))
}

// resolveOffer returns to Idle: the offer is cleared and its timer cancelled
func (c *Coordinator) resolveOffer() {
	c.stopCountdown()
	c.offerSeq++
	c.store.UpdateRide(func(r *state.Ride) {
		r.Offer = nil
		r.Countdown = 0
	})
}

func (c *Coordinator) stopCountdown() {
	if c.countdown != nil {
		c.countdown.Stop()
		c.countdown = nil
	}
}

func (c *Coordinator) decision(o ride.Offer, expired bool) protocol.OfferDecision {
	_, id := c.channel.Identity()
	return protocol.OfferDecision{
		RequestID: o.RequestID,
		BookingID: o.BookingID,
		DriverID:  id,
		Expired:   expired,
	}
}

// Accept emits the accept frame for the pending offer. The ride itself is
// created by the accept result.
func (c *Coordinator) Accept() error {
	offer := c.store.Ride().Offer
	if offer == nil {
		return errors.ErrNoActiveOffer
	}
	if !c.channel.Connected() {
		return errors.ErrNotConnected
	}
	if err := c.channel.Emit(protocol.EmitAcceptBooking, c.decision(*offer, false)); err != nil {
		return err
	}
	c.resolveOffer()
	c.notifier.Dismiss(notify.CodeRideOffer)
	c.metrics.OfferOutcome(observability.OfferAccepted)
	c.logger.Info("Ride offer accepted", logger.String("booking_id", offer.BookingID))
	return nil
}

// Decline emits the decline frame for the pending offer
func (c *Coordinator) Decline() error {
	offer := c.store.Ride().Offer
	if offer == nil {
		return errors.ErrNoActiveOffer
	}
	c.resolveOffer()
	c.lastOffer = nil
	if err := c.channel.Emit(protocol.EmitDeclineBooking, c.decision(*offer, false)); err != nil {
		c.logger.Warn("Failed to emit decline", logger.Err(err))
	}
	c.notifier.Dismiss(notify.CodeRideOffer)
	c.metrics.OfferOutcome(observability.OfferDeclined)
	c.logger.Info("Ride offer declined", logger.String("booking_id", offer.BookingID))
	return nil
}

// AcceptResult creates the accepted ride, seeded from the accepted offer. A
// result with no offer awaiting it is stale.
func (c *Coordinator) AcceptResult(res protocol.AcceptResult) error {
	if c.lastOffer == nil {
		return errors.ErrStaleFrame
	}
	if !res.Succeeded() {
		msg := res.Message
		if msg == "" {
			msg = "Ride could not be accepted"
		}
		c.lastOffer = nil
		c.notifier.Notify(notify.New(notify.LevelError, notify.CodeAcceptFailed, msg))
		c.logger.Warn("Accept rejected by server", logger.String("booking_id", res.ID()), logger.String("message", msg))
		return nil
	}

	r := ride.FromOffer(*c.lastOffer, c.clock.Now())
	res.Apply(r)
	c.lastOffer = nil

	// The offer may still be showing if the result raced the decision.
	c.resolveOffer()
	c.store.UpdateRide(func(s *state.Ride) {
		s.Active = r
		s.Payment = state.PaymentNone
		s.Inline = ""
	})
	c.notifier.Dismiss(notify.CodeRideOffer)
	c.metrics.RideTransition(string(ride.StatusAccepted))
	c.logger.Info("Ride accepted", logger.String("booking_id", r.BookingID))
	return nil
}

// DriverAssigned populates the ride on the requesting side
func (c *Coordinator) DriverAssigned(p protocol.DriverAssigned) error {
	r := p.Ride(c.clock.Now())
	c.store.UpdateRide(func(s *state.Ride) {
		s.Active = r
		s.Payment = state.PaymentNone
		s.Inline = ""
	})
	msg := p.Message
	if msg == "" {
		msg = "Driver " + r.Driver.Name + " is on the way"
	}
	c.notifier.Notify(notify.New(notify.LevelSuccess, notify.CodeDriverAssigned, msg))
	c.metrics.RideTransition(string(ride.StatusAccepted))
	c.logger.Info("Driver assigned",
		logger.String("booking_id", r.BookingID),
		logger.String("driver_id", r.Driver.ID),
	)
	return nil
}

// NoDrivers reports that the request found no driver
func (c *Coordinator) NoDrivers(p protocol.Notice) {
	msg := p.Message
	if msg == "" {
		msg = "No drivers available right now"
	}
	c.notifier.Notify(notify.New(notify.LevelInfo, notify.CodeNoDrivers, msg))
}

// RideCompleted handles the server's completion frame. The fare becomes
// pending and the requesting party is sent to payment.
func (c *Coordinator) RideCompleted(p protocol.RideCompleted) error {
	now := c.clock.Now()
	c.store.UpdateRide(func(s *state.Ride) {
		if s.Active == nil {
			return
		}
		if p.FareAmount != nil {
			s.Active.FareAmount = *p.FareAmount
		}
		if s.Active.Status == ride.StatusAccepted {
			// The requesting side never sees the start; catch up.
			_ = s.Active.Transition(ride.StatusStarted, now)
		}
		if s.Active.Status == ride.StatusStarted {
			_ = s.Active.Transition(ride.StatusCompleted, now)
		}
		if s.Active.Status == ride.StatusCompleted {
			s.Payment = state.PaymentPending
		}
	})

	active := c.store.Ride().Active
	if active != nil && active.Status == ride.StatusCompleted {
		c.metrics.RideTransition(string(ride.StatusCompleted))
	}
	if identity.ParseRole(p.Role) == identity.RoleRider {
		c.notifier.Navigate(notify.Navigation{Target: notify.TargetPayment, BookingID: p.ID(), Reason: notify.CodeRideCompleted})
	}
	c.notifier.Notify(notify.New(notify.LevelSuccess, notify.CodeRideCompleted, "Ride completed"))
	c.logger.Info("Ride completed", logger.String("booking_id", p.ID()), logger.String("role", p.Role))
	return nil
}

// Canceled ends the tracked ride or offer and clears the ride view
func (c *Coordinator) Canceled(p protocol.Canceled) error {
	role, _ := c.channel.Identity()
	byMe := p.CanceledBy != "" && identity.ParseRole(p.CanceledBy) == role

	if offer := c.store.Ride().Offer; offer != nil && (p.ID() == "" || offer.BookingID == p.ID()) {
		c.resolveOffer()
		c.notifier.Dismiss(notify.CodeRideOffer)
	}
	outcome := p.Outcome()
	c.store.UpdateRide(func(s *state.Ride) {
		if s.Active != nil && !s.Active.Status.IsTerminal() {
			_ = s.Active.Transition(outcome, c.clock.Now())
			s.Active.EndReason = p.Reason
		}
	})
	c.metrics.RideTransition(string(outcome))

	if outcome == ride.StatusFailed {
		msg := "The ride could not continue"
		if p.Reason != "" {
			msg += ": " + p.Reason
		}
		c.notifier.Notify(notify.New(notify.LevelError, notify.CodeRideCanceled, msg))
	} else if byMe {
		c.notifier.Notify(notify.New(notify.LevelSuccess, notify.CodeCancelConfirm, "Your ride has been cancelled"))
	} else {
		msg := "The ride was cancelled"
		if p.Reason != "" {
			msg += ": " + p.Reason
		}
		c.notifier.Notify(notify.New(notify.LevelInfo, notify.CodeRideCanceled, msg))
	}
	c.logger.Info("Ride cancelled",
		logger.String("booking_id", p.ID()),
		logger.String("canceled_by", p.CanceledBy),
		logger.String("outcome", string(outcome)),
		logger.Bool("by_local_user", byMe),
	)

	c.clearRide()
	c.notifier.Navigate(notify.Navigation{Target: notify.TargetHome, BookingID: p.ID(), Reason: notify.CodeRideCanceled})
	return nil
}

// CancelRide asks the server to cancel the active ride. State changes when
// the canceled frame confirms it.
func (c *Coordinator) CancelRide(reason string) error {
	active := c.store.Ride().Active
	if active == nil || active.Status.IsTerminal() {
		return errors.ErrNoActiveRide
	}
	role, _ := c.channel.Identity()
	return c.channel.Emit(protocol.EmitCancelRide, protocol.CancelRide{
		BookingID:   active.BookingID,
		RideID:      active.BookingID,
		CancelledBy: role.WireName(),
		Reason:      reason,
	})
}

// LeaveRide clears a concluded ride once the user left its view
func (c *Coordinator) LeaveRide() error {
	active := c.store.Ride().Active
	if active != nil && !active.Status.IsTerminal() {
		return errors.ErrInvalidTransition
	}
	c.clearRide()
	return nil
}

// Reset drops the offer, the ride and the chat transcript without
// archiving. It runs when the identity the ride belonged to is gone.
func (c *Coordinator) Reset() {
	c.Halt()
	c.store.ClearRide()
	for _, fn := range c.onCleared {
		fn()
	}
}

// Halt cancels every timer and forgets the pending offer. It runs on
// session teardown. Requests in flight keep their flags: the ride survives a
// reopen for the same identity, and Reset drops them with the ride.
func (c *Coordinator) Halt() {
	c.stopCountdown()
	c.offerSeq++
	c.lastOffer = nil
	c.store.UpdateRide(func(s *state.Ride) {
		s.Offer = nil
		s.Countdown = 0
	})
}

func (c *Coordinator) clearRide() {
	if r := c.store.Ride().Active; r != nil && r.Status.IsTerminal() {
		c.archive(r)
	}
	c.stopCountdown()
	c.offerSeq++
	c.lastOffer = nil
	c.store.ClearRide()
	for _, fn := range c.onCleared {
		fn()
	}
}

func (c *Coordinator) archive(r *ride.Ride) {
	if c.archiver == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.APITimeout)
		defer cancel()
		if err := c.archiver.Archive(ctx, r); err != nil {
			c.logger.Error("Failed to archive ride", logger.String("booking_id", r.BookingID), logger.Err(err))
		}
	}()
}
